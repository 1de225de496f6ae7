package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hwvalue/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hwvalue",
	Short: "Secondhand GPU price ingestion and value ranking",
	Long:  "Collects marketplace listings for a catalog of graphics cards, filters out junk and outliers, stores the accepted prices and ranks models by benchmark performance per lev.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
