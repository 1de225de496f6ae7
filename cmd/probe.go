package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check outbound connectivity without fetching listings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.Probe(cmd.Context()); err != nil {
			return eris.Wrap(err, "probe")
		}

		route := "direct"
		if client.TorActive() {
			route = "tor"
		}
		fmt.Printf("Connectivity ok (route: %s).\n", route)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
