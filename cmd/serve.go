package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/monitoring"
	"github.com/sells-group/hwvalue/internal/store"
	"github.com/sells-group/hwvalue/internal/value"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only API server",
	Long:  "Serves the latest value ranking, accepted listings, rejection log and run history over HTTP. When monitoring.webhook_url is set, run health is checked in the background and alerts are posted to the webhook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		cat, err := initCatalog()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector := monitoring.NewCollector(st)
		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		api := &apiServer{
			store:         st,
			engine:        value.NewEngine(cat),
			collector:     collector,
			lookbackHours: cfg.Monitoring.LookbackWindowHours,
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(api, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting api server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer answers read-only queries against the store.
type apiServer struct {
	store         store.Store
	engine        *value.Engine
	collector     *monitoring.Collector
	lookbackHours int
}

func buildRouter(api *apiServer, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/rankings", api.rankings)
		r.Get("/listings", api.listings)
		r.Get("/rejected", api.rejected)
		r.Get("/rejected/summary", api.rejectedSummary)
		r.Get("/runs", api.runs)
		r.Get("/runs/health", api.runsHealth)
	})

	return r
}

func (a *apiServer) rankings(w http.ResponseWriter, r *http.Request) {
	ranking, err := a.engine.RankFromStore(r.Context(), a.store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

// listings returns the accepted listings of the latest completed run,
// optionally narrowed to one model.
func (a *apiServer) listings(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.LatestRun(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if run == nil {
		writeJSON(w, http.StatusOK, []model.AcceptedListing{})
		return
	}

	listings, err := a.store.ListAccepted(r.Context(), run.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]model.AcceptedListing, 0, len(listings))
	want := r.URL.Query().Get("model")
	for _, l := range listings {
		if want == "" || l.Model == want {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) rejected(w http.ResponseWriter, r *http.Request) {
	rejected, err := a.store.ListRejected(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := filterRejected(rejected, model.RejectCategory(r.URL.Query().Get("category")))
	if out == nil {
		out = []model.RejectedListing{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) rejectedSummary(w http.ResponseWriter, r *http.Request) {
	rejected, err := a.store.ListRejected(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, store.RejectionCounts(rejected))
}

func (a *apiServer) runs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 20)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		return
	}

	runs, err := a.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *apiServer) runsHealth(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r.URL.Query().Get("hours"), a.lookbackHours)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hours"})
		return
	}

	health, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs the cause and answers with a generic 500.
func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("serve: request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
