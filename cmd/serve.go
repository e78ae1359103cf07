package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/store"
	"github.com/seamark-analytics/climrisk/internal/summary"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring API server",
	Long:  "Serves run history, summaries, and fitted edges over HTTP, exposes Prometheus metrics, and accepts requests to start new scoring runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the API routes. Scoring runs started over HTTP execute
// asynchronously; only one run may be in flight at a time.
func newRouter(ctx context.Context, env *pipelineEnv) chi.Router {
	var running atomic.Bool

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	healthz := func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
	r.Get("/health", healthz)
	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", func(w http.ResponseWriter, _ *http.Request) {
			if !running.CompareAndSwap(false, true) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "a scoring run is already in progress"})
				return
			}

			// Score asynchronously; progress is visible through run status.
			go func() {
				defer running.Store(false)

				districts, report, err := loadDistricts()
				if err != nil {
					zap.L().Error("serve: load districts", zap.Error(err))
					return
				}
				sources, err := loadSources()
				if err != nil {
					zap.L().Error("serve: load sources", zap.Error(err))
					return
				}
				res, err := env.Pipeline.Run(ctx, districts, report, sources)
				if err != nil {
					zap.L().Error("serve: scoring run failed", zap.Error(err))
					return
				}
				zap.L().Info("serve: scoring run complete",
					zap.String("run_id", res.RunID),
					zap.Int("districts", len(res.Summaries)),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := env.Store.ListRuns(req.Context(), store.RunFilter{
				Status: model.RunStatus(req.URL.Query().Get("status")),
			})
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/runs/{id}/summaries", func(w http.ResponseWriter, req *http.Request) {
			records, err := env.Store.SummariesForRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, records)
		})

		r.Get("/summary", func(w http.ResponseWriter, req *http.Request) {
			run, ok := latestCompleteRun(w, req, env)
			if !ok {
				return
			}
			records, err := env.Store.SummariesForRun(req.Context(), run.ID)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, records)
		})

		r.Get("/summary/{district}", func(w http.ResponseWriter, req *http.Request) {
			run, ok := latestCompleteRun(w, req, env)
			if !ok {
				return
			}
			records, err := env.Store.SummariesForRun(req.Context(), run.ID)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			id := chi.URLParam(req, "district")
			for _, rec := range records {
				if rec.DistrictID == id {
					writeJSON(w, http.StatusOK, rec)
					return
				}
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		})

		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			run, ok := latestCompleteRun(w, req, env)
			if !ok {
				return
			}
			scores, err := env.Store.ScoresForRun(req.Context(), run.ID)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, summary.ComputeStats(scores))
		})

		r.Get("/edges", func(w http.ResponseWriter, req *http.Request) {
			fitted := make(map[model.Hazard]model.BinEdges)
			for _, h := range model.Hazards() {
				edges, err := env.Store.LatestEdges(req.Context(), h)
				if eris.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					writeStoreError(w, err)
					return
				}
				fitted[h] = edges
			}
			writeJSON(w, http.StatusOK, fitted)
		})

		r.Get("/hazards/{hazard}/edges", func(w http.ResponseWriter, req *http.Request) {
			hazard, err := model.ParseHazard(chi.URLParam(req, "hazard"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			edges, err := env.Store.LatestEdges(req.Context(), hazard)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, edges)
		})
	})

	return r
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// latestCompleteRun resolves the most recent complete run, writing a 404
// when no run has finished yet.
func latestCompleteRun(w http.ResponseWriter, req *http.Request, env *pipelineEnv) (*model.Run, bool) {
	runs, err := env.Store.ListRuns(req.Context(), store.RunFilter{
		Status: model.RunStatusComplete,
		Limit:  1,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	if len(runs) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no complete runs yet"})
		return nil, false
	}
	return &runs[0], true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
