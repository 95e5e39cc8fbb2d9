package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compete-cli/internal/diff"
	"github.com/sells-group/compete-cli/internal/discovery"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/monitor"
	"github.com/sells-group/compete-cli/internal/store"
	"github.com/sells-group/compete-cli/internal/urlutil"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the competitive intelligence API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(env.Store, env.Orchestrator, env.Monitor, cfg.Server.APIKey)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the API routes. orch may be nil; analysis jobs then
// fail with an explanatory error instead of panicking, which keeps the
// handlers testable without a wired pipeline.
func buildRouter(st store.Store, orch *discovery.Orchestrator, mon *monitor.Service, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(pr chi.Router) {
		if apiKey != "" {
			pr.Use(requireAPIKey(apiKey))
		}

		pr.Post("/init-analysis", handleInitAnalysis(st, orch))
		pr.Get("/analysis/{jobID}", handleGetAnalysis(st))
		pr.Get("/history/{jobID}", handleHistory(st))
		pr.Get("/history/{jobID}/diff", handleHistoryDiff(st))

		pr.Post("/monitor", handleStartMonitor(mon))
		pr.Get("/monitors", handleListMonitors(st))
		pr.Get("/monitor/{monitorID}/changes", handleMonitorChanges(mon))
		pr.Get("/monitor/{monitorID}/report", handleMonitorReport(mon))
		pr.Post("/monitor/{monitorID}/refresh", handleRefreshMonitor(st, mon))
	})

	return r
}

func requireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != apiKey {
				respondError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func handleInitAnalysis(st store.Store, orch *discovery.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BaseURL string `json:"base_url"`
			Scope   string `json:"scope"`
			Region  string `json:"region"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.BaseURL == "" {
			respondError(w, http.StatusBadRequest, "base_url is required")
			return
		}

		baseURL := urlutil.EnsureScheme(req.BaseURL)
		scope := req.Scope
		if scope == "" {
			scope = "global"
		}

		job, err := st.CreateJob(r.Context(), baseURL, scope, req.Region)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create job")
			return
		}

		// Run the analysis detached from the request context; the client
		// polls GET /analysis/{job_id}.
		go runAnalysisJob(context.Background(), st, orch, *job)

		respondJSON(w, http.StatusOK, map[string]string{"job_id": job.ID})
	}
}

// runAnalysisJob executes discovery for a job and records the outcome,
// including the report history entry used by the diff endpoints.
func runAnalysisJob(ctx context.Context, st store.Store, orch *discovery.Orchestrator, job model.Job) {
	if orch == nil {
		_ = st.UpdateJobResult(ctx, job.ID, nil, "analysis unavailable: no orchestrator configured")
		return
	}

	res := orch.Run(ctx, discovery.Request{
		BaseURL: job.BaseURL,
		Scope:   job.Scope,
		Region:  job.Region,
	}, nil)

	if res.Report == nil {
		msg := res.Notes.String()
		if msg == "" {
			msg = "No report generated"
		}
		if err := st.UpdateJobResult(ctx, job.ID, nil, msg); err != nil {
			zap.L().Error("record failed job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	if err := st.UpdateJobResult(ctx, job.ID, res.Report, res.Notes.String()); err != nil {
		zap.L().Error("record job result", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	key := urlutil.NormalizeBaseURL(job.BaseURL)
	snap := model.ReportSnapshot{Timestamp: time.Now().UTC(), Report: *res.Report}
	if err := st.AppendReport(ctx, key, snap); err != nil {
		zap.L().Error("append report history", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func handleGetAnalysis(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := st.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Analysis job not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		respondJSON(w, http.StatusOK, job)
	}
}

func handleHistory(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := st.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Analysis job not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load job")
			return
		}

		key := urlutil.NormalizeBaseURL(job.BaseURL)
		snaps, err := st.ListReports(r.Context(), key, 0)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load history")
			return
		}

		// Oldest first, matching insertion order.
		analyses := make([]model.ReportSnapshot, 0, len(snaps))
		for i := len(snaps) - 1; i >= 0; i-- {
			analyses = append(analyses, snaps[i])
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"base_url": job.BaseURL,
			"analyses": analyses,
		})
	}
}

func handleHistoryDiff(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := st.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Analysis job not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load job")
			return
		}

		key := urlutil.NormalizeBaseURL(job.BaseURL)
		snaps, err := st.ListReports(r.Context(), key, 2)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load history")
			return
		}

		if len(snaps) < 2 {
			resp := map[string]any{
				"changes":            []model.ChangeEvent{},
				"previous_timestamp": nil,
				"current_timestamp":  nil,
			}
			if len(snaps) == 1 {
				resp["current_timestamp"] = snaps[0].Timestamp
			}
			respondJSON(w, http.StatusOK, resp)
			return
		}

		prev, curr := snaps[1], snaps[0]
		events := diff.DetectChanges(&prev.Report, &curr.Report, key)
		respondJSON(w, http.StatusOK, map[string]any{
			"changes":            events,
			"previous_timestamp": prev.Timestamp,
			"current_timestamp":  curr.Timestamp,
		})
	}
}

func handleStartMonitor(mon *monitor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BaseURL     string `json:"base_url"`
			CompanyName string `json:"company_name"`
			Scope       string `json:"scope"`
			Region      string `json:"region"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.BaseURL == "" {
			respondError(w, http.StatusBadRequest, "base_url is required")
			return
		}

		m, err := mon.Start(r.Context(), monitor.StartRequest{
			BaseURL:     req.BaseURL,
			CompanyName: req.CompanyName,
			Scope:       req.Scope,
			Region:      req.Region,
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create monitor")
			return
		}

		// Initial analysis runs in the background.
		go func() {
			if _, err := mon.Refresh(context.Background(), m.ID); err != nil {
				zap.L().Error("initial monitor analysis failed",
					zap.String("monitor_id", m.ID), zap.Error(err))
			}
		}()

		respondJSON(w, http.StatusOK, map[string]string{
			"monitor_id": m.ID,
			"message":    fmt.Sprintf("Monitoring started for %s. Initial analysis running.", m.CompanyName),
		})
	}
}

func handleListMonitors(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitors, err := st.ListMonitors(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list monitors")
			return
		}

		out := make([]map[string]any, 0, len(monitors))
		for _, m := range monitors {
			changes, err := st.ListChanges(r.Context(), m.ID, 0)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "failed to list monitors")
				return
			}
			out = append(out, map[string]any{
				"id":                   m.ID,
				"base_url":             m.BaseURL,
				"company_name":         m.CompanyName,
				"scope":                m.Scope,
				"region":               m.Region,
				"created_at":           m.CreatedAt,
				"last_checked":         m.LastChecked,
				"check_interval_hours": m.CheckIntervalHours,
				"change_count":         len(changes),
			})
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func handleMonitorChanges(mon *monitor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, events, err := mon.Changes(r.Context(), chi.URLParam(r, "monitorID"), 0)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Monitor not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load changes")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"monitor_id":   m.ID,
			"company_name": m.CompanyName,
			"changes":      events,
			"last_checked": m.LastChecked,
		})
	}
}

func handleMonitorReport(mon *monitor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitorID := chi.URLParam(r, "monitorID")
		snap, err := mon.LatestReport(r.Context(), monitorID)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Monitor not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load report")
			return
		}
		if snap == nil {
			respondError(w, http.StatusNotFound, "No report yet; analysis may still be running")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"monitor_id": monitorID,
			"report":     snap.Report,
		})
	}
}

func handleRefreshMonitor(st store.Store, mon *monitor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitorID := chi.URLParam(r, "monitorID")
		if _, err := st.GetMonitor(r.Context(), monitorID); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Monitor not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load monitor")
			return
		}

		go func() {
			if _, err := mon.Refresh(context.Background(), monitorID); err != nil {
				zap.L().Error("monitor refresh failed",
					zap.String("monitor_id", monitorID), zap.Error(err))
			}
		}()

		respondJSON(w, http.StatusOK, map[string]string{
			"monitor_id": monitorID,
			"message":    "Refresh started. Changes will appear in /monitor/{monitor_id}/changes when complete.",
		})
	}
}
