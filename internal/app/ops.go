package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PermAdut/autoservice-notify/pkg/health"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 500
)

type statsResponse struct {
	queue.Stats
	Pending int64 `json:"pending"`
	Total   int64 `json:"total"`
}

type jobsResponse struct {
	State queue.State  `json:"state"`
	Jobs  []*queue.Job `json:"jobs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func opsRouter(cfg *config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(cfg.checks, health.WithLogger(cfg.logger)))

	if cfg.store != nil {
		r.Get("/stats", statsHandler(cfg.store, cfg.logger))
		r.Get("/jobs", jobsHandler(cfg.store, cfg.logger))
	}
	return r
}

func statsHandler(store queue.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats(r.Context())
		if err != nil {
			log.ErrorContext(r.Context(), "failed to read queue stats", slog.Any("error", err))
			writeJSON(w, storageStatus(err), errorResponse{Error: "queue stats unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, statsResponse{Stats: stats, Pending: stats.Pending(), Total: stats.Total()})
	}
}

// jobsHandler lists jobs by ?state= (default failed), newest update first,
// capped by ?limit=.
func jobsHandler(store queue.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := queue.StateFailed
		if v := r.URL.Query().Get("state"); v != "" {
			state = queue.State(v)
		}
		if !state.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown state " + strconv.Quote(string(state))})
			return
		}

		limit := defaultJobsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
				return
			}
			limit = min(n, maxJobsLimit)
		}

		jobs, err := store.List(r.Context(), state, limit)
		if err != nil {
			log.ErrorContext(r.Context(), "failed to list jobs",
				slog.String("state", string(state)),
				slog.Any("error", err),
			)
			writeJSON(w, storageStatus(err), errorResponse{Error: "job listing unavailable"})
			return
		}
		if jobs == nil {
			jobs = []*queue.Job{}
		}
		writeJSON(w, http.StatusOK, jobsResponse{State: state, Jobs: jobs})
	}
}

func storageStatus(err error) int {
	if errors.Is(err, queue.ErrStorageUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
