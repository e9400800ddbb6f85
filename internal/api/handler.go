package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/go-github/v62/github"

	custom_errors "github-webhook-pulse/internal/errors"
	"github-webhook-pulse/internal/ingest"
	"github-webhook-pulse/internal/model"
	"github-webhook-pulse/internal/notify"
	"github-webhook-pulse/internal/stats"
	"github-webhook-pulse/internal/store"
)

// Backfiller pulls a repository's recent events from the GitHub API through
// the ingestion path. Optional; a nil Backfiller disables the endpoint.
type Backfiller interface {
	Run(ctx context.Context, owner, name string) (int, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db         store.Querier
	ingestor   *ingest.Ingestor
	backfiller Backfiller
	streamCfg  notify.Config
	logger     *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db store.Querier, ingestor *ingest.Ingestor, backfiller Backfiller, streamCfg notify.Config, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:         db,
		ingestor:   ingestor,
		backfiller: backfiller,
		streamCfg:  streamCfg,
		logger:     logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-GitHub-Event", "X-Hub-Signature-256"},
	}))

	r.Get("/health", h.healthCheck)

	// The SSE stream outlives the request timeout every other route gets.
	r.Get("/api/stream", h.streamEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/webhook", h.handleWebhook)
		r.Route("/api", func(r chi.Router) {
			r.Get("/timeline", h.getTimeline)
			r.Get("/stats", h.getStats)
			r.Get("/user-stats", h.getUserStats)
			r.Get("/event-stats", h.getEventStats)
			r.Get("/activity", h.getActivity)
			r.Get("/repositories", h.getRepositories)
			r.Delete("/repositories/{id}", h.deleteRepository)
			r.Post("/repositories/{owner}/{name}/backfill", h.backfillRepository)
		})
	})

	return r
}

// healthCheck reports whether the service and its storage are reachable.
// GET /health
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	storage := map[string]string{"status": "ok"}
	status := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("Health check storage ping failed", "error", err)
		storage["status"] = "error"
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "error"
	}
	respondWithJSON(w, status, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]any{"storage": storage},
	})
}

// handleWebhook accepts one GitHub webhook delivery.
// POST /webhook
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	eventType := github.WebHookType(r)
	if eventType == "" {
		respondWithError(w, http.StatusBadRequest, "X-GitHub-Event header not found")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	ev, err := h.ingestor.Ingest(r.Context(), eventType, payload)
	if err != nil {
		var verr *custom_errors.ValidationError
		if errors.As(err, &verr) {
			h.logger.Warn("Webhook payload rejected",
				"event_type", eventType,
				"delivery_id", github.DeliveryID(r),
				"reason", verr.Reason,
			)
			respondWithError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("Failed to ingest webhook", "event_type", eventType, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]any{
		"status":     "success",
		"event_type": eventType,
		"event_id":   ev.ID,
	})
}

// getTimeline returns the newest events, optionally filtered by repository.
// GET /api/timeline?limit=N&repository_id=...
func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, store.DefaultTimelineLimit)
	if !ok {
		return
	}
	events, err := h.db.QueryEvents(r.Context(), store.QueryEventsParams{
		RepositoryID: r.URL.Query().Get("repository_id"),
		Limit:        limit,
	})
	if err != nil {
		h.logger.Error("Failed to query timeline", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"timeline": emptyAsList(events)})
}

// getStats returns per-repository rollups over the stats window.
// GET /api/stats?repository_id=...
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	repositoryID := r.URL.Query().Get("repository_id")

	repos, err := h.db.ListRepositories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	window, ok := h.statsWindow(w, r, repositoryID)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"stats": stats.Repositories(repos, window, repositoryID),
	})
}

// getUserStats returns per-actor rollups ranked by event count.
// GET /api/user-stats?repository_id=...&limit=N
func (h *Handler) getUserStats(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, stats.DefaultUserLimit)
	if !ok {
		return
	}
	window, ok := h.statsWindow(w, r, r.URL.Query().Get("repository_id"))
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"user_stats": stats.Users(window, limit),
	})
}

// getEventStats returns per-event-type rollups ranked by count.
// GET /api/event-stats?repository_id=...
func (h *Handler) getEventStats(w http.ResponseWriter, r *http.Request) {
	window, ok := h.statsWindow(w, r, r.URL.Query().Get("repository_id"))
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"event_stats": stats.EventTypes(window),
	})
}

// getActivity returns hourly buckets of recent events.
// GET /api/activity?hours=N&repository_id=...
func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	hours := stats.DefaultActivityHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'hours' parameter. Must be a positive integer.")
			return
		}
		hours = parsed
	}
	window, ok := h.statsWindow(w, r, r.URL.Query().Get("repository_id"))
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"activity": stats.Activity(window, time.Now().UTC(), hours),
	})
}

// getRepositories lists all known repositories in insertion order.
// GET /api/repositories
func (h *Handler) getRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.db.ListRepositories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"repositories": emptyRepoList(repos)})
}

// deleteRepository removes a repository and every event referencing it.
// DELETE /api/repositories/{id}
func (h *Handler) deleteRepository(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.db.DeleteRepository(r.Context(), id)
	if err != nil {
		var nferr *custom_errors.NotFoundError
		if errors.As(err, &nferr) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		h.logger.Error("Failed to delete repository", "repository_id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message":        "Repository and all of its data removed",
		"repository_id":  id,
		"events_removed": removed,
	})
}

// backfillRepository ingests a repository's recent events from the GitHub API.
// POST /api/repositories/{owner}/{name}/backfill
func (h *Handler) backfillRepository(w http.ResponseWriter, r *http.Request) {
	if h.backfiller == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Backfill is not configured (GITHUB_TOKEN missing)")
		return
	}
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	count, err := h.backfiller.Run(r.Context(), owner, name)
	if err != nil {
		h.logger.Error("Backfill failed", "owner", owner, "repo", name, "error", err)
		respondWithError(w, http.StatusBadGateway, "Failed to fetch events from GitHub")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"repository":      owner + "/" + name,
		"events_ingested": count,
	})
}

// statsWindow fetches the bounded event window every aggregation reads from.
func (h *Handler) statsWindow(w http.ResponseWriter, r *http.Request, repositoryID string) ([]model.Event, bool) {
	window, err := h.db.QueryEvents(r.Context(), store.QueryEventsParams{
		RepositoryID: repositoryID,
		Limit:        store.MaxWindow,
	})
	if err != nil {
		h.logger.Error("Failed to query event window", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return window, true
}

func limitParam(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > store.MaxWindow {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 1000.")
		return 0, false
	}
	return limit, true
}

func emptyAsList(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	return events
}

func emptyRepoList(repos []model.Repository) []model.Repository {
	if repos == nil {
		return []model.Repository{}
	}
	return repos
}
