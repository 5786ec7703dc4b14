// Package handlers exposes the monitoring pipeline over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/digest"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/monitoring"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/azure/social-mentions-monitor/internal/stats"
	"github.com/azure/social-mentions-monitor/internal/triage"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Pipeline is the part of the monitoring service the API triggers
type Pipeline interface {
	RunIngestion(ctx context.Context, tenantID string) (*monitoring.RunResult, error)
	GetMetrics() string
}

// Handler serves the HTTP API
type Handler struct {
	pipeline   Pipeline
	tenants    *repository.TenantRepository
	mentions   *repository.MentionRepository
	store      *triage.Store
	dispatcher *triage.Dispatcher
	aggregator *stats.Aggregator
	digests    *digest.Builder
	registry   *sources.Registry
	metrics    http.Handler
}

// Dependencies groups the components the handler reads and mutates
type Dependencies struct {
	Pipeline   Pipeline
	Tenants    *repository.TenantRepository
	Mentions   *repository.MentionRepository
	Store      *triage.Store
	Dispatcher *triage.Dispatcher
	Aggregator *stats.Aggregator
	Digests    *digest.Builder
	Registry   *sources.Registry
	Metrics    http.Handler
}

func New(deps Dependencies) *Handler {
	return &Handler{
		pipeline:   deps.Pipeline,
		tenants:    deps.Tenants,
		mentions:   deps.Mentions,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		aggregator: deps.Aggregator,
		digests:    deps.Digests,
		registry:   deps.Registry,
		metrics:    deps.Metrics,
	}
}

// Router registers every route on a new gorilla/mux router
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/status", h.status).Methods(http.MethodGet)
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}

	t := router.PathPrefix("/tenants/{tenant}").Subrouter()
	t.HandleFunc("/config", h.getConfig).Methods(http.MethodGet)
	t.HandleFunc("/config", h.putConfig).Methods(http.MethodPut)
	t.HandleFunc("/connections", h.putConnections).Methods(http.MethodPut)
	t.HandleFunc("/ingest", h.ingest).Methods(http.MethodPost)
	t.HandleFunc("/mentions", h.listMentions).Methods(http.MethodGet)
	t.HandleFunc("/mentions/{id}", h.getMention).Methods(http.MethodGet)
	t.HandleFunc("/mentions/{id}/read", h.markRead).Methods(http.MethodPost)
	t.HandleFunc("/mentions/{id}/star", h.star).Methods(http.MethodPost)
	t.HandleFunc("/mentions/{id}/archive", h.archive).Methods(http.MethodPost)
	t.HandleFunc("/mentions/{id}/spam", h.spam).Methods(http.MethodPost)
	t.HandleFunc("/mentions/{id}/reply", h.reply).Methods(http.MethodPost)
	t.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	t.HandleFunc("/digest", h.digest).Methods(http.MethodGet)

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.pipeline.GetMetrics()))
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.tenants.GetConfig(r.Context(), mux.Vars(r)["tenant"], h.registry.Platforms())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) putConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	var cfg models.MonitoringConfig
	if err := decode(w, r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validatePlatforms(cfg.Platforms); err != nil {
		writeError(w, err)
		return
	}
	if cfg.Thresholds.NegativeSentimentFloor < -1 || cfg.Thresholds.NegativeSentimentFloor > 1 {
		writeError(w, badRequest("negative_sentiment_floor must be between -1 and 1"))
		return
	}

	existing, err := h.tenants.FindConfig(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	cfg.TenantID = tenantID
	cfg.CreatedAt = now
	if existing != nil {
		cfg.CreatedAt = existing.CreatedAt
	}
	cfg.UpdatedAt = now

	if err := h.tenants.SaveConfig(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &cfg)
}

func (h *Handler) putConnections(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	var conns []models.Connection
	if err := decode(w, r, &conns); err != nil {
		writeError(w, err)
		return
	}
	for _, c := range conns {
		if err := h.validatePlatforms([]models.Platform{c.Platform}); err != nil {
			writeError(w, err)
			return
		}
		if c.AccessToken == "" {
			writeError(w, badRequest("connection for %s has no access_token", c.Platform))
			return
		}
	}

	if err := h.tenants.SaveConnections(r.Context(), tenantID, conns); err != nil {
		writeError(w, err)
		return
	}

	platforms := make([]models.Platform, 0, len(conns))
	for _, c := range conns {
		platforms = append(platforms, c.Platform)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "platforms": platforms})
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipeline.RunIngestion(r.Context(), mux.Vars(r)["tenant"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listMentions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.Filter{ExcludeArchived: q.Get("archived") != "true"}

	var err error
	if filter.UnreadOnly, err = boolParam(q.Get("unread")); err != nil {
		writeError(w, err)
		return
	}
	if filter.RequiresResponse, err = boolParam(q.Get("requires_response")); err != nil {
		writeError(w, err)
		return
	}
	if p := q.Get("platform"); p != "" {
		filter.Platform = models.Platform(strings.ToLower(p))
		if err := h.validatePlatforms([]models.Platform{filter.Platform}); err != nil {
			writeError(w, err)
			return
		}
	}
	if filter.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		writeError(w, err)
		return
	}
	if kw := q.Get("keyword"); kw != "" {
		filter.Keywords = strings.Split(kw, ",")
	}

	items, err := h.mentions.List(r.Context(), mux.Vars(r)["tenant"], filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Mention{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getMention(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	item, err := h.store.Get(r.Context(), vars["tenant"], vars["id"])
	h.respondItem(w, item, err)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	item, err := h.store.MarkRead(r.Context(), vars["tenant"], vars["id"])
	h.respondItem(w, item, err)
}

func (h *Handler) star(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Starred *bool `json:"starred"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Starred == nil {
		writeError(w, badRequest("starred is required"))
		return
	}

	vars := mux.Vars(r)
	item, err := h.store.ToggleStar(r.Context(), vars["tenant"], vars["id"], *body.Starred)
	h.respondItem(w, item, err)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	item, err := h.store.Archive(r.Context(), vars["tenant"], vars["id"])
	h.respondItem(w, item, err)
}

func (h *Handler) spam(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	item, err := h.store.MarkSpam(r.Context(), vars["tenant"], vars["id"])
	h.respondItem(w, item, err)
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, badRequest("text is required"))
		return
	}

	vars := mux.Vars(r)
	result := h.dispatcher.Reply(r.Context(), vars["tenant"], vars["id"], body.Text)

	status := http.StatusOK
	switch {
	case result.Success:
	case errors.Is(result.Err, triage.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(result.Err, sources.ErrUnsupportedPlatform):
		status = http.StatusBadRequest
	default:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := h.aggregator.Snapshot(r.Context(), mux.Vars(r)["tenant"], days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) digest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := daysParam(q.Get("days"))
	if err != nil {
		writeError(w, err)
		return
	}

	d, err := h.digests.Build(r.Context(), mux.Vars(r)["tenant"], days)
	if err != nil {
		writeError(w, err)
		return
	}

	if q.Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(d.Render()))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) respondItem(w http.ResponseWriter, item *models.Mention, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) validatePlatforms(platforms []models.Platform) error {
	for _, p := range platforms {
		if _, ok := h.registry.Get(p); !ok {
			return badRequest("unsupported platform %q", p)
		}
	}
	return nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func boolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, badRequest("invalid boolean %q", s)
	}
	return v, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, badRequest("expected a positive integer, got %q", s)
	}
	return v, nil
}

func daysParam(s string) (int, error) {
	days, err := intParam(s, stats.DefaultDays)
	if err != nil {
		return 0, err
	}
	if days > stats.MaxDays {
		return 0, badRequest("days must be at most %d, got %d", stats.MaxDays, days)
	}
	return days, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, triage.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	default:
		logrus.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
