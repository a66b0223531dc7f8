package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/core/service"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	adminTokenHeader  = "X-Admin-Token"
	adminIDHeader     = "X-Admin-ID"
)

type UpdateSubmitter interface {
	Submit(ctx context.Context, upd tgbotapi.Update) error
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HTTPConfig struct {
	WebhookPath   string
	WebhookSecret string
	// AdminToken enables the /admin API when set.
	AdminToken string
}

type HTTPHandler struct {
	cfg     HTTPConfig
	updates UpdateSubmitter
	admin   *service.AdminService
	checks  map[string]HealthCheck
	log     *slog.Logger
}

func NewHTTPHandler(cfg HTTPConfig, updates UpdateSubmitter, admin *service.AdminService, checks map[string]HealthCheck, log *slog.Logger) *HTTPHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{cfg: cfg, updates: updates, admin: admin, checks: checks, log: log}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", h.HealthCheck)
	if h.cfg.WebhookPath != "" && h.updates != nil {
		r.Post(h.cfg.WebhookPath, h.Webhook)
	}
	if h.cfg.AdminToken != "" && h.admin != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdminToken)
			r.Get("/stats", h.stats)
			r.Get("/listings", h.listings)
			r.Get("/orders", h.orders)
			r.Get("/users/{id}", h.user)
			r.Get("/top/{side}", h.top)
			r.Get("/logs/{id}", h.logs)
		})
	}
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Webhook accepts one update from the Bot API. Duplicates are acknowledged
// so they are not redelivered again.
func (h *HTTPHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.WebhookSecret != "" && !equalToken(r.Header.Get(secretTokenHeader), h.cfg.WebhookSecret) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid update"})
		return
	}

	err := h.updates.Submit(r.Context(), upd)
	switch {
	case err == nil, errors.Is(err, domain.ErrDuplicateUpdate):
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrDispatcherClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		h.log.ErrorContext(r.Context(), "update not queued", "update_id", upd.UpdateID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func equalToken(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *HTTPHandler) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !equalToken(r.Header.Get(adminTokenHeader), h.cfg.AdminToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerID is the admin the request acts as; the service still checks the admin list.
func callerID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get(adminIDHeader), 10, 64)
	return id
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	default:
		h.log.ErrorContext(r.Context(), "admin api failed", "path", r.URL.Path, "err", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrValidation
	}
	return id, nil
}

func (h *HTTPHandler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.Stats(r.Context(), callerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *HTTPHandler) listings(w http.ResponseWriter, r *http.Request) {
	status := domain.ListingStatusPending
	if q := r.URL.Query().Get("status"); q != "" {
		var err error
		if status, err = domain.ParseListingStatus(q); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	listings, err := h.admin.Listings(r.Context(), callerID(r), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *HTTPHandler) orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.admin.ActiveOrders(r.Context(), callerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) user(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sum, err := h.admin.UserSummary(r.Context(), callerID(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *HTTPHandler) top(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultTop
	}

	var (
		entries []domain.RankEntry
		err     error
	)
	switch chi.URLParam(r, "side") {
	case "sellers":
		entries, err = h.admin.TopSellers(r.Context(), callerID(r), limit)
	case "buyers":
		entries, err = h.admin.TopBuyers(r.Context(), callerID(r), limit)
	default:
		err = domain.ErrNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *HTTPHandler) logs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	day := r.URL.Query().Get("day")
	if day == "" {
		day = time.Now().Format(time.DateOnly)
	}
	entries, err := h.admin.AuditEntries(r.Context(), callerID(r), id, day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.String())
	}
	writeJSON(w, http.StatusOK, lines)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
