// Package handler exposes the control-plane HTTP API for tenant lifecycle
// management.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nekotab/control-plane/domains/tenants/service"
	"github.com/nekotab/control-plane/platform/logging"
	"github.com/nekotab/control-plane/platform/tenant"
)

// Handler serves the tenant lifecycle endpoints.
type Handler struct {
	svc    *service.Service
	queue  *service.ProvisionQueue
	domain string
}

// New constructs a Handler.
func New(svc *service.Service, queue *service.ProvisionQueue, domain string) *Handler {
	if svc == nil || queue == nil {
		panic("handler requires service and queue")
	}
	return &Handler{svc: svc, queue: queue, domain: domain}
}

// Routes mounts the tenant API onto a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tenants", h.createTenant)
	r.Get("/tenants", h.listTenants)
	r.Get("/tenants/{tenantID}", h.getTenant)
	r.Get("/tenants/{tenantID}/audit", h.auditTrail)
	r.Post("/tenants/{tenantID}/suspend", h.suspendTenant)
	r.Post("/tenants/{tenantID}/resume", h.resumeTenant)
	r.Delete("/tenants/{tenantID}", h.deleteTenant)
	r.Get("/stats", h.stats)
	r.Post("/webhooks/signup", h.signupWebhook)
}

type createTenantRequest struct {
	Subdomain  string  `json:"subdomain"`
	Name       *string `json:"name,omitempty"`
	OwnerEmail *string `json:"owner_email,omitempty"`
	OwnerID    *string `json:"owner_id,omitempty"`
	Plan       string  `json:"plan,omitempty"`
}

type tenantResponse struct {
	ID              string     `json:"id"`
	Subdomain       string     `json:"subdomain"`
	Name            *string    `json:"name,omitempty"`
	OwnerEmail      *string    `json:"owner_email,omitempty"`
	Status          string     `json:"status"`
	Plan            string     `json:"plan"`
	URL             string     `json:"url"`
	SuspendReason   *string    `json:"suspend_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	SuspendedAt     *time.Time `json:"suspended_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	TournamentCount int        `json:"tournament_count"`
}

func (h *Handler) toResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:              t.ID,
		Subdomain:       t.Subdomain,
		Name:            t.Name,
		OwnerEmail:      t.OwnerEmail,
		Status:          string(t.Status),
		Plan:            t.Plan,
		URL:             t.URL(h.domain),
		SuspendReason:   t.SuspendReason,
		CreatedAt:       t.CreatedAt,
		ActivatedAt:     t.ActivatedAt,
		SuspendedAt:     t.SuspendedAt,
		DeletedAt:       t.DeletedAt,
		TournamentCount: t.TournamentCount,
	}
}

// createTenant validates synchronously, answers 202, and hands the heavy
// provisioning pipeline to the background queue.
func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	h.enqueueProvision(w, r, service.ProvisionInput{
		Subdomain:  req.Subdomain,
		Name:       req.Name,
		OwnerEmail: req.OwnerEmail,
		OwnerID:    req.OwnerID,
		Plan:       req.Plan,
	})
}

func (h *Handler) enqueueProvision(w http.ResponseWriter, r *http.Request, input service.ProvisionInput) {
	ctx := r.Context()

	if err := h.svc.Validate(input.Subdomain); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.CheckAvailable(ctx, input.Subdomain); err != nil {
		if errors.Is(err, service.ErrDuplicateSubdomain) {
			writeError(w, http.StatusConflict, "subdomain already registered")
			return
		}
		h.internalError(w, r, err)
		return
	}

	if !h.queue.Enqueue(input) {
		writeError(w, http.StatusServiceUnavailable, "provisioning queue is full, retry later")
		return
	}

	id := tenant.GenerateID(input.Subdomain)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":        id,
		"subdomain": input.Subdomain,
		"status":    string(service.StatusPending),
		"url":       tenant.URL(input.Subdomain, h.domain),
	})
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := service.StatusFromString(raw)
		if string(status) != raw {
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, h.toResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenants":     items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_items": result.TotalItems,
		"total_pages": result.TotalPages,
	})
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(t))
}

type auditEntryResponse struct {
	Action     string         `json:"action"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")
	entries, err := h.svc.Audit(r.Context(), id)
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}

	items := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, auditEntryResponse{
			Action:     e.Action,
			Status:     e.Status,
			Message:    e.Message,
			Details:    e.Details,
			DurationMS: e.Duration.Milliseconds(),
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": id,
		"entries":   items,
	})
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) suspendTenant(w http.ResponseWriter, r *http.Request) {
	var req suspendRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	t, err := h.svc.Suspend(r.Context(), chi.URLParam(r, "tenantID"), req.Reason)
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(t))
}

func (h *Handler) resumeTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Resume(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(t))
}

// deleteTenant requires ?confirm=true: teardown drops the tenant database
// and is not recoverable from the control plane.
func (h *Handler) deleteTenant(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "deletion requires confirm=true")
		return
	}

	t, err := h.svc.Delete(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(t))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_tenants":     stats.Total,
		"by_status":         byStatus,
		"total_tournaments": stats.TotalTournaments,
	})
}

type signupWebhookRequest struct {
	Subdomain  string  `json:"subdomain"`
	Name       *string `json:"organization_name,omitempty"`
	OwnerEmail *string `json:"email,omitempty"`
	OwnerID    *string `json:"user_id,omitempty"`
	Plan       string  `json:"plan,omitempty"`
}

// signupWebhook accepts the marketing site's signup payload and starts the
// same async provisioning flow as createTenant.
func (h *Handler) signupWebhook(w http.ResponseWriter, r *http.Request) {
	var req signupWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	h.enqueueProvision(w, r, service.ProvisionInput{
		Subdomain:  req.Subdomain,
		Name:       req.Name,
		OwnerEmail: req.OwnerEmail,
		OwnerID:    req.OwnerID,
		Plan:       req.Plan,
	})
}

func (h *Handler) mapServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromRequest(r, zap.NewNop()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
