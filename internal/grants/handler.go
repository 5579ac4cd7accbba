package grants

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-authz/internal/platform/httpx"
	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// Handler manages custom grant endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/principals/{id}/grants", h.listForPrincipal)
	r.Put("/principals/{id}/grants/{resource}", h.assign)
	r.Delete("/principals/{id}/grants/{resource}", h.revoke)
}

type assignPayload struct {
	Actions   []string   `json:"actions" validate:"required,min=1,dive,required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type grantResponse struct {
	ID          uuid.UUID  `json:"id"`
	PrincipalID uuid.UUID  `json:"principal_id"`
	Resource    string     `json:"resource"`
	Actions     []string   `json:"actions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	GrantedBy   string     `json:"granted_by"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toGrantResponse(grant Grant) grantResponse {
	return grantResponse{
		ID:          grant.ID,
		PrincipalID: grant.PrincipalID,
		Resource:    grant.Resource,
		Actions:     grant.Actions,
		ExpiresAt:   grant.ExpiresAt,
		GrantedBy:   grant.GrantedBy,
		IsActive:    grant.IsActive,
		CreatedAt:   grant.CreatedAt,
		UpdatedAt:   grant.UpdatedAt,
	}
}

func (h *Handler) listForPrincipal(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid principal id")
		return
	}
	all, err := h.service.ListForPrincipal(r.Context(), principalID)
	if err != nil {
		h.logger.Error("list grants", slog.String("principal", principalID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	result := make([]grantResponse, 0, len(all))
	for _, grant := range all {
		result = append(result, toGrantResponse(grant))
	}
	httpx.JSON(w, http.StatusOK, result)
}

// assign creates or replaces the grant for the (principal, resource) key.
// PUT because the operation is a wholesale replacement: the stored actions
// and expiry after the call are exactly the ones in the payload.
func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid principal id")
		return
	}
	resource := chi.URLParam(r, "resource")

	var payload assignPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	grantedBy := shared.ActorFromContext(r.Context())
	grant, err := h.service.Assign(r.Context(), principalID, resource, payload.Actions, payload.ExpiresAt, grantedBy)
	if err != nil {
		h.logger.Error("assign grant", slog.String("principal", principalID.String()), slog.String("resource", resource), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(grant))
}

// revoke soft-revokes the grant by default, keeping the row for audit.
// With ?hard=true it deletes the row outright, for cleanup of grants that
// should leave no trace in management listings.
func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid principal id")
		return
	}
	resource := chi.URLParam(r, "resource")

	if r.URL.Query().Get("hard") == "true" {
		err = h.service.Remove(r.Context(), principalID, resource)
	} else {
		err = h.service.Revoke(r.Context(), principalID, resource)
	}
	if err != nil {
		h.logger.Error("revoke grant", slog.String("principal", principalID.String()), slog.String("resource", resource), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
