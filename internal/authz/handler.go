package authz

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-authz/internal/platform/httpx"
)

// Resolver is the decision surface consumed by the handler.
type Resolver interface {
	HasPermission(ctx context.Context, principalID uuid.UUID, resource, action string) bool
	HasResourceAccess(ctx context.Context, principalID uuid.UUID, resource string) bool
	UserAllPermissions(ctx context.Context, principalID uuid.UUID) (EffectivePermissions, error)
}

// Handler wires the check and effective-permissions endpoints.
type Handler struct {
	logger    *slog.Logger
	resolver  Resolver
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, resolver Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, resolver: resolver, validator: validator.New()}
}

// MountRoutes registers resolver routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/check-resource", h.checkResource)
	r.Get("/principals/{id}/permissions", h.effectivePermissions)
}

type checkRequest struct {
	PrincipalID string `json:"principal_id" validate:"required"`
	Resource    string `json:"resource" validate:"required"`
	Action      string `json:"action" validate:"required"`
}

type checkResourceRequest struct {
	PrincipalID string `json:"principal_id" validate:"required"`
	Resource    string `json:"resource" validate:"required"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principalID, err := uuid.Parse(req.PrincipalID)
	if err != nil {
		// An unparseable id can never reference a principal: deny, do not error.
		httpx.JSON(w, http.StatusOK, checkResponse{Allowed: false})
		return
	}
	allowed := h.resolver.HasPermission(r.Context(), principalID, req.Resource, req.Action)
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

func (h *Handler) checkResource(w http.ResponseWriter, r *http.Request) {
	var req checkResourceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principalID, err := uuid.Parse(req.PrincipalID)
	if err != nil {
		httpx.JSON(w, http.StatusOK, checkResponse{Allowed: false})
		return
	}
	allowed := h.resolver.HasResourceAccess(r.Context(), principalID, req.Resource)
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

type permissionDTO struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

type grantDTO struct {
	Resource  string     `json:"resource"`
	Actions   []string   `json:"actions"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	GrantedBy string     `json:"granted_by"`
}

type effectivePermissionsResponse struct {
	RolePermissions []permissionDTO `json:"role_permissions"`
	CustomGrants    []grantDTO      `json:"custom_grants"`
	IsSuperAdmin    bool            `json:"is_super_admin"`
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid principal id")
		return
	}
	result, err := h.resolver.UserAllPermissions(r.Context(), principalID)
	if err != nil {
		h.logger.Error("effective permissions", slog.String("principal", principalID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := effectivePermissionsResponse{
		RolePermissions: make([]permissionDTO, 0, len(result.RolePermissions)),
		CustomGrants:    make([]grantDTO, 0, len(result.CustomGrants)),
		IsSuperAdmin:    result.IsSuperAdmin,
	}
	for _, perm := range result.RolePermissions {
		resp.RolePermissions = append(resp.RolePermissions, permissionDTO{Resource: perm.Resource, Actions: perm.Actions})
	}
	for _, grant := range result.CustomGrants {
		resp.CustomGrants = append(resp.CustomGrants, grantDTO{
			Resource:  grant.Resource,
			Actions:   grant.Actions,
			ExpiresAt: grant.ExpiresAt,
			GrantedBy: grant.GrantedBy,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
