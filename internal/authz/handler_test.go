package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-authz/internal/grants"
	"github.com/meridian-crm/meridian-authz/internal/roles"
	"github.com/meridian-crm/meridian-authz/internal/shared"
)

type stubResolver struct {
	allowed     bool
	permissions EffectivePermissions
	err         error

	lastPrincipal uuid.UUID
	lastResource  string
	lastAction    string
}

func (s *stubResolver) HasPermission(ctx context.Context, principalID uuid.UUID, resource, action string) bool {
	s.lastPrincipal, s.lastResource, s.lastAction = principalID, resource, action
	return s.allowed
}

func (s *stubResolver) HasResourceAccess(ctx context.Context, principalID uuid.UUID, resource string) bool {
	s.lastPrincipal, s.lastResource = principalID, resource
	return s.allowed
}

func (s *stubResolver) UserAllPermissions(ctx context.Context, principalID uuid.UUID) (EffectivePermissions, error) {
	s.lastPrincipal = principalID
	if s.err != nil {
		return EffectivePermissions{}, s.err
	}
	return s.permissions, nil
}

func newTestRouter(resolver Resolver) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, resolver).MountRoutes(r)
	return r
}

func TestCheckAllowed(t *testing.T) {
	resolver := &stubResolver{allowed: true}
	router := newTestRouter(resolver)
	id := uuid.New()

	body := `{"principal_id":"` + id.String() + `","resource":"tasks","action":"read"}`
	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp checkResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Allowed {
		t.Fatalf("expected allowed")
	}
	if resolver.lastPrincipal != id || resolver.lastResource != "tasks" || resolver.lastAction != "read" {
		t.Fatalf("resolver called with %v/%s/%s", resolver.lastPrincipal, resolver.lastResource, resolver.lastAction)
	}
}

func TestCheckMissingFields(t *testing.T) {
	router := newTestRouter(&stubResolver{allowed: true})

	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(`{"resource":"tasks"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCheckUnparseableIDDenies(t *testing.T) {
	// A malformed id cannot reference a principal; the check denies rather
	// than erroring, matching the fail-closed contract.
	router := newTestRouter(&stubResolver{allowed: true})

	body := `{"principal_id":"not-a-uuid","resource":"tasks","action":"read"}`
	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp checkResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Allowed {
		t.Fatalf("expected denied for malformed principal id")
	}
}

func TestCheckResource(t *testing.T) {
	resolver := &stubResolver{allowed: true}
	router := newTestRouter(resolver)
	id := uuid.New()

	body := `{"principal_id":"` + id.String() + `","resource":"contacts"}`
	req := httptest.NewRequest(http.MethodPost, "/check-resource", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resolver.lastResource != "contacts" {
		t.Fatalf("resolver called with resource %s", resolver.lastResource)
	}
}

func TestEffectivePermissions(t *testing.T) {
	id := uuid.New()
	resolver := &stubResolver{permissions: EffectivePermissions{
		RolePermissions: []roles.Permission{{Resource: "tasks", Actions: []string{"read"}}},
		CustomGrants:    []grants.Grant{{PrincipalID: id, Resource: "reports", Actions: []string{"export"}, GrantedBy: "admin-1", IsActive: true}},
		IsSuperAdmin:    false,
	}}
	router := newTestRouter(resolver)

	req := httptest.NewRequest(http.MethodGet, "/principals/"+id.String()+"/permissions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp effectivePermissionsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.RolePermissions) != 1 || resp.RolePermissions[0].Resource != "tasks" {
		t.Fatalf("unexpected role permissions: %+v", resp.RolePermissions)
	}
	if len(resp.CustomGrants) != 1 || resp.CustomGrants[0].GrantedBy != "admin-1" {
		t.Fatalf("unexpected custom grants: %+v", resp.CustomGrants)
	}
}

func TestEffectivePermissionsNotFound(t *testing.T) {
	router := newTestRouter(&stubResolver{err: shared.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/principals/"+uuid.NewString()+"/permissions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
