package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-authz/internal/grants"
	"github.com/meridian-crm/meridian-authz/internal/principals"
	"github.com/meridian-crm/meridian-authz/internal/roles"
	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// Decision sources and outcomes reported to metrics.
const (
	SourceSuperAdmin = "super_admin"
	SourceRole       = "role"
	SourceGrant      = "grant"
	SourceNone       = "none"
	SourceError      = "error"

	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
)

// PrincipalDirectory reads principals with their role resolved.
type PrincipalDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (principals.Principal, error)
}

// GrantSource reads custom grants.
type GrantSource interface {
	GetByKey(ctx context.Context, principalID uuid.UUID, resource string) (grants.Grant, error)
	ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]grants.Grant, error)
}

// DecisionMetrics records decision outcomes.
type DecisionMetrics interface {
	ObserveDecision(source, outcome string)
}

// EffectivePermissions is the aggregate read-model consumed by permission
// management screens. It carries no denial logic.
type EffectivePermissions struct {
	RolePermissions []roles.Permission
	CustomGrants    []grants.Grant
	IsSuperAdmin    bool
}

// Service resolves authorization decisions. Every check reads current
// persisted state: there is no decision cache, so a revocation or expiry is
// observed on the very next call. All failure modes during a check fold
// into deny, never into an error.
type Service struct {
	principals PrincipalDirectory
	grants     GrantSource
	logger     *slog.Logger
	metrics    DecisionMetrics
	now        func() time.Time
}

// NewService builds a resolver. Metrics may be nil.
func NewService(principals PrincipalDirectory, grants GrantSource, logger *slog.Logger, metrics DecisionMetrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		principals: principals,
		grants:     grants,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// HasPermission decides whether the principal may perform action on
// resource. Precedence, short-circuiting on the first permit:
//
//  1. unknown principal → deny
//  2. super-admin → allow
//  3. role grants the action → allow
//  4. active, unexpired custom grant carries the action → allow
//  5. deny
//
// Strings are compared exactly and case-sensitively; a stored permission
// and a caller must agree on spelling. The registry keeps typos out of
// storage, but the resolver itself never canonicalizes.
func (s *Service) HasPermission(ctx context.Context, principalID uuid.UUID, resource, action string) bool {
	principal, ok := s.loadPrincipal(ctx, principalID)
	if !ok {
		return false
	}
	if principal.IsSuperAdmin {
		return s.observe(SourceSuperAdmin, true)
	}
	if principal.Role != nil && principal.Role.AllowsAction(resource, action) {
		return s.observe(SourceRole, true)
	}

	grant, err := s.grants.GetByKey(ctx, principalID, resource)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("authz: load grant", slog.String("principal", principalID.String()), slog.String("resource", resource), slog.Any("error", err))
			return s.observe(SourceError, false)
		}
		return s.observe(SourceNone, false)
	}
	if grant.EffectiveAt(s.now()) && grant.AllowsAction(action) {
		return s.observe(SourceGrant, true)
	}
	return s.observe(SourceNone, false)
}

// HasResourceAccess decides whether the principal has any capability on the
// resource. Same precedence as HasPermission with the action test relaxed.
// Intended for coarse UI visibility, not for gating mutations.
func (s *Service) HasResourceAccess(ctx context.Context, principalID uuid.UUID, resource string) bool {
	principal, ok := s.loadPrincipal(ctx, principalID)
	if !ok {
		return false
	}
	if principal.IsSuperAdmin {
		return s.observe(SourceSuperAdmin, true)
	}
	if principal.Role != nil && principal.Role.HasResource(resource) {
		return s.observe(SourceRole, true)
	}

	grant, err := s.grants.GetByKey(ctx, principalID, resource)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("authz: load grant", slog.String("principal", principalID.String()), slog.String("resource", resource), slog.Any("error", err))
			return s.observe(SourceError, false)
		}
		return s.observe(SourceNone, false)
	}
	if grant.EffectiveAt(s.now()) && len(grant.Actions) > 0 {
		return s.observe(SourceGrant, true)
	}
	return s.observe(SourceNone, false)
}

// UserAllPermissions aggregates everything the principal can currently do:
// the role's permission set, the active non-expired custom grants, and the
// super-admin flag. This is an administrative read, so errors propagate
// instead of folding into a denial.
func (s *Service) UserAllPermissions(ctx context.Context, principalID uuid.UUID) (EffectivePermissions, error) {
	principal, err := s.principals.Get(ctx, principalID)
	if err != nil {
		return EffectivePermissions{}, err
	}

	result := EffectivePermissions{
		RolePermissions: []roles.Permission{},
		CustomGrants:    []grants.Grant{},
		IsSuperAdmin:    principal.IsSuperAdmin,
	}
	if principal.Role != nil && principal.Role.IsActive {
		result.RolePermissions = principal.Role.Permissions
	}

	all, err := s.grants.ListForPrincipal(ctx, principalID)
	if err != nil {
		return EffectivePermissions{}, err
	}
	at := s.now()
	for _, grant := range all {
		if grant.EffectiveAt(at) {
			result.CustomGrants = append(result.CustomGrants, grant)
		}
	}
	return result, nil
}

// loadPrincipal resolves the principal fail-closed: both absence and storage
// failure read as "no principal", which denies.
func (s *Service) loadPrincipal(ctx context.Context, principalID uuid.UUID) (principals.Principal, bool) {
	principal, err := s.principals.Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.observe(SourceNone, false)
		} else {
			s.logger.Error("authz: load principal", slog.String("principal", principalID.String()), slog.Any("error", err))
			s.observe(SourceError, false)
		}
		return principals.Principal{}, false
	}
	return principal, true
}

func (s *Service) observe(source string, allowed bool) bool {
	if s.metrics != nil {
		outcome := OutcomeDeny
		if allowed {
			outcome = OutcomeAllow
		}
		s.metrics.ObserveDecision(source, outcome)
	}
	return allowed
}
