package grants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// RepositoryPort defines data access methods for grants.
type RepositoryPort interface {
	Upsert(ctx context.Context, principalID uuid.UUID, resource string, actions []string, expiresAt *time.Time, grantedBy string) (Grant, error)
	GetByKey(ctx context.Context, principalID uuid.UUID, resource string) (Grant, error)
	ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]Grant, error)
	Deactivate(ctx context.Context, principalID uuid.UUID, resource string) error
	Delete(ctx context.Context, principalID uuid.UUID, resource string) error
}

// PrincipalChecker verifies a principal exists before a grant is written.
type PrincipalChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// RegistryPort validates (resource, action) pairs against the closed
// registry so typos surface as validation errors instead of silent denials.
type RegistryPort interface {
	Validate(resource, action string) error
}

// AuditRecorder persists administrative mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles custom grant business logic.
type Service struct {
	repo       RepositoryPort
	principals PrincipalChecker
	registry   RegistryPort
	audit      AuditRecorder
	feed       *shared.ChangeFeed
	now        func() time.Time
}

// NewService builds a Service instance. Audit and feed may be nil.
func NewService(repo RepositoryPort, principals PrincipalChecker, registry RegistryPort, audit AuditRecorder, feed *shared.ChangeFeed) *Service {
	return &Service{
		repo:       repo,
		principals: principals,
		registry:   registry,
		audit:      audit,
		feed:       feed,
		now:        time.Now,
	}
}

// Assign creates or wholesale-replaces the grant for (principalID, resource).
// Replacement covers actions, expiry, and granted-by; prior actions are NOT
// merged in. An expiry in the past is rejected, a nil expiry never expires.
func (s *Service) Assign(ctx context.Context, principalID uuid.UUID, resource string, actions []string, expiresAt *time.Time, grantedBy string) (Grant, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return Grant{}, fmt.Errorf("%w: resource required", shared.ErrValidation)
	}
	if len(actions) == 0 {
		return Grant{}, fmt.Errorf("%w: at least one action required", shared.ErrValidation)
	}
	seen := make(map[string]struct{}, len(actions))
	cleaned := make([]string, 0, len(actions))
	for _, action := range actions {
		action = strings.TrimSpace(action)
		if action == "" {
			return Grant{}, fmt.Errorf("%w: empty action", shared.ErrValidation)
		}
		if err := s.registry.Validate(resource, action); err != nil {
			return Grant{}, err
		}
		if _, ok := seen[action]; ok {
			continue
		}
		seen[action] = struct{}{}
		cleaned = append(cleaned, action)
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return Grant{}, fmt.Errorf("%w: expiry must be in the future", shared.ErrValidation)
	}

	exists, err := s.principals.Exists(ctx, principalID)
	if err != nil {
		return Grant{}, err
	}
	if !exists {
		return Grant{}, fmt.Errorf("%w: principal %s", shared.ErrNotFound, principalID)
	}

	grant, err := s.repo.Upsert(ctx, principalID, resource, cleaned, expiresAt, grantedBy)
	if err != nil {
		return Grant{}, err
	}

	s.recordAudit(ctx, grantedBy, "grant.assign", grant, map[string]any{"actions": cleaned, "expires_at": expiresAt})
	s.feed.Publish(ctx, shared.ChangeEvent{Kind: shared.EventGrantAssigned, PrincipalID: principalID.String(), Resource: resource})
	return grant, nil
}

// Revoke soft-revokes the grant for the key, keeping the audit record.
func (s *Service) Revoke(ctx context.Context, principalID uuid.UUID, resource string) error {
	if err := s.repo.Deactivate(ctx, principalID, resource); err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	s.recordAudit(ctx, actor, "grant.revoke", Grant{PrincipalID: principalID, Resource: resource}, nil)
	s.feed.Publish(ctx, shared.ChangeEvent{Kind: shared.EventGrantRevoked, PrincipalID: principalID.String(), Resource: resource})
	return nil
}

// Remove hard-deletes the grant for the key.
func (s *Service) Remove(ctx context.Context, principalID uuid.UUID, resource string) error {
	if err := s.repo.Delete(ctx, principalID, resource); err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	s.recordAudit(ctx, actor, "grant.remove", Grant{PrincipalID: principalID, Resource: resource}, nil)
	s.feed.Publish(ctx, shared.ChangeEvent{Kind: shared.EventGrantRemoved, PrincipalID: principalID.String(), Resource: resource})
	return nil
}

// ListForPrincipal returns every stored grant for the principal, including
// revoked and expired ones, for management screens.
func (s *Service) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]Grant, error) {
	return s.repo.ListForPrincipal(ctx, principalID)
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, grant Grant, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entityID := fmt.Sprintf("%s/%s", grant.PrincipalID, grant.Resource)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "custom_grants",
		EntityID: entityID,
		Meta:     meta,
	})
}
