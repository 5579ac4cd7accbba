package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// RepositoryPort defines data access methods for the role catalog.
type RepositoryPort interface {
	List(ctx context.Context) ([]Role, error)
	GetByID(ctx context.Context, id uuid.UUID) (Role, error)
	Create(ctx context.Context, name, description string, permissions []Permission) (Role, error)
	Update(ctx context.Context, id uuid.UUID, name, description string, permissions []Permission, isActive bool) (Role, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ReferenceCount(ctx context.Context, id uuid.UUID) (int64, error)
}

// RegistryPort validates (resource, action) pairs against the closed registry.
type RegistryPort interface {
	Validate(resource, action string) error
}

// AuditRecorder persists administrative mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role catalog business logic.
type Service struct {
	repo     RepositoryPort
	registry RegistryPort
	audit    AuditRecorder
	feed     *shared.ChangeFeed
}

// NewService builds a Service instance. Audit and feed may be nil.
func NewService(repo RepositoryPort, registry RegistryPort, audit AuditRecorder, feed *shared.ChangeFeed) *Service {
	return &Service{repo: repo, registry: registry, audit: audit, feed: feed}
}

// List returns all roles ordered by name.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// GetByID fetches a role by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.repo.GetByID(ctx, id)
}

// Create inserts a new administrator-defined role. Duplicate names and
// registry-unknown permission pairs are rejected.
func (s *Service) Create(ctx context.Context, name, description string, permissions []Permission) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if err := s.validatePermissions(permissions); err != nil {
		return Role{}, err
	}

	role, err := s.repo.Create(ctx, name, strings.TrimSpace(description), normalizePermissions(permissions))
	if err != nil {
		return Role{}, err
	}

	s.recordAudit(ctx, "role.create", role, map[string]any{"name": role.Name})
	s.feed.Publish(ctx, shared.ChangeEvent{Kind: shared.EventRoleCreated, RoleID: role.ID.String()})
	return role, nil
}

// Update replaces the mutable fields of a role. System roles are immutable:
// attempting to update one fails with Conflict.
func (s *Service) Update(ctx context.Context, id uuid.UUID, name, description string, permissions []Permission, isActive bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if err := s.validatePermissions(permissions); err != nil {
		return Role{}, err
	}

	role, err := s.repo.Update(ctx, id, name, strings.TrimSpace(description), normalizePermissions(permissions), isActive)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// The guarded UPDATE touches nothing for both a missing role and
			// a system role; a follow-up read tells them apart.
			existing, getErr := s.repo.GetByID(ctx, id)
			switch {
			case getErr == nil && existing.IsSystem:
				return Role{}, fmt.Errorf("%w: system role %q cannot be modified", shared.ErrConflict, existing.Name)
			case getErr != nil && !errors.Is(getErr, shared.ErrNotFound):
				return Role{}, getErr
			}
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}

	s.recordAudit(ctx, "role.update", role, map[string]any{"name": role.Name})
	s.feed.Publish(ctx, shared.ChangeEvent{Kind: shared.EventRoleUpdated, RoleID: role.ID.String()})
	return role, nil
}

// Delete removes a role. System roles and roles still referenced by a
// principal fail with Conflict; the reference check runs inside the DELETE
// statement, so there is no window for a concurrent assignment to slip
// through.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	if err == nil {
		s.recordAudit(ctx, "role.delete", Role{ID: id}, nil)
		s.feed.Publish(ctx, shared.ChangeEvent{Kind: shared.EventRoleDeleted, RoleID: id.String()})
		return nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	existing, getErr := s.repo.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	if existing.IsSystem {
		return fmt.Errorf("%w: system role %q cannot be deleted", shared.ErrConflict, existing.Name)
	}
	refs, refErr := s.repo.ReferenceCount(ctx, id)
	if refErr != nil {
		return refErr
	}
	if refs > 0 {
		return fmt.Errorf("%w: role %q is assigned to %d principal(s)", shared.ErrConflict, existing.Name, refs)
	}
	// Deleted by a concurrent request between our two statements.
	return shared.ErrNotFound
}

func (s *Service) validatePermissions(permissions []Permission) error {
	for _, perm := range permissions {
		if strings.TrimSpace(perm.Resource) == "" {
			return fmt.Errorf("%w: permission resource required", shared.ErrValidation)
		}
		if len(perm.Actions) == 0 {
			return fmt.Errorf("%w: permission for %q needs at least one action", shared.ErrValidation, perm.Resource)
		}
		for _, action := range perm.Actions {
			if err := s.registry.Validate(perm.Resource, action); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizePermissions deduplicates actions per resource while preserving
// order of first appearance.
func normalizePermissions(permissions []Permission) []Permission {
	result := make([]Permission, 0, len(permissions))
	byResource := make(map[string]int, len(permissions))
	for _, perm := range permissions {
		idx, ok := byResource[perm.Resource]
		if !ok {
			byResource[perm.Resource] = len(result)
			result = append(result, Permission{Resource: perm.Resource})
			idx = len(result) - 1
		}
		for _, action := range perm.Actions {
			if !result[idx].Allows(action) {
				result[idx].Actions = append(result[idx].Actions, action)
			}
		}
	}
	return result
}

func (s *Service) recordAudit(ctx context.Context, action string, role Role, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "roles",
		EntityID: role.ID.String(),
		Meta:     meta,
	})
}
