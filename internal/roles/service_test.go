package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-authz/internal/shared"
)

type mockRepository struct {
	roles      map[uuid.UUID]*Role
	references map[uuid.UUID]int64

	listError   error
	createError error
	getError    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:      make(map[uuid.UUID]*Role),
		references: make(map[uuid.UUID]int64),
	}
}

func (m *mockRepository) List(ctx context.Context) ([]Role, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	result := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		result = append(result, *role)
	}
	return result, nil
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (Role, error) {
	if m.getError != nil {
		return Role{}, m.getError
	}
	role, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return *role, nil
}

func (m *mockRepository) Create(ctx context.Context, name, description string, permissions []Permission) (Role, error) {
	if m.createError != nil {
		return Role{}, m.createError
	}
	for _, existing := range m.roles {
		if existing.Name == name {
			return Role{}, shared.ErrConflict
		}
	}
	role := &Role{ID: uuid.New(), Name: name, Description: description, Permissions: permissions, IsActive: true}
	m.roles[role.ID] = role
	return *role, nil
}

func (m *mockRepository) Update(ctx context.Context, id uuid.UUID, name, description string, permissions []Permission, isActive bool) (Role, error) {
	role, ok := m.roles[id]
	if !ok || role.IsSystem {
		// Mirrors the guarded UPDATE: a system role matches no rows.
		return Role{}, shared.ErrNotFound
	}
	role.Name, role.Description, role.Permissions, role.IsActive = name, description, permissions, isActive
	return *role, nil
}

func (m *mockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	role, ok := m.roles[id]
	if !ok || role.IsSystem || m.references[id] > 0 {
		// Mirrors the conditional DELETE: guarded rows match nothing.
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *mockRepository) ReferenceCount(ctx context.Context, id uuid.UUID) (int64, error) {
	return m.references[id], nil
}

func newRolesService(repo *mockRepository) *Service {
	return NewService(repo, permissiveRegistry{}, nil, nil)
}

type permissiveRegistry struct{}

func (permissiveRegistry) Validate(resource, action string) error { return nil }

type rejectingRegistry struct{}

func (rejectingRegistry) Validate(resource, action string) error {
	return shared.ErrValidation
}

func TestCreateRole(t *testing.T) {
	repo := newMockRepository()
	service := newRolesService(repo)

	role, err := service.Create(context.Background(), "  Sales  ", "CRM work", []Permission{
		{Resource: "tasks", Actions: []string{"read", "update", "read"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sales", role.Name)
	require.Len(t, role.Permissions, 1)
	assert.Equal(t, []string{"read", "update"}, role.Permissions[0].Actions, "duplicate actions collapse")
}

func TestCreateRoleValidation(t *testing.T) {
	service := newRolesService(newMockRepository())
	ctx := context.Background()

	_, err := service.Create(ctx, "   ", "", nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.Create(ctx, "Sales", "", []Permission{{Resource: "", Actions: []string{"read"}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.Create(ctx, "Sales", "", []Permission{{Resource: "tasks"}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRoleRejectsUnknownPairs(t *testing.T) {
	service := NewService(newMockRepository(), rejectingRegistry{}, nil, nil)

	_, err := service.Create(context.Background(), "Sales", "", []Permission{
		{Resource: "tasks", Actions: []string{"read"}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	repo := newMockRepository()
	service := newRolesService(repo)
	ctx := context.Background()

	_, err := service.Create(ctx, "Sales", "", nil)
	require.NoError(t, err)
	_, err = service.Create(ctx, "Sales", "", nil)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateSystemRoleConflicts(t *testing.T) {
	repo := newMockRepository()
	system := &Role{ID: uuid.New(), Name: "Administrator", IsSystem: true, IsActive: true}
	repo.roles[system.ID] = system
	service := newRolesService(repo)

	_, err := service.Update(context.Background(), system.ID, "Renamed", "", nil, true)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "Administrator", repo.roles[system.ID].Name)
}

func TestUpdateMissingRole(t *testing.T) {
	service := newRolesService(newMockRepository())

	_, err := service.Update(context.Background(), uuid.New(), "Sales", "", nil, true)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateSurfacesReadError(t *testing.T) {
	repo := newMockRepository()
	repo.getError = errors.New("connection reset")
	service := newRolesService(repo)

	// The guarded UPDATE misses, and the disambiguating read fails hard:
	// the storage error must reach the caller, not read as a 404.
	_, err := service.Update(context.Background(), uuid.New(), "Sales", "", nil, true)
	require.ErrorIs(t, err, repo.getError)
	require.NotErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRole(t *testing.T) {
	repo := newMockRepository()
	role := &Role{ID: uuid.New(), Name: "Temp", IsActive: true}
	repo.roles[role.ID] = role
	service := newRolesService(repo)

	require.NoError(t, service.Delete(context.Background(), role.ID))
	assert.NotContains(t, repo.roles, role.ID)
}

func TestDeleteSystemRoleConflicts(t *testing.T) {
	repo := newMockRepository()
	system := &Role{ID: uuid.New(), Name: "Administrator", IsSystem: true, IsActive: true}
	repo.roles[system.ID] = system
	service := newRolesService(repo)

	err := service.Delete(context.Background(), system.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, repo.roles, system.ID)
}

func TestDeleteReferencedRoleConflicts(t *testing.T) {
	repo := newMockRepository()
	role := &Role{ID: uuid.New(), Name: "Sales", IsActive: true}
	repo.roles[role.ID] = role
	repo.references[role.ID] = 3
	service := newRolesService(repo)

	err := service.Delete(context.Background(), role.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "3 principal")
	assert.Contains(t, repo.roles, role.ID)
}

func TestDeleteMissingRole(t *testing.T) {
	service := newRolesService(newMockRepository())

	err := service.Delete(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}
