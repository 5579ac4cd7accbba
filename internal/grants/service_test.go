package grants

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-authz/internal/shared"
)

var refTime = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type grantKey struct {
	principalID uuid.UUID
	resource    string
}

type fakeRepository struct {
	grants      map[grantKey]*Grant
	upsertError error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{grants: make(map[grantKey]*Grant)}
}

func (f *fakeRepository) Upsert(ctx context.Context, principalID uuid.UUID, resource string, actions []string, expiresAt *time.Time, grantedBy string) (Grant, error) {
	if f.upsertError != nil {
		return Grant{}, f.upsertError
	}
	key := grantKey{principalID, resource}
	grant, ok := f.grants[key]
	if !ok {
		grant = &Grant{ID: uuid.New(), PrincipalID: principalID, Resource: resource}
		f.grants[key] = grant
	}
	grant.Actions = actions
	grant.ExpiresAt = expiresAt
	grant.GrantedBy = grantedBy
	grant.IsActive = true
	return *grant, nil
}

func (f *fakeRepository) GetByKey(ctx context.Context, principalID uuid.UUID, resource string) (Grant, error) {
	grant, ok := f.grants[grantKey{principalID, resource}]
	if !ok {
		return Grant{}, shared.ErrNotFound
	}
	return *grant, nil
}

func (f *fakeRepository) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]Grant, error) {
	result := make([]Grant, 0)
	for key, grant := range f.grants {
		if key.principalID == principalID {
			result = append(result, *grant)
		}
	}
	return result, nil
}

func (f *fakeRepository) Deactivate(ctx context.Context, principalID uuid.UUID, resource string) error {
	// Matches the UPDATE: any existing row for the key is touched, already
	// inactive or not.
	grant, ok := f.grants[grantKey{principalID, resource}]
	if !ok {
		return shared.ErrNotFound
	}
	grant.IsActive = false
	return nil
}

func (f *fakeRepository) Delete(ctx context.Context, principalID uuid.UUID, resource string) error {
	key := grantKey{principalID, resource}
	if _, ok := f.grants[key]; !ok {
		return shared.ErrNotFound
	}
	delete(f.grants, key)
	return nil
}

type fakePrincipals struct {
	existing map[uuid.UUID]bool
	err      error
}

func (f *fakePrincipals) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.existing[id], nil
}

type openRegistry struct{}

func (openRegistry) Validate(resource, action string) error { return nil }

type closedRegistry struct{}

func (closedRegistry) Validate(resource, action string) error {
	return fmt.Errorf("%w: unknown action %q on resource %q", shared.ErrValidation, action, resource)
}

func newGrantsService(repo *fakeRepository, principals *fakePrincipals) *Service {
	svc := NewService(repo, principals, openRegistry{}, nil, nil)
	svc.now = func() time.Time { return refTime }
	return svc
}

func TestAssignGrant(t *testing.T) {
	principalID := uuid.New()
	repo := newFakeRepository()
	service := newGrantsService(repo, &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}})

	expiry := refTime.Add(24 * time.Hour)
	grant, err := service.Assign(context.Background(), principalID, "reports", []string{"read", "export", "read"}, &expiry, "admin@meridian.local")
	require.NoError(t, err)

	assert.Equal(t, []string{"read", "export"}, grant.Actions, "duplicate actions collapse")
	assert.True(t, grant.IsActive)
	require.NotNil(t, grant.ExpiresAt)
	assert.Equal(t, expiry, *grant.ExpiresAt)
	assert.Equal(t, "admin@meridian.local", grant.GrantedBy)
}

func TestAssignReplacesExistingGrant(t *testing.T) {
	principalID := uuid.New()
	repo := newFakeRepository()
	service := newGrantsService(repo, &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}})
	ctx := context.Background()

	expiry := refTime.Add(time.Hour)
	_, err := service.Assign(ctx, principalID, "reports", []string{"read", "export"}, &expiry, "first@meridian.local")
	require.NoError(t, err)

	// The second assignment overwrites the key wholesale: actions, expiry
	// and granted-by. Nothing from the first write survives.
	replaced, err := service.Assign(ctx, principalID, "reports", []string{"read"}, nil, "second@meridian.local")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, replaced.Actions)
	assert.Nil(t, replaced.ExpiresAt)
	assert.Equal(t, "second@meridian.local", replaced.GrantedBy)

	stored, err := repo.GetByKey(ctx, principalID, "reports")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, stored.Actions)
}

func TestAssignReactivatesRevokedGrant(t *testing.T) {
	principalID := uuid.New()
	repo := newFakeRepository()
	service := newGrantsService(repo, &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}})
	ctx := context.Background()

	_, err := service.Assign(ctx, principalID, "tasks", []string{"read"}, nil, "admin@meridian.local")
	require.NoError(t, err)
	require.NoError(t, service.Revoke(ctx, principalID, "tasks"))

	grant, err := service.Assign(ctx, principalID, "tasks", []string{"read", "update"}, nil, "admin@meridian.local")
	require.NoError(t, err)
	assert.True(t, grant.IsActive)
}

func TestAssignValidation(t *testing.T) {
	principalID := uuid.New()
	service := newGrantsService(newFakeRepository(), &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}})
	ctx := context.Background()

	_, err := service.Assign(ctx, principalID, "   ", []string{"read"}, nil, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.Assign(ctx, principalID, "reports", nil, nil, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.Assign(ctx, principalID, "reports", []string{"  "}, nil, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	past := refTime.Add(-time.Minute)
	_, err = service.Assign(ctx, principalID, "reports", []string{"read"}, &past, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	// Expiring exactly now is already inert, so it is rejected too.
	exactly := refTime
	_, err = service.Assign(ctx, principalID, "reports", []string{"read"}, &exactly, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignRejectsUnknownPairs(t *testing.T) {
	principalID := uuid.New()
	service := NewService(newFakeRepository(), &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}}, closedRegistry{}, nil, nil)

	_, err := service.Assign(context.Background(), principalID, "reports", []string{"teleport"}, nil, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignUnknownPrincipal(t *testing.T) {
	service := newGrantsService(newFakeRepository(), &fakePrincipals{existing: map[uuid.UUID]bool{}})

	_, err := service.Assign(context.Background(), uuid.New(), "reports", []string{"read"}, nil, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevokeGrant(t *testing.T) {
	principalID := uuid.New()
	repo := newFakeRepository()
	service := newGrantsService(repo, &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}})
	ctx := context.Background()

	_, err := service.Assign(ctx, principalID, "reports", []string{"read"}, nil, "admin@meridian.local")
	require.NoError(t, err)

	require.NoError(t, service.Revoke(ctx, principalID, "reports"))

	stored, err := repo.GetByKey(ctx, principalID, "reports")
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "revoked grant stays stored for audit")

	// Revoking again touches the same row and succeeds.
	require.NoError(t, service.Revoke(ctx, principalID, "reports"))
}

func TestRevokeMissingGrant(t *testing.T) {
	service := newGrantsService(newFakeRepository(), &fakePrincipals{})

	err := service.Revoke(context.Background(), uuid.New(), "reports")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveGrant(t *testing.T) {
	principalID := uuid.New()
	repo := newFakeRepository()
	service := newGrantsService(repo, &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}})
	ctx := context.Background()

	_, err := service.Assign(ctx, principalID, "reports", []string{"read"}, nil, "admin@meridian.local")
	require.NoError(t, err)

	require.NoError(t, service.Remove(ctx, principalID, "reports"))

	_, err = repo.GetByKey(ctx, principalID, "reports")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListForPrincipal(t *testing.T) {
	principalID := uuid.New()
	repo := newFakeRepository()
	service := newGrantsService(repo, &fakePrincipals{existing: map[uuid.UUID]bool{principalID: true}})
	ctx := context.Background()

	_, err := service.Assign(ctx, principalID, "reports", []string{"read"}, nil, "")
	require.NoError(t, err)
	_, err = service.Assign(ctx, principalID, "tasks", []string{"read"}, nil, "")
	require.NoError(t, err)
	require.NoError(t, service.Revoke(ctx, principalID, "tasks"))

	grants, err := service.ListForPrincipal(ctx, principalID)
	require.NoError(t, err)
	assert.Len(t, grants, 2, "listing includes revoked grants")
}
