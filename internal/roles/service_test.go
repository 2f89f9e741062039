package roles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/cache"
	"github.com/odyssey-lms/odyssey-lms/internal/rbac"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

type memoryRepo struct {
	roles     map[string]RoleDefinition
	findCalls int
}

func newMemoryRepo(defs ...RoleDefinition) *memoryRepo {
	repo := &memoryRepo{roles: map[string]RoleDefinition{}}
	for _, d := range defs {
		repo.roles[d.Name] = d
	}
	return repo
}

func (m *memoryRepo) ListRoles(context.Context) ([]RoleDefinition, error) {
	var out []RoleDefinition
	for _, d := range m.roles {
		out = append(out, d)
	}
	return out, nil
}

func (m *memoryRepo) FindRoles(_ context.Context, names []string) ([]RoleDefinition, error) {
	m.findCalls++
	var out []RoleDefinition
	for _, n := range names {
		if d, ok := m.roles[n]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateRole(_ context.Context, in CreateInput) (RoleDefinition, error) {
	if _, ok := m.roles[in.Name]; ok {
		return RoleDefinition{}, ErrRoleExists
	}
	d := RoleDefinition{Name: in.Name, AccessRights: in.AccessRights, UserType: in.UserType, IsActive: true}
	m.roles[in.Name] = d
	return d, nil
}

func (m *memoryRepo) UpdateRights(_ context.Context, name string, rights []string) (RoleDefinition, error) {
	d, ok := m.roles[name]
	if !ok {
		return RoleDefinition{}, shared.ErrNotFound
	}
	d.AccessRights = rights
	m.roles[name] = d
	return d, nil
}

func (m *memoryRepo) Deactivate(_ context.Context, name string) error {
	d, ok := m.roles[name]
	if !ok {
		return shared.ErrNotFound
	}
	d.IsActive = false
	m.roles[name] = d
	return nil
}

type bumpCounter struct {
	bumps int
	err   error
}

func (b *bumpCounter) Bump(context.Context) error {
	if b.err != nil {
		return b.err
	}
	b.bumps++
	return nil
}

func (b *bumpCounter) CurrentEpoch(context.Context) (int64, error) {
	return int64(b.bumps), nil
}

type observerCounts map[string]int

func (o observerCounts) ObserveRoleCache(result string) { o[result]++ }

func seededRepo() *memoryRepo {
	return newMemoryRepo(
		RoleDefinition{Name: "instructor", AccessRights: []string{"content:courses:read", "content:courses:write"}, UserType: users.UserTypeStaff, IsActive: true},
		RoleDefinition{Name: "reviewer", AccessRights: []string{"content:courses:read"}, UserType: users.UserTypeStaff, IsActive: true},
		RoleDefinition{Name: "platform-admin", AccessRights: []string{"*"}, UserType: users.UserTypeGlobalAdmin, IsActive: true},
		RoleDefinition{Name: "retired", AccessRights: []string{"system:roles:write"}, UserType: users.UserTypeGlobalAdmin, IsActive: false},
	)
}

func TestGetRightsUnionAndCache(t *testing.T) {
	repo := seededRepo()
	obs := observerCounts{}
	svc := NewService(repo, nil, Options{Observer: obs})
	ctx := context.Background()

	rights, err := svc.GetRights(ctx, []string{"instructor", "reviewer", "retired", "unknown"})
	require.NoError(t, err)
	require.Equal(t, []string{"content:courses:read", "content:courses:write"}, rights)
	require.Equal(t, 1, repo.findCalls)

	_, err = svc.GetRights(ctx, []string{"instructor", "reviewer"})
	require.NoError(t, err)
	require.Equal(t, 1, repo.findCalls)
	require.Equal(t, 2, obs["hit"])
}

func TestHasSystemRoleIgnoresInactive(t *testing.T) {
	svc := NewService(seededRepo(), nil, Options{})
	ctx := context.Background()

	ok, err := svc.HasSystemRole(ctx, []string{"instructor", "retired"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.HasSystemRole(ctx, []string{"platform-admin"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMissingRoles(t *testing.T) {
	svc := NewService(seededRepo(), nil, Options{})
	missing, err := svc.MissingRoles(context.Background(), []string{"instructor", "retired", "ghost"})
	require.NoError(t, err)
	require.Equal(t, []string{"ghost", "retired"}, missing)
}

func TestUpdateRightsTakesEffectImmediately(t *testing.T) {
	repo := seededRepo()
	bumps := &bumpCounter{}
	svc := NewService(repo, bumps, Options{})
	ctx := context.Background()

	_, err := svc.GetRights(ctx, []string{"reviewer"})
	require.NoError(t, err)

	_, err = svc.UpdateRights(ctx, "reviewer", UpdateRightsInput{AccessRights: []string{"Content:Courses:*"}})
	require.NoError(t, err)
	require.Equal(t, 1, bumps.bumps)

	rights, err := svc.GetRights(ctx, []string{"reviewer"})
	require.NoError(t, err)
	require.Equal(t, []string{"content:courses:*"}, rights)
}

func TestUpdateRightsRejectsMalformedRights(t *testing.T) {
	bumps := &bumpCounter{}
	svc := NewService(seededRepo(), bumps, Options{})

	_, err := svc.UpdateRights(context.Background(), "reviewer", UpdateRightsInput{AccessRights: []string{"courses.view"}})
	require.ErrorIs(t, err, ErrInvalidRole)
	require.Zero(t, bumps.bumps)

	_, err = svc.UpdateRights(context.Background(), "ghost", UpdateRightsInput{AccessRights: []string{"content:*"}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRole(t *testing.T) {
	bumps := &bumpCounter{}
	svc := NewService(seededRepo(), bumps, Options{})
	ctx := context.Background()

	d, err := svc.CreateRole(ctx, CreateInput{Name: "Grader", AccessRights: []string{"content:grades:write"}, UserType: users.UserTypeStaff})
	require.NoError(t, err)
	require.Equal(t, "grader", d.Name)
	require.Equal(t, 1, bumps.bumps)

	_, err = svc.CreateRole(ctx, CreateInput{Name: "grader", AccessRights: []string{"content:grades:write"}, UserType: users.UserTypeStaff})
	require.ErrorIs(t, err, ErrRoleExists)

	_, err = svc.CreateRole(ctx, CreateInput{Name: "bad name", AccessRights: []string{"content:*"}, UserType: users.UserTypeStaff})
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.CreateRole(ctx, CreateInput{Name: "x", AccessRights: []string{"content:*"}, UserType: "robot"})
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestDeactivateDropsRights(t *testing.T) {
	bumps := &bumpCounter{err: errors.New("redis down")}
	svc := NewService(seededRepo(), bumps, Options{})
	ctx := context.Background()

	_, err := svc.GetRights(ctx, []string{"instructor"})
	require.NoError(t, err)
	require.Error(t, svc.Deactivate(ctx, "instructor"))

	rights, err := svc.GetRights(ctx, []string{"instructor"})
	require.NoError(t, err)
	require.Empty(t, rights)
}

type auditEntries []shared.AuditLog

func (a *auditEntries) Record(_ context.Context, log shared.AuditLog) error {
	*a = append(*a, log)
	return nil
}

func TestRoleEditsAreAuditedWithActor(t *testing.T) {
	var trail auditEntries
	svc := NewService(seededRepo(), &bumpCounter{}, Options{Audit: &trail})
	ctx := shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: "admin-1"})

	_, err := svc.UpdateRights(ctx, "instructor", UpdateRightsInput{AccessRights: []string{"content:*"}})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "instructor"))

	require.Len(t, trail, 2)
	require.Equal(t, "admin-1", trail[0].ActorID)
	require.Equal(t, shared.AuditRoleChanged, trail[0].Action)
	require.Equal(t, "instructor", trail[0].EntityID)
	require.Equal(t, "rights-updated", trail[0].Meta["change"])
	require.Equal(t, "deactivated", trail[1].Meta["change"])
}

func sharedEpoch(t *testing.T) (*rbac.PermissionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return rbac.NewPermissionCache(cache.NewRedisStore(client, time.Second), time.Minute), mr
}

func TestRoleEditReachesOtherProcesses(t *testing.T) {
	epochs, _ := sharedEpoch(t)
	repo := seededRepo()
	api := NewService(repo, epochs, Options{})
	worker := NewService(repo, epochs, Options{})
	ctx := context.Background()

	rights, err := worker.GetRights(ctx, []string{"instructor"})
	require.NoError(t, err)
	require.Contains(t, rights, "content:courses:write")
	_, err = worker.GetRights(ctx, []string{"instructor"})
	require.NoError(t, err)
	require.Equal(t, 1, repo.findCalls)

	_, err = api.UpdateRights(ctx, "instructor", UpdateRightsInput{AccessRights: []string{"content:courses:read"}})
	require.NoError(t, err)

	rights, err = worker.GetRights(ctx, []string{"instructor"})
	require.NoError(t, err)
	require.Equal(t, []string{"content:courses:read"}, rights)
	require.Equal(t, 2, repo.findCalls)
}

func TestRoleCacheBypassedWhenEpochUnreadable(t *testing.T) {
	epochs, mr := sharedEpoch(t)
	repo := seededRepo()
	obs := observerCounts{}
	svc := NewService(repo, epochs, Options{Observer: obs})
	ctx := context.Background()

	_, err := svc.GetRights(ctx, []string{"reviewer"})
	require.NoError(t, err)
	mr.Close()

	for i := 0; i < 2; i++ {
		rights, err := svc.GetRights(ctx, []string{"reviewer"})
		require.NoError(t, err)
		require.Equal(t, []string{"content:courses:read"}, rights)
	}
	require.Equal(t, 3, repo.findCalls)
	require.Equal(t, 2, obs["bypass"])
	require.Zero(t, obs["hit"])
}

func TestDefinitionCacheRejectsLoadsFromAnotherEpoch(t *testing.T) {
	c := newDefinitionCache(8, time.Minute, nil)
	def := RoleDefinition{Name: "reviewer", IsActive: true}

	c.advance(1)
	c.add(def, 0)
	_, ok := c.get("reviewer", 1)
	require.False(t, ok)

	c.add(def, 1)
	_, ok = c.get("reviewer", 1)
	require.True(t, ok)
	_, ok = c.get("reviewer", 0)
	require.False(t, ok)

	c.advance(2)
	_, ok = c.get("reviewer", 2)
	require.False(t, ok)
}
