package departments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

type fakeUsers struct {
	users    map[string]users.User
	selected map[string]string
	failSet  bool
}

func (f *fakeUsers) FindUser(_ context.Context, id string) (users.User, error) {
	u, ok := f.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) SetLastSelectedDepartment(_ context.Context, userID, departmentID string) error {
	if f.failSet {
		return errors.New("write failed")
	}
	if f.selected == nil {
		f.selected = map[string]string{}
	}
	f.selected[userID] = departmentID
	return nil
}

type fakeStore struct {
	departments map[string]Department
	memberships []Membership
	upserts     []GrantInput
	revoked     []string
}

func (f *fakeStore) FindDepartment(_ context.Context, id string) (Department, error) {
	d, ok := f.departments[id]
	if !ok {
		return Department{}, shared.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) FindChildren(_ context.Context, parentID string) ([]Department, error) {
	var out []Department
	for _, d := range f.departments {
		if d.ParentID == parentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) FindMembershipsForUser(_ context.Context, userID string, userType users.UserType) ([]Membership, error) {
	var out []Membership
	for _, m := range f.memberships {
		if m.UserID == userID && m.UserType == userType {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertMembership(_ context.Context, in GrantInput) error {
	f.upserts = append(f.upserts, in)
	return nil
}

func (f *fakeStore) DeactivateMembership(_ context.Context, userID, departmentID string) error {
	for _, m := range f.memberships {
		if m.UserID == userID && m.DepartmentID == departmentID {
			f.revoked = append(f.revoked, userID+"@"+departmentID)
			return nil
		}
	}
	return shared.ErrNotFound
}

type fakeRoles struct {
	rights map[string][]string
	system map[string]bool
}

func (f fakeRoles) GetRights(_ context.Context, names []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, n := range names {
		for _, r := range f.rights[n] {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}

func (f fakeRoles) HasSystemRole(_ context.Context, names []string) (bool, error) {
	for _, n := range names {
		if f.system[n] {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeRoles) MissingRoles(_ context.Context, names []string) ([]string, error) {
	var missing []string
	for _, n := range names {
		if _, ok := f.rights[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

func dept(id, parent string) Department {
	return Department{ID: id, Name: "Dept " + id, ParentID: parent, IsVisible: true, IsActive: true}
}

func staff(id string) users.User {
	return users.User{ID: id, IsActive: true, UserTypes: []users.UserType{users.UserTypeStaff}}
}

func newSwitchFixture() (*fakeUsers, *fakeStore, fakeRoles) {
	u := &fakeUsers{users: map[string]users.User{"u1": staff("u1")}}
	s := &fakeStore{departments: map[string]Department{
		"d1": dept("d1", ""),
		"d2": dept("d2", "d1"),
		"d3": dept("d3", "d2"),
	}}
	r := fakeRoles{
		rights: map[string][]string{
			"department-admin": {"system:memberships:write", "content:*"},
			"instructor":       {"content:courses:read", "content:courses:write"},
			"learner":          {"content:courses:read"},
			"platform-admin":   {"*"},
		},
		system: map[string]bool{"platform-admin": true},
	}
	return u, s, r
}

func TestSwitchInheritsFromParent(t *testing.T) {
	u, s, r := newSwitchFixture()
	s.memberships = []Membership{{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"department-admin"}, IsActive: true}}
	sw := NewSwitcher(u, s, r, nil)

	res, err := sw.Switch(context.Background(), "u1", "d2")
	require.NoError(t, err)
	require.False(t, res.IsDirectMember)
	require.Equal(t, "d1", res.InheritedFrom)
	require.Equal(t, []string{"department-admin"}, res.Roles)
	require.ElementsMatch(t, []string{"system:memberships:write", "content:*"}, res.AccessRights)
	require.Len(t, res.ChildDepartments, 1)
	require.Equal(t, "d3", res.ChildDepartments[0].ID)
	require.Equal(t, []string{"department-admin"}, res.ChildDepartments[0].Roles)
	require.Equal(t, "d2", u.selected["u1"])
}

func TestSwitchCascadesSeveralLevels(t *testing.T) {
	u, s, r := newSwitchFixture()
	s.memberships = []Membership{{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true}}

	res, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "d3")
	require.NoError(t, err)
	require.Equal(t, "d1", res.InheritedFrom)
	require.Equal(t, []string{"instructor"}, res.Roles)
}

func TestSwitchDirectMembershipWins(t *testing.T) {
	u, s, r := newSwitchFixture()
	s.memberships = []Membership{
		{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"department-admin"}, IsActive: true},
		{UserID: "u1", DepartmentID: "d2", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true},
	}

	res, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "d2")
	require.NoError(t, err)
	require.True(t, res.IsDirectMember)
	require.Empty(t, res.InheritedFrom)
	require.Equal(t, []string{"instructor"}, res.Roles)
}

func TestSwitchExplicitMembershipBlocksCascade(t *testing.T) {
	u, s, r := newSwitchFixture()
	d2 := s.departments["d2"]
	d2.RequireExplicitMembership = true
	s.departments["d2"] = d2
	s.departments["d4"] = dept("d4", "d1")
	s.memberships = []Membership{{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"department-admin"}, IsActive: true}}
	sw := NewSwitcher(u, s, r, nil)

	_, err := sw.Switch(context.Background(), "u1", "d2")
	require.ErrorIs(t, err, shared.ErrNotAMember)

	res, err := sw.Switch(context.Background(), "u1", "d4")
	require.NoError(t, err)
	require.Equal(t, "d1", res.InheritedFrom)
}

func TestSwitchHiddenDepartment(t *testing.T) {
	u, s, r := newSwitchFixture()
	hidden := dept("h1", "")
	hidden.IsVisible = false
	s.departments["h1"] = hidden
	s.memberships = []Membership{{UserID: "u1", DepartmentID: "h1", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true}}
	sw := NewSwitcher(u, s, r, nil)

	_, err := sw.Switch(context.Background(), "u1", "h1")
	require.ErrorIs(t, err, shared.ErrDepartmentNotFound)

	_, err = sw.Switch(context.Background(), "u1", "missing")
	require.ErrorIs(t, err, shared.ErrDepartmentNotFound)

	admin := staff("u1")
	admin.UserTypes = append(admin.UserTypes, users.UserTypeGlobalAdmin)
	u.users["u1"] = admin
	res, err := sw.Switch(context.Background(), "u1", "h1")
	require.NoError(t, err)
	require.True(t, res.IsDirectMember)
}

func TestSwitchSystemRoleRevealsHidden(t *testing.T) {
	u, s, r := newSwitchFixture()
	hidden := dept("h1", "")
	hidden.IsVisible = false
	s.departments["h1"] = hidden
	s.memberships = []Membership{
		{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"platform-admin"}, IsActive: true},
	}

	_, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "h1")
	require.ErrorIs(t, err, shared.ErrNotAMember)
}

func TestSwitchInactiveDepartment(t *testing.T) {
	u, s, r := newSwitchFixture()
	d2 := s.departments["d2"]
	d2.IsActive = false
	s.departments["d2"] = d2
	s.memberships = []Membership{{UserID: "u1", DepartmentID: "d2", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true}}

	_, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "d2")
	require.ErrorIs(t, err, shared.ErrDepartmentInactive)
}

func TestSwitchNoMembership(t *testing.T) {
	u, s, r := newSwitchFixture()
	_, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "d3")
	require.ErrorIs(t, err, shared.ErrNotAMember)
}

func TestSwitchMembershipTypeGating(t *testing.T) {
	u, s, r := newSwitchFixture()
	u.users["u1"] = users.User{ID: "u1", IsActive: true, UserTypes: []users.UserType{users.UserTypeLearner}}
	s.memberships = []Membership{
		{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true},
		{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeLearner, Roles: []string{"learner"}, IsActive: true},
	}

	res, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "d1")
	require.NoError(t, err)
	require.Equal(t, []string{"learner"}, res.Roles)
}

func TestSwitchDetectsCycle(t *testing.T) {
	u, s, r := newSwitchFixture()
	s.departments["c1"] = dept("c1", "c2")
	s.departments["c2"] = dept("c2", "c1")

	_, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "c1")
	require.ErrorIs(t, err, ErrHierarchyCycle)
}

func TestSwitchChildFiltering(t *testing.T) {
	u, s, r := newSwitchFixture()
	explicit := dept("x1", "d1")
	explicit.RequireExplicitMembership = true
	explicitJoined := dept("x2", "d1")
	explicitJoined.RequireExplicitMembership = true
	hidden := dept("h1", "d1")
	hidden.IsVisible = false
	inactive := dept("i1", "d1")
	inactive.IsActive = false
	for _, d := range []Department{explicit, explicitJoined, hidden, inactive} {
		s.departments[d.ID] = d
	}
	s.memberships = []Membership{
		{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"department-admin"}, IsActive: true},
		{UserID: "u1", DepartmentID: "x2", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true},
	}

	res, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "d1")
	require.NoError(t, err)
	got := map[string][]string{}
	for _, c := range res.ChildDepartments {
		got[c.ID] = c.Roles
	}
	require.Equal(t, map[string][]string{
		"d2": {"department-admin"},
		"x2": {"instructor"},
	}, got)
}

func TestSwitchLastSelectedIsBestEffort(t *testing.T) {
	u, s, r := newSwitchFixture()
	u.failSet = true
	s.memberships = []Membership{{UserID: "u1", DepartmentID: "d1", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true}}

	_, err := NewSwitcher(u, s, r, nil).Switch(context.Background(), "u1", "d1")
	require.NoError(t, err)
}

func TestAccessibleListsCascadedDepartments(t *testing.T) {
	u, s, r := newSwitchFixture()
	s.memberships = []Membership{{UserID: "u1", DepartmentID: "d2", UserType: users.UserTypeStaff, Roles: []string{"instructor"}, IsActive: true, IsPrimary: true}}

	list, err := NewSwitcher(u, s, r, nil).Accessible(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "d2", list[0].ID)
	require.True(t, list[0].IsDirectMember)
	require.Equal(t, "d3", list[1].ID)
	require.False(t, list[1].IsDirectMember)
	require.Equal(t, []string{"instructor"}, list[1].Roles)
}
