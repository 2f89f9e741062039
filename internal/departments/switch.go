package departments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

// UserDirectory resolves users and records their last selected department.
type UserDirectory interface {
	FindUser(ctx context.Context, id string) (users.User, error)
	SetLastSelectedDepartment(ctx context.Context, userID, departmentID string) error
}

// Store is the department and membership persistence port.
type Store interface {
	FindDepartment(ctx context.Context, id string) (Department, error)
	FindChildren(ctx context.Context, parentID string) ([]Department, error)
	FindMembershipsForUser(ctx context.Context, userID string, userType users.UserType) ([]Membership, error)
}

// RoleCatalog resolves role names against role definitions.
type RoleCatalog interface {
	GetRights(ctx context.Context, roleNames []string) ([]string, error)
	HasSystemRole(ctx context.Context, roleNames []string) (bool, error)
}

// Switcher resolves a user's effective roles in a department.
type Switcher struct {
	users  UserDirectory
	store  Store
	roles  RoleCatalog
	logger *slog.Logger
}

// NewSwitcher constructs a Switcher.
func NewSwitcher(usersDir UserDirectory, store Store, roles RoleCatalog, logger *slog.Logger) *Switcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Switcher{users: usersDir, store: store, roles: roles, logger: logger.With(slog.String("component", "department_switch"))}
}

// standing is the caller's membership view used while resolving a switch.
type standing struct {
	user     users.User
	direct   map[string]Membership
	elevated bool
}

func (s *Switcher) load(ctx context.Context, userID string) (standing, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return standing{}, shared.ErrUnauthenticated
		}
		return standing{}, err
	}
	st := standing{user: user, direct: map[string]Membership{}, elevated: user.IsGlobalAdmin()}
	if _, ok := shared.ElevationFromContext(ctx); ok {
		st.elevated = true
	}
	if !user.IsActive {
		return st, nil
	}
	var roles []string
	for _, t := range user.MembershipTypes() {
		rows, err := s.store.FindMembershipsForUser(ctx, userID, t)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return standing{}, err
		}
		for _, m := range rows {
			if !m.IsActive || len(m.Roles) == 0 {
				continue
			}
			// First match wins: staff rows are consulted before learner rows.
			if _, ok := st.direct[m.DepartmentID]; !ok {
				st.direct[m.DepartmentID] = m
			}
			roles = append(roles, m.Roles...)
		}
	}
	if !st.elevated && len(roles) > 0 {
		st.elevated, err = s.roles.HasSystemRole(ctx, roles)
		if err != nil {
			return standing{}, err
		}
	}
	return st, nil
}

// Switch resolves the caller's roles and rights in departmentID and records
// it as the caller's last selected department.
func (s *Switcher) Switch(ctx context.Context, userID, departmentID string) (SwitchResult, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return SwitchResult{}, err
	}
	dept, err := s.visibleDepartment(ctx, departmentID, st.elevated)
	if err != nil {
		return SwitchResult{}, err
	}

	result := SwitchResult{DepartmentID: dept.ID, DepartmentName: dept.Name, ChildDepartments: []ChildDepartment{}}
	if m, ok := st.direct[dept.ID]; ok {
		result.Roles = append([]string(nil), m.Roles...)
		result.IsDirectMember = true
	} else {
		roles, from, err := s.cascade(ctx, dept, st)
		if err != nil {
			return SwitchResult{}, err
		}
		result.Roles = roles
		result.InheritedFrom = from
	}
	if len(result.Roles) == 0 {
		return SwitchResult{}, shared.ErrNotAMember
	}
	if !dept.IsActive {
		return SwitchResult{}, shared.ErrDepartmentInactive
	}

	rights, err := s.roles.GetRights(ctx, result.Roles)
	if err != nil {
		return SwitchResult{}, fmt.Errorf("departments: resolve rights: %w", err)
	}
	result.AccessRights = rights
	if result.AccessRights == nil {
		result.AccessRights = []string{}
	}

	children, err := s.store.FindChildren(ctx, dept.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return SwitchResult{}, err
	}
	for _, child := range children {
		if !child.IsActive || (!child.IsVisible && !st.elevated) {
			continue
		}
		m, direct := st.direct[child.ID]
		if child.RequireExplicitMembership && !direct {
			continue
		}
		roles := result.Roles
		if direct {
			roles = m.Roles
		}
		result.ChildDepartments = append(result.ChildDepartments, ChildDepartment{
			ID:    child.ID,
			Name:  child.Name,
			Roles: append([]string(nil), roles...),
		})
	}

	if err := s.users.SetLastSelectedDepartment(ctx, userID, dept.ID); err != nil {
		s.logger.Warn("record last selected department",
			slog.String("user_id", userID), slog.String("department_id", dept.ID), slog.Any("error", err))
	}
	return result, nil
}

// visibleDepartment hides non-visible departments from unprivileged callers.
func (s *Switcher) visibleDepartment(ctx context.Context, id string, elevated bool) (Department, error) {
	dept, err := s.store.FindDepartment(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Department{}, shared.ErrDepartmentNotFound
	}
	if err != nil {
		return Department{}, err
	}
	if !dept.IsVisible && !elevated {
		return Department{}, shared.ErrDepartmentNotFound
	}
	return dept, nil
}

// cascade walks up from dept until an ancestor with a direct membership is
// found. It returns no roles when the walk reaches the root or a department
// that requires explicit membership.
func (s *Switcher) cascade(ctx context.Context, dept Department, st standing) ([]string, string, error) {
	visited := map[string]struct{}{dept.ID: {}}
	current := dept
	for depth := 0; ; depth++ {
		if current.RequireExplicitMembership || current.ParentID == "" {
			return nil, "", nil
		}
		if depth >= maxParentDepth {
			return nil, "", fmt.Errorf("%w: depth limit reached at %s", ErrHierarchyCycle, current.ID)
		}
		if _, seen := visited[current.ParentID]; seen {
			return nil, "", fmt.Errorf("%w: %s revisited", ErrHierarchyCycle, current.ParentID)
		}
		visited[current.ParentID] = struct{}{}
		parent, err := s.store.FindDepartment(ctx, current.ParentID)
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("dangling parent reference", slog.String("department_id", current.ID), slog.String("parent_id", current.ParentID))
			return nil, "", nil
		}
		if err != nil {
			return nil, "", err
		}
		if m, ok := st.direct[parent.ID]; ok {
			return append([]string(nil), m.Roles...), parent.ID, nil
		}
		current = parent
	}
}

// Accessible lists every department the caller can switch to: direct
// memberships plus the descendants they cascade into.
func (s *Switcher) Accessible(ctx context.Context, userID string) ([]AccessibleDepartment, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := map[string]AccessibleDepartment{}
	ids := make([]string, 0, len(st.direct))
	for id := range st.direct {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type frame struct {
		dept  Department
		roles []string
		depth int
	}
	var queue []frame
	for _, id := range ids {
		m := st.direct[id]
		dept, err := s.store.FindDepartment(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !dept.IsActive || (!dept.IsVisible && !st.elevated) {
			continue
		}
		out[id] = AccessibleDepartment{ID: id, Name: dept.Name, Roles: m.Roles, IsDirectMember: true, IsPrimary: m.IsPrimary}
		queue = append(queue, frame{dept: dept, roles: m.Roles})
	}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth >= maxParentDepth {
			return nil, fmt.Errorf("%w: depth limit reached below %s", ErrHierarchyCycle, f.dept.ID)
		}
		children, err := s.store.FindChildren(ctx, f.dept.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		for _, child := range children {
			if _, seen := out[child.ID]; seen {
				continue
			}
			if !child.IsActive || child.RequireExplicitMembership || (!child.IsVisible && !st.elevated) {
				continue
			}
			out[child.ID] = AccessibleDepartment{ID: child.ID, Name: child.Name, Roles: f.roles}
			queue = append(queue, frame{dept: child, roles: f.roles, depth: f.depth + 1})
		}
	}

	list := make([]AccessibleDepartment, 0, len(out))
	for _, d := range out {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsPrimary != list[j].IsPrimary {
			return list[i].IsPrimary
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}
