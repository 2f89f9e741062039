package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-lms/odyssey-lms/internal/departments"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

// ErrLookupTimeout indicates a dependency call exceeded its deadline. Callers deny.
var ErrLookupTimeout = errors.New("rbac: permission lookup timed out")

// UserFinder resolves identities.
type UserFinder interface {
	FindUser(ctx context.Context, id string) (users.User, error)
}

// MembershipFinder lists department memberships of one record type.
type MembershipFinder interface {
	FindMembershipsForUser(ctx context.Context, userID string, userType users.UserType) ([]departments.Membership, error)
}

// DepartmentFinder reads the department tree.
type DepartmentFinder interface {
	FindDepartment(ctx context.Context, id string) (departments.Department, error)
	FindChildren(ctx context.Context, parentID string) ([]departments.Department, error)
}

// RightsResolver returns the deduplicated union of the named roles' rights.
type RightsResolver interface {
	GetRights(ctx context.Context, roleNames []string) ([]string, error)
}

// MetricsRecorder receives cache and decision outcomes.
type MetricsRecorder interface {
	ObservePermissionCache(result string)
	ObserveDecision(reason string)
}

// ServiceDeps groups the collaborators of PermissionService.
type ServiceDeps struct {
	Users       UserFinder
	Memberships MembershipFinder
	Departments DepartmentFinder
	Rights      RightsResolver
	Cache       *PermissionCache
	Logger      *slog.Logger
	Metrics     MetricsRecorder
	// Timeout bounds each dependency call. Zero means 2s.
	Timeout time.Duration
}

// PermissionService computes and caches permission snapshots.
type PermissionService struct {
	users       UserFinder
	memberships MembershipFinder
	departments DepartmentFinder
	rights      RightsResolver
	cache       *PermissionCache
	logger      *slog.Logger
	metrics     MetricsRecorder
	timeout     time.Duration
	now         func() time.Time

	group   singleflight.Group
	pending sync.WaitGroup
}

// NewPermissionService constructs the service.
func NewPermissionService(deps ServiceDeps) *PermissionService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PermissionService{
		users:       deps.Users,
		memberships: deps.Memberships,
		departments: deps.Departments,
		rights:      deps.Rights,
		cache:       deps.Cache,
		logger:      logger.With(slog.String("component", "permissions")),
		metrics:     deps.Metrics,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Snapshot returns the user's permission snapshot, computing it on a cache miss.
func (s *PermissionService) Snapshot(ctx context.Context, userID string) (*PermissionSnapshot, error) {
	cacheable := true
	snap, ok, err := s.cache.Get(ctx, userID)
	switch {
	case err != nil:
		s.logger.Warn("permission cache read", slog.String("user_id", userID), slog.Any("error", err))
		s.observeCache("error")
		cacheable = false
	case ok:
		s.observeCache("hit")
		return snap, nil
	default:
		s.observeCache("miss")
	}

	var stamp Stamp
	if cacheable {
		stamp, err = s.cache.CurrentStamp(ctx, userID)
		if err != nil {
			s.logger.Warn("permission version read", slog.String("user_id", userID), slog.Any("error", err))
			cacheable = false
		}
	}

	// The shared computation outlives any single waiter; each lookup inside it is bounded by s.timeout.
	key := userID + ":" + strconv.FormatInt(stamp.Version, 10) + ":" + strconv.FormatInt(stamp.Epoch, 10)
	resultCh := s.group.DoChan(key, func() (interface{}, error) {
		return s.Compute(context.WithoutCancel(ctx), userID, stamp)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrLookupTimeout, ctx.Err())
	case res = <-resultCh:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	snap = res.Val.(*PermissionSnapshot)
	if cacheable && !res.Shared {
		s.populate(ctx, userID, snap)
	}
	return snap, nil
}

// populate writes snap to the cache in the background. Failures are logged only.
func (s *PermissionService) populate(ctx context.Context, userID string, snap *PermissionSnapshot) {
	if s.cache == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.cache.Put(wctx, userID, snap, s.cache.TTL()); err != nil {
			s.logger.Warn("permission cache write", slog.String("user_id", userID), slog.Any("error", err))
		}
	}()
}

// Wait blocks until background cache writes finish.
func (s *PermissionService) Wait() {
	s.pending.Wait()
}

// Invalidate drops the cached snapshot of userID.
func (s *PermissionService) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Invalidate(ctx, userID)
}

// Bump drops every cached snapshot.
func (s *PermissionService) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Compute builds a fresh snapshot stamped with stamp.
func (s *PermissionService) Compute(ctx context.Context, userID string, stamp Stamp) (*PermissionSnapshot, error) {
	now := s.now()
	snap := &PermissionSnapshot{
		UserID:           userID,
		GlobalRights:     []string{},
		DepartmentRights: map[string][]string{},
		Hierarchy:        map[string][]string{},
		ComputedAt:       now,
		ExpiresAt:        now.Add(s.cache.TTL()),
		Version:          stamp.Version,
		Epoch:            stamp.Epoch,
	}

	user, err := call(ctx, s.timeout, func(ctx context.Context) (users.User, error) {
		return s.users.FindUser(ctx, userID)
	})
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("permission compute: user not found", slog.String("user_id", userID))
		return snap, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return snap, nil
	}

	memberships, err := s.loadMemberships(ctx, user)
	if err != nil {
		return nil, err
	}

	global := map[string]struct{}{}
	perDept := map[string]map[string]struct{}{}
	seen := map[string]departments.Department{}
	for _, m := range memberships {
		if !m.IsActive || len(m.Roles) == 0 {
			continue
		}
		dept, ok := seen[m.DepartmentID]
		if !ok {
			dept, err = call(ctx, s.timeout, func(ctx context.Context) (departments.Department, error) {
				return s.departments.FindDepartment(ctx, m.DepartmentID)
			})
			if errors.Is(err, shared.ErrNotFound) {
				s.logger.Warn("permission compute: membership department missing",
					slog.String("user_id", userID), slog.String("department_id", m.DepartmentID))
				continue
			}
			if err != nil {
				return nil, err
			}
			seen[m.DepartmentID] = dept
		}
		if !dept.IsActive {
			continue
		}
		rights, err := call(ctx, s.timeout, func(ctx context.Context) ([]string, error) {
			return s.rights.GetRights(ctx, m.Roles)
		})
		if err != nil {
			return nil, err
		}
		target := global
		if !dept.IsSystem {
			if perDept[dept.ID] == nil {
				perDept[dept.ID] = map[string]struct{}{}
			}
			target = perDept[dept.ID]
		}
		for _, r := range rights {
			target[NormalizeRight(r)] = struct{}{}
		}
	}

	snap.GlobalRights = setToSorted(global)
	for id, rights := range perDept {
		snap.DepartmentRights[id] = setToSorted(rights)
	}
	if err := s.buildHierarchy(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PermissionService) loadMemberships(ctx context.Context, user users.User) ([]departments.Membership, error) {
	types := user.MembershipTypes()
	results := make([][]departments.Membership, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			rows, err := call(gctx, s.timeout, func(ctx context.Context) ([]departments.Membership, error) {
				return s.memberships.FindMembershipsForUser(ctx, user.ID, t)
			})
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []departments.Membership
	for _, rows := range results {
		all = append(all, rows...)
	}
	return all, nil
}

// buildHierarchy walks down from every member department, following active
// children that do not require explicit membership.
func (s *PermissionService) buildHierarchy(ctx context.Context, snap *PermissionSnapshot) error {
	visited := map[string]struct{}{}
	frontier := sortedKeys(snap.DepartmentRights)
	for _, id := range frontier {
		visited[id] = struct{}{}
	}
	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= maxHierarchyDepth {
			s.logger.Warn("permission compute: hierarchy depth limit reached", slog.String("user_id", snap.UserID))
			return nil
		}
		var next []string
		for _, parentID := range frontier {
			children, err := call(ctx, s.timeout, func(ctx context.Context) ([]departments.Department, error) {
				return s.departments.FindChildren(ctx, parentID)
			})
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var ids []string
			for _, child := range children {
				if !child.IsActive || child.RequireExplicitMembership {
					continue
				}
				ids = append(ids, child.ID)
				if _, ok := visited[child.ID]; ok {
					continue
				}
				visited[child.ID] = struct{}{}
				next = append(next, child.ID)
			}
			if len(ids) > 0 {
				sort.Strings(ids)
				snap.Hierarchy[parentID] = ids
			}
		}
		frontier = next
	}
	return nil
}

func (s *PermissionService) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.ObservePermissionCache(result)
	}
}

// call runs fn under a bounded deadline and maps deadline overruns to ErrLookupTimeout.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrLookupTimeout, err)
	}
	return v, err
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
