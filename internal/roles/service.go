package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-lms/odyssey-lms/internal/rbac"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

var (
	// ErrRoleExists indicates a role name is already taken.
	ErrRoleExists = errors.New("roles: role already exists")
	// ErrInvalidRole indicates a malformed role definition.
	ErrInvalidRole = errors.New("roles: invalid role definition")
)

var roleNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]RoleDefinition, error)
	FindRoles(ctx context.Context, names []string) ([]RoleDefinition, error)
	CreateRole(ctx context.Context, in CreateInput) (RoleDefinition, error)
	UpdateRights(ctx context.Context, name string, rights []string) (RoleDefinition, error)
	Deactivate(ctx context.Context, name string) error
}

// PermissionInvalidator owns the global permission epoch. Bump drops every
// cached snapshot; cached role definitions are trusted for one epoch only.
type PermissionInvalidator interface {
	Bump(ctx context.Context) error
	CurrentEpoch(ctx context.Context) (int64, error)
}

// Options tunes the in-process definition cache.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Observer  CacheObserver
	Audit     shared.AuditRecorder
	Logger    *slog.Logger
}

// Service handles role business logic.
type Service struct {
	repo        RepositoryPort
	invalidator PermissionInvalidator
	cache       *definitionCache
	audit       shared.AuditRecorder
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator PermissionInvalidator, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	_ = v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return roleNamePattern.MatchString(fl.Field().String())
	})
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		cache:       newDefinitionCache(opts.CacheSize, opts.CacheTTL, opts.Observer),
		audit:       opts.Audit,
		validate:    v,
		logger:      logger.With(slog.String("component", "roles")),
	}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]RoleDefinition, error) {
	return s.repo.ListRoles(ctx)
}

// epoch reads the shared permission epoch and moves the cache to it. It
// reports false when the epoch is unreadable and the cache must be bypassed.
func (s *Service) epoch(ctx context.Context) (int64, bool) {
	if s.invalidator == nil {
		return 0, true
	}
	epoch, err := s.invalidator.CurrentEpoch(ctx)
	if err != nil {
		s.logger.Warn("read permission epoch, bypassing role cache", slog.Any("error", err))
		s.cache.observe("bypass")
		return 0, false
	}
	s.cache.advance(epoch)
	return epoch, true
}

// definitions resolves names through the cache, loading misses in one query.
func (s *Service) definitions(ctx context.Context, names []string) (map[string]RoleDefinition, error) {
	epoch, cached := s.epoch(ctx)
	out := make(map[string]RoleDefinition, len(names))
	var misses []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, done := out[name]; done {
			continue
		}
		if cached {
			if d, ok := s.cache.get(name, epoch); ok {
				out[name] = d
				continue
			}
		}
		misses = append(misses, name)
	}
	if len(misses) == 0 {
		return out, nil
	}
	loaded, err := s.repo.FindRoles(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("roles: load definitions: %w", err)
	}
	for _, d := range loaded {
		if cached {
			s.cache.add(d, epoch)
		}
		out[d.Name] = d
	}
	return out, nil
}

// GetRights returns the deduplicated union of the access rights of the active roles among names.
func (s *Service) GetRights(ctx context.Context, names []string) ([]string, error) {
	defs, err := s.definitions(ctx, names)
	if err != nil {
		return nil, err
	}
	var rights []string
	for _, d := range defs {
		if d.IsActive {
			rights = append(rights, d.AccessRights...)
		}
	}
	return rbac.NormalizeRights(rights), nil
}

// HasSystemRole reports whether any active role among names is a system role.
func (s *Service) HasSystemRole(ctx context.Context, names []string) (bool, error) {
	defs, err := s.definitions(ctx, names)
	if err != nil {
		return false, err
	}
	for _, d := range defs {
		if d.IsActive && d.IsSystem() {
			return true, nil
		}
	}
	return false, nil
}

// MissingRoles returns the names that are unknown or inactive.
func (s *Service) MissingRoles(ctx context.Context, names []string) ([]string, error) {
	defs, err := s.definitions(ctx, names)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, name := range names {
		if d, ok := defs[name]; !ok || !d.IsActive {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// CreateRole validates and stores a new role.
func (s *Service) CreateRole(ctx context.Context, in CreateInput) (RoleDefinition, error) {
	in.Name = strings.TrimSpace(strings.ToLower(in.Name))
	if err := s.validate.Struct(in); err != nil {
		return RoleDefinition{}, fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	rights, err := validRights(in.AccessRights)
	if err != nil {
		return RoleDefinition{}, err
	}
	in.AccessRights = rights
	d, err := s.repo.CreateRole(ctx, in)
	if err != nil {
		return RoleDefinition{}, err
	}
	s.logger.Info("role created", slog.String("role", d.Name), slog.Any("access_rights", d.AccessRights))
	return d, s.changed(ctx, d.Name, "created")
}

// UpdateRights replaces the rights of name. The change is visible to every
// user on their next check.
func (s *Service) UpdateRights(ctx context.Context, name string, in UpdateRightsInput) (RoleDefinition, error) {
	if err := s.validate.Struct(in); err != nil {
		return RoleDefinition{}, fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	rights, err := validRights(in.AccessRights)
	if err != nil {
		return RoleDefinition{}, err
	}
	d, err := s.repo.UpdateRights(ctx, name, rights)
	if err != nil {
		return RoleDefinition{}, err
	}
	s.logger.Info("role rights updated", slog.String("role", name), slog.Any("access_rights", rights))
	return d, s.changed(ctx, name, "rights-updated")
}

// Deactivate disables name.
func (s *Service) Deactivate(ctx context.Context, name string) error {
	if err := s.repo.Deactivate(ctx, name); err != nil {
		return err
	}
	s.logger.Info("role deactivated", slog.String("role", name))
	return s.changed(ctx, name, "deactivated")
}

func (s *Service) changed(ctx context.Context, name, change string) error {
	s.cache.remove(name)
	s.record(ctx, name, change)
	if s.invalidator == nil {
		return nil
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		return fmt.Errorf("roles: invalidate permissions: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, name, change string) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		Action:   shared.AuditRoleChanged,
		Entity:   "role",
		EntityID: name,
		Meta:     map[string]any{"change": change},
	}
	if id, ok := shared.IdentityFromContext(ctx); ok {
		entry.ActorID = id.UserID
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("write role audit", slog.String("role", name), slog.Any("error", err))
	}
}

func validRights(rights []string) ([]string, error) {
	for _, r := range rights {
		if err := rbac.ValidateRight(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRole, err)
		}
	}
	return rbac.NormalizeRights(rights), nil
}
