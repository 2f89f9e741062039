package departments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownRole indicates a grant referenced a role that is not defined or not active.
	ErrUnknownRole = errors.New("departments: unknown role")
	// ErrInvalidGrant indicates a malformed membership request.
	ErrInvalidGrant = errors.New("departments: invalid grant")
)

// MembershipWriter persists membership changes.
type MembershipWriter interface {
	FindDepartment(ctx context.Context, id string) (Department, error)
	UpsertMembership(ctx context.Context, in GrantInput) error
	DeactivateMembership(ctx context.Context, userID, departmentID string) error
}

// RoleNames reports which of the given role names are not active definitions.
type RoleNames interface {
	MissingRoles(ctx context.Context, names []string) ([]string, error)
}

// PermissionInvalidator drops cached permission snapshots.
type PermissionInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Warmer schedules permission snapshot recomputation.
type Warmer interface {
	EnqueuePermissionWarm(ctx context.Context, userID string) error
}

// MembershipService grants and revokes department memberships.
type MembershipService struct {
	store       MembershipWriter
	roles       RoleNames
	invalidator PermissionInvalidator
	warmer      Warmer
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewMembershipService wires the service. warmer may be nil.
func NewMembershipService(store MembershipWriter, roles RoleNames, invalidator PermissionInvalidator, warmer Warmer, logger *slog.Logger) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipService{
		store:       store,
		roles:       roles,
		invalidator: invalidator,
		warmer:      warmer,
		validate:    validator.New(),
		logger:      logger.With(slog.String("component", "memberships")),
	}
}

// Grant creates or replaces the membership described by in.
func (s *MembershipService) Grant(ctx context.Context, in GrantInput) error {
	in.Roles = trimRoles(in.Roles)
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	if _, err := s.store.FindDepartment(ctx, in.DepartmentID); err != nil {
		return err
	}
	missing, err := s.roles.MissingRoles(ctx, in.Roles)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRole, strings.Join(missing, ", "))
	}
	if err := s.store.UpsertMembership(ctx, in); err != nil {
		return err
	}
	s.logger.Info("membership granted",
		slog.String("user_id", in.UserID), slog.String("department_id", in.DepartmentID),
		slog.String("user_type", string(in.UserType)), slog.Any("roles", in.Roles))
	return s.afterChange(ctx, in.UserID)
}

// Revoke deactivates every membership the user holds in departmentID.
func (s *MembershipService) Revoke(ctx context.Context, userID, departmentID string) error {
	if err := s.store.DeactivateMembership(ctx, userID, departmentID); err != nil {
		return err
	}
	s.logger.Info("membership revoked", slog.String("user_id", userID), slog.String("department_id", departmentID))
	return s.afterChange(ctx, userID)
}

// afterChange invalidates synchronously; the warm-up is best-effort.
func (s *MembershipService) afterChange(ctx context.Context, userID string) error {
	if err := s.invalidator.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("departments: invalidate permissions: %w", err)
	}
	if s.warmer == nil {
		return nil
	}
	if err := s.warmer.EnqueuePermissionWarm(ctx, userID); err != nil {
		s.logger.Warn("enqueue permission warm-up", slog.String("user_id", userID), slog.Any("error", err))
	}
	return nil
}

func trimRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := map[string]struct{}{}
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
