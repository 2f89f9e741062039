package rbac

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidScope indicates a scope outside `*`, `own` and `dept:<id>`.
var ErrInvalidScope = errors.New("rbac: invalid scope")

// Decision reasons.
const (
	ReasonGlobal      Reason = "global-right"
	ReasonDepartment  Reason = "department-right"
	ReasonHierarchy   Reason = "hierarchy-right"
	ReasonOwnResource Reason = "own-resource"
	ReasonDenied      Reason = "denied"
)

// Scope forms accepted by Options.Scope.
const (
	ScopeGlobal     = "*"
	ScopeOwn        = "own"
	scopeDeptPrefix = "dept:"
)

// maxHierarchyDepth bounds every walk over the department tree.
const maxHierarchyDepth = 32

// Reason explains an authorization decision.
type Reason string

// PermissionSnapshot is the cached, versioned computation of a user's rights.
type PermissionSnapshot struct {
	UserID           string              `json:"user_id"`
	GlobalRights     []string            `json:"global_rights"`
	DepartmentRights map[string][]string `json:"department_rights"`
	Hierarchy        map[string][]string `json:"hierarchy"`
	ComputedAt       time.Time           `json:"computed_at"`
	ExpiresAt        time.Time           `json:"expires_at"`
	Version          int64               `json:"version"`
	Epoch            int64               `json:"epoch"`
}

// Stamp is the cache generation a snapshot is computed for: the user's
// version counter and the global epoch, read together before computing.
type Stamp struct {
	Version int64
	Epoch   int64
}

// Expired reports whether the snapshot is past its expiry at now.
func (s *PermissionSnapshot) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// HoldsAnywhere reports whether required is granted globally or in any department.
func (s *PermissionSnapshot) HoldsAnywhere(required string) bool {
	if s == nil {
		return false
	}
	if Matches(s.GlobalRights, required) {
		return true
	}
	for _, rights := range s.DepartmentRights {
		if Matches(rights, required) {
			return true
		}
	}
	return false
}

// parentsOf returns every department listing child in the hierarchy map.
func (s *PermissionSnapshot) parentsOf(child string) []string {
	var parents []string
	for parent, children := range s.Hierarchy {
		for _, c := range children {
			if c == child {
				parents = append(parents, parent)
				break
			}
		}
	}
	return parents
}

// Resource describes the object a request acts upon.
type Resource struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	DepartmentID string `json:"department_id,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// Options carries the optional scope and resource of a check.
type Options struct {
	Scope    string
	Resource *Resource
}

// DepartmentScope formats the scope string for a department.
func DepartmentScope(id string) string {
	return scopeDeptPrefix + id
}

// ValidateScope accepts `*`, `own` and `dept:<id>`.
func ValidateScope(scope string) error {
	scope = strings.TrimSpace(scope)
	if scope == ScopeGlobal || scope == ScopeOwn {
		return nil
	}
	if _, ok := ParseScope(scope); ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidScope, scope)
}

// ParseScope extracts the department id from a `dept:<id>` scope.
func ParseScope(scope string) (string, bool) {
	id, ok := strings.CutPrefix(strings.TrimSpace(scope), scopeDeptPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Grant is the permission entry that allowed a decision.
type Grant struct {
	Right string `json:"right"`
	Scope string `json:"scope"`
}

// Decision is the result of a single authorization check.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Reason   Reason `json:"reason"`
	Required string `json:"required"`
	Grant    *Grant `json:"grant,omitempty"`
}

// DenialMessage renders the reason suitable for a 403 body.
func (d Decision) DenialMessage() string {
	if d.Allowed {
		return ""
	}
	return "missing access right " + d.Required
}

// Subject is a read-only view over a user's base snapshot and optional escalation overlay.
type Subject struct {
	UserID   string
	Snapshot *PermissionSnapshot
	Elevated []string
}
