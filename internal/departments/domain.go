package departments

import (
	"errors"
	"time"

	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

// ErrHierarchyCycle indicates a malformed parent chain.
var ErrHierarchyCycle = errors.New("departments: parent chain contains a cycle")

// maxParentDepth bounds upward walks over the department tree.
const maxParentDepth = 32

// Department is a node of the organisational tree.
type Department struct {
	ID                        string
	Name                      string
	ParentID                  string
	IsVisible                 bool
	IsActive                  bool
	RequireExplicitMembership bool
	IsSystem                  bool
}

// Membership belongs to exactly one (user, department) pair per user type.
type Membership struct {
	UserID       string
	DepartmentID string
	UserType     users.UserType
	Roles        []string
	IsPrimary    bool
	IsActive     bool
	JoinedAt     time.Time
}

// ChildDepartment is a department the switched-to roles propagate to.
type ChildDepartment struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// SwitchResult is the caller's effective standing in a department.
type SwitchResult struct {
	DepartmentID     string            `json:"department_id"`
	DepartmentName   string            `json:"department_name"`
	Roles            []string          `json:"roles"`
	AccessRights     []string          `json:"access_rights"`
	IsDirectMember   bool              `json:"is_direct_member"`
	InheritedFrom    string            `json:"inherited_from,omitempty"`
	ChildDepartments []ChildDepartment `json:"child_departments"`
}

// AccessibleDepartment is an entry of the caller's switch menu.
type AccessibleDepartment struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Roles          []string `json:"roles"`
	IsDirectMember bool     `json:"is_direct_member"`
	IsPrimary      bool     `json:"is_primary"`
}

// GrantInput describes a membership upsert.
type GrantInput struct {
	UserID       string         `json:"-" validate:"required"`
	DepartmentID string         `json:"-" validate:"required"`
	UserType     users.UserType `json:"user_type" validate:"required,oneof=staff learner"`
	Roles        []string       `json:"roles" validate:"required,min=1,dive,required"`
	IsPrimary    bool           `json:"is_primary"`
}
