package roles

import (
	"time"

	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

// RoleDefinition maps a role name to its access rights.
type RoleDefinition struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	AccessRights []string       `json:"access_rights"`
	UserType     users.UserType `json:"user_type"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsSystem reports whether holding the role grants platform-wide privilege.
func (d RoleDefinition) IsSystem() bool {
	return d.UserType == users.UserTypeGlobalAdmin
}

// CreateInput describes a new role.
type CreateInput struct {
	Name         string         `json:"name" validate:"required,max=64,rolename"`
	Description  string         `json:"description" validate:"max=256"`
	AccessRights []string       `json:"access_rights" validate:"required,min=1,dive,required"`
	UserType     users.UserType `json:"user_type" validate:"required,oneof=learner staff global-admin"`
}

// UpdateRightsInput replaces the rights of a role.
type UpdateRightsInput struct {
	AccessRights []string `json:"access_rights" validate:"required,min=1,dive,required"`
}
