package users

import (
	"slices"
	"time"
)

// UserType tags a user; a user may hold several at once.
type UserType string

// Known user types.
const (
	UserTypeLearner     UserType = "learner"
	UserTypeStaff       UserType = "staff"
	UserTypeGlobalAdmin UserType = "global-admin"
)

// Dashboard preferences derived from the user's type tags.
const (
	DashboardAdmin   = "admin"
	DashboardStaff   = "staff"
	DashboardLearner = "learner"
)

// User represents an LMS account as read by the authorization core.
type User struct {
	ID                     string
	Email                  string
	Name                   string
	UserTypes              []UserType
	IsActive               bool
	LastSelectedDepartment string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasType reports whether the user carries the given tag.
func (u User) HasType(t UserType) bool {
	return slices.Contains(u.UserTypes, t)
}

// IsGlobalAdmin reports whether the user carries the global-admin tag.
func (u User) IsGlobalAdmin() bool {
	return u.HasType(UserTypeGlobalAdmin)
}

// DashboardPreference picks the landing dashboard from the most privileged tag.
func (u User) DashboardPreference() string {
	switch {
	case u.HasType(UserTypeGlobalAdmin):
		return DashboardAdmin
	case u.HasType(UserTypeStaff):
		return DashboardStaff
	default:
		return DashboardLearner
	}
}

// MembershipTypes lists the membership record types this user may be checked against.
// Staff records are gated by the staff or global-admin tag, learner records by the learner tag.
func (u User) MembershipTypes() []UserType {
	var types []UserType
	if u.HasType(UserTypeStaff) || u.HasType(UserTypeGlobalAdmin) {
		types = append(types, UserTypeStaff)
	}
	if u.HasType(UserTypeLearner) {
		types = append(types, UserTypeLearner)
	}
	return types
}
