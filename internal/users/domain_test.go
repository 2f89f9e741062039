package users

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDashboardPreference(t *testing.T) {
	require.Equal(t, DashboardLearner, User{}.DashboardPreference())
	require.Equal(t, DashboardLearner, User{UserTypes: []UserType{UserTypeLearner}}.DashboardPreference())
	require.Equal(t, DashboardStaff, User{UserTypes: []UserType{UserTypeLearner, UserTypeStaff}}.DashboardPreference())
	require.Equal(t, DashboardAdmin, User{UserTypes: []UserType{UserTypeStaff, UserTypeGlobalAdmin}}.DashboardPreference())
}

func TestMembershipTypesAreGatedByTags(t *testing.T) {
	require.Empty(t, User{}.MembershipTypes())
	require.Equal(t, []UserType{UserTypeLearner}, User{UserTypes: []UserType{UserTypeLearner}}.MembershipTypes())
	require.Equal(t, []UserType{UserTypeStaff}, User{UserTypes: []UserType{UserTypeGlobalAdmin}}.MembershipTypes())
	require.Equal(t, []UserType{UserTypeStaff, UserTypeLearner},
		User{UserTypes: []UserType{UserTypeLearner, UserTypeStaff}}.MembershipTypes())
}
