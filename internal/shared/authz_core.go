package shared

// Access rights guarding the administration endpoints.
const (
	RightRolesRead        = "system:roles:read"
	RightRolesWrite       = "system:roles:write"
	RightMembershipsWrite = "system:memberships:write"
)
