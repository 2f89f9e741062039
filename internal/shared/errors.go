package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated indicates a missing or invalid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAuthorizationDenied indicates the resolver denied the request.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrNotAMember indicates the caller has no direct or cascaded membership.
	ErrNotAMember = errors.New("not a member of department")
	// ErrDepartmentNotFound is returned for missing departments and hidden ones the caller may not see.
	ErrDepartmentNotFound = errors.New("department not found")
	// ErrDepartmentInactive indicates the department exists but is disabled.
	ErrDepartmentInactive = errors.New("department inactive")
	// ErrNoActiveAdminSession indicates no live escalation session.
	ErrNoActiveAdminSession = errors.New("no active admin session")
	// ErrInvalidEscalationCredential covers every escalate failure branch.
	ErrInvalidEscalationCredential = errors.New("invalid escalation credential")
)

// Error codes surfaced in HTTP problem bodies.
const (
	CodeUnauthenticated             = "UNAUTHENTICATED"
	CodeAuthorizationDenied         = "AUTHORIZATION_DENIED"
	CodeNotAMember                  = "NOT_A_MEMBER"
	CodeDepartmentNotFound          = "DEPARTMENT_NOT_FOUND"
	CodeDepartmentInactive          = "DEPARTMENT_INACTIVE"
	CodeNoActiveAdminSession        = "NO_ACTIVE_ADMIN_SESSION"
	CodeInvalidEscalationCredential = "INVALID_ESCALATION_CREDENTIAL"
)

// CodeOf maps a boundary error to its code. Unknown errors return "".
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return CodeUnauthenticated
	case errors.Is(err, ErrAuthorizationDenied):
		return CodeAuthorizationDenied
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrDepartmentNotFound):
		return CodeDepartmentNotFound
	case errors.Is(err, ErrDepartmentInactive):
		return CodeDepartmentInactive
	case errors.Is(err, ErrNoActiveAdminSession):
		return CodeNoActiveAdminSession
	case errors.Is(err, ErrInvalidEscalationCredential):
		return CodeInvalidEscalationCredential
	}
	return ""
}
