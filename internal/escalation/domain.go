// Package escalation manages short-lived admin sessions opened with a
// credential separate from the login password.
package escalation

import (
	"errors"
	"time"
)

// DefaultTimeout applies when an account carries no session timeout.
const DefaultTimeout = 15 * time.Minute

// ErrInvalidToken indicates a malformed, forged or expired admin token.
var ErrInvalidToken = errors.New("escalation: invalid admin token")

// ElevatedAccount is the escalation record of a user.
type ElevatedAccount struct {
	UserID                string
	IsActive              bool
	CredentialHash        string
	CredentialSalt        string
	AdminRoles            []string
	SessionTimeoutMinutes int
	LastEscalatedAt       *time.Time
}

// Timeout returns the session lifetime of the account.
func (a ElevatedAccount) Timeout(fallback time.Duration) time.Duration {
	if a.SessionTimeoutMinutes > 0 {
		return time.Duration(a.SessionTimeoutMinutes) * time.Minute
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeout
}

// Session is the server-side record of an open escalation.
type Session struct {
	UserID    string        `json:"user_id"`
	TokenID   string        `json:"token_id"`
	Roles     []string      `json:"roles"`
	Rights    []string      `json:"rights"`
	Timeout   time.Duration `json:"timeout"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Active reports whether the session is still within its lifetime at now.
func (s Session) Active(now time.Time) bool {
	return s.UserID != "" && now.Before(s.ExpiresAt)
}

// Issued is returned to the caller on escalate and refresh. The token is
// meant to be held in memory by the client and never persisted.
type Issued struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Roles     []string  `json:"roles"`
	Rights    []string  `json:"rights"`
	Storage   string    `json:"storage"`
}

const storageMemoryOnly = "memory-only"
