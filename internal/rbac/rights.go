package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wildcard grants every right.
const Wildcard = "*"

// ErrInvalidRight indicates a right string outside the accepted grammar.
var ErrInvalidRight = errors.New("rbac: invalid access right")

// NormalizeRight lower-cases and trims a right string.
func NormalizeRight(right string) string {
	return strings.ToLower(strings.TrimSpace(right))
}

// ValidateRight accepts `*`, `domain:*`, `domain:resource:*` and `domain:resource:action`.
func ValidateRight(right string) error {
	right = NormalizeRight(right)
	if right == Wildcard {
		return nil
	}
	parts := strings.Split(right, ":")
	switch len(parts) {
	case 2:
		if validSegment(parts[0]) && parts[1] == Wildcard {
			return nil
		}
	case 3:
		if validSegment(parts[0]) && validSegment(parts[1]) && (parts[2] == Wildcard || validSegment(parts[2])) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidRight, right)
}

// MustRight validates right and panics when it is malformed. Used when wiring routes.
func MustRight(right string) string {
	if err := ValidateRight(right); err != nil {
		panic(err)
	}
	return NormalizeRight(right)
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// NormalizeRights trims, lower-cases, dedupes and sorts rights.
func NormalizeRights(rights []string) []string {
	unique := make(map[string]struct{}, len(rights))
	for _, r := range rights {
		r = NormalizeRight(r)
		if r == "" {
			continue
		}
		unique[r] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for r := range unique {
		normalized = append(normalized, r)
	}
	sort.Strings(normalized)
	return normalized
}

// Matches reports whether granted satisfies required.
func Matches(granted []string, required string) bool {
	_, ok := MatchingRight(granted, required)
	return ok
}

// MatchingRight returns the granted entry that satisfies required, honouring
// exact match, `*`, `domain:*` and `domain:resource:*` in that order.
func MatchingRight(granted []string, required string) (string, bool) {
	required = NormalizeRight(required)
	if required == "" || len(granted) == 0 {
		return "", false
	}
	for _, g := range granted {
		if NormalizeRight(g) == required {
			return g, true
		}
	}
	for _, g := range granted {
		if NormalizeRight(g) == Wildcard {
			return g, true
		}
	}
	for _, g := range granted {
		g2 := NormalizeRight(g)
		domain, ok := strings.CutSuffix(g2, ":*")
		if !ok || strings.Contains(domain, ":") {
			continue
		}
		if strings.HasPrefix(required, domain+":") {
			return g, true
		}
	}
	reqParts := strings.Split(required, ":")
	if len(reqParts) != 3 {
		return "", false
	}
	for _, g := range granted {
		parts := strings.Split(NormalizeRight(g), ":")
		if len(parts) == 3 && parts[2] == Wildcard && parts[0] == reqParts[0] && parts[1] == reqParts[1] {
			return g, true
		}
	}
	return "", false
}
