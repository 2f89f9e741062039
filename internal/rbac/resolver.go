package rbac

import (
	"sort"
	"strings"
)

// Authorize decides whether subject may exercise required under opts.
//
// Checks run in order and stop at the first grant: global rights (including
// any escalation overlay), the explicit department scope, the resource's
// department, ownership, and finally an unscoped scan of every department.
//
// Ownership only needs the right to be held somewhere: a user holding
// content:courses:write in department A may edit a course they created in
// department B. Keep this in mind before narrowing it.
func Authorize(subject Subject, required string, opts Options) Decision {
	required = NormalizeRight(required)
	snap := subject.Snapshot
	if snap == nil {
		snap = &PermissionSnapshot{}
	}

	if right, ok := MatchingRight(snap.GlobalRights, required); ok {
		return allow(required, ReasonGlobal, right, ScopeGlobal)
	}
	if right, ok := MatchingRight(subject.Elevated, required); ok {
		return allow(required, ReasonGlobal, right, ScopeGlobal)
	}

	if deptID, ok := ParseScope(opts.Scope); ok {
		if d, ok := checkDepartment(snap, deptID, required); ok {
			return d
		}
	}

	if res := opts.Resource; res != nil && res.DepartmentID != "" {
		if d, ok := checkDepartment(snap, res.DepartmentID, required); ok {
			return d
		}
	}

	if res := opts.Resource; res != nil && res.CreatedBy != "" && res.CreatedBy == subject.UserID {
		if right, scope, ok := holdsAnywhere(subject, snap, required); ok {
			return allow(required, ReasonOwnResource, right, scope)
		}
	}

	if opts.Scope == "" && opts.Resource == nil {
		for _, deptID := range sortedKeys(snap.DepartmentRights) {
			if right, ok := MatchingRight(snap.DepartmentRights[deptID], required); ok {
				return allow(required, ReasonDepartment, right, ScopeGlobal)
			}
		}
	}

	return Decision{Allowed: false, Reason: ReasonDenied, Required: required}
}

// AuthorizeAny allows when at least one of required is allowed.
func AuthorizeAny(subject Subject, required []string, opts Options) Decision {
	for _, r := range required {
		if d := Authorize(subject, r, opts); d.Allowed {
			return d
		}
	}
	return Decision{Allowed: false, Reason: ReasonDenied, Required: strings.Join(normalizeList(required), " or ")}
}

// AuthorizeAll allows only when every right in required is allowed. The
// returned decision is the first denial, or the last grant.
func AuthorizeAll(subject Subject, required []string, opts Options) Decision {
	if len(required) == 0 {
		return Decision{Allowed: true, Reason: ReasonGlobal}
	}
	var last Decision
	for _, r := range required {
		d := Authorize(subject, r, opts)
		if !d.Allowed {
			return d
		}
		last = d
	}
	return last
}

// checkDepartment looks for required in deptID, then in each ancestor reachable
// through the hierarchy map.
func checkDepartment(snap *PermissionSnapshot, deptID, required string) (Decision, bool) {
	if right, ok := MatchingRight(snap.DepartmentRights[deptID], required); ok {
		return allow(required, ReasonDepartment, right, DepartmentScope(deptID)), true
	}
	visited := map[string]struct{}{deptID: {}}
	frontier := []string{deptID}
	for depth := 0; depth < maxHierarchyDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, child := range frontier {
			parents := snap.parentsOf(child)
			sort.Strings(parents)
			for _, parent := range parents {
				if _, seen := visited[parent]; seen {
					continue
				}
				visited[parent] = struct{}{}
				if right, ok := MatchingRight(snap.DepartmentRights[parent], required); ok {
					return allow(required, ReasonHierarchy, right, DepartmentScope(parent)), true
				}
				next = append(next, parent)
			}
		}
		frontier = next
	}
	return Decision{}, false
}

func holdsAnywhere(subject Subject, snap *PermissionSnapshot, required string) (string, string, bool) {
	if right, ok := MatchingRight(snap.GlobalRights, required); ok {
		return right, ScopeGlobal, true
	}
	if right, ok := MatchingRight(subject.Elevated, required); ok {
		return right, ScopeGlobal, true
	}
	for _, deptID := range sortedKeys(snap.DepartmentRights) {
		if right, ok := MatchingRight(snap.DepartmentRights[deptID], required); ok {
			return right, DepartmentScope(deptID), true
		}
	}
	return "", "", false
}

func allow(required string, reason Reason, right, scope string) Decision {
	return Decision{
		Allowed:  true,
		Reason:   reason,
		Required: required,
		Grant:    &Grant{Right: right, Scope: scope},
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeList(rights []string) []string {
	out := make([]string, 0, len(rights))
	for _, r := range rights {
		out = append(out, NormalizeRight(r))
	}
	return out
}
