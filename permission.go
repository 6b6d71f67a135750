package permit

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is a "feature:resource:action" triple. Each segment may be the
// wildcard "*". Matching is segment-wise and case-sensitive; a segment is never
// matched partially.
type Permission string

// Wildcard grants everything. PROJECT_ADMIN holds exactly this permission.
const Wildcard Permission = "*:*:*"

const permissionSegments = 3

// ValidPermission reports whether p has exactly three non-empty
// colon-separated segments. Invalid permissions never match anything.
func ValidPermission(p Permission) bool {
	segs := strings.Split(string(p), ":")
	if len(segs) != permissionSegments {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
	}
	return true
}

// ParsePermission validates and splits a permission string.
func ParsePermission(p Permission) (feature, resource, action string, err error) {
	if !ValidPermission(p) {
		return "", "", "", fmt.Errorf("invalid permission %q: want feature:resource:action", p)
	}
	segs := strings.SplitN(string(p), ":", permissionSegments)
	return segs[0], segs[1], segs[2], nil
}

// PermissionFor builds a permission triple from its parts.
func PermissionFor(feature, resource, action string) Permission {
	return Permission(feature + ":" + resource + ":" + action)
}

// covers reports whether the granted permission matches the required one,
// segment by segment. Both sides must be valid triples.
func covers(granted, required Permission) bool {
	if granted == Wildcard {
		return true
	}
	if granted == required {
		return true
	}
	g := strings.Split(string(granted), ":")
	r := strings.Split(string(required), ":")
	if len(g) != permissionSegments || len(r) != permissionSegments {
		return false
	}
	for i := 0; i < permissionSegments; i++ {
		if g[i] != "*" && g[i] != r[i] {
			return false
		}
	}
	return true
}

// HasPermission reports whether any granted permission covers required.
// Invalid entries on either side are skipped, never matched.
func HasPermission(granted []Permission, required Permission) bool {
	if !ValidPermission(required) {
		return false
	}
	for _, g := range granted {
		if !ValidPermission(g) {
			continue
		}
		if covers(g, required) {
			return true
		}
	}
	return false
}

// HasAnyPermission is an OR fold over HasPermission.
func HasAnyPermission(granted []Permission, required ...Permission) bool {
	for _, r := range required {
		if HasPermission(granted, r) {
			return true
		}
	}
	return false
}

// HasAllPermissions is an AND fold over HasPermission. True for an empty
// required list.
func HasAllPermissions(granted []Permission, required ...Permission) bool {
	for _, r := range required {
		if !HasPermission(granted, r) {
			return false
		}
	}
	return true
}

// Specificity counts the non-wildcard segments of p (0 for "*:*:*" up to 3 for
// a fully concrete permission). Invalid permissions score -1.
func Specificity(p Permission) int {
	if !ValidPermission(p) {
		return -1
	}
	n := 0
	for _, s := range strings.Split(string(p), ":") {
		if s != "*" {
			n++
		}
	}
	return n
}

// ExpandWildcard enumerates the concrete permissions from universe that p
// covers. Used for audit and debug output, not on the check path.
func ExpandWildcard(p Permission, universe []Permission) []Permission {
	if !ValidPermission(p) {
		return nil
	}
	out := make([]Permission, 0)
	for _, u := range universe {
		if !ValidPermission(u) || strings.Contains(string(u), "*") {
			continue
		}
		if covers(p, u) {
			out = append(out, u)
		}
	}
	return out
}

// MinimizePermissions drops every permission already covered by a broader one
// in the same set. "*:*:*" absorbs everything; "documents:*:*" absorbs all
// documents permissions. The result is sorted broadest-first, then
// lexicographically, and duplicates are removed.
func MinimizePermissions(perms []Permission) []Permission {
	valid := make([]Permission, 0, len(perms))
	seen := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		if !ValidPermission(p) || seen[p] {
			continue
		}
		seen[p] = true
		valid = append(valid, p)
	}

	out := make([]Permission, 0, len(valid))
	for i, p := range valid {
		covered := false
		for j, q := range valid {
			if i == j {
				continue
			}
			if covers(q, p) && !covers(p, q) {
				covered = true
				break
			}
			// Equal coverage (e.g. duplicates already removed); keep the first.
			if covers(q, p) && covers(p, q) && j < i {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := Specificity(out[i]), Specificity(out[j])
		if si != sj {
			return si < sj
		}
		return out[i] < out[j]
	})
	return out
}
