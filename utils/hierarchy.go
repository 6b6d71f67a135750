package utils

import "strings"

// AreaCovers reports whether the area path held by a user grants a resource
// area. A held area covers itself and every descendant reachable through a
// '-' or '/' separator: "building-a" covers "building-a-floor-3" and
// "building-a/floor-3/room-301". Coverage never runs upward; holding
// "building-a-floor-3" does not cover "building-a". Comparison is
// case-insensitive.
func AreaCovers(held, resource string) bool {
	h := Normalize(held)
	r := Normalize(resource)
	if h == "" || r == "" {
		return false
	}
	if h == r {
		return true
	}
	if !strings.HasPrefix(r, h) {
		return false
	}
	// The next byte after the held prefix must be a path separator, so that
	// "building-a" does not cover "building-ab".
	sep := r[len(h)]
	return sep == '-' || sep == '/'
}

// Normalize lowercases and trims a scope value for case-insensitive set
// comparison.
func Normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// IntersectFold returns the values present in both sets under case-insensitive
// comparison, preserving the order and spelling of the first set.
func IntersectFold(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	idx := make(map[string]bool, len(b))
	for _, v := range b {
		idx[Normalize(v)] = true
	}
	out := make([]string, 0)
	for _, v := range a {
		if idx[Normalize(v)] {
			out = append(out, v)
		}
	}
	return out
}
