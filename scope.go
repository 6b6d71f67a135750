package permit

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/oarkflow/permit/utils"
)

// UserScope limits a scope-limited role to slices of a project along four
// dimensions. A nil *UserScope means the user is not scope-limited at all; a
// non-nil scope with every dimension empty is an explicit grant of nothing.
type UserScope struct {
	Trades []string `json:"trades,omitempty" yaml:"trades,omitempty"`
	Areas  []string `json:"areas,omitempty" yaml:"areas,omitempty"`
	Phases []string `json:"phases,omitempty" yaml:"phases,omitempty"`
	Tags   []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	AssignedBy string    `json:"assigned_by,omitempty" yaml:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at,omitempty" yaml:"assigned_at,omitempty"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Visibility controls how a resource with no scope tags behaves.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityTaggedOnly Visibility = "tagged-only"
)

// ResourceScope carries the scope tags of a resource plus its default
// visibility when all dimensions are empty.
type ResourceScope struct {
	Trades     []string   `json:"trades,omitempty" yaml:"trades,omitempty"`
	Areas      []string   `json:"areas,omitempty" yaml:"areas,omitempty"`
	Phases     []string   `json:"phases,omitempty" yaml:"phases,omitempty"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Visibility Visibility `json:"visibility,omitempty" yaml:"visibility,omitempty"`
}

// ScopeMatch is the outcome of a scope evaluation.
type ScopeMatch struct {
	HasAccess        bool     `json:"has_access"`
	MatchedDimension string   `json:"matched_dimension,omitempty"`
	MatchedValues    []string `json:"matched_values,omitempty"`
	Reason           string   `json:"reason"`
}

// defaultVisibility maps resource types to their behavior when the resource
// carries no scope tags. Field-progress records (daily reports, minutes,
// safety reports, photos) are public by default; design and workflow records
// are tagged-only. Unknown types fall back to tagged-only.
var defaultVisibility = map[string]Visibility{
	"daily_report":    VisibilityPublic,
	"meeting_minutes": VisibilityPublic,
	"safety_report":   VisibilityPublic,
	"photo":           VisibilityPublic,
	"document":        VisibilityTaggedOnly,
	"drawing":         VisibilityTaggedOnly,
	"rfi":             VisibilityTaggedOnly,
	"submittal":       VisibilityTaggedOnly,
	"task":            VisibilityTaggedOnly,
	"inspection":      VisibilityTaggedOnly,
}

// DefaultVisibility returns the fallback visibility for a resource type.
func DefaultVisibility(resourceType string) Visibility {
	if v, ok := defaultVisibility[utils.Normalize(resourceType)]; ok {
		return v
	}
	return VisibilityTaggedOnly
}

// IsScopeEmpty reports whether every dimension of the scope is empty. A nil
// scope is not "empty" in this sense; nil means unlimited.
func IsScopeEmpty(s *UserScope) bool {
	if s == nil {
		return false
	}
	return len(s.Trades) == 0 && len(s.Areas) == 0 && len(s.Phases) == 0 && len(s.Tags) == 0
}

func resourceScopeEmpty(s *ResourceScope) bool {
	if s == nil {
		return true
	}
	return len(s.Trades) == 0 && len(s.Areas) == 0 && len(s.Phases) == 0 && len(s.Tags) == 0
}

// MatchesScope decides whether a user's scope grants access to a resource.
// Dimensions are tested in fixed order (trades, areas, phases, tags) and the
// first dimension where both sides are non-empty and intersect short-circuits
// the evaluation. Trades, phases and tags intersect case-insensitively; areas
// match hierarchically, widening downward only (a held parent area grants its
// descendants, never the reverse).
func MatchesScope(user *UserScope, resource *ResourceScope, resourceType string) ScopeMatch {
	if user == nil {
		return ScopeMatch{HasAccess: true, Reason: "User is not scope-limited"}
	}
	if IsScopeEmpty(user) {
		return ScopeMatch{HasAccess: false, Reason: "User has an empty scope"}
	}
	if resourceScopeEmpty(resource) {
		vis := VisibilityTaggedOnly
		if resource != nil && resource.Visibility != "" {
			vis = resource.Visibility
		} else {
			vis = DefaultVisibility(resourceType)
		}
		if vis == VisibilityPublic {
			return ScopeMatch{HasAccess: true, Reason: "Resource is public (no scope tags)"}
		}
		return ScopeMatch{HasAccess: false, Reason: "Resource is tagged-only and carries no scope tags"}
	}

	if len(user.Trades) > 0 && len(resource.Trades) > 0 {
		if hit := utils.IntersectFold(user.Trades, resource.Trades); len(hit) > 0 {
			return ScopeMatch{HasAccess: true, MatchedDimension: "trades", MatchedValues: hit, Reason: "Trade scope matches"}
		}
	}
	if len(user.Areas) > 0 && len(resource.Areas) > 0 {
		hit := make([]string, 0)
		for _, held := range user.Areas {
			for _, ra := range resource.Areas {
				if utils.AreaCovers(held, ra) {
					hit = append(hit, ra)
				}
			}
		}
		if len(hit) > 0 {
			return ScopeMatch{HasAccess: true, MatchedDimension: "areas", MatchedValues: hit, Reason: "Area scope matches"}
		}
	}
	if len(user.Phases) > 0 && len(resource.Phases) > 0 {
		if hit := utils.IntersectFold(user.Phases, resource.Phases); len(hit) > 0 {
			return ScopeMatch{HasAccess: true, MatchedDimension: "phases", MatchedValues: hit, Reason: "Phase scope matches"}
		}
	}
	if len(user.Tags) > 0 && len(resource.Tags) > 0 {
		if hit := utils.IntersectFold(user.Tags, resource.Tags); len(hit) > 0 {
			return ScopeMatch{HasAccess: true, MatchedDimension: "tags", MatchedValues: hit, Reason: "Tag scope matches"}
		}
	}
	return ScopeMatch{HasAccess: false, Reason: "No scope dimension matches"}
}

// MergeScopes unions N scopes dimension-wise, dropping duplicates
// case-insensitively while keeping first spellings. Nil inputs are skipped; an
// all-nil input yields nil (unlimited stays unlimited).
func MergeScopes(scopes ...*UserScope) *UserScope {
	var out *UserScope
	for _, s := range scopes {
		if s == nil {
			continue
		}
		if out == nil {
			out = &UserScope{}
		}
		out.Trades = unionFold(out.Trades, s.Trades)
		out.Areas = unionFold(out.Areas, s.Areas)
		out.Phases = unionFold(out.Phases, s.Phases)
		out.Tags = unionFold(out.Tags, s.Tags)
	}
	return out
}

func unionFold(dst, add []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[utils.Normalize(v)] = true
	}
	for _, v := range add {
		k := utils.Normalize(v)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		dst = append(dst, v)
	}
	return dst
}

// IsScopeSubset reports whether every value of sub is contained in super.
// A nil super contains everything. A nil sub means unlimited, so it is a
// subset only of a nil super.
func IsScopeSubset(sub, super *UserScope) bool {
	if super == nil {
		return true
	}
	if sub == nil {
		return false
	}
	return containsAllFold(super.Trades, sub.Trades) &&
		containsAllFold(super.Areas, sub.Areas) &&
		containsAllFold(super.Phases, sub.Phases) &&
		containsAllFold(super.Tags, sub.Tags)
}

func containsAllFold(super, sub []string) bool {
	if len(sub) == 0 {
		return true
	}
	idx := make(map[string]bool, len(super))
	for _, v := range super {
		idx[utils.Normalize(v)] = true
	}
	for _, v := range sub {
		if !idx[utils.Normalize(v)] {
			return false
		}
	}
	return true
}

// ScopeSummary renders a human-readable per-dimension count, for admin UIs and
// audit trails.
func ScopeSummary(s *UserScope) string {
	if s == nil {
		return "unrestricted"
	}
	if IsScopeEmpty(s) {
		return "empty scope (no access)"
	}
	return fmt.Sprintf("%d trade(s), %d area(s), %d phase(s), %d tag(s)",
		len(s.Trades), len(s.Areas), len(s.Phases), len(s.Tags))
}

// ScopedResource is anything that can expose its scope tags for filtering.
type ScopedResource interface {
	ResourceScopeRef() *ResourceScope
	ResourceTypeName() string
}

// FilterResourcesByScope applies MatchesScope across a collection. A nil user
// scope short-circuits and returns the input unfiltered.
func FilterResourcesByScope[T ScopedResource](user *UserScope, resources []T) []T {
	if user == nil {
		return resources
	}
	out := make([]T, 0, len(resources))
	for _, r := range resources {
		if MatchesScope(user, r.ResourceScopeRef(), r.ResourceTypeName()).HasAccess {
			out = append(out, r)
		}
	}
	return out
}

// ParseScopePayload normalizes the two scope payload shapes found in stored
// memberships: the structured object form, and the legacy bare string array
// (which meant a list of trades). The core only ever sees the structured
// shape; callers must normalize at the boundary.
func ParseScopePayload(raw []byte) (*UserScope, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	// Legacy shape: ["electrical","plumbing"]
	var legacy []string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		if len(legacy) == 0 {
			return &UserScope{}, nil
		}
		sort.Strings(legacy)
		return &UserScope{Trades: legacy}, nil
	}
	var s UserScope
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scope payload: %w", err)
	}
	return &s, nil
}
