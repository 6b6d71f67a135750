package permit

import (
	"testing"
)

func TestMatchesScopeNilUserAllowsEverything(t *testing.T) {
	m := MatchesScope(nil, &ResourceScope{Trades: []string{"electrical"}}, "document")
	if !m.HasAccess {
		t.Fatalf("nil user scope must allow: %+v", m)
	}
}

func TestMatchesScopeEmptyUserDeniesEverything(t *testing.T) {
	m := MatchesScope(&UserScope{}, &ResourceScope{Trades: []string{"electrical"}}, "document")
	if m.HasAccess {
		t.Fatalf("empty user scope must deny: %+v", m)
	}
}

func TestMatchesScopeTradeIntersection(t *testing.T) {
	user := &UserScope{Trades: []string{"Electrical", "plumbing"}}
	m := MatchesScope(user, &ResourceScope{Trades: []string{"ELECTRICAL"}}, "document")
	if !m.HasAccess || m.MatchedDimension != "trades" {
		t.Fatalf("expected case-insensitive trade match, got %+v", m)
	}
}

func TestMatchesScopeDimensionOrder(t *testing.T) {
	// Both trades and tags intersect; trades wins because dimensions are
	// evaluated in fixed order.
	user := &UserScope{Trades: []string{"electrical"}, Tags: []string{"night-shift"}}
	res := &ResourceScope{Trades: []string{"electrical"}, Tags: []string{"night-shift"}}
	m := MatchesScope(user, res, "document")
	if !m.HasAccess || m.MatchedDimension != "trades" {
		t.Fatalf("expected trades to short-circuit, got %+v", m)
	}
}

func TestMatchesScopeAreaHierarchyIsDownwardOnly(t *testing.T) {
	parent := &UserScope{Areas: []string{"building-a"}}
	child := &UserScope{Areas: []string{"building-a-floor-2"}}

	childRes := &ResourceScope{Areas: []string{"building-a-floor-2"}}
	parentRes := &ResourceScope{Areas: []string{"building-a"}}

	if m := MatchesScope(parent, childRes, "document"); !m.HasAccess {
		t.Fatalf("parent area must cover child resource: %+v", m)
	}
	if m := MatchesScope(child, parentRes, "document"); m.HasAccess {
		t.Fatalf("child area must not cover parent resource: %+v", m)
	}
}

func TestMatchesScopeAreaSeparatorBoundary(t *testing.T) {
	// "building-a" must not cover "building-ab".
	user := &UserScope{Areas: []string{"building-a"}}
	m := MatchesScope(user, &ResourceScope{Areas: []string{"building-ab"}}, "document")
	if m.HasAccess {
		t.Fatalf("prefix without separator must not match: %+v", m)
	}
	m = MatchesScope(user, &ResourceScope{Areas: []string{"building-a/unit-3"}}, "document")
	if !m.HasAccess {
		t.Fatalf("slash separator must match: %+v", m)
	}
}

func TestMatchesScopeUntaggedResourceVisibility(t *testing.T) {
	user := &UserScope{Trades: []string{"electrical"}}

	if m := MatchesScope(user, nil, "daily_report"); !m.HasAccess {
		t.Fatalf("daily reports default public: %+v", m)
	}
	if m := MatchesScope(user, nil, "document"); m.HasAccess {
		t.Fatalf("documents default tagged-only: %+v", m)
	}
	if m := MatchesScope(user, nil, "unknown_thing"); m.HasAccess {
		t.Fatalf("unknown types default tagged-only: %+v", m)
	}
	// Explicit visibility on the resource overrides the type default.
	m := MatchesScope(user, &ResourceScope{Visibility: VisibilityPublic}, "document")
	if !m.HasAccess {
		t.Fatalf("explicit public visibility must allow: %+v", m)
	}
}

func TestMatchesScopeNoDimensionIntersects(t *testing.T) {
	user := &UserScope{Trades: []string{"plumbing"}, Areas: []string{"building-b"}}
	res := &ResourceScope{Trades: []string{"electrical"}, Areas: []string{"building-a"}}
	m := MatchesScope(user, res, "document")
	if m.HasAccess {
		t.Fatalf("disjoint scopes must deny: %+v", m)
	}
}

type scopedDoc struct {
	id    string
	scope *ResourceScope
}

func (d scopedDoc) ResourceScopeRef() *ResourceScope { return d.scope }
func (d scopedDoc) ResourceTypeName() string         { return "document" }

func TestFilterResourcesByScope(t *testing.T) {
	docs := []scopedDoc{
		{id: "d1", scope: &ResourceScope{Trades: []string{"electrical"}}},
		{id: "d2", scope: &ResourceScope{Trades: []string{"plumbing"}}},
		{id: "d3", scope: nil}, // untagged document, tagged-only default
	}
	user := &UserScope{Trades: []string{"electrical"}}
	got := FilterResourcesByScope(user, docs)
	if len(got) != 1 || got[0].id != "d1" {
		t.Fatalf("expected only d1, got %+v", got)
	}
	if all := FilterResourcesByScope(nil, docs); len(all) != 3 {
		t.Fatalf("nil scope must not filter, got %d", len(all))
	}
}

func TestMergeScopes(t *testing.T) {
	merged := MergeScopes(
		&UserScope{Trades: []string{"electrical"}},
		nil,
		&UserScope{Trades: []string{"ELECTRICAL", "plumbing"}, Areas: []string{"building-a"}},
	)
	if merged == nil {
		t.Fatalf("expected a merged scope")
	}
	if len(merged.Trades) != 2 {
		t.Fatalf("expected dedup to 2 trades, got %v", merged.Trades)
	}
	if len(merged.Areas) != 1 {
		t.Fatalf("expected 1 area, got %v", merged.Areas)
	}
	if MergeScopes(nil, nil) != nil {
		t.Fatalf("all-nil merge must stay nil")
	}
}

func TestIsScopeSubset(t *testing.T) {
	narrow := &UserScope{Trades: []string{"electrical"}}
	wide := &UserScope{Trades: []string{"Electrical", "plumbing"}, Areas: []string{"building-a"}}

	if !IsScopeSubset(narrow, wide) {
		t.Fatalf("narrow must be a subset of wide")
	}
	if IsScopeSubset(wide, narrow) {
		t.Fatalf("wide must not be a subset of narrow")
	}
	if !IsScopeSubset(wide, nil) {
		t.Fatalf("nil super is unlimited and contains everything")
	}
	// A nil sub is unlimited, so only a nil super contains it.
	if IsScopeSubset(nil, wide) {
		t.Fatalf("unlimited sub cannot fit inside a limited super")
	}
	if !IsScopeSubset(nil, nil) {
		t.Fatalf("unlimited fits inside unlimited")
	}
}

func TestParseScopePayloadShapes(t *testing.T) {
	s, err := ParseScopePayload([]byte(`["electrical","plumbing"]`))
	if err != nil {
		t.Fatalf("legacy payload: %v", err)
	}
	if s == nil || len(s.Trades) != 2 {
		t.Fatalf("legacy array must become trades, got %+v", s)
	}

	s, err = ParseScopePayload([]byte(`{"trades":["electrical"],"areas":["building-a"]}`))
	if err != nil {
		t.Fatalf("structured payload: %v", err)
	}
	if s == nil || len(s.Areas) != 1 {
		t.Fatalf("structured payload lost areas: %+v", s)
	}

	s, err = ParseScopePayload([]byte("null"))
	if err != nil || s != nil {
		t.Fatalf("null payload must mean unlimited, got %+v err %v", s, err)
	}
	s, err = ParseScopePayload(nil)
	if err != nil || s != nil {
		t.Fatalf("empty payload must mean unlimited, got %+v err %v", s, err)
	}
}
