package utils

import "testing"

func TestAreaCovers(t *testing.T) {
	cases := []struct {
		held     string
		resource string
		want     bool
	}{
		{"building-a", "building-a", true},
		{"Building-A", "building-a", true},
		{"building-a", "building-a-floor-2", true},
		{"building-a", "building-a/unit-3", true},
		{"building-a-floor-2", "building-a", false},
		{"building-a", "building-ab", false},
		{"building-a", "building-b", false},
		{"", "building-a", false},
		{"building-a", "", false},
	}
	for _, c := range cases {
		if got := AreaCovers(c.held, c.resource); got != c.want {
			t.Fatalf("AreaCovers(%q, %q) = %v, want %v", c.held, c.resource, got, c.want)
		}
	}
}

func TestIntersectFold(t *testing.T) {
	got := IntersectFold([]string{"Electrical", "plumbing"}, []string{"ELECTRICAL", "hvac"})
	if len(got) != 1 || got[0] != "Electrical" {
		t.Fatalf("expected first-set spelling of the hit, got %v", got)
	}
	if got := IntersectFold([]string{"a"}, []string{"b"}); len(got) != 0 {
		t.Fatalf("disjoint sets must not intersect, got %v", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Building-A "); got != "building-a" {
		t.Fatalf("Normalize = %q", got)
	}
}
