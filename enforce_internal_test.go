package permit

import (
	"testing"
	"time"
)

func TestSweepIntervalFollowsGuardJanitor(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{}}
	orgs := &fakeOrgs{}

	e, err := NewEngine(members, orgs, WithGuardCache(time.Minute, 7*time.Second))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	if e.sweepEvery != 7*time.Second {
		t.Fatalf("sweep interval = %v, want 7s", e.sweepEvery)
	}

	d, err := NewEngine(members, orgs)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer d.Close()
	if d.sweepEvery != DefaultGuardJanitorInterval {
		t.Fatalf("default sweep interval = %v, want %v", d.sweepEvery, DefaultGuardJanitorInterval)
	}
}
