package permit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAuditServiceRingAndQueries(t *testing.T) {
	a := NewAuditService(10, nil, nil)
	defer a.Close()

	a.LogDenial(&AuditEntry{UserID: "u1", ProjectID: "p1", Action: "documents:delete", Reason: ReasonOwnerOnly})
	a.LogDenial(&AuditEntry{UserID: "u2", ProjectID: "p1", Action: "budget:read", Reason: ReasonFinancialAccess})
	a.LogDenial(&AuditEntry{UserID: "u1", ProjectID: "p2", Action: "rfis:close", Reason: ReasonWorkflowViolation})

	recent := a.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Action != "rfis:close" {
		t.Fatalf("newest first, got %+v", recent[0])
	}

	byUser := a.ByUser("u1", 0)
	if len(byUser) != 2 {
		t.Fatalf("expected 2 entries for u1, got %d", len(byUser))
	}
	byProject := a.ByProject("p1", 0)
	if len(byProject) != 2 {
		t.Fatalf("expected 2 entries for p1, got %d", len(byProject))
	}

	st := a.Stats()
	if st.Total != 3 || st.ByReason[ReasonOwnerOnly] != 1 || st.ByUser["u1"] != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestAuditServiceCapacityBound(t *testing.T) {
	a := NewAuditService(5, nil, nil)
	defer a.Close()

	for i := 0; i < 20; i++ {
		a.LogDenial(&AuditEntry{UserID: "u", ProjectID: "p", Action: "documents:read", Reason: ReasonUserNotMember})
	}
	if st := a.Stats(); st.Total != 5 {
		t.Fatalf("ring must cap at 5, got %d", st.Total)
	}
}

func TestAuditServiceStampsTimestamp(t *testing.T) {
	a := NewAuditService(5, nil, nil)
	defer a.Close()

	a.LogDenial(&AuditEntry{UserID: "u", ProjectID: "p", Action: "x:y", Reason: ReasonAdminOnly})
	got := a.Recent(1)
	if len(got) != 1 || got[0].Timestamp.IsZero() {
		t.Fatalf("entry must carry a timestamp: %+v", got)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

func (s *recordingSink) Write(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestAuditServiceFeedsSink(t *testing.T) {
	sink := &recordingSink{}
	a := NewAuditService(10, sink, nil)

	a.LogDenial(&AuditEntry{UserID: "u", ProjectID: "p", Action: "documents:delete", Reason: ReasonOwnerOnly})
	a.Close() // drains the queue

	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("sink must receive the entry, got %d", sink.count())
	}
}
