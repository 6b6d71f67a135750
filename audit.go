package permit

import (
	"context"
	"sync"
	"time"

	"github.com/oarkflow/permit/logger"
)

// AuditEntry records one permission denial for compliance review.
type AuditEntry struct {
	UserID       string         `json:"user_id"`
	ProjectID    string         `json:"project_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Reason       DenialReason   `json:"reason"`
	Code         string         `json:"code,omitempty"`
	Message      string         `json:"message,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AuditSink is an optional durable destination for denial records. Sink
// failures are logged and swallowed; they never block a decision.
type AuditSink interface {
	Write(ctx context.Context, entry *AuditEntry) error
}

// AuditStats summarizes the retained window.
type AuditStats struct {
	Total     int                  `json:"total"`
	ByReason  map[DenialReason]int `json:"by_reason"`
	ByProject map[string]int       `json:"by_project"`
	ByUser    map[string]int       `json:"by_user"`
}

// DefaultAuditCapacity bounds the in-memory denial window.
const DefaultAuditCapacity = 1000

// AuditService keeps a bounded in-memory ring of denials and optionally feeds
// a durable sink through an async channel. The ring is best-effort storage for
// incident review; durability is the sink's problem.
type AuditService struct {
	mu       sync.RWMutex
	entries  []*AuditEntry
	capacity int

	log  logger.Logger
	sink AuditSink

	sinkCh   chan *AuditEntry
	stopOnce sync.Once
	done     chan struct{}
}

func NewAuditService(capacity int, sink AuditSink, log logger.Logger) *AuditService {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	s := &AuditService{
		entries:  make([]*AuditEntry, 0, capacity),
		capacity: capacity,
		log:      log,
		sink:     sink,
		sinkCh:   make(chan *AuditEntry, 256),
		done:     make(chan struct{}),
	}
	go s.sinkWorker()
	return s
}

func (s *AuditService) sinkWorker() {
	defer close(s.done)
	bg := context.Background()
	for entry := range s.sinkCh {
		if s.sink == nil {
			continue
		}
		if err := s.sink.Write(bg, entry); err != nil {
			s.log.Error("audit sink write failed", "user_id", entry.UserID, "error", err.Error())
		}
	}
}

// LogDenial appends to the ring, emits a structured warning, and queues the
// entry for the sink (dropped if the queue is full; never blocks).
func (s *AuditService) LogDenial(entry *AuditEntry) {
	if entry == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	s.mu.Unlock()

	s.log.Warn("permission denied",
		"user_id", entry.UserID,
		"project_id", entry.ProjectID,
		"action", entry.Action,
		"resource_type", entry.ResourceType,
		"resource_id", entry.ResourceID,
		"reason", string(entry.Reason),
		"code", entry.Code,
	)

	select {
	case s.sinkCh <- entry:
	default:
		// Queue full; drop rather than block the check path.
	}
}

// Recent returns up to n newest entries, newest first.
func (s *AuditService) Recent(n int) []*AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterNewest(s.entries, n, func(*AuditEntry) bool { return true })
}

// ByUser returns up to n newest entries for a user.
func (s *AuditService) ByUser(userID string, n int) []*AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterNewest(s.entries, n, func(e *AuditEntry) bool { return e.UserID == userID })
}

// ByProject returns up to n newest entries for a project.
func (s *AuditService) ByProject(projectID string, n int) []*AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterNewest(s.entries, n, func(e *AuditEntry) bool { return e.ProjectID == projectID })
}

func filterNewest(entries []*AuditEntry, n int, keep func(*AuditEntry) bool) []*AuditEntry {
	if n <= 0 {
		n = len(entries)
	}
	out := make([]*AuditEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		if keep(entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

// Stats aggregates the retained window by reason, project and user.
func (s *AuditService) Stats() AuditStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := AuditStats{
		Total:     len(s.entries),
		ByReason:  make(map[DenialReason]int),
		ByProject: make(map[string]int),
		ByUser:    make(map[string]int),
	}
	for _, e := range s.entries {
		st.ByReason[e.Reason]++
		st.ByProject[e.ProjectID]++
		st.ByUser[e.UserID]++
	}
	return st
}

// Close stops the sink worker after draining queued entries.
func (s *AuditService) Close() {
	s.stopOnce.Do(func() {
		close(s.sinkCh)
		<-s.done
	})
}
