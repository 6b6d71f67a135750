package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLAuditSink writes permission denials to SQL for durable compliance
// records. The in-memory denial window stays authoritative for recent lookups;
// this is the long-term trail.
type SQLAuditSink struct {
	db *squealx.DB
}

func NewSQLAuditSink(db *squealx.DB) *SQLAuditSink {
	return &SQLAuditSink{db: db}
}

func (s *SQLAuditSink) Write(ctx context.Context, entry *permit.AuditEntry) error {
	meta := ""
	if len(entry.Metadata) > 0 {
		if b, err := json.Marshal(entry.Metadata); err == nil {
			meta = string(b)
		}
	}
	q := `INSERT INTO permission_denials(user_id, project_id, action, resource_type, resource_id, reason, code, message, metadata_json, denied_at)
	      VALUES(:user_id, :project_id, :action, :resource_type, :resource_id, :reason, :code, :message, :metadata_json, :denied_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":       entry.UserID,
		"project_id":    entry.ProjectID,
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"reason":        string(entry.Reason),
		"code":          entry.Code,
		"message":       entry.Message,
		"metadata_json": meta,
		"denied_at":     entry.Timestamp.Format(time.RFC3339),
	})
	return err
}

// RecentByUser reads back the newest denials for a user, newest first.
func (s *SQLAuditSink) RecentByUser(ctx context.Context, userID string, limit int) ([]*permit.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT user_id, project_id, action, resource_type, resource_id, reason, code, message, metadata_json, denied_at
	      FROM permission_denials WHERE user_id = :user_id ORDER BY denied_at DESC LIMIT :limit`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "limit": limit})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []*permit.AuditEntry
	for r.Next() {
		var e permit.AuditEntry
		var reason, meta, deniedAt string
		if err := r.Scan(&e.UserID, &e.ProjectID, &e.Action, &e.ResourceType, &e.ResourceID, &reason, &e.Code, &e.Message, &meta, &deniedAt); err != nil {
			return nil, err
		}
		e.Reason = permit.DenialReason(reason)
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		if t, err := parseFlexibleTime(deniedAt); err == nil {
			e.Timestamp = t
		}
		out = append(out, &e)
	}
	return out, nil
}
