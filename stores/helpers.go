package stores

import (
	"encoding/json"
	"time"

	"github.com/oarkflow/date"

	"github.com/oarkflow/permit"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// encodeScope serializes a scope for a text column; "" means no scope.
func encodeScope(s *permit.UserScope) (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeScope accepts the structured form and the legacy bare trade array.
func decodeScope(raw string) (*permit.UserScope, error) {
	if raw == "" {
		return nil, nil
	}
	return permit.ParseScopePayload([]byte(raw))
}
