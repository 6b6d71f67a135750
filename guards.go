package permit

import (
	"fmt"
)

// GuardResult is the final verdict of a feature guard check.
type GuardResult struct {
	Allowed  bool           `json:"allowed"`
	Reason   DenialReason   `json:"reason,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
	Required Permission     `json:"required_permission,omitempty"`
	Role     ProjectRole    `json:"user_role,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CheckRequest is one authorization question: may user perform action on this
// resource in this project.
type CheckRequest struct {
	UserID    string
	ProjectID string
	Action    string
	Resource  *ResourceContext
}

// guardCtx is the evaluation state a rule sees: the request plus the effective
// role phase 1 established.
type guardCtx struct {
	req       *CheckRequest
	role      ProjectRole
	inherited bool
}

// ruleFunc is one action-specific rule. A nil return means the rule passes;
// a non-nil result is a denial.
type ruleFunc func(*guardCtx) *GuardResult

// FeatureGuard layers workflow rules for one feature on top of the base
// permission check. The generic phase (expiration, matrix, scope) is shared;
// the action table is the feature-specific phase.
type FeatureGuard struct {
	// Feature is the first permission segment this guard protects.
	Feature string
	// DefaultResource names the permission's middle segment when the request
	// carries no resource context.
	DefaultResource string
	// SkipScope exempts the guard from scope filtering (financial data is
	// binary by role, never scope-filtered).
	SkipScope bool

	permissions map[string]Permission
	rules       map[string]ruleFunc
}

// requiredPermission derives the base permission for an action, preferring an
// explicit table entry over the feature:resource:action construction.
func (g *FeatureGuard) requiredPermission(action string, rc *ResourceContext) Permission {
	if p, ok := g.permissions[action]; ok {
		return p
	}
	resource := g.DefaultResource
	if rc != nil && rc.ResourceType != "" {
		resource = rc.ResourceType
	}
	return PermissionFor(g.Feature, resource, action)
}

func (g *FeatureGuard) rule(action string) (ruleFunc, bool) {
	r, ok := g.rules[action]
	return r, ok
}

func (c *guardCtx) hasRole(roles ...ProjectRole) bool {
	for _, r := range roles {
		if c.role == r {
			return true
		}
	}
	return false
}

func (c *guardCtx) isAdminOrManager() bool {
	return c.hasRole(RoleProjectAdmin, RoleProjectManager)
}

func (c *guardCtx) isOwner() bool {
	return c.req.Resource != nil && c.req.Resource.OwnerID != "" && c.req.Resource.OwnerID == c.req.UserID
}

func (c *guardCtx) isAssigned() bool {
	if c.req.Resource == nil {
		return false
	}
	for _, id := range c.req.Resource.AssignedTo {
		if id == c.req.UserID {
			return true
		}
	}
	return false
}

func (c *guardCtx) statusIn(statuses ...string) bool {
	if c.req.Resource == nil {
		return false
	}
	for _, s := range statuses {
		if c.req.Resource.Status == s {
			return true
		}
	}
	return false
}

func (c *guardCtx) status() string {
	if c.req.Resource == nil {
		return ""
	}
	return c.req.Resource.Status
}

func (c *guardCtx) metaBool(key string) bool {
	if c.req.Resource == nil || c.req.Resource.Metadata == nil {
		return false
	}
	b, _ := c.req.Resource.Metadata[key].(bool)
	return b
}

func (c *guardCtx) metaString(key string) string {
	if c.req.Resource == nil || c.req.Resource.Metadata == nil {
		return ""
	}
	s, _ := c.req.Resource.Metadata[key].(string)
	return s
}

func (c *guardCtx) metaFloat(key string, fallback float64) float64 {
	if c.req.Resource == nil || c.req.Resource.Metadata == nil {
		return fallback
	}
	switch v := c.req.Resource.Metadata[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func (c *guardCtx) deny(reason DenialReason, code, format string, args ...any) *GuardResult {
	return &GuardResult{
		Allowed: false,
		Reason:  reason,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Role:    c.role,
	}
}

// denyStatus is deny with the resource's current status attached as metadata.
func (c *guardCtx) denyStatus(reason DenialReason, code, format string, args ...any) *GuardResult {
	return c.deny(reason, code, format, args...).withMeta(map[string]any{"status": c.status()})
}

// withMeta attaches the rule inputs that produced the denial, so audit
// entries carry them.
func (r *GuardResult) withMeta(meta map[string]any) *GuardResult {
	r.Metadata = meta
	return r
}
