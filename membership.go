package permit

import (
	"context"
	"time"
)

// ProjectMembership is an explicit (user, project) row from the membership
// store. Scope is nil for roles that are not scope-limited; ExpiresAt is nil
// for open-ended access.
type ProjectMembership struct {
	UserID     string      `json:"user_id" yaml:"user_id"`
	ProjectID  string      `json:"project_id" yaml:"project_id"`
	Role       ProjectRole `json:"role" yaml:"role"`
	Scope      *UserScope  `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	AssignedBy string      `json:"assigned_by,omitempty" yaml:"assigned_by,omitempty"`
	AssignedAt time.Time   `json:"assigned_at,omitempty" yaml:"assigned_at,omitempty"`
}

// OrganizationMembership is a (user, organization) row.
type OrganizationMembership struct {
	UserID         string  `json:"user_id" yaml:"user_id"`
	OrganizationID string  `json:"organization_id" yaml:"organization_id"`
	Role           OrgRole `json:"role" yaml:"role"`
}

// MembershipStore looks up explicit project memberships. A (nil, nil) return
// means the user is not a member; errors are reserved for lookup failures.
type MembershipStore interface {
	GetProjectMembership(ctx context.Context, userID, projectID string) (*ProjectMembership, error)
}

// OrganizationStore resolves organization membership and project ownership.
// GetProjectOrganization returns "" when the project is unknown.
type OrganizationStore interface {
	GetOrganizationMembership(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error)
	GetProjectOrganization(ctx context.Context, projectID string) (string, error)
}
