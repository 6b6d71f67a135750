package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLMembershipStore persists project memberships in SQL (squealx).
type SQLMembershipStore struct {
	db *squealx.DB
}

func NewSQLMembershipStore(db *squealx.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

func (s *SQLMembershipStore) PutProjectMembership(ctx context.Context, m *permit.ProjectMembership) error {
	if m == nil || m.UserID == "" || m.ProjectID == "" {
		return fmt.Errorf("membership requires user_id and project_id")
	}
	if !permit.ValidRole(m.Role) {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	if err := permit.ValidateScopeForRole(m.Role, m.Scope); err != nil {
		return err
	}
	scopeJSON, err := encodeScope(m.Scope)
	if err != nil {
		return fmt.Errorf("encode scope: %w", err)
	}
	assignedAt := m.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}
	expires := ""
	if m.ExpiresAt != nil {
		expires = m.ExpiresAt.Format(time.RFC3339)
	}
	q := `INSERT INTO project_memberships(user_id, project_id, role, scope_json, expires_at, assigned_by, assigned_at)
	      VALUES(:user_id, :project_id, :role, :scope_json, :expires_at, :assigned_by, :assigned_at)
	      ON CONFLICT(user_id, project_id) DO UPDATE SET
	        role=excluded.role, scope_json=excluded.scope_json, expires_at=excluded.expires_at,
	        assigned_by=excluded.assigned_by, assigned_at=excluded.assigned_at`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":     m.UserID,
		"project_id":  m.ProjectID,
		"role":        string(m.Role),
		"scope_json":  scopeJSON,
		"expires_at":  expires,
		"assigned_by": m.AssignedBy,
		"assigned_at": assignedAt.Format(time.RFC3339),
	})
	return err
}

func (s *SQLMembershipStore) GetProjectMembership(ctx context.Context, userID, projectID string) (*permit.ProjectMembership, error) {
	q := `SELECT user_id, project_id, role, scope_json, expires_at, assigned_by, assigned_at
	      FROM project_memberships WHERE user_id = :user_id AND project_id = :project_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "project_id": projectID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanMembership(r)
}

func (s *SQLMembershipStore) RemoveProjectMembership(ctx context.Context, userID, projectID string) error {
	q := `DELETE FROM project_memberships WHERE user_id = :user_id AND project_id = :project_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "project_id": projectID})
	return err
}

// ListProjectMemberships returns all memberships for a user.
func (s *SQLMembershipStore) ListProjectMemberships(ctx context.Context, userID string) ([]*permit.ProjectMembership, error) {
	q := `SELECT user_id, project_id, role, scope_json, expires_at, assigned_by, assigned_at
	      FROM project_memberships WHERE user_id = :user_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []*permit.ProjectMembership
	for r.Next() {
		m, err := scanMembership(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ListExpired returns memberships whose expiry is behind the given time, for
// offline revocation sweeps.
func (s *SQLMembershipStore) ListExpired(ctx context.Context, before time.Time) ([]*permit.ProjectMembership, error) {
	q := `SELECT user_id, project_id, role, scope_json, expires_at, assigned_by, assigned_at
	      FROM project_memberships WHERE expires_at != '' AND expires_at < :before`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"before": before.Format(time.RFC3339)})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []*permit.ProjectMembership
	for r.Next() {
		m, err := scanMembership(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(r rowScanner) (*permit.ProjectMembership, error) {
	var userID, projectID, role, scopeJSON, expires, assignedBy, assignedAt string
	if err := r.Scan(&userID, &projectID, &role, &scopeJSON, &expires, &assignedBy, &assignedAt); err != nil {
		return nil, err
	}
	m := &permit.ProjectMembership{
		UserID:     userID,
		ProjectID:  projectID,
		Role:       permit.ProjectRole(role),
		AssignedBy: assignedBy,
	}
	scope, err := decodeScope(scopeJSON)
	if err != nil {
		return nil, fmt.Errorf("decode scope for %s/%s: %w", userID, projectID, err)
	}
	m.Scope = scope
	if expires != "" {
		t, err := parseFlexibleTime(expires)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at for %s/%s: %w", userID, projectID, err)
		}
		m.ExpiresAt = &t
	}
	if assignedAt != "" {
		if t, err := parseFlexibleTime(assignedAt); err == nil {
			m.AssignedAt = t
		}
	}
	return m, nil
}

// SQLOrganizationStore persists organization memberships and project links.
type SQLOrganizationStore struct {
	db *squealx.DB
}

func NewSQLOrganizationStore(db *squealx.DB) *SQLOrganizationStore {
	return &SQLOrganizationStore{db: db}
}

func (s *SQLOrganizationStore) PutOrganizationMembership(ctx context.Context, m *permit.OrganizationMembership) error {
	if m == nil || m.UserID == "" || m.OrganizationID == "" {
		return fmt.Errorf("org membership requires user_id and organization_id")
	}
	q := `INSERT INTO organization_memberships(user_id, organization_id, role)
	      VALUES(:user_id, :organization_id, :role)
	      ON CONFLICT(user_id, organization_id) DO UPDATE SET role=excluded.role`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":         m.UserID,
		"organization_id": m.OrganizationID,
		"role":            string(m.Role),
	})
	return err
}

func (s *SQLOrganizationStore) GetOrganizationMembership(ctx context.Context, userID, organizationID string) (*permit.OrganizationMembership, error) {
	q := `SELECT user_id, organization_id, role FROM organization_memberships
	      WHERE user_id = :user_id AND organization_id = :organization_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "organization_id": organizationID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var uid, oid, role string
	if err := r.Scan(&uid, &oid, &role); err != nil {
		return nil, err
	}
	return &permit.OrganizationMembership{UserID: uid, OrganizationID: oid, Role: permit.OrgRole(role)}, nil
}

func (s *SQLOrganizationStore) SetProjectOrganization(ctx context.Context, projectID, orgID string) error {
	if projectID == "" || orgID == "" {
		return fmt.Errorf("project_id and org_id are required")
	}
	q := `INSERT INTO project_organizations(project_id, organization_id)
	      VALUES(:project_id, :organization_id)
	      ON CONFLICT(project_id) DO UPDATE SET organization_id=excluded.organization_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"project_id": projectID, "organization_id": orgID})
	return err
}

func (s *SQLOrganizationStore) GetProjectOrganization(ctx context.Context, projectID string) (string, error) {
	q := `SELECT organization_id FROM project_organizations WHERE project_id = :project_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"project_id": projectID})
	if err != nil {
		return "", err
	}
	defer r.Close()
	if !r.Next() {
		return "", nil
	}
	var orgID string
	if err := r.Scan(&orgID); err != nil {
		return "", err
	}
	return orgID, nil
}
