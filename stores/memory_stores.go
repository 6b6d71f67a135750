package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/permit"
)

// MemoryMembershipStore implements membership persistence in-memory for
// testing/demo.
type MemoryMembershipStore struct {
	mu      sync.RWMutex
	members map[string]map[string]*permit.ProjectMembership // userID -> projectID
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{members: make(map[string]map[string]*permit.ProjectMembership)}
}

func (s *MemoryMembershipStore) PutProjectMembership(ctx context.Context, m *permit.ProjectMembership) error {
	if m == nil || m.UserID == "" || m.ProjectID == "" {
		return fmt.Errorf("membership requires user_id and project_id")
	}
	if !permit.ValidRole(m.Role) {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	if err := permit.ValidateScopeForRole(m.Role, m.Scope); err != nil {
		return err
	}
	cop := *m
	if cop.AssignedAt.IsZero() {
		cop.AssignedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byProject, ok := s.members[m.UserID]
	if !ok {
		byProject = make(map[string]*permit.ProjectMembership)
		s.members[m.UserID] = byProject
	}
	byProject[m.ProjectID] = &cop
	return nil
}

func (s *MemoryMembershipStore) GetProjectMembership(ctx context.Context, userID, projectID string) (*permit.ProjectMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[userID][projectID]
	if !ok {
		return nil, nil
	}
	cop := *m
	return &cop, nil
}

func (s *MemoryMembershipStore) RemoveProjectMembership(ctx context.Context, userID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byProject, ok := s.members[userID]
	if !ok {
		return nil
	}
	delete(byProject, projectID)
	if len(byProject) == 0 {
		delete(s.members, userID)
	}
	return nil
}

// ListProjectMemberships returns all memberships for a user across projects.
func (s *MemoryMembershipStore) ListProjectMemberships(ctx context.Context, userID string) ([]*permit.ProjectMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*permit.ProjectMembership, 0, len(s.members[userID]))
	for _, m := range s.members[userID] {
		cop := *m
		out = append(out, &cop)
	}
	return out, nil
}

// MemoryOrganizationStore implements organization lookups in-memory.
type MemoryOrganizationStore struct {
	mu          sync.RWMutex
	members     map[string]map[string]*permit.OrganizationMembership // userID -> orgID
	projectOrgs map[string]string                                    // projectID -> orgID
}

func NewMemoryOrganizationStore() *MemoryOrganizationStore {
	return &MemoryOrganizationStore{
		members:     make(map[string]map[string]*permit.OrganizationMembership),
		projectOrgs: make(map[string]string),
	}
}

func (s *MemoryOrganizationStore) PutOrganizationMembership(ctx context.Context, m *permit.OrganizationMembership) error {
	if m == nil || m.UserID == "" || m.OrganizationID == "" {
		return fmt.Errorf("org membership requires user_id and organization_id")
	}
	cop := *m
	s.mu.Lock()
	defer s.mu.Unlock()
	byOrg, ok := s.members[m.UserID]
	if !ok {
		byOrg = make(map[string]*permit.OrganizationMembership)
		s.members[m.UserID] = byOrg
	}
	byOrg[m.OrganizationID] = &cop
	return nil
}

func (s *MemoryOrganizationStore) GetOrganizationMembership(ctx context.Context, userID, organizationID string) (*permit.OrganizationMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[userID][organizationID]
	if !ok {
		return nil, nil
	}
	cop := *m
	return &cop, nil
}

func (s *MemoryOrganizationStore) SetProjectOrganization(ctx context.Context, projectID, orgID string) error {
	if projectID == "" || orgID == "" {
		return fmt.Errorf("project_id and org_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectOrgs[projectID] = orgID
	return nil
}

func (s *MemoryOrganizationStore) GetProjectOrganization(ctx context.Context, projectID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectOrgs[projectID], nil
}
