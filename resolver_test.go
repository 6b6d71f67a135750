package permit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeMembers struct {
	rows map[string]*ProjectMembership // userID+"/"+projectID
	err  error
}

func (f *fakeMembers) GetProjectMembership(ctx context.Context, userID, projectID string) (*ProjectMembership, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[userID+"/"+projectID], nil
}

type fakeOrgs struct {
	orgMembers  map[string]*OrganizationMembership // userID+"/"+orgID
	projectOrgs map[string]string
	err         error
}

func (f *fakeOrgs) GetOrganizationMembership(ctx context.Context, userID, orgID string) (*OrganizationMembership, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orgMembers[userID+"/"+orgID], nil
}

func (f *fakeOrgs) GetProjectOrganization(ctx context.Context, projectID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.projectOrgs[projectID], nil
}

func timePtr(t time.Time) *time.Time { return &t }

func TestResolverExplicitMembershipWins(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"u1/p1": {UserID: "u1", ProjectID: "p1", Role: RoleViewer},
	}}
	orgs := &fakeOrgs{
		projectOrgs: map[string]string{"p1": "org1"},
		orgMembers: map[string]*OrganizationMembership{
			"u1/org1": {UserID: "u1", OrganizationID: "org1", Role: OrgRoleOwner},
		},
	}
	r := NewResolver(members, orgs, nil)

	// The explicit VIEWER row beats the inherited admin from org ownership.
	er, err := r.EffectiveRole(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("effective role: %v", err)
	}
	if er.Role != RoleViewer || er.Inherited || er.Source != SourceExplicit {
		t.Fatalf("expected explicit VIEWER, got %+v", er)
	}
}

func TestResolverOrgInheritance(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{}}
	orgs := &fakeOrgs{
		projectOrgs: map[string]string{"p1": "org1"},
		orgMembers: map[string]*OrganizationMembership{
			"owner/org1":  {UserID: "owner", OrganizationID: "org1", Role: OrgRoleOwner},
			"admin/org1":  {UserID: "admin", OrganizationID: "org1", Role: OrgRoleAdmin},
			"member/org1": {UserID: "member", OrganizationID: "org1", Role: OrgRoleMember},
		},
	}
	r := NewResolver(members, orgs, nil)
	ctx := context.Background()

	for _, userID := range []string{"owner", "admin"} {
		er, err := r.EffectiveRole(ctx, userID, "p1")
		if err != nil {
			t.Fatalf("%s: %v", userID, err)
		}
		if er.Role != RoleProjectAdmin || !er.Inherited || er.Source != SourceInherited {
			t.Fatalf("%s must inherit PROJECT_ADMIN, got %+v", userID, er)
		}
	}

	er, err := r.EffectiveRole(ctx, "member", "p1")
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	if er.Source != SourceNone {
		t.Fatalf("ORG_MEMBER must inherit nothing, got %+v", er)
	}
}

func TestResolverPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(&fakeMembers{err: boom}, &fakeOrgs{}, nil)
	if _, err := r.EffectiveRole(context.Background(), "u1", "p1"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestCheckExpiration(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"expired/p1": {UserID: "expired", ProjectID: "p1", Role: RoleViewer, ExpiresAt: timePtr(past)},
		"active/p1":  {UserID: "active", ProjectID: "p1", Role: RoleViewer, ExpiresAt: timePtr(future)},
		"open/p1":    {UserID: "open", ProjectID: "p1", Role: RoleViewer},
	}}
	orgs := &fakeOrgs{
		projectOrgs: map[string]string{"p1": "org1"},
		orgMembers: map[string]*OrganizationMembership{
			"owner/org1": {UserID: "owner", OrganizationID: "org1", Role: OrgRoleOwner},
		},
	}
	r := NewResolver(members, orgs, nil)
	ctx := context.Background()

	cases := []struct {
		userID string
		want   ExpirationStatus
	}{
		{"expired", ExpirationExpired},
		{"active", ExpirationActive},
		{"open", ExpirationActive},
		{"owner", ExpirationActive}, // inherited roles never expire
		{"stranger", ExpirationNone},
	}
	for _, c := range cases {
		st, _, err := r.CheckExpiration(ctx, c.userID, "p1")
		if err != nil {
			t.Fatalf("%s: %v", c.userID, err)
		}
		if st != c.want {
			t.Fatalf("%s: got %s, want %s", c.userID, st, c.want)
		}
	}
}
