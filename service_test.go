package permit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T, members *fakeMembers, orgs *fakeOrgs) *PermissionService {
	t.Helper()
	svc, err := NewPermissionService(NewResolver(members, orgs, nil), nil, PermissionServiceConfig{})
	if err != nil {
		t.Fatalf("new permission service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestCheckPermissionNonMember(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{}}
	orgs := &fakeOrgs{projectOrgs: map[string]string{"p1": "org1"}}
	svc := newTestService(t, members, orgs)
	ctx := context.Background()

	res, err := svc.CheckPermission(ctx, "stranger", "p1", "documents:document:read", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Reason != ReasonUserNotMember {
		t.Fatalf("expected USER_NOT_MEMBER, got %+v", res)
	}

	// A project with no organization link and no membership is unknown.
	res, err = svc.CheckPermission(ctx, "stranger", "ghost", "documents:document:read", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Reason != ReasonProjectNotFound {
		t.Fatalf("expected PROJECT_NOT_FOUND, got %+v", res)
	}
}

func TestCheckPermissionExpiredMembership(t *testing.T) {
	expired := time.Now().Add(-48 * time.Hour)
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"sub/p1": {
			UserID: "sub", ProjectID: "p1", Role: RoleSubcontractor,
			Scope:     &UserScope{Trades: []string{"electrical"}},
			ExpiresAt: timePtr(expired),
		},
	}}
	svc := newTestService(t, members, &fakeOrgs{})

	res, err := svc.CheckPermission(context.Background(), "sub", "p1", "documents:document:read", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Reason != ReasonAccessExpired {
		t.Fatalf("expected ACCESS_EXPIRED, got %+v", res)
	}

	// Expired members report no permissions at all.
	perms, err := svc.GetUserPermissions(context.Background(), "sub", "p1")
	if err != nil {
		t.Fatalf("get permissions: %v", err)
	}
	if perms != nil {
		t.Fatalf("expired member must have nil permissions, got %v", perms)
	}
}

func TestCheckPermissionMatrixDenial(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"v/p1": {UserID: "v", ProjectID: "p1", Role: RoleViewer},
	}}
	svc := newTestService(t, members, &fakeOrgs{})

	res, err := svc.CheckPermission(context.Background(), "v", "p1", "documents:document:update", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Reason != ReasonInsufficientPermissions {
		t.Fatalf("expected INSUFFICIENT_PERMISSIONS, got %+v", res)
	}
	if res.Role != RoleViewer {
		t.Fatalf("denial must carry the role, got %+v", res)
	}
}

func TestCheckPermissionScopeGate(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"fore/p1": {
			UserID: "fore", ProjectID: "p1", Role: RoleForeman,
			Scope: &UserScope{Trades: []string{"electrical"}},
		},
	}}
	svc := newTestService(t, members, &fakeOrgs{})
	ctx := context.Background()

	inScope := &ResourceContext{
		ResourceType: "document", ResourceID: "d1",
		Scope: &ResourceScope{Trades: []string{"electrical"}},
	}
	res, err := svc.CheckPermission(ctx, "fore", "p1", "documents:document:read", inScope)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("in-scope resource must be allowed: %+v", res)
	}
	if res.Scope == nil || res.Scope.MatchedDimension != "trades" {
		t.Fatalf("expected trade match detail, got %+v", res.Scope)
	}

	outOfScope := &ResourceContext{
		ResourceType: "document", ResourceID: "d2",
		Scope: &ResourceScope{Trades: []string{"plumbing"}},
	}
	res, err = svc.CheckPermission(ctx, "fore", "p1", "documents:document:read", outOfScope)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Reason != ReasonScopeRestriction {
		t.Fatalf("expected SCOPE_RESTRICTION, got %+v", res)
	}

	// Collection-level checks (no resource ID) are not scope-gated.
	res, err = svc.CheckPermission(ctx, "fore", "p1", "documents:document:read", &ResourceContext{ResourceType: "document"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("collection check must pass the scope gate: %+v", res)
	}
}

func TestInheritedAdminBypassesScopeAndExpiry(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{}}
	orgs := &fakeOrgs{
		projectOrgs: map[string]string{"p1": "org1"},
		orgMembers: map[string]*OrganizationMembership{
			"owner/org1": {UserID: "owner", OrganizationID: "org1", Role: OrgRoleOwner},
		},
	}
	svc := newTestService(t, members, orgs)

	rc := &ResourceContext{
		ResourceType: "document", ResourceID: "d1",
		Scope: &ResourceScope{Trades: []string{"plumbing"}},
	}
	res, err := svc.CheckPermission(context.Background(), "owner", "p1", "documents:document:delete", rc)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed || !res.Inherited {
		t.Fatalf("inherited admin must be allowed everywhere, got %+v", res)
	}
}

func TestPermissionCacheInvalidation(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"u/p1": {UserID: "u", ProjectID: "p1", Role: RoleViewer},
	}}
	svc := newTestService(t, members, &fakeOrgs{})
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, "u", "p1", "documents:document:update", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("viewer must not update")
	}

	// Promote the user. The cached snapshot still answers until invalidated.
	members.rows["u/p1"] = &ProjectMembership{UserID: "u", ProjectID: "p1", Role: RoleProjectManager}
	ok, err = svc.HasPermission(ctx, "u", "p1", "documents:document:update", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("stale cache must still answer viewer")
	}

	svc.ClearPermissionCache("u", "p1")
	ok, err = svc.HasPermission(ctx, "u", "p1", "documents:document:update", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("after invalidation the promotion must be visible")
	}
}

type failingExpiration struct{}

func (failingExpiration) CheckExpiration(ctx context.Context, userID, projectID string) (ExpirationStatus, *time.Time, error) {
	return ExpirationNone, nil, errors.New("expiry backend unreachable")
}

func TestExpirationSourceFailsOpen(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"u/p1": {UserID: "u", ProjectID: "p1", Role: RoleViewer},
	}}
	svc := newTestService(t, members, &fakeOrgs{})
	svc.SetExpirationSource(failingExpiration{})

	// The secondary check degrades to allow; the role gate still decides.
	ok, err := svc.HasPermission(context.Background(), "u", "p1", "documents:document:read", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("expiration backend failure must fail open")
	}
	ok, err = svc.HasPermission(context.Background(), "u", "p1", "documents:document:update", nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("fail-open must not widen the role's permissions")
	}
}

type failingScopes struct{}

func (failingScopes) ResourceScope(ctx context.Context, resourceType, resourceID string) (*ResourceScope, error) {
	return nil, errors.New("scope backend unreachable")
}

func TestScopeResolverFailsOpen(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"fore/p1": {
			UserID: "fore", ProjectID: "p1", Role: RoleForeman,
			Scope: &UserScope{Trades: []string{"electrical"}},
		},
	}}
	svc := newTestService(t, members, &fakeOrgs{})
	svc.SetScopeResolver(failingScopes{})
	ctx := context.Background()

	// With the scope backend down the scope sub-check is skipped entirely.
	// Even a tagged-only type must be allowed; the role gate already passed.
	rc := &ResourceContext{ResourceType: "document", ResourceID: "d1"}
	res, err := svc.CheckPermission(ctx, "fore", "p1", "documents:document:read", rc)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("tagged-only type must allow when scope lookup fails: %+v", res)
	}

	// Fail-open never widens the role's permissions.
	res, err = svc.CheckPermission(ctx, "fore", "p1", "rfis:rfi:create", rc)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Reason != ReasonInsufficientPermissions {
		t.Fatalf("role gate must still apply during fail-open: %+v", res)
	}

	// A caller-supplied resource scope is still evaluated normally; the
	// resolver is only consulted when the caller did not attach one.
	outOfScope := &ResourceContext{
		ResourceType: "document", ResourceID: "d2",
		Scope: &ResourceScope{Trades: []string{"plumbing"}},
	}
	res, err = svc.CheckPermission(ctx, "fore", "p1", "documents:document:read", outOfScope)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Reason != ReasonScopeRestriction {
		t.Fatalf("explicit scope must still be enforced: %+v", res)
	}
}

func TestGetUserPermissionsMinimized(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"pm/p1": {UserID: "pm", ProjectID: "p1", Role: RoleProjectManager},
	}}
	svc := newTestService(t, members, &fakeOrgs{})

	perms, err := svc.GetUserPermissions(context.Background(), "pm", "p1")
	if err != nil {
		t.Fatalf("get permissions: %v", err)
	}
	if len(perms) == 0 {
		t.Fatalf("manager must have permissions")
	}
	// Minimization must leave no permission covered by another in the set.
	for i, p := range perms {
		for j, q := range perms {
			if i == j {
				continue
			}
			if HasPermission([]Permission{q}, p) {
				t.Fatalf("%s is covered by %s, set was not minimized: %v", p, q, perms)
			}
		}
	}
	if !HasPermission(perms, "documents:drawing:update") {
		t.Fatalf("manager's documents wildcard must survive minimization: %v", perms)
	}
}

func TestGetUserPermissionMap(t *testing.T) {
	members := &fakeMembers{rows: map[string]*ProjectMembership{
		"v/p1": {UserID: "v", ProjectID: "p1", Role: RoleViewer},
	}}
	svc := newTestService(t, members, &fakeOrgs{})

	m, err := svc.GetUserPermissionMap(context.Background(), "v", "p1", []Permission{
		"documents:document:read",
		"documents:document:update",
		"rfis:rfi:read",
	})
	if err != nil {
		t.Fatalf("permission map: %v", err)
	}
	if !m["documents:document:read"] || m["documents:document:update"] || !m["rfis:rfi:read"] {
		t.Fatalf("unexpected permission map: %v", m)
	}
}
