package permit_test

import (
	"context"
	"testing"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/stores"
)

const testConfigYAML = `
version: 1
memberships:
  - user_id: u-pm
    project_id: p1
    role: PROJECT_MANAGER
  - user_id: u-fore
    project_id: p1
    role: FOREMAN
    scope:
      trades: [electrical]
      areas: [building-a]
    expires_at: "2030-06-30"
org_memberships:
  - user_id: u-owner
    org_id: org1
    role: OWNER
project_orgs:
  - project_id: p1
    org_id: org1
engine:
  permission_cache_ttl_ms: 60000
  guard_cache_ttl_ms: 30000
  audit_capacity: 200
`

func TestConfigLoadYAML(t *testing.T) {
	cfg, err := permit.NewConfigLoader().LoadYAML([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Memberships) != 2 || len(cfg.OrgMemberships) != 1 || len(cfg.ProjectOrgs) != 1 {
		t.Fatalf("unexpected counts: %+v", cfg)
	}
	if cfg.Engine.AuditCapacity != 200 {
		t.Fatalf("engine tuning lost: %+v", cfg.Engine)
	}

	m, err := cfg.Memberships[1].Membership()
	if err != nil {
		t.Fatalf("convert membership: %v", err)
	}
	if m.ExpiresAt == nil || m.ExpiresAt.Year() != 2030 {
		t.Fatalf("flexible date parse failed: %+v", m.ExpiresAt)
	}
	if m.Scope == nil || len(m.Scope.Trades) != 1 {
		t.Fatalf("scope lost in conversion: %+v", m.Scope)
	}
}

func TestConfigValidateRejectsBadEntries(t *testing.T) {
	loader := permit.NewConfigLoader()

	cases := []string{
		// Unknown role.
		"memberships:\n  - {user_id: u, project_id: p, role: WIZARD}\n",
		// Scope-limited role without scope.
		"memberships:\n  - {user_id: u, project_id: p, role: FOREMAN}\n",
		// Unparseable expiry.
		"memberships:\n  - {user_id: u, project_id: p, role: VIEWER, expires_at: not-a-date}\n",
		// Missing IDs.
		"memberships:\n  - {user_id: '', project_id: p, role: VIEWER}\n",
		// Unknown org role.
		"org_memberships:\n  - {user_id: u, org_id: o, role: SUPREME_LEADER}\n",
	}
	for i, doc := range cases {
		cfg, err := loader.LoadYAML([]byte(doc))
		if err != nil {
			t.Fatalf("case %d: load: %v", i, err)
		}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestApplyConfigSeedsStores(t *testing.T) {
	cfg, err := permit.NewConfigLoader().LoadYAML([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	members := stores.NewMemoryMembershipStore()
	orgs := stores.NewMemoryOrganizationStore()
	ctx := context.Background()

	if err := permit.ApplyConfig(ctx, cfg, members, orgs); err != nil {
		t.Fatalf("apply: %v", err)
	}

	eng, err := permit.NewEngine(members, orgs, cfg.Engine.EngineOptions()...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer eng.Close()

	res, err := eng.Check(ctx, &permit.CheckRequest{
		UserID: "u-pm", ProjectID: "p1", Action: "documents:update",
		Resource: &permit.ResourceContext{ResourceType: "document", ResourceID: "d1"},
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("seeded manager must be allowed: %+v", res)
	}

	res, err = eng.Check(ctx, &permit.CheckRequest{
		UserID: "u-owner", ProjectID: "p1", Action: "projects:update",
		Resource: &permit.ResourceContext{ResourceType: "settings"},
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("seeded org owner must inherit admin: %+v", res)
	}
}
