package permit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oarkflow/date"
	"gopkg.in/yaml.v3"
)

// Config is the declarative seed format: memberships, org links and engine
// tuning in one document. Project role assignments reference users and
// projects by opaque ID.
type Config struct {
	Version        int                       `json:"version" yaml:"version"`
	Memberships    []MembershipConfig        `json:"memberships" yaml:"memberships"`
	OrgMemberships []OrgMembershipConfig     `json:"org_memberships" yaml:"org_memberships"`
	ProjectOrgs    []ProjectOrganizationLink `json:"project_orgs" yaml:"project_orgs"`
	Engine         EngineConfig              `json:"engine" yaml:"engine"`
}

// MembershipConfig seeds one project role assignment. ExpiresAt accepts any
// common timestamp layout.
type MembershipConfig struct {
	UserID     string     `json:"user_id" yaml:"user_id"`
	ProjectID  string     `json:"project_id" yaml:"project_id"`
	Role       string     `json:"role" yaml:"role"`
	Scope      *UserScope `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt  string     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	AssignedBy string     `json:"assigned_by,omitempty" yaml:"assigned_by,omitempty"`
}

// OrgMembershipConfig seeds one organization role assignment.
type OrgMembershipConfig struct {
	UserID string `json:"user_id" yaml:"user_id"`
	OrgID  string `json:"org_id" yaml:"org_id"`
	Role   string `json:"role" yaml:"role"`
}

// ProjectOrganizationLink records which organization owns a project.
type ProjectOrganizationLink struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	OrgID     string `json:"org_id" yaml:"org_id"`
}

// EngineConfig tunes caches and thresholds. Zero values keep defaults.
type EngineConfig struct {
	PermissionCacheTTL   int64   `json:"permission_cache_ttl_ms" yaml:"permission_cache_ttl_ms"`
	GuardCacheTTL        int64   `json:"guard_cache_ttl_ms" yaml:"guard_cache_ttl_ms"`
	GuardJanitorInterval int64   `json:"guard_janitor_interval_ms" yaml:"guard_janitor_interval_ms"`
	AuditCapacity        int     `json:"audit_capacity" yaml:"audit_capacity"`
	RistrettoNumCounter  int64   `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost     int64   `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer      int64   `json:"ristretto_buffer" yaml:"ristretto_buffer"`
	ChangeOrderThreshold float64 `json:"change_order_threshold" yaml:"change_order_threshold"`
	PaymentThreshold     float64 `json:"payment_threshold" yaml:"payment_threshold"`
}

// ConfigLoader parses configuration documents.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile dispatches on extension: .yaml/.yml or .json.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

// Validate checks every seed entry without touching any store.
func (cfg *Config) Validate() error {
	for i, m := range cfg.Memberships {
		if m.UserID == "" || m.ProjectID == "" {
			return fmt.Errorf("membership %d: user_id and project_id are required", i)
		}
		role := ProjectRole(m.Role)
		if !ValidRole(role) {
			return fmt.Errorf("membership %d: unknown role %q", i, m.Role)
		}
		if err := ValidateScopeForRole(role, m.Scope); err != nil {
			return fmt.Errorf("membership %d: %w", i, err)
		}
		if m.ExpiresAt != "" {
			if _, err := date.Parse(m.ExpiresAt); err != nil {
				return fmt.Errorf("membership %d: bad expires_at %q: %w", i, m.ExpiresAt, err)
			}
		}
	}
	for i, m := range cfg.OrgMemberships {
		if m.UserID == "" || m.OrgID == "" {
			return fmt.Errorf("org membership %d: user_id and org_id are required", i)
		}
		switch OrgRole(m.Role) {
		case OrgRoleOwner, OrgRoleAdmin, OrgRoleMember, OrgRoleGuest:
		default:
			return fmt.Errorf("org membership %d: unknown org role %q", i, m.Role)
		}
	}
	for i, p := range cfg.ProjectOrgs {
		if p.ProjectID == "" || p.OrgID == "" {
			return fmt.Errorf("project org %d: project_id and org_id are required", i)
		}
	}
	return nil
}

// Membership converts one seed entry, parsing the flexible timestamp.
func (m *MembershipConfig) Membership() (*ProjectMembership, error) {
	pm := &ProjectMembership{
		UserID:     m.UserID,
		ProjectID:  m.ProjectID,
		Role:       ProjectRole(m.Role),
		Scope:      m.Scope,
		AssignedBy: m.AssignedBy,
		AssignedAt: time.Now(),
	}
	if m.ExpiresAt != "" {
		t, err := date.Parse(m.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("bad expires_at %q: %w", m.ExpiresAt, err)
		}
		pm.ExpiresAt = &t
	}
	return pm, nil
}

// MembershipSeeder is the write side a config seed needs from a membership
// store.
type MembershipSeeder interface {
	PutProjectMembership(ctx context.Context, m *ProjectMembership) error
}

// OrganizationSeeder is the write side a config seed needs from an
// organization store.
type OrganizationSeeder interface {
	PutOrganizationMembership(ctx context.Context, m *OrganizationMembership) error
	SetProjectOrganization(ctx context.Context, projectID, orgID string) error
}

// ApplyConfig seeds memberships and organization links into the given stores.
// The config must already validate.
func ApplyConfig(ctx context.Context, cfg *Config, members MembershipSeeder, orgs OrganizationSeeder) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, mc := range cfg.Memberships {
		pm, err := mc.Membership()
		if err != nil {
			return fmt.Errorf("membership %s/%s: %w", mc.UserID, mc.ProjectID, err)
		}
		if err := members.PutProjectMembership(ctx, pm); err != nil {
			return fmt.Errorf("seed membership %s/%s: %w", mc.UserID, mc.ProjectID, err)
		}
	}
	if orgs == nil {
		if len(cfg.OrgMemberships) > 0 || len(cfg.ProjectOrgs) > 0 {
			return fmt.Errorf("config seeds organizations but no organization store was given")
		}
		return nil
	}
	for _, om := range cfg.OrgMemberships {
		err := orgs.PutOrganizationMembership(ctx, &OrganizationMembership{
			UserID:         om.UserID,
			OrganizationID: om.OrgID,
			Role:           OrgRole(om.Role),
		})
		if err != nil {
			return fmt.Errorf("seed org membership %s/%s: %w", om.UserID, om.OrgID, err)
		}
	}
	for _, link := range cfg.ProjectOrgs {
		if err := orgs.SetProjectOrganization(ctx, link.ProjectID, link.OrgID); err != nil {
			return fmt.Errorf("link project %s to org %s: %w", link.ProjectID, link.OrgID, err)
		}
	}
	return nil
}

// EngineOptions translates the tuning section into functional options.
func (ec EngineConfig) EngineOptions() []EngineOption {
	var opts []EngineOption
	svcCfg := PermissionServiceConfig{
		CacheTTL:            time.Duration(ec.PermissionCacheTTL) * time.Millisecond,
		RistrettoNumCounter: ec.RistrettoNumCounter,
		RistrettoMaxCost:    ec.RistrettoMaxCost,
		RistrettoBuffer:     ec.RistrettoBuffer,
	}
	if svcCfg != (PermissionServiceConfig{}) {
		opts = append(opts, WithPermissionCache(svcCfg))
	}
	if ec.GuardCacheTTL > 0 || ec.GuardJanitorInterval > 0 {
		opts = append(opts, WithGuardCache(
			time.Duration(ec.GuardCacheTTL)*time.Millisecond,
			time.Duration(ec.GuardJanitorInterval)*time.Millisecond,
		))
	}
	if ec.AuditCapacity > 0 {
		opts = append(opts, WithAudit(ec.AuditCapacity, nil))
	}
	if ec.ChangeOrderThreshold > 0 || ec.PaymentThreshold > 0 {
		co, pay := ec.ChangeOrderThreshold, ec.PaymentThreshold
		if co <= 0 {
			co = DefaultChangeOrderThreshold
		}
		if pay <= 0 {
			pay = DefaultPaymentThreshold
		}
		opts = append(opts, WithFinancialThresholds(co, pay))
	}
	return opts
}
