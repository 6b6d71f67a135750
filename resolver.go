package permit

import (
	"context"
	"time"

	"github.com/oarkflow/permit/logger"
)

// RoleSource says where an effective role came from.
type RoleSource string

const (
	SourceExplicit  RoleSource = "explicit"
	SourceInherited RoleSource = "inherited"
	SourceNone      RoleSource = "none"
)

// EffectiveRole is the role actually applied to a user on a project.
type EffectiveRole struct {
	Role      ProjectRole `json:"role"`
	Inherited bool        `json:"is_inherited"`
	Source    RoleSource  `json:"source"`
}

// ExpirationStatus classifies a membership's time bound.
type ExpirationStatus string

const (
	ExpirationActive  ExpirationStatus = "ACTIVE"
	ExpirationExpired ExpirationStatus = "EXPIRED"
	ExpirationNone    ExpirationStatus = "NONE"
)

// resolution bundles the effective role with the membership attributes the
// permission service needs alongside it. Inherited roles carry no scope and no
// expiry by construction.
type resolution struct {
	Role      ProjectRole
	Inherited bool
	Source    RoleSource
	Scope     *UserScope
	ExpiresAt *time.Time
	ProjectOK bool
}

// Resolver computes effective roles: explicit project membership first,
// organization-role inheritance as fallback.
type Resolver struct {
	members MembershipStore
	orgs    OrganizationStore
	log     logger.Logger
	now     func() time.Time
}

func NewResolver(members MembershipStore, orgs OrganizationStore, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Resolver{members: members, orgs: orgs, log: log, now: time.Now}
}

// resolve looks up the explicit membership, then falls back to the inherited
// organization role. A resolution with Source == SourceNone means no access.
func (r *Resolver) resolve(ctx context.Context, userID, projectID string) (resolution, error) {
	m, err := r.members.GetProjectMembership(ctx, userID, projectID)
	if err != nil {
		return resolution{}, err
	}
	if m != nil {
		return resolution{
			Role:      m.Role,
			Source:    SourceExplicit,
			Scope:     m.Scope,
			ExpiresAt: m.ExpiresAt,
			ProjectOK: true,
		}, nil
	}

	orgID, err := r.orgs.GetProjectOrganization(ctx, projectID)
	if err != nil {
		return resolution{}, err
	}
	if orgID == "" {
		return resolution{Source: SourceNone}, nil
	}
	om, err := r.orgs.GetOrganizationMembership(ctx, userID, orgID)
	if err != nil {
		return resolution{}, err
	}
	if om != nil {
		if role, ok := InheritedProjectRole(om.Role); ok {
			// Inherited roles bypass scope and never expire.
			return resolution{Role: role, Inherited: true, Source: SourceInherited, ProjectOK: true}, nil
		}
	}
	return resolution{Source: SourceNone, ProjectOK: true}, nil
}

// EffectiveRole resolves the role applied to a user on a project. Role is ""
// with Source == SourceNone when the user has no access path.
func (r *Resolver) EffectiveRole(ctx context.Context, userID, projectID string) (EffectiveRole, error) {
	res, err := r.resolve(ctx, userID, projectID)
	if err != nil {
		return EffectiveRole{Source: SourceNone}, err
	}
	return EffectiveRole{Role: res.Role, Inherited: res.Inherited, Source: res.Source}, nil
}

// CheckExpiration classifies the user's timed access to the project. Only
// explicit memberships carry an expiry; inherited roles are always ACTIVE, and
// a user with no access path at all is NONE.
func (r *Resolver) CheckExpiration(ctx context.Context, userID, projectID string) (ExpirationStatus, *time.Time, error) {
	res, err := r.resolve(ctx, userID, projectID)
	if err != nil {
		return ExpirationNone, nil, err
	}
	return r.classify(res), res.ExpiresAt, nil
}

func (r *Resolver) classify(res resolution) ExpirationStatus {
	switch res.Source {
	case SourceInherited:
		return ExpirationActive
	case SourceExplicit:
		if res.ExpiresAt == nil {
			return ExpirationActive
		}
		if res.ExpiresAt.Before(r.now()) {
			return ExpirationExpired
		}
		return ExpirationActive
	default:
		return ExpirationNone
	}
}
