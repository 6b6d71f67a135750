package permit

import "fmt"

// ProjectRole is one of the ten fixed roles a user can hold on a project.
type ProjectRole string

const (
	RoleProjectAdmin      ProjectRole = "PROJECT_ADMIN"
	RoleProjectManager    ProjectRole = "PROJECT_MANAGER"
	RoleProjectEngineer   ProjectRole = "PROJECT_ENGINEER"
	RoleSuperintendent    ProjectRole = "SUPERINTENDENT"
	RoleForeman           ProjectRole = "FOREMAN"
	RoleArchitectEngineer ProjectRole = "ARCHITECT_ENGINEER"
	RoleSubcontractor     ProjectRole = "SUBCONTRACTOR"
	RoleOwnerRep          ProjectRole = "OWNER_REP"
	RoleInspector         ProjectRole = "INSPECTOR"
	RoleViewer            ProjectRole = "VIEWER"
)

// OrgRole is a user's role inside the organization that owns projects.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "OWNER"
	OrgRoleAdmin  OrgRole = "ORG_ADMIN"
	OrgRoleMember OrgRole = "ORG_MEMBER"
	OrgRoleGuest  OrgRole = "GUEST"
)

// ProjectRoles lists every project role, in privilege order.
var ProjectRoles = []ProjectRole{
	RoleProjectAdmin,
	RoleProjectManager,
	RoleProjectEngineer,
	RoleSuperintendent,
	RoleForeman,
	RoleArchitectEngineer,
	RoleSubcontractor,
	RoleOwnerRep,
	RoleInspector,
	RoleViewer,
}

// rolePermissionMatrix maps each project role to its permission set. Loaded at
// process start, never mutated. PROJECT_ADMIN is the single wildcard grant.
var rolePermissionMatrix = map[ProjectRole][]Permission{
	RoleProjectAdmin: {Wildcard},
	RoleProjectManager: {
		"documents:*:*",
		"rfis:*:*",
		"submittals:*:*",
		"safety:*:*",
		"quality:*:*",
		"budget:*:*",
		"tasks:*:*",
		"photos:*:*",
		"reports:*:*",
		"projects:settings:read",
		"projects:settings:update",
		"projects:members:read",
	},
	RoleProjectEngineer: {
		"documents:document:read",
		"documents:drawing:*",
		"documents:spec:read",
		"rfis:rfi:create",
		"rfis:rfi:read",
		"rfis:rfi:respond",
		"rfis:rfi:assign",
		"submittals:submittal:read",
		"submittals:submittal:review",
		"submittals:submittal:approve",
		"quality:inspection:read",
		"tasks:task:read",
		"tasks:task:update",
		"photos:photo:read",
		"reports:report:read",
	},
	RoleSuperintendent: {
		"documents:document:read",
		"documents:drawing:read",
		"rfis:rfi:create",
		"rfis:rfi:read",
		"rfis:rfi:respond",
		"rfis:rfi:assign",
		"safety:*:*",
		"quality:inspection:read",
		"quality:inspection:create",
		"tasks:*:*",
		"photos:photo:create",
		"photos:photo:read",
		"reports:daily_report:create",
		"reports:daily_report:read",
	},
	RoleForeman: {
		"documents:document:read",
		"documents:drawing:read",
		"tasks:task:read",
		"tasks:task:update",
		"photos:photo:create",
		"photos:photo:read",
		"safety:incident:create",
		"safety:incident:read",
		"reports:daily_report:create",
		"reports:daily_report:read",
	},
	RoleArchitectEngineer: {
		"documents:document:read",
		"documents:drawing:*",
		"documents:spec:*",
		"rfis:rfi:read",
		"rfis:rfi:respond",
		"submittals:submittal:read",
		"submittals:submittal:review",
		"quality:inspection:read",
		"photos:photo:read",
	},
	RoleSubcontractor: {
		"documents:document:read",
		"documents:drawing:read",
		"rfis:rfi:create",
		"rfis:rfi:read",
		"submittals:submittal:create",
		"submittals:submittal:read",
		"tasks:task:read",
		"tasks:task:update",
		"photos:photo:create",
		"photos:photo:read",
		"reports:daily_report:create",
	},
	RoleOwnerRep: {
		"documents:document:read",
		"rfis:rfi:read",
		"submittals:submittal:read",
		"budget:budget:read",
		"budget:cost:read",
		"quality:inspection:read",
		"photos:photo:read",
		"reports:report:read",
	},
	RoleInspector: {
		"quality:*:*",
		"safety:inspection:read",
		"documents:document:read",
		"documents:drawing:read",
		"photos:photo:create",
		"photos:photo:read",
		"reports:report:read",
	},
	RoleViewer: {
		"documents:document:read",
		"rfis:rfi:read",
		"submittals:submittal:read",
		"tasks:task:read",
		"photos:photo:read",
		"reports:report:read",
	},
}

// orgRoleInheritance maps an organization role to the project role it grants
// automatically on every project of that organization, without an explicit
// membership. Only owners and org admins inherit anything.
var orgRoleInheritance = map[OrgRole]ProjectRole{
	OrgRoleOwner: RoleProjectAdmin,
	OrgRoleAdmin: RoleProjectAdmin,
}

// scopeLimitedRoles are roles whose grants are additionally gated by scope
// matching. Memberships for these roles must carry a non-empty scope.
var scopeLimitedRoles = map[ProjectRole]bool{
	RoleForeman:       true,
	RoleSubcontractor: true,
}

// ValidRole reports whether r is one of the ten project roles.
func ValidRole(r ProjectRole) bool {
	_, ok := rolePermissionMatrix[r]
	return ok
}

// RolePermissions returns a copy of the permission set for a role. Unknown
// roles get nothing.
func RolePermissions(r ProjectRole) []Permission {
	perms, ok := rolePermissionMatrix[r]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// InheritedProjectRole returns the project role granted by an organization
// role, if any.
func InheritedProjectRole(r OrgRole) (ProjectRole, bool) {
	pr, ok := orgRoleInheritance[r]
	return pr, ok
}

// IsScopeLimited reports whether resource access for the role additionally
// requires a scope match.
func IsScopeLimited(r ProjectRole) bool {
	return scopeLimitedRoles[r]
}

// ValidateScopeForRole rejects membership assignments that would leave a
// scope-limited role without a usable scope. Called at assignment time, before
// the membership is persisted.
func ValidateScopeForRole(r ProjectRole, scope *UserScope) error {
	if !ValidRole(r) {
		return fmt.Errorf("unknown project role %q", r)
	}
	if !IsScopeLimited(r) {
		return nil
	}
	if scope == nil || IsScopeEmpty(scope) {
		return fmt.Errorf("role %s requires scope: assign at least one trade, area, phase or tag", r)
	}
	return nil
}

// PermissionUniverse enumerates every concrete permission named in the matrix,
// for ExpandWildcard and admin tooling.
func PermissionUniverse() []Permission {
	seen := make(map[Permission]bool)
	out := make([]Permission, 0)
	for _, perms := range rolePermissionMatrix {
		for _, p := range perms {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
