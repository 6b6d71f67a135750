package permit

// newSafetyGuard protects safety incidents and inspections. Investigation and
// closure are restricted to the roles carrying safety responsibility on site
// (admin, manager, superintendent).
func newSafetyGuard() *FeatureGuard {
	g := &FeatureGuard{
		Feature:         "safety",
		DefaultResource: "incident",
	}
	safetyRoles := []ProjectRole{RoleProjectAdmin, RoleProjectManager, RoleSuperintendent}

	g.rules = map[string]ruleFunc{
		"investigate": func(c *guardCtx) *GuardResult {
			if !c.statusIn("open", "reported") {
				return c.denyStatus(ReasonInvalidStatus, "",
					"Incidents can only be investigated while open or reported (current status: %s)", c.status())
			}
			if !c.hasRole(safetyRoles...) {
				return c.deny(ReasonInsufficientPermissions, "",
					"Role %s cannot investigate safety incidents", c.role)
			}
			return nil
		},
		"close": func(c *guardCtx) *GuardResult {
			if !c.metaBool("hasInvestigation") {
				return c.deny(ReasonWorkflowViolation, CodeInvestigationRequired,
					"An incident cannot be closed before an investigation is recorded")
			}
			if !c.statusIn("under_investigation", "investigated") {
				return c.denyStatus(ReasonInvalidStatus, "",
					"Incidents can only be closed while under investigation or investigated (current status: %s)", c.status())
			}
			if !c.hasRole(safetyRoles...) {
				return c.deny(ReasonInsufficientPermissions, "",
					"Role %s cannot close safety incidents", c.role)
			}
			return nil
		},
		"update": func(c *guardCtx) *GuardResult {
			// The reporter keeps edit rights until closure; assignees and the
			// safety role set always qualify.
			if c.isOwner() && c.status() != "closed" {
				return nil
			}
			if c.isAssigned() || c.hasRole(safetyRoles...) {
				return nil
			}
			return c.deny(ReasonNotAssigned, "",
				"Only the reporter, an assignee or safety staff can update this incident")
		},
	}
	return g
}
