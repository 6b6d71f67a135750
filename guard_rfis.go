package permit

// newRFIsGuard protects requests for information. Responding is bound to the
// RFI workflow status and assignment; closing requires a recorded response.
func newRFIsGuard() *FeatureGuard {
	g := &FeatureGuard{
		Feature:         "rfis",
		DefaultResource: "rfi",
	}
	g.rules = map[string]ruleFunc{
		"respond": func(c *guardCtx) *GuardResult {
			if !c.statusIn("open", "draft") {
				return c.denyStatus(ReasonInvalidStatus, "",
					"RFIs can only be responded to while open or draft (current status: %s)", c.status())
			}
			if !c.isAssigned() && !c.isAdminOrManager() {
				return c.deny(ReasonNotAssigned, "",
					"Only the assigned responder or a project admin/manager can respond to this RFI")
			}
			return nil
		},
		"assign": func(c *guardCtx) *GuardResult {
			if !c.hasRole(RoleProjectAdmin, RoleProjectManager, RoleProjectEngineer, RoleSuperintendent) {
				return c.deny(ReasonInsufficientPermissions, "",
					"Role %s cannot assign RFIs", c.role)
			}
			return nil
		},
		"close": func(c *guardCtx) *GuardResult {
			if !c.metaBool("hasResponse") {
				return c.deny(ReasonWorkflowViolation, CodeResponseRequired,
					"An RFI cannot be closed before it has a response")
			}
			if !c.isOwner() && !c.isAssigned() && !c.isAdminOrManager() {
				return c.deny(ReasonNotAssigned, "",
					"Only the RFI creator, an assignee or a project admin/manager can close this RFI")
			}
			return nil
		},
	}
	return g
}
