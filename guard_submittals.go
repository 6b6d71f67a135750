package permit

// newSubmittalsGuard protects submittal review workflow. Approval demands a
// recorded review; reject and require_resubmit share approve's role gate with
// their own status sets.
func newSubmittalsGuard() *FeatureGuard {
	g := &FeatureGuard{
		Feature:         "submittals",
		DefaultResource: "submittal",
	}
	reviewRoles := []ProjectRole{RoleProjectAdmin, RoleProjectManager, RoleProjectEngineer}

	g.rules = map[string]ruleFunc{
		"review": func(c *guardCtx) *GuardResult {
			if !c.statusIn("submitted", "under_review") {
				return c.denyStatus(ReasonInvalidStatus, "",
					"Submittals can only be reviewed while submitted or under review (current status: %s)", c.status())
			}
			if !c.isAssigned() && !c.hasRole(reviewRoles...) {
				return c.deny(ReasonNotAssigned, "",
					"Only the assigned reviewer or a project admin/manager/engineer can review this submittal")
			}
			return nil
		},
		"approve": func(c *guardCtx) *GuardResult {
			if !c.statusIn("under_review", "reviewed") {
				return c.denyStatus(ReasonInvalidStatus, "",
					"Submittals can only be approved while under review or reviewed (current status: %s)", c.status())
			}
			if !c.metaBool("hasReview") {
				return c.deny(ReasonWorkflowViolation, CodeReviewRequired,
					"A submittal cannot be approved before a review is recorded")
			}
			if !c.hasRole(reviewRoles...) {
				return c.deny(ReasonInsufficientPermissions, "",
					"Role %s cannot approve submittals", c.role)
			}
			return nil
		},
		"reject": func(c *guardCtx) *GuardResult {
			if !c.statusIn("under_review", "reviewed") {
				return c.denyStatus(ReasonInvalidStatus, "",
					"Submittals can only be rejected while under review or reviewed (current status: %s)", c.status())
			}
			if !c.hasRole(reviewRoles...) {
				return c.deny(ReasonInsufficientPermissions, "",
					"Role %s cannot reject submittals", c.role)
			}
			return nil
		},
		"require_resubmit": func(c *guardCtx) *GuardResult {
			if !c.statusIn("under_review", "reviewed", "rejected") {
				return c.denyStatus(ReasonInvalidStatus, "",
					"Resubmission can only be required while under review, reviewed or rejected (current status: %s)", c.status())
			}
			if !c.hasRole(reviewRoles...) {
				return c.deny(ReasonInsufficientPermissions, "",
					"Role %s cannot require resubmission", c.role)
			}
			return nil
		},
	}
	return g
}
