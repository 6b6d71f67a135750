package permit

// newSettingsGuard protects project configuration. Critical settings and
// structural changes after project start are admin-only; permission
// management and project deletion carry self-modification bans and an
// explicit confirmation flow.
func newSettingsGuard() *FeatureGuard {
	g := &FeatureGuard{
		Feature:         "projects",
		DefaultResource: "settings",
	}

	configure := func(c *guardCtx) *GuardResult {
		if !c.isAdminOrManager() {
			return c.deny(ReasonInsufficientPermissions, "",
				"Role %s cannot change project settings", c.role)
		}
		critical := c.metaBool("critical")
		structural := c.metaBool("structuralChange") && c.metaBool("projectStarted")
		if (critical || structural) && c.role != RoleProjectAdmin {
			return c.deny(ReasonAdminOnly, "",
				"Critical or structural settings changes require a project admin")
		}
		return nil
	}

	g.rules = map[string]ruleFunc{
		"update":    configure,
		"configure": configure,
		"manage_permissions": func(c *guardCtx) *GuardResult {
			if c.role != RoleProjectAdmin {
				return c.deny(ReasonAdminOnly, "", "Only project admins can manage permissions")
			}
			if target := c.metaString("targetUserID"); target != "" && target == c.req.UserID {
				return c.deny(ReasonWorkflowViolation, CodeSelfModificationForbidden,
					"Admins cannot modify or remove their own access")
			}
			return nil
		},
		"delete": func(c *guardCtx) *GuardResult {
			if c.role != RoleProjectAdmin {
				return c.deny(ReasonAdminOnly, "", "Only project admins can delete a project")
			}
			if !c.metaBool("confirmed") {
				return c.deny(ReasonWorkflowViolation, CodeConfirmationRequired,
					"Project deletion requires explicit confirmation")
			}
			if c.metaBool("hasActiveData") {
				return c.deny(ReasonWorkflowViolation, CodeActiveDataExists,
					"Projects with active data cannot be deleted")
			}
			return nil
		},
	}
	return g
}
