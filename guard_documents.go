package permit

// newDocumentsGuard protects project documents, drawings and specs. Beyond the
// base permission, approval of owner-approval documents, deletion and
// confidential export carry ownership and role rules.
func newDocumentsGuard() *FeatureGuard {
	g := &FeatureGuard{
		Feature:         "documents",
		DefaultResource: "document",
	}
	g.rules = map[string]ruleFunc{
		"approve": func(c *guardCtx) *GuardResult {
			if c.metaBool("requiresOwnerApproval") && !c.isOwner() && !c.isAdminOrManager() {
				return c.deny(ReasonOwnerOnly, CodeOwnerApprovalRequired,
					"This document requires approval by its owner or a project admin/manager")
			}
			return nil
		},
		"delete": func(c *guardCtx) *GuardResult {
			if !c.isOwner() && !c.isAdminOrManager() {
				return c.deny(ReasonOwnerOnly, "",
					"Only the document owner or a project admin/manager can delete this document")
			}
			return nil
		},
		"export": func(c *guardCtx) *GuardResult {
			if c.metaBool("isConfidential") && !c.isAdminOrManager() {
				return c.deny(ReasonInsufficientPermissions, CodeConfidentialExport,
					"Confidential documents can only be exported by a project admin/manager")
			}
			return nil
		},
	}
	return g
}
