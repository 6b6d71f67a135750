package permit

// newQualityGuard protects quality inspections. The central rule is the
// self-approval ban: an inspector never signs off their own inspection, no
// matter their role.
func newQualityGuard() *FeatureGuard {
	g := &FeatureGuard{
		Feature:         "quality",
		DefaultResource: "inspection",
	}

	signOff := func(c *guardCtx) *GuardResult {
		if c.isOwner() {
			return c.deny(ReasonWorkflowViolation, CodeSelfApprovalNotAllowed,
				"Inspectors cannot approve their own inspections")
		}
		if c.metaBool("requiresDocumentation") && !c.metaBool("hasDocumentation") {
			return c.deny(ReasonWorkflowViolation, CodeDocumentationRequired,
				"This inspection requires documentation before sign-off")
		}
		return nil
	}

	g.rules = map[string]ruleFunc{
		"approve": signOff,
		"pass":    signOff,
		"fail": func(c *guardCtx) *GuardResult {
			if c.metaString("failureReason") == "" {
				return c.deny(ReasonWorkflowViolation, CodeFailureReasonRequired,
					"Failing an inspection requires a failure reason")
			}
			return nil
		},
	}
	return g
}
