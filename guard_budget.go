package permit

// Monetary thresholds above which approvals escalate to admin-only. Callers
// may override per check via the approvalThreshold metadata key.
const (
	DefaultChangeOrderThreshold = 10_000.0
	DefaultPaymentThreshold     = 50_000.0
)

// newBudgetGuard protects financial data. Budget access is binary by role and
// never scope-filtered; large change orders and payments escalate to
// admin-only approval.
func newBudgetGuard() *FeatureGuard {
	return newBudgetGuardWithThresholds(DefaultChangeOrderThreshold, DefaultPaymentThreshold)
}

// newBudgetGuardWithThresholds builds the budget guard with custom escalation
// limits.
func newBudgetGuardWithThresholds(changeOrderThreshold, paymentThreshold float64) *FeatureGuard {
	g := &FeatureGuard{
		Feature:         "budget",
		DefaultResource: "budget",
		SkipScope:       true,
	}
	financialRoles := []ProjectRole{RoleProjectAdmin, RoleProjectManager, RoleOwnerRep}

	roleGate := func(c *guardCtx) *GuardResult {
		if !c.hasRole(financialRoles...) {
			return c.deny(ReasonFinancialAccess, "",
				"Role %s has no access to financial data", c.role)
		}
		return nil
	}

	escalate := func(c *guardCtx, defaultThreshold float64) *GuardResult {
		amount := c.metaFloat("amount", 0)
		threshold := c.metaFloat("approvalThreshold", defaultThreshold)
		if amount > threshold {
			if c.role != RoleProjectAdmin {
				return c.deny(ReasonAdminOnly, CodeAdminApprovalRequired,
					"Amounts above %.2f require project admin approval", threshold).
					withMeta(map[string]any{"amount": amount, "threshold": threshold})
			}
			return nil
		}
		if !c.isAdminOrManager() {
			return c.deny(ReasonInsufficientPermissions, "",
				"Role %s cannot approve financial transactions", c.role)
		}
		return nil
	}

	g.rules = map[string]ruleFunc{
		"read": roleGate,
		"approve_change_order": func(c *guardCtx) *GuardResult {
			return escalate(c, changeOrderThreshold)
		},
		"approve_payment": func(c *guardCtx) *GuardResult {
			if res := escalate(c, paymentThreshold); res != nil {
				return res
			}
			if !c.metaBool("hasReview") {
				return c.deny(ReasonWorkflowViolation, CodePaymentReviewRequired,
					"Payments must be reviewed before approval")
			}
			return nil
		},
	}
	return g
}
