package permit

import "fmt"

// DenialReason is the closed set of reasons a check can fail. Callers branch on
// these values; new reasons are an API change.
type DenialReason string

const (
	ReasonInsufficientPermissions DenialReason = "INSUFFICIENT_PERMISSIONS"
	ReasonScopeRestriction        DenialReason = "SCOPE_RESTRICTION"
	ReasonAccessExpired           DenialReason = "ACCESS_EXPIRED"
	ReasonProjectNotFound         DenialReason = "PROJECT_NOT_FOUND"
	ReasonUserNotMember           DenialReason = "USER_NOT_MEMBER"
	ReasonResourceNotFound        DenialReason = "RESOURCE_NOT_FOUND"
	ReasonOwnerOnly               DenialReason = "OWNER_ONLY"
	ReasonAdminOnly               DenialReason = "ADMIN_ONLY"
	ReasonNotAssigned             DenialReason = "NOT_ASSIGNED"
	ReasonInvalidStatus           DenialReason = "INVALID_STATUS"
	ReasonWorkflowViolation       DenialReason = "WORKFLOW_VIOLATION"
	ReasonFinancialAccess         DenialReason = "FINANCIAL_ACCESS_REQUIRED"
)

// Denial codes carry finer-grained detail than the reason enum. They are stable
// strings surfaced to clients, not an enum the engine branches on.
const (
	CodeSelfApprovalNotAllowed    = "SELF_APPROVAL_NOT_ALLOWED"
	CodeSelfModificationForbidden = "SELF_MODIFICATION_NOT_ALLOWED"
	CodeAdminApprovalRequired     = "ADMIN_APPROVAL_REQUIRED"
	CodePaymentReviewRequired     = "PAYMENT_REVIEW_REQUIRED"
	CodeReviewRequired            = "REVIEW_REQUIRED"
	CodeResponseRequired          = "RESPONSE_REQUIRED"
	CodeInvestigationRequired     = "INVESTIGATION_REQUIRED"
	CodeDocumentationRequired     = "DOCUMENTATION_REQUIRED"
	CodeFailureReasonRequired     = "FAILURE_REASON_REQUIRED"
	CodeConfirmationRequired      = "CONFIRMATION_REQUIRED"
	CodeActiveDataExists          = "ACTIVE_DATA_EXISTS"
	CodeConfidentialExport        = "CONFIDENTIAL_EXPORT_RESTRICTED"
	CodeOwnerApprovalRequired     = "OWNER_APPROVAL_REQUIRED"
)

// DenialError is raised only by Engine.Enforce; everywhere else denials are
// plain result values. The HTTP adapter (outside this module) maps it to a
// transport response.
type DenialError struct {
	Reason  DenialReason
	Code    string
	Message string
	Details map[string]any
}

func (e *DenialError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("permission denied: %s (%s): %s", e.Reason, e.Code, e.Message)
	}
	return fmt.Sprintf("permission denied: %s: %s", e.Reason, e.Message)
}
