package models

type InvoiceStatus string

const (
	InvoiceStatusDraft              InvoiceStatus = "Draft"
	InvoiceStatusSubmitted          InvoiceStatus = "Submitted"
	InvoiceStatusUnderReview        InvoiceStatus = "Under Review"
	InvoiceStatusApproved           InvoiceStatus = "Approved"
	InvoiceStatusApprovedForPayment InvoiceStatus = "Approved For Payment"
	InvoiceStatusPaid               InvoiceStatus = "Paid"
	InvoiceStatusRejected           InvoiceStatus = "Rejected"
	InvoiceStatusDisputed           InvoiceStatus = "Disputed"
)

// IsTerminal reports whether the invoice needs no further attention.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusRejected
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusConfirmed PurchaseOrderStatus = "Confirmed"
	PurchaseOrderStatusClosed    PurchaseOrderStatus = "Closed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
)

type MatchingStatus string

const (
	MatchingStatusPending  MatchingStatus = "Pending"
	MatchingStatusMatched  MatchingStatus = "Matched"
	MatchingStatusPartial  MatchingStatus = "Partial"
	MatchingStatusMismatch MatchingStatus = "Mismatch"
	MatchingStatusDisputed MatchingStatus = "Disputed"
)

type MatchApprovalStatus string

const (
	MatchApprovalStatusPending  MatchApprovalStatus = "Pending"
	MatchApprovalStatusApproved MatchApprovalStatus = "Approved"
	MatchApprovalStatusRejected MatchApprovalStatus = "Rejected"
)

type ClaimStatus string

const (
	ClaimStatusSubmitted ClaimStatus = "Submitted"
	ClaimStatusPending   ClaimStatus = "Pending"
	ClaimStatusApproved  ClaimStatus = "Approved"
	ClaimStatusPaid      ClaimStatus = "Paid"
	ClaimStatusRejected  ClaimStatus = "Rejected"
	ClaimStatusCancelled ClaimStatus = "Cancelled"
)

type ExceptionType string

const (
	ExceptionTypeMissingDocument   ExceptionType = "MissingDocument"
	ExceptionTypeVarianceBreach    ExceptionType = "VarianceBreach"
	ExceptionTypeAgingThreshold    ExceptionType = "AgingThreshold"
	ExceptionTypeMatchingFailure   ExceptionType = "MatchingFailure"
	ExceptionTypeApprovalOverdue   ExceptionType = "ApprovalOverdue"
	ExceptionTypePaymentDelayed    ExceptionType = "PaymentDelayed"
	ExceptionTypeInvalidData       ExceptionType = "InvalidData"
	ExceptionTypeDuplicateDetected ExceptionType = "DuplicateDetected"
)

type ExceptionSeverity string

const (
	ExceptionSeverityLow      ExceptionSeverity = "Low"
	ExceptionSeverityMedium   ExceptionSeverity = "Medium"
	ExceptionSeverityHigh     ExceptionSeverity = "High"
	ExceptionSeverityCritical ExceptionSeverity = "Critical"
)

type ExceptionStatus string

const (
	ExceptionStatusOpen       ExceptionStatus = "Open"
	ExceptionStatusInProgress ExceptionStatus = "InProgress"
	ExceptionStatusResolved   ExceptionStatus = "Resolved"
	ExceptionStatusIgnored    ExceptionStatus = "Ignored"
)

func (s ExceptionStatus) IsOpen() bool {
	return s == ExceptionStatusOpen || s == ExceptionStatusInProgress
}

type StalenessLevel string

const (
	StalenessLevelNone     StalenessLevel = ""
	StalenessLevelWarning  StalenessLevel = "Warning"
	StalenessLevelCritical StalenessLevel = "Critical"
	StalenessLevelSevere   StalenessLevel = "Severe"
)

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "Low"
	NotificationPriorityNormal NotificationPriority = "Normal"
	NotificationPriorityHigh   NotificationPriority = "High"
	NotificationPriorityUrgent NotificationPriority = "Urgent"
)

type NotificationType string

const (
	NotificationTypeStaleInvoice      NotificationType = "StaleInvoice"
	NotificationTypeInvoiceException  NotificationType = "InvoiceException"
	NotificationTypeMatchApproved     NotificationType = "MatchApproved"
	NotificationTypeMatchRejected     NotificationType = "MatchRejected"
	NotificationTypeClaimBlocked      NotificationType = "ClaimBlocked"
	NotificationTypeAutoApproved      NotificationType = "AutoApproved"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending   OutboxPublishStatus = "PENDING"
	OutboxPublishStatusSent      OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed    OutboxPublishStatus = "FAILED"
	OutboxPublishStatusProcessed OutboxPublishStatus = "PROCESSED"
)

// Audit action names. Free-form strings are allowed for module-specific
// actions; these cover the shared lifecycle verbs.
const (
	AuditActionCreate        = "CREATE"
	AuditActionUpdate        = "UPDATE"
	AuditActionStatusChange  = "STATUS_CHANGE"
	AuditActionMatch         = "MATCH"
	AuditActionApprove       = "APPROVE"
	AuditActionReject        = "REJECT"
	AuditActionAutoApprove   = "AUTO_APPROVE"
	AuditActionException     = "EXCEPTION_RAISED"
	AuditActionExceptionEnd  = "EXCEPTION_CLOSED"
	AuditActionStaleness     = "STALENESS_FLAGGED"
	AuditActionNotification  = "NOTIFICATION_SENT"
	AuditActionExport        = "EXPORT"
)

// Workflow stage labels recorded on audit entries.
const (
	WorkflowStageIntake         = "intake"
	WorkflowStageValidation     = "validation"
	WorkflowStageReconciliation = "reconciliation"
	WorkflowStageApproval       = "approval"
	WorkflowStageMonitoring     = "monitoring"
	WorkflowStagePayment        = "payment"
)

// Entity type labels used as the audit ledger's entity_type key.
const (
	EntityTypeInvoice       = "Invoice"
	EntityTypePurchaseOrder = "PurchaseOrder"
	EntityTypeGoodsReceipt  = "GoodsReceipt"
	EntityTypeThreeWayMatch = "ThreeWayMatch"
	EntityTypeExpenseClaim  = "ExpenseClaim"
	EntityTypeException     = "InvoiceException"
	EntityTypeStaleness     = "InvoiceStaleness"
)
