package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceException is a detected problem on an invoice. At most one OPEN
// exception per (invoice, type): open_marker is "open" while the exception
// is live and NULL once closed, and MySQL unique indexes skip NULLs, so the
// uniq_open_exception index admits any number of closed episodes but only
// one open one.
type InvoiceException struct {
	ID             int               `gorm:"primary_key" json:"id"`
	BusinessId     string            `gorm:"size:64;not null;index:uniq_open_exception,unique" json:"business_id"`
	InvoiceId      int               `gorm:"not null;index:uniq_open_exception,unique;index" json:"invoice_id"`
	ExceptionType  ExceptionType     `gorm:"size:50;not null;index:uniq_open_exception,unique" json:"exception_type"`
	OpenMarker     *string           `gorm:"size:10;index:uniq_open_exception,unique" json:"-"`
	Severity       ExceptionSeverity `gorm:"size:20;not null;index" json:"severity"`
	Status         ExceptionStatus   `gorm:"size:20;not null;index" json:"status"`
	Title          string            `gorm:"size:255" json:"title"`
	Description    string            `gorm:"size:1000" json:"description"`
	ExceptionData  string            `gorm:"type:text" json:"exception_data"`
	DetectedAt     time.Time         `gorm:"type:datetime(6);not null" json:"detected_at"`
	ResolvedAt     *time.Time        `json:"resolved_at"`
	ResolvedBy     int               `gorm:"default:0" json:"resolved_by"`
	ResolutionNote string            `gorm:"size:1000" json:"resolution_note"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e InvoiceException) GetBusinessId() string {
	return e.BusinessId
}

// ExceptionCandidate is one rule firing, before dedup against open rows.
type ExceptionCandidate struct {
	ExceptionType ExceptionType
	Severity      ExceptionSeverity
	Title         string
	Description   string
	Data          map[string]any
}

// exceptionThresholds carries every tunable the rules read, resolved from
// settings once per scan.
type exceptionThresholds struct {
	VarianceThreshold decimal.Decimal
	VarianceHighBand  decimal.Decimal
	VarianceCritBand  decimal.Decimal
	AgingWarningDays  int
	AgingCriticalDays int
	ApprovalHighDays  int
	ApprovalCritDays  int
	PaymentHighDays   int
	PaymentCritDays   int
}

func defaultExceptionThresholds() exceptionThresholds {
	return exceptionThresholds{
		VarianceThreshold: decimal.NewFromInt(100),
		VarianceHighBand:  decimal.NewFromInt(500),
		VarianceCritBand:  decimal.NewFromInt(1000),
		AgingWarningDays:  30,
		AgingCriticalDays: 60,
		ApprovalHighDays:  7,
		ApprovalCritDays:  14,
		PaymentHighDays:   7,
		PaymentCritDays:   14,
	}
}

func loadExceptionThresholds(ctx context.Context) (exceptionThresholds, error) {
	t := exceptionThresholds{}
	var err error
	if t.VarianceThreshold, err = GetSettingDecimal(ctx, 0, SettingKeyVarianceThreshold); err != nil {
		return t, err
	}
	if t.VarianceHighBand, err = GetSettingDecimal(ctx, 0, SettingKeyVarianceHighBand); err != nil {
		return t, err
	}
	if t.VarianceCritBand, err = GetSettingDecimal(ctx, 0, SettingKeyVarianceCritBand); err != nil {
		return t, err
	}
	if t.AgingWarningDays, err = GetSettingInt(ctx, 0, SettingKeyAgingWarningDays); err != nil {
		return t, err
	}
	if t.AgingCriticalDays, err = GetSettingInt(ctx, 0, SettingKeyAgingCriticalDays); err != nil {
		return t, err
	}
	if t.ApprovalHighDays, err = GetSettingInt(ctx, 0, SettingKeyApprovalHighDays); err != nil {
		return t, err
	}
	if t.ApprovalCritDays, err = GetSettingInt(ctx, 0, SettingKeyApprovalCritDays); err != nil {
		return t, err
	}
	if t.PaymentHighDays, err = GetSettingInt(ctx, 0, SettingKeyPaymentHighDays); err != nil {
		return t, err
	}
	if t.PaymentCritDays, err = GetSettingInt(ctx, 0, SettingKeyPaymentCritDays); err != nil {
		return t, err
	}
	return t, nil
}

// exceptionFacts is the per-invoice input of the rules: the invoice, its
// latest match (nil when never matched), and whether another live invoice
// shares its supplier and number.
type exceptionFacts struct {
	Invoice         *Invoice
	Match           *ThreeWayMatch
	DuplicateExists bool
}

// detectInvoiceExceptions runs every rule against one invoice. Pure: all
// datastore facts arrive pre-fetched, and now is injected so tests can pin
// the clock.
func detectInvoiceExceptions(facts *exceptionFacts, thresholds exceptionThresholds, now time.Time) []ExceptionCandidate {
	invoice := facts.Invoice
	var candidates []ExceptionCandidate
	add := func(t ExceptionType, s ExceptionSeverity, title string, data map[string]any, format string, args ...interface{}) {
		candidates = append(candidates, ExceptionCandidate{
			ExceptionType: t,
			Severity:      s,
			Title:         title,
			Description:   fmt.Sprintf(format, args...),
			Data:          data,
		})
	}

	// Missing document links block three-way matching entirely. Once the
	// invoice is paid the documents are moot.
	if invoice.CurrentStatus != InvoiceStatusPaid {
		missingDocData := map[string]any{
			"purchase_order_id": invoice.PurchaseOrderId,
			"goods_receipt_id":  invoice.GoodsReceiptId,
		}
		switch {
		case invoice.PurchaseOrderId == 0 && invoice.GoodsReceiptId == 0:
			add(ExceptionTypeMissingDocument, ExceptionSeverityHigh, "Missing purchase order and goods receipt", missingDocData,
				"invoice has neither a purchase order nor a goods receipt linked")
		case invoice.PurchaseOrderId == 0:
			add(ExceptionTypeMissingDocument, ExceptionSeverityHigh, "Missing purchase order", missingDocData,
				"invoice has no purchase order linked")
		case invoice.GoodsReceiptId == 0:
			add(ExceptionTypeMissingDocument, ExceptionSeverityHigh, "Missing goods receipt", missingDocData,
				"invoice has no goods receipt linked")
		}
	}

	if facts.Match != nil {
		absVariance := facts.Match.VarianceAmount.Abs()
		if absVariance.GreaterThan(thresholds.VarianceThreshold) {
			severity := ExceptionSeverityMedium
			switch {
			case absVariance.GreaterThan(thresholds.VarianceCritBand):
				severity = ExceptionSeverityCritical
			case absVariance.GreaterThan(thresholds.VarianceHighBand):
				severity = ExceptionSeverityHigh
			}
			add(ExceptionTypeVarianceBreach, severity, "Variance over threshold",
				map[string]any{
					"variance_amount": facts.Match.VarianceAmount,
					"threshold":       thresholds.VarianceThreshold,
					"match_id":        facts.Match.ID,
				},
				"invoice variance %s exceeds the threshold of %s",
				facts.Match.VarianceAmount.StringFixed(2), thresholds.VarianceThreshold.StringFixed(2))
		}

		if facts.Match.MatchingStatus == MatchingStatusMismatch {
			severity := ExceptionSeverityHigh
			if facts.Match.MatchingScore.LessThan(decimal.NewFromInt(50)) {
				severity = ExceptionSeverityCritical
			}
			add(ExceptionTypeMatchingFailure, severity, "Three-way match failed",
				map[string]any{
					"matching_score": facts.Match.MatchingScore,
					"match_id":       facts.Match.ID,
				},
				"three-way match scored %s (Mismatch)", facts.Match.MatchingScore.StringFixed(2))
		}
	}

	// Aging runs off the invoice date when present, creation otherwise.
	// Paid invoices are done aging.
	if invoice.CurrentStatus != InvoiceStatusPaid {
		agingFrom := invoice.CreatedAt
		if invoice.InvoiceDate != nil {
			agingFrom = *invoice.InvoiceDate
		}
		if ageDays := utils.DaysSince(agingFrom, now); ageDays >= thresholds.AgingWarningDays {
			severity := ExceptionSeverityMedium
			if ageDays >= thresholds.AgingCriticalDays {
				severity = ExceptionSeverityCritical
			}
			add(ExceptionTypeAgingThreshold, severity, "Invoice aging threshold reached",
				map[string]any{"age_days": ageDays, "current_status": invoice.CurrentStatus},
				"invoice is %d days old and still %s", ageDays, invoice.CurrentStatus)
		}
	}

	if invoice.CurrentStatus == InvoiceStatusUnderReview && invoice.ReviewStartedAt != nil {
		if reviewDays := utils.DaysSince(*invoice.ReviewStartedAt, now); reviewDays >= thresholds.ApprovalHighDays {
			severity := ExceptionSeverityHigh
			if reviewDays >= thresholds.ApprovalCritDays {
				severity = ExceptionSeverityCritical
			}
			add(ExceptionTypeApprovalOverdue, severity, "Approval overdue",
				map[string]any{"review_days": reviewDays},
				"invoice has been under review for %d days", reviewDays)
		}
	}

	// Any expected payment date in the past raises; severity scales with
	// how late the payment is.
	if invoice.CurrentStatus == InvoiceStatusApprovedForPayment && invoice.ExpectedPaymentDate != nil && now.After(*invoice.ExpectedPaymentDate) {
		lateDays := utils.DaysSince(*invoice.ExpectedPaymentDate, now)
		severity := ExceptionSeverityMedium
		switch {
		case lateDays > thresholds.PaymentCritDays:
			severity = ExceptionSeverityCritical
		case lateDays > thresholds.PaymentHighDays:
			severity = ExceptionSeverityHigh
		}
		add(ExceptionTypePaymentDelayed, severity, "Payment delayed",
			map[string]any{"late_days": lateDays, "expected_payment_date": invoice.ExpectedPaymentDate},
			"payment is %d days past the expected date", lateDays)
	}

	// Each data defect is its own high-severity candidate; the open-per-type
	// uniqueness still caps how many persist at once.
	if invoice.InvoiceNumber == "" {
		add(ExceptionTypeInvalidData, ExceptionSeverityHigh, "Missing invoice number",
			map[string]any{"field": "invoice_number"},
			"invoice has no invoice number")
	}
	if invoice.InvoiceDate == nil {
		add(ExceptionTypeInvalidData, ExceptionSeverityHigh, "Missing invoice date",
			map[string]any{"field": "invoice_date"},
			"invoice has no invoice date")
	}
	if !invoice.InvoiceTotalAmount.IsPositive() {
		add(ExceptionTypeInvalidData, ExceptionSeverityHigh, "Non-positive invoice amount",
			map[string]any{"field": "invoice_total_amount", "amount": invoice.InvoiceTotalAmount},
			"invoice amount %s is not positive", invoice.InvoiceTotalAmount.StringFixed(2))
	}

	if facts.DuplicateExists {
		add(ExceptionTypeDuplicateDetected, ExceptionSeverityHigh, "Possible duplicate invoice",
			map[string]any{"invoice_number": invoice.InvoiceNumber, "supplier_id": invoice.SupplierId},
			"another live invoice from the same supplier carries number %q", invoice.InvoiceNumber)
	}

	return candidates
}

// duplicateInvoiceExists reports whether another non-rejected invoice of the
// same supplier carries the same invoice number.
func duplicateInvoiceExists(ctx context.Context, invoice *Invoice) (bool, error) {
	if invoice.InvoiceNumber == "" {
		return false, nil
	}
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Invoice{}).
		Where("business_id = ? AND supplier_id = ? AND invoice_number = ? AND id != ?",
			invoice.BusinessId, invoice.SupplierId, invoice.InvoiceNumber, invoice.ID).
		Where("current_status != ?", InvoiceStatusRejected).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DetectExceptionsForInvoice evaluates one invoice and raises whatever is
// not already open. Returns the exceptions raised by this call only.
func DetectExceptionsForInvoice(ctx context.Context, invoiceId int) ([]*InvoiceException, error) {
	invoice, err := GetInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	thresholds, err := loadExceptionThresholds(ctx)
	if err != nil {
		return nil, err
	}
	return detectAndRaise(ctx, invoice, thresholds)
}

// ScanInvoiceExceptions runs the detector across every open invoice of the
// tenant. Per-invoice failures are logged and skipped so one bad row cannot
// stall the scan.
func ScanInvoiceExceptions(ctx context.Context) ([]*InvoiceException, error) {
	invoices, err := ListOpenInvoices(ctx)
	if err != nil {
		return nil, err
	}
	thresholds, err := loadExceptionThresholds(ctx)
	if err != nil {
		return nil, err
	}

	logger := config.GetLogger()
	var raised []*InvoiceException
	for _, invoice := range invoices {
		exceptions, err := detectAndRaise(ctx, invoice, thresholds)
		if err != nil {
			config.LogError(logger, "models", "ScanInvoiceExceptions", "invoice skipped", map[string]any{
				"invoice_id": invoice.ID,
			}, err)
			continue
		}
		raised = append(raised, exceptions...)
	}
	return raised, nil
}

func detectAndRaise(ctx context.Context, invoice *Invoice, thresholds exceptionThresholds) ([]*InvoiceException, error) {
	match, err := GetLatestMatchForInvoice(ctx, invoice.ID)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}
	duplicate, err := duplicateInvoiceExists(ctx, invoice)
	if err != nil {
		return nil, err
	}

	facts := exceptionFacts{Invoice: invoice, Match: match, DuplicateExists: duplicate}
	candidates := detectInvoiceExceptions(&facts, thresholds, time.Now().UTC())

	var raised []*InvoiceException
	for _, candidate := range candidates {
		exception, err := raiseException(ctx, invoice, candidate)
		if err != nil {
			return nil, err
		}
		if exception != nil {
			raised = append(raised, exception)
		}
	}
	return raised, nil
}

// raiseException inserts the exception unless one of the same type is
// already open for the invoice. Returns nil when suppressed. The unique
// index backstops the pre-check: a concurrent scan losing the insert race
// is treated as suppression, not failure.
func raiseException(ctx context.Context, invoice *Invoice, candidate ExceptionCandidate) (*InvoiceException, error) {
	db := config.GetDB()

	var count int64
	err := db.WithContext(ctx).Model(&InvoiceException{}).
		Where("business_id = ? AND invoice_id = ? AND exception_type = ? AND open_marker IS NOT NULL",
			invoice.BusinessId, invoice.ID, candidate.ExceptionType).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}

	exceptionData := ""
	if candidate.Data != nil {
		exceptionData, err = utils.MarshalToJSON(candidate.Data)
		if err != nil {
			return nil, err
		}
	}

	marker := "open"
	exception := InvoiceException{
		BusinessId:    invoice.BusinessId,
		InvoiceId:     invoice.ID,
		ExceptionType: candidate.ExceptionType,
		OpenMarker:    &marker,
		Severity:      candidate.Severity,
		Status:        ExceptionStatusOpen,
		Title:         candidate.Title,
		Description:   candidate.Description,
		ExceptionData: exceptionData,
		DetectedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&exception).Error; err != nil {
			return err
		}
		if _, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeException,
			EntityId:      exception.ID,
			Action:        AuditActionException,
			NewState:      exception,
			WorkflowStage: WorkflowStageMonitoring,
			WorkflowState: map[string]any{"invoice_id": invoice.ID, "exception_type": candidate.ExceptionType},
		}); err != nil {
			return err
		}
		if severityNotifies(candidate.Severity) && !config.DetectorNotificationsDisabled() {
			recipient, err := GetSettingValue(ctx, 0, SettingKeyStaleNotifyTarget, settingDefault(SettingKeyStaleNotifyTarget))
			if err != nil {
				return err
			}
			_, err = SendNotification(tx, NewNotification{
				Recipient:         recipient,
				NotificationType:  NotificationTypeInvoiceException,
				Title:             fmt.Sprintf("%s: invoice %d", candidate.Title, invoice.ID),
				Message:           candidate.Description,
				RelatedEntityType: EntityTypeInvoice,
				RelatedEntityId:   invoice.ID,
				Priority:          notificationPriorityForSeverity(candidate.Severity),
			})
			return err
		}
		return nil
	})
	if err != nil {
		if utils.IsDuplicateKeyError(err) {
			return nil, nil
		}
		return nil, err
	}
	return &exception, nil
}

func severityNotifies(severity ExceptionSeverity) bool {
	return severity == ExceptionSeverityHigh || severity == ExceptionSeverityCritical
}

func notificationPriorityForSeverity(severity ExceptionSeverity) NotificationPriority {
	if severity == ExceptionSeverityCritical {
		return NotificationPriorityUrgent
	}
	return NotificationPriorityHigh
}

func GetInvoiceException(ctx context.Context, id int) (*InvoiceException, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[InvoiceException](ctx, businessId, id)
}

// ListOpenExceptions returns the tenant's open exceptions, most severe
// episodes first by detection time.
func ListOpenExceptions(ctx context.Context, invoiceId int) ([]*InvoiceException, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	query := db.WithContext(ctx).
		Where("business_id = ? AND open_marker IS NOT NULL", businessId)
	if invoiceId > 0 {
		query = query.Where("invoice_id = ?", invoiceId)
	}
	var exceptions []*InvoiceException
	if err := query.Order("detected_at ASC").Find(&exceptions).Error; err != nil {
		return nil, err
	}
	return exceptions, nil
}

// ResolveException closes an open exception with a note. The row is locked
// so two reviewers cannot both close it.
func ResolveException(ctx context.Context, id int, note string) (*InvoiceException, error) {
	return closeException(ctx, id, ExceptionStatusResolved, note)
}

// IgnoreException closes an open exception as a non-issue.
func IgnoreException(ctx context.Context, id int, note string) (*InvoiceException, error) {
	return closeException(ctx, id, ExceptionStatusIgnored, note)
}

func closeException(ctx context.Context, id int, status ExceptionStatus, note string) (*InvoiceException, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	db := config.GetDB()
	var exception InvoiceException
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND id = ?", businessId, id).
			First(&exception).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}
		if !exception.Status.IsOpen() {
			return fmt.Errorf("exception %d is already %s", id, exception.Status)
		}
		before := exception

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":          status,
			"open_marker":     nil,
			"resolved_at":     now,
			"resolved_by":     userId,
			"resolution_note": note,
		}
		if err := tx.Model(&exception).Updates(updates).Error; err != nil {
			return err
		}
		exception.Status = status
		exception.OpenMarker = nil
		exception.ResolvedAt = &now
		exception.ResolvedBy = userId
		exception.ResolutionNote = note

		_, err = AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeException,
			EntityId:      exception.ID,
			Action:        AuditActionExceptionEnd,
			OldState:      &before,
			NewState:      &exception,
			Changes:       map[string]any{"status": status, "resolution_note": note},
			WorkflowStage: WorkflowStageMonitoring,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &exception, nil
}
