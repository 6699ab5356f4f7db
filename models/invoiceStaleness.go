package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceStaleness is the one tracking row per invoice (uniq over
// business_id + invoice_id). It is never re-created: the sweep updates it
// in place, marks it resolved when activity returns, and reopens the same
// row when the invoice goes quiet again.
type InvoiceStaleness struct {
	ID             int            `gorm:"primary_key" json:"id"`
	BusinessId     string         `gorm:"size:64;not null;index:uniq_staleness,unique" json:"business_id"`
	InvoiceId      int            `gorm:"not null;index:uniq_staleness,unique" json:"invoice_id"`
	CurrentStatus  InvoiceStatus  `gorm:"size:50;not null" json:"current_status"`
	Level          StalenessLevel `gorm:"size:20;not null;index" json:"level"`
	DaysInactive   int            `gorm:"not null" json:"days_inactive"`
	LastActivityAt time.Time      `gorm:"type:datetime(6);not null" json:"last_activity_at"`
	ExpectedAction string         `gorm:"size:255" json:"expected_action"`
	NotifiedAt     *time.Time     `gorm:"type:datetime(6)" json:"notified_at"`
	Resolved       bool           `gorm:"not null;default:false" json:"resolved"`
	ResolvedAt     *time.Time     `gorm:"type:datetime(6)" json:"resolved_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s InvoiceStaleness) GetBusinessId() string {
	return s.BusinessId
}

// stalenessTiers are the escalation cutoffs in days of inactivity.
type stalenessTiers struct {
	WarningDays  int
	CriticalDays int
	SevereDays   int
}

func defaultStalenessTiers() stalenessTiers {
	return stalenessTiers{WarningDays: 3, CriticalDays: 7, SevereDays: 14}
}

func loadStalenessTiers(ctx context.Context) (stalenessTiers, error) {
	t := stalenessTiers{}
	var err error
	if t.WarningDays, err = GetSettingInt(ctx, 0, SettingKeyStaleWarningDays); err != nil {
		return t, err
	}
	if t.CriticalDays, err = GetSettingInt(ctx, 0, SettingKeyStaleCriticalDays); err != nil {
		return t, err
	}
	if t.SevereDays, err = GetSettingInt(ctx, 0, SettingKeyStaleSevereDays); err != nil {
		return t, err
	}
	return t, nil
}

// classifyStaleness maps days of inactivity onto a level. Pure.
func classifyStaleness(daysInactive int, tiers stalenessTiers) StalenessLevel {
	switch {
	case daysInactive >= tiers.SevereDays:
		return StalenessLevelSevere
	case daysInactive >= tiers.CriticalDays:
		return StalenessLevelCritical
	case daysInactive >= tiers.WarningDays:
		return StalenessLevelWarning
	default:
		return StalenessLevelNone
	}
}

// expectedStalenessAction names who has to move next for the invoice to
// advance out of its current status. Pure.
func expectedStalenessAction(status InvoiceStatus) string {
	switch status {
	case InvoiceStatusDraft:
		return "complete and submit the invoice"
	case InvoiceStatusSubmitted:
		return "pick the invoice up for review"
	case InvoiceStatusUnderReview:
		return "finish the review decision"
	case InvoiceStatusApproved:
		return "schedule the invoice for payment"
	case InvoiceStatusApprovedForPayment:
		return "execute the payment"
	case InvoiceStatusDisputed:
		return "resolve the dispute"
	default:
		return "review the invoice"
	}
}

// lastInvoiceActivity finds the newest sign of life across every activity
// source: the invoice row itself, its status timeline, its audit chain, and
// notifications sent about it. Any of them advancing resets the clock.
func lastInvoiceActivity(ctx context.Context, invoice *Invoice) (time.Time, error) {
	latest := invoice.LastStatusChange
	if invoice.UpdatedAt.After(latest) {
		latest = invoice.UpdatedAt
	}

	db := config.GetDB()
	entry, err := latestStatusEntryAfter(ctx, db, invoice.ID, latest)
	if err != nil {
		return time.Time{}, err
	}
	if entry != nil {
		latest = entry.CreatedAt
	}

	var audit AuditRecord
	err = db.WithContext(ctx).
		Where("business_id = ? AND entity_type = ? AND entity_id = ? AND proof_timestamp > ?",
			invoice.BusinessId, EntityTypeInvoice, invoice.ID, latest).
		Order("proof_timestamp DESC").
		First(&audit).Error
	if err == nil {
		latest = audit.ProofTimestamp
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, err
	}

	var notification Notification
	err = db.WithContext(ctx).
		Where("business_id = ? AND related_entity_type = ? AND related_entity_id = ? AND created_at > ?",
			invoice.BusinessId, EntityTypeInvoice, invoice.ID, latest).
		Order("created_at DESC").
		First(&notification).Error
	if err == nil {
		latest = notification.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, err
	}

	return latest, nil
}

// DetectStaleInvoices sweeps the tenant's non-terminal invoices, flags the
// inactive ones at the right tier, resolves recovered flags, and sends at
// most one notification per staleness episode. Returns the flags that are
// live after the sweep.
func DetectStaleInvoices(ctx context.Context) ([]*InvoiceStaleness, error) {
	invoices, err := ListOpenInvoices(ctx)
	if err != nil {
		return nil, err
	}
	tiers, err := loadStalenessTiers(ctx)
	if err != nil {
		return nil, err
	}

	logger := config.GetLogger()
	now := time.Now().UTC()
	var flagged []*InvoiceStaleness
	for _, invoice := range invoices {
		flag, err := refreshStalenessFlag(ctx, invoice, tiers, now)
		if err != nil {
			config.LogError(logger, "models", "DetectStaleInvoices", "invoice skipped", map[string]any{
				"invoice_id": invoice.ID,
			}, err)
			continue
		}
		if flag != nil {
			flagged = append(flagged, flag)
		}
	}
	return flagged, nil
}

// refreshStalenessFlag reconciles one invoice's tracking row with the
// observed activity. Returns nil when the invoice is not stale.
func refreshStalenessFlag(ctx context.Context, invoice *Invoice, tiers stalenessTiers, now time.Time) (*InvoiceStaleness, error) {
	lastActivity, err := lastInvoiceActivity(ctx, invoice)
	if err != nil {
		return nil, err
	}
	daysInactive := utils.DaysSince(lastActivity, now)
	level := classifyStaleness(daysInactive, tiers)

	db := config.GetDB()
	if level == StalenessLevelNone {
		return nil, resolveStalenessFlag(ctx, db, invoice, now)
	}

	var flag *InvoiceStaleness
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		flag, err = upsertStalenessFlag(tx, invoice, level, daysInactive, lastActivity)
		return err
	})
	if err != nil {
		return nil, err
	}

	notifiable := level == StalenessLevelCritical || level == StalenessLevelSevere
	if notifiable && flag.NotifiedAt == nil && !config.DetectorNotificationsDisabled() {
		if err := notifyStaleInvoice(ctx, invoice, flag); err != nil {
			return nil, err
		}
	}
	return flag, nil
}

// resolveStalenessFlag closes the episode in place when activity returned.
// Invoices that were never flagged have no row and nothing to do.
func resolveStalenessFlag(ctx context.Context, db *gorm.DB, invoice *Invoice, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing InvoiceStaleness
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND invoice_id = ?", invoice.BusinessId, invoice.ID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if existing.Resolved {
			return nil
		}

		before := existing
		updates := map[string]interface{}{
			"resolved":       true,
			"resolved_at":    now,
			"current_status": invoice.CurrentStatus,
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		existing.Resolved = true
		existing.ResolvedAt = &now
		existing.CurrentStatus = invoice.CurrentStatus

		_, err = AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeStaleness,
			EntityId:      existing.ID,
			Action:        AuditActionStaleness,
			OldState:      &before,
			NewState:      &existing,
			Changes:       map[string]any{"resolved": true},
			WorkflowStage: WorkflowStageMonitoring,
		})
		return err
	})
}

func upsertStalenessFlag(tx *gorm.DB, invoice *Invoice, level StalenessLevel, daysInactive int, lastActivity time.Time) (*InvoiceStaleness, error) {
	var existing InvoiceStaleness
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND invoice_id = ?", invoice.BusinessId, invoice.ID).
		First(&existing).Error
	if err == nil {
		return updateStalenessFlag(tx, &existing, invoice, level, daysInactive, lastActivity)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	flag := InvoiceStaleness{
		BusinessId:     invoice.BusinessId,
		InvoiceId:      invoice.ID,
		CurrentStatus:  invoice.CurrentStatus,
		Level:          level,
		DaysInactive:   daysInactive,
		LastActivityAt: lastActivity,
		ExpectedAction: expectedStalenessAction(invoice.CurrentStatus),
	}
	if err := tx.Create(&flag).Error; err != nil {
		// Concurrent sweep won the insert; fall back to updating its row.
		if utils.IsDuplicateKeyError(err) {
			var current InvoiceStaleness
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("business_id = ? AND invoice_id = ?", invoice.BusinessId, invoice.ID).
				First(&current).Error; err != nil {
				return nil, err
			}
			return updateStalenessFlag(tx, &current, invoice, level, daysInactive, lastActivity)
		}
		return nil, err
	}

	if _, err := AppendAudit(tx, AuditEntry{
		EntityType:    EntityTypeStaleness,
		EntityId:      flag.ID,
		Action:        AuditActionStaleness,
		NewState:      flag,
		WorkflowStage: WorkflowStageMonitoring,
		WorkflowState: map[string]any{"invoice_id": invoice.ID, "level": level, "days_inactive": daysInactive},
	}); err != nil {
		return nil, err
	}
	return &flag, nil
}

func updateStalenessFlag(tx *gorm.DB, existing *InvoiceStaleness, invoice *Invoice, level StalenessLevel, daysInactive int, lastActivity time.Time) (*InvoiceStaleness, error) {
	before := *existing

	updates := map[string]interface{}{
		"level":            level,
		"days_inactive":    daysInactive,
		"last_activity_at": lastActivity,
		"current_status":   invoice.CurrentStatus,
		"expected_action":  expectedStalenessAction(invoice.CurrentStatus),
	}
	// A fresh episode begins when activity advanced past the old clock or
	// the row had been resolved; the notification flag resets either way.
	if lastActivity.After(existing.LastActivityAt) || existing.Resolved {
		updates["notified_at"] = nil
		existing.NotifiedAt = nil
	}
	if existing.Resolved {
		updates["resolved"] = false
		updates["resolved_at"] = nil
		existing.Resolved = false
		existing.ResolvedAt = nil
	}
	if err := tx.Model(existing).Updates(updates).Error; err != nil {
		return nil, err
	}
	existing.Level = level
	existing.DaysInactive = daysInactive
	existing.LastActivityAt = lastActivity
	existing.CurrentStatus = invoice.CurrentStatus
	existing.ExpectedAction = expectedStalenessAction(invoice.CurrentStatus)

	// Escalation and reopening are audit-worthy; a same-level refresh is not.
	if before.Level != level || before.Resolved {
		if _, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeStaleness,
			EntityId:      existing.ID,
			Action:        AuditActionStaleness,
			OldState:      &before,
			NewState:      existing,
			Changes:       map[string]any{"level": level, "days_inactive": daysInactive},
			WorkflowStage: WorkflowStageMonitoring,
		}); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// notifyStaleInvoice sends the once-per-episode reminder and stamps
// notified_at in the same transaction as the outbox write.
func notifyStaleInvoice(ctx context.Context, invoice *Invoice, flag *InvoiceStaleness) error {
	recipient, err := GetSettingValue(ctx, 0, SettingKeyStaleNotifyTarget, settingDefault(SettingKeyStaleNotifyTarget))
	if err != nil {
		return err
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		priority := NotificationPriorityHigh
		if flag.Level == StalenessLevelSevere {
			priority = NotificationPriorityUrgent
		}
		_, err := SendNotification(tx, NewNotification{
			Recipient:         recipient,
			NotificationType:  NotificationTypeStaleInvoice,
			Title:             fmt.Sprintf("Invoice %d is stale (%s)", invoice.ID, flag.Level),
			Message:           fmt.Sprintf("Invoice %d has had no activity for %d days and is flagged %s; next step: %s.", invoice.ID, flag.DaysInactive, flag.Level, flag.ExpectedAction),
			RelatedEntityType: EntityTypeInvoice,
			RelatedEntityId:   invoice.ID,
			Priority:          priority,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(flag).Update("notified_at", now).Error; err != nil {
			return err
		}
		flag.NotifiedAt = &now
		return nil
	})
}

// GetStalenessFlag returns the tracking row for an invoice, resolved or
// not, or a typed not-found error when the invoice was never flagged.
func GetStalenessFlag(ctx context.Context, invoiceId int) (*InvoiceStaleness, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var flag InvoiceStaleness
	err := db.WithContext(ctx).
		Where("business_id = ? AND invoice_id = ?", businessId, invoiceId).
		First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &flag, nil
}
