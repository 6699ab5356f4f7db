package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThreeWayMatch reconciles one (purchase order, goods receipt, invoice)
// triple into a confidence score. One logical row per triple per tenant,
// enforced by uniq_match; re-matching updates in place.
type ThreeWayMatch struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	BusinessId      string               `gorm:"size:64;not null;index:uniq_match,unique" json:"business_id"`
	PurchaseOrderId int                  `gorm:"not null;index:uniq_match,unique" json:"purchase_order_id"`
	GoodsReceiptId  int                  `gorm:"not null;index:uniq_match,unique" json:"goods_receipt_id"`
	InvoiceId       int                  `gorm:"not null;index:uniq_match,unique;index" json:"invoice_id"`
	PoAmount        decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"po_amount"`
	GrnAmount       decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"grn_amount"`
	InvoiceAmount   decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"invoice_amount"`
	VarianceAmount  decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"variance_amount"`
	MatchingScore   decimal.Decimal      `gorm:"type:decimal(7,4);default:0" json:"matching_score"`
	MatchingStatus  MatchingStatus       `gorm:"type:enum('Pending','Matched','Partial','Mismatch','Disputed');not null" json:"matching_status"`
	ApprovalStatus  *MatchApprovalStatus `gorm:"type:enum('Pending','Approved','Rejected');default:null" json:"approval_status"`
	ApprovedBy      string               `gorm:"size:100" json:"approved_by"`
	ApprovedAt      *time.Time           `gorm:"default:null" json:"approved_at"`
	RejectionReason string               `gorm:"type:text" json:"rejection_reason"`
	PaymentEligible bool                 `gorm:"not null;default:false" json:"payment_eligible"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m ThreeWayMatch) GetBusinessId() string {
	return m.BusinessId
}

// scoreBands are the matched/partial cutoffs. Settings-driven; the defaults
// are load-bearing and pinned by tests.
type scoreBands struct {
	Matched decimal.Decimal
	Partial decimal.Decimal
}

func defaultScoreBands() scoreBands {
	return scoreBands{
		Matched: decimal.NewFromInt(95),
		Partial: decimal.NewFromInt(80),
	}
}

var oneHundred = decimal.NewFromInt(100)

// computeMatchScore derives variance, score, and status from the three
// document amounts.
//
//	variance = invoice - po
//	score    = max(0, 100 - |variance| / max(po, grn) * 100)
//
// The denominator is the larger of the ordered and received amounts; the
// invoice amount is deliberately excluded so an inflated invoice cannot
// dilute its own variance. When both reference amounts are zero there is
// nothing to reconcile and the score is defined as 0.
func computeMatchScore(po, grn, inv decimal.Decimal, bands scoreBands) (variance, score decimal.Decimal, status MatchingStatus) {
	variance = inv.Sub(po)

	denominator := decimal.Max(po, grn)
	if denominator.LessThanOrEqual(decimal.Zero) {
		return variance, decimal.Zero, MatchingStatusMismatch
	}

	score = oneHundred.Sub(variance.Abs().Div(denominator).Mul(oneHundred))
	if score.IsNegative() {
		score = decimal.Zero
	}

	switch {
	case score.GreaterThanOrEqual(bands.Matched):
		status = MatchingStatusMatched
	case score.GreaterThanOrEqual(bands.Partial):
		status = MatchingStatusPartial
	default:
		status = MatchingStatusMismatch
	}
	return variance, score, status
}

// MatchDocuments runs (or re-runs) the three-way match for a triple. All
// three documents must exist; a missing one fails the call outright rather
// than producing a partial match.
//
// Retried calls are idempotent in effect: the unique triple index plus the
// in-place update path guarantee a single stored row whose score reflects the
// latest call.
func MatchDocuments(ctx context.Context, poId, grnId, invoiceId int) (*ThreeWayMatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	po, err := GetPurchaseOrder(ctx, poId)
	if err != nil {
		return nil, err
	}
	grn, err := GetGoodsReceipt(ctx, grnId)
	if err != nil {
		return nil, err
	}
	invoice, err := GetInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}

	bands, err := matchingScoreBands(ctx)
	if err != nil {
		return nil, err
	}
	variance, score, status := computeMatchScore(po.OrderTotalAmount, grn.ReceivedAmount, invoice.InvoiceTotalAmount, bands)

	var match *ThreeWayMatch
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err = upsertMatch(tx, businessId, poId, grnId, invoiceId, po.OrderTotalAmount, grn.ReceivedAmount, invoice.InvoiceTotalAmount, variance, score, status)
		if err != nil {
			return err
		}

		// Mirror the reconciliation onto each document's own trail so the
		// PO/GRN/invoice histories each show when and how they were matched.
		lightweight := map[string]any{
			"match_id":        match.ID,
			"matching_score":  score,
			"matching_status": status,
			"variance_amount": variance,
		}
		for _, target := range []struct {
			entityType string
			entityId   int
		}{
			{EntityTypePurchaseOrder, poId},
			{EntityTypeGoodsReceipt, grnId},
			{EntityTypeInvoice, invoiceId},
		} {
			if _, err := AppendAudit(tx, AuditEntry{
				EntityType:    target.entityType,
				EntityId:      target.entityId,
				Action:        AuditActionMatch,
				Changes:       lightweight,
				WorkflowStage: WorkflowStageReconciliation,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// upsertMatch holds the write path: update in place when the triple already
// has a row, insert otherwise, and treat a duplicate-key insert (lost race
// against a concurrent retry) as "fetch and update".
func upsertMatch(tx *gorm.DB, businessId string, poId, grnId, invoiceId int,
	poAmount, grnAmount, invAmount, variance, score decimal.Decimal, status MatchingStatus) (*ThreeWayMatch, error) {

	var existing ThreeWayMatch
	findErr := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND purchase_order_id = ? AND goods_receipt_id = ? AND invoice_id = ?",
			businessId, poId, grnId, invoiceId).
		First(&existing).Error

	if findErr == nil {
		return rematch(tx, &existing, poAmount, grnAmount, invAmount, variance, score, status)
	}
	if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return nil, findErr
	}

	pending := MatchApprovalStatusPending
	match := ThreeWayMatch{
		BusinessId:      businessId,
		PurchaseOrderId: poId,
		GoodsReceiptId:  grnId,
		InvoiceId:       invoiceId,
		PoAmount:        poAmount,
		GrnAmount:       grnAmount,
		InvoiceAmount:   invAmount,
		VarianceAmount:  variance,
		MatchingScore:   score,
		MatchingStatus:  status,
		ApprovalStatus:  &pending,
		PaymentEligible: status == MatchingStatusMatched,
	}
	if err := tx.Create(&match).Error; err != nil {
		if !utils.IsDuplicateKeyError(err) {
			return nil, err
		}
		// The uniqueness constraint is the correctness backstop: another
		// instance inserted between our check and write.
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND purchase_order_id = ? AND goods_receipt_id = ? AND invoice_id = ?",
				businessId, poId, grnId, invoiceId).
			First(&existing).Error; err != nil {
			return nil, err
		}
		return rematch(tx, &existing, poAmount, grnAmount, invAmount, variance, score, status)
	}

	if _, err := AppendAudit(tx, AuditEntry{
		EntityType:    EntityTypeThreeWayMatch,
		EntityId:      match.ID,
		Action:        AuditActionCreate,
		NewState:      &match,
		WorkflowStage: WorkflowStageReconciliation,
	}); err != nil {
		return nil, err
	}
	return &match, nil
}

func rematch(tx *gorm.DB, existing *ThreeWayMatch,
	poAmount, grnAmount, invAmount, variance, score decimal.Decimal, status MatchingStatus) (*ThreeWayMatch, error) {

	before := *existing
	updates := map[string]interface{}{
		"po_amount":        poAmount,
		"grn_amount":       grnAmount,
		"invoice_amount":   invAmount,
		"variance_amount":  variance,
		"matching_score":   score,
		"matching_status":  status,
		"payment_eligible": status == MatchingStatusMatched,
	}
	if err := tx.Model(existing).Updates(updates).Error; err != nil {
		return nil, err
	}
	existing.PoAmount = poAmount
	existing.GrnAmount = grnAmount
	existing.InvoiceAmount = invAmount
	existing.VarianceAmount = variance
	existing.MatchingScore = score
	existing.MatchingStatus = status
	existing.PaymentEligible = status == MatchingStatusMatched

	if _, err := AppendAudit(tx, AuditEntry{
		EntityType: EntityTypeThreeWayMatch,
		EntityId:   existing.ID,
		Action:     AuditActionUpdate,
		OldState:   &before,
		NewState:   existing,
		Changes: map[string]any{
			"matching_score":  map[string]any{"before": before.MatchingScore, "after": score},
			"matching_status": map[string]any{"before": before.MatchingStatus, "after": status},
		},
		WorkflowStage: WorkflowStageReconciliation,
	}); err != nil {
		return nil, err
	}
	return existing, nil
}

// may return RecordNotFound error
func GetThreeWayMatch(ctx context.Context, id int) (*ThreeWayMatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ThreeWayMatch](ctx, businessId, id)
}

// GetLatestMatchForInvoice returns the most recently updated match touching
// an invoice, or RecordNotFound.
func GetLatestMatchForInvoice(ctx context.Context, invoiceId int) (*ThreeWayMatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var match ThreeWayMatch
	err := db.WithContext(ctx).
		Where("business_id = ? AND invoice_id = ?", businessId, invoiceId).
		Order("updated_at DESC").
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// ApproveMatch marks a reviewed match approved. Scoring is NOT re-run; the
// reviewer approves the result as it stands.
func ApproveMatch(ctx context.Context, matchId int, approver string) (*ThreeWayMatch, error) {
	db := config.GetDB()
	var match *ThreeWayMatch
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		match, err = approveMatchTx(tx, matchId, approver)
		return err
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func approveMatchTx(tx *gorm.DB, matchId int, approver string) (*ThreeWayMatch, error) {
	ctx := tx.Statement.Context
	match, err := GetThreeWayMatch(ctx, matchId)
	if err != nil {
		return nil, err
	}
	before := *match

	now := time.Now().UTC()
	approved := MatchApprovalStatusApproved
	updates := map[string]interface{}{
		"approval_status": approved,
		"approved_by":     approver,
		"approved_at":     now,
	}
	if err := tx.Model(match).Updates(updates).Error; err != nil {
		return nil, err
	}
	match.ApprovalStatus = &approved
	match.ApprovedBy = approver
	match.ApprovedAt = &now

	if _, err := AppendAudit(tx, AuditEntry{
		EntityType:    EntityTypeThreeWayMatch,
		EntityId:      match.ID,
		Action:        AuditActionApprove,
		OldState:      &before,
		NewState:      match,
		Changes:       map[string]any{"approval_status": approved, "approved_by": approver},
		WorkflowStage: WorkflowStageApproval,
	}); err != nil {
		return nil, err
	}
	return match, nil
}

// RejectMatch is the symmetric reviewer action; a reason is mandatory.
func RejectMatch(ctx context.Context, matchId int, approver string, reason string) (*ThreeWayMatch, error) {
	if reason == "" {
		return nil, errors.New("rejection reason is required")
	}

	match, err := GetThreeWayMatch(ctx, matchId)
	if err != nil {
		return nil, err
	}
	before := *match

	now := time.Now().UTC()
	rejected := MatchApprovalStatusRejected
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"approval_status":  rejected,
			"approved_by":      approver,
			"approved_at":      now,
			"rejection_reason": reason,
		}
		if err := tx.Model(match).Updates(updates).Error; err != nil {
			return err
		}
		match.ApprovalStatus = &rejected
		match.ApprovedBy = approver
		match.ApprovedAt = &now
		match.RejectionReason = reason

		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeThreeWayMatch,
			EntityId:      match.ID,
			Action:        AuditActionReject,
			OldState:      &before,
			NewState:      match,
			Changes:       map[string]any{"approval_status": rejected, "rejection_reason": reason},
			WorkflowStage: WorkflowStageApproval,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}
