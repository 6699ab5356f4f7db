package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is a vendor-submitted bill. PurchaseOrderId/GoodsReceiptId are weak
// references (0 = not linked yet); the matching engine pairs them later.
type Invoice struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	BusinessId          string          `gorm:"index;not null" json:"business_id" binding:"required"`
	SupplierId          int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	PurchaseOrderId     int             `gorm:"index;default:0" json:"purchase_order_id"`
	GoodsReceiptId      int             `gorm:"index;default:0" json:"goods_receipt_id"`
	InvoiceNumber       string          `gorm:"size:255" json:"invoice_number"`
	InvoiceDate         *time.Time      `gorm:"default:null" json:"invoice_date"`
	DueDate             *time.Time      `gorm:"default:null" json:"due_date"`
	ExpectedPaymentDate *time.Time      `gorm:"default:null" json:"expected_payment_date"`
	InvoiceTotalAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_total_amount"`
	CurrentStatus       InvoiceStatus   `gorm:"type:enum('Draft','Submitted','Under Review','Approved','Approved For Payment','Paid','Rejected','Disputed');not null" json:"current_status"`
	LastStatusChange    time.Time       `gorm:"not null" json:"last_status_change"`
	ReviewStartedAt     *time.Time      `gorm:"default:null" json:"review_started_at"`
	ApprovedAt          *time.Time      `gorm:"default:null" json:"approved_at"`
	PaidAt              *time.Time      `gorm:"default:null" json:"paid_at"`
	Notes               string          `gorm:"type:text;default:null" json:"notes"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoice struct {
	SupplierId          int             `json:"supplier_id" validate:"required"`
	PurchaseOrderId     int             `json:"purchase_order_id"`
	GoodsReceiptId      int             `json:"goods_receipt_id"`
	InvoiceNumber       string          `json:"invoice_number"`
	InvoiceDate         *time.Time      `json:"invoice_date"`
	DueDate             *time.Time      `json:"due_date"`
	ExpectedPaymentDate *time.Time      `json:"expected_payment_date"`
	InvoiceTotalAmount  decimal.Decimal `json:"invoice_total_amount"`
	Notes               string          `json:"notes"`
}

// InvoiceStatusEntry is one point of an invoice's status timeline. The
// staleness detector reads these as an activity source.
type InvoiceStatusEntry struct {
	ID         int           `gorm:"primary_key" json:"id"`
	BusinessId string        `gorm:"index;not null" json:"business_id"`
	InvoiceId  int           `gorm:"index;not null" json:"invoice_id"`
	FromStatus InvoiceStatus `gorm:"size:50" json:"from_status"`
	ToStatus   InvoiceStatus `gorm:"size:50;not null" json:"to_status"`
	UserId     int           `gorm:"not null" json:"user_id"`
	UserName   string        `gorm:"size:100" json:"user_name"`
	Remark     string        `gorm:"type:text" json:"remark"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (inv Invoice) GetBusinessId() string {
	return inv.BusinessId
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return nil, errors.New("supplier not found")
	}
	if input.PurchaseOrderId > 0 {
		if err := utils.ValidateResourceId[PurchaseOrder](ctx, businessId, input.PurchaseOrderId); err != nil {
			return nil, errors.New("purchase order not found")
		}
	}
	if input.GoodsReceiptId > 0 {
		if err := utils.ValidateResourceId[GoodsReceipt](ctx, businessId, input.GoodsReceiptId); err != nil {
			return nil, errors.New("goods receipt not found")
		}
	}

	now := time.Now().UTC()
	invoice := Invoice{
		BusinessId:          businessId,
		SupplierId:          input.SupplierId,
		PurchaseOrderId:     input.PurchaseOrderId,
		GoodsReceiptId:      input.GoodsReceiptId,
		InvoiceNumber:       input.InvoiceNumber,
		InvoiceDate:         input.InvoiceDate,
		DueDate:             input.DueDate,
		ExpectedPaymentDate: input.ExpectedPaymentDate,
		InvoiceTotalAmount:  input.InvoiceTotalAmount,
		CurrentStatus:       InvoiceStatusSubmitted,
		LastStatusChange:    now,
		Notes:               input.Notes,
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		entry := InvoiceStatusEntry{
			BusinessId: businessId,
			InvoiceId:  invoice.ID,
			ToStatus:   invoice.CurrentStatus,
			UserId:     userId,
			UserName:   userName,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeInvoice,
			EntityId:      invoice.ID,
			Action:        AuditActionCreate,
			NewState:      &invoice,
			WorkflowStage: WorkflowStageIntake,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// may return RecordNotFound error
func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Invoice](ctx, businessId, id)
}

// UpdateInvoiceStatus moves the invoice through its lifecycle: timeline
// entry, lifecycle timestamps, and audit record all land in one transaction.
func UpdateInvoiceStatus(ctx context.Context, id int, status InvoiceStatus, remark string) (*Invoice, error) {
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = updateInvoiceStatusTx(tx, id, status, remark)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func updateInvoiceStatusTx(tx *gorm.DB, id int, status InvoiceStatus, remark string) (*Invoice, error) {
	ctx := tx.Statement.Context
	invoice, err := GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	oldInvoice := *invoice

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"current_status":     status,
		"last_status_change": now,
	}
	switch status {
	case InvoiceStatusUnderReview:
		if invoice.ReviewStartedAt == nil {
			updates["review_started_at"] = now
		}
	case InvoiceStatusApproved, InvoiceStatusApprovedForPayment:
		if invoice.ApprovedAt == nil {
			updates["approved_at"] = now
		}
	case InvoiceStatusPaid:
		updates["paid_at"] = now
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	if err := tx.Model(invoice).Updates(updates).Error; err != nil {
		return nil, err
	}
	entry := InvoiceStatusEntry{
		BusinessId: invoice.BusinessId,
		InvoiceId:  invoice.ID,
		FromStatus: oldInvoice.CurrentStatus,
		ToStatus:   status,
		UserId:     userId,
		UserName:   userName,
		Remark:     remark,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	invoice.CurrentStatus = status
	invoice.LastStatusChange = now
	_, err = AppendAudit(tx, AuditEntry{
		EntityType:    EntityTypeInvoice,
		EntityId:      invoice.ID,
		Action:        AuditActionStatusChange,
		OldState:      &oldInvoice,
		NewState:      invoice,
		Changes:       map[string]any{"current_status": status},
		WorkflowStage: workflowStageForStatus(status),
		WorkflowState: map[string]any{"current_status": status, "last_status_change": now},
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func workflowStageForStatus(status InvoiceStatus) string {
	switch status {
	case InvoiceStatusUnderReview:
		return WorkflowStageValidation
	case InvoiceStatusApproved, InvoiceStatusApprovedForPayment, InvoiceStatusRejected:
		return WorkflowStageApproval
	case InvoiceStatusPaid:
		return WorkflowStagePayment
	default:
		return WorkflowStageIntake
	}
}

// ListOpenInvoices returns every invoice still in a non-terminal status.
// The detectors scan over this set.
func ListOpenInvoices(ctx context.Context) ([]*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var invoices []*Invoice
	err := db.WithContext(ctx).
		Where("business_id = ? AND current_status NOT IN ?", businessId,
			[]InvoiceStatus{InvoiceStatusPaid, InvoiceStatusRejected}).
		Order("id ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// latestStatusEntryAfter returns the newest timeline entry for an invoice after
// a cutoff, or nil.
func latestStatusEntryAfter(ctx context.Context, tx *gorm.DB, invoiceId int, cutoff time.Time) (*InvoiceStatusEntry, error) {
	var entry InvoiceStatusEntry
	err := tx.WithContext(ctx).
		Where("invoice_id = ? AND created_at > ?", invoiceId, cutoff).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
