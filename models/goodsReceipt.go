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

// GoodsReceipt records what was actually delivered against a purchase order.
type GoodsReceipt struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id" binding:"required"`
	ReceiptNumber   string          `gorm:"size:255;not null" json:"receipt_number" binding:"required"`
	ReceivedDate    time.Time       `gorm:"not null" json:"received_date" binding:"required"`
	ReceivedAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_amount"`
	Notes           string          `gorm:"type:text;default:null" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewGoodsReceipt struct {
	PurchaseOrderId int             `json:"purchase_order_id" validate:"required"`
	ReceiptNumber   string          `json:"receipt_number" validate:"required"`
	ReceivedDate    time.Time       `json:"received_date" validate:"required"`
	ReceivedAmount  decimal.Decimal `json:"received_amount"`
	Notes           string          `json:"notes"`
}

func (gr GoodsReceipt) GetBusinessId() string {
	return gr.BusinessId
}

func CreateGoodsReceipt(ctx context.Context, input *NewGoodsReceipt) (*GoodsReceipt, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[PurchaseOrder](ctx, businessId, input.PurchaseOrderId); err != nil {
		return nil, errors.New("purchase order not found")
	}

	receipt := GoodsReceipt{
		BusinessId:      businessId,
		PurchaseOrderId: input.PurchaseOrderId,
		ReceiptNumber:   input.ReceiptNumber,
		ReceivedDate:    input.ReceivedDate,
		ReceivedAmount:  input.ReceivedAmount,
		Notes:           input.Notes,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}
		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeGoodsReceipt,
			EntityId:      receipt.ID,
			Action:        AuditActionCreate,
			NewState:      &receipt,
			WorkflowStage: WorkflowStageIntake,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// may return RecordNotFound error
func GetGoodsReceipt(ctx context.Context, id int) (*GoodsReceipt, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[GoodsReceipt](ctx, businessId, id)
}
