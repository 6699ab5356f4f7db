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

type PurchaseOrder struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	BusinessId           string              `gorm:"index;not null" json:"business_id" binding:"required"`
	SupplierId           int                 `gorm:"index;not null" json:"supplier_id" binding:"required"`
	OrderNumber          string              `gorm:"size:255;not null" json:"order_number" binding:"required"`
	ReferenceNumber      string              `gorm:"size:255;default:null" json:"reference_number"`
	OrderDate            time.Time           `gorm:"not null" json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time          `gorm:"default:null" json:"expected_delivery_date"`
	OrderTotalAmount     decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"order_total_amount"`
	CurrentStatus        PurchaseOrderStatus `gorm:"type:enum('Draft','Confirmed','Closed','Cancelled');not null" json:"current_status" binding:"required"`
	Notes                string              `gorm:"type:text;default:null" json:"notes"`
	CreatedAt            time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchaseOrder struct {
	SupplierId           int                 `json:"supplier_id" validate:"required"`
	OrderNumber          string              `json:"order_number" validate:"required"`
	ReferenceNumber      string              `json:"reference_number"`
	OrderDate            time.Time           `json:"order_date" validate:"required"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date"`
	OrderTotalAmount     decimal.Decimal     `json:"order_total_amount"`
	CurrentStatus        PurchaseOrderStatus `json:"current_status"`
	Notes                string              `json:"notes"`
}

func (po PurchaseOrder) GetBusinessId() string {
	return po.BusinessId
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
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

	status := input.CurrentStatus
	if status == "" {
		status = PurchaseOrderStatusDraft
	}

	order := PurchaseOrder{
		BusinessId:           businessId,
		SupplierId:           input.SupplierId,
		OrderNumber:          input.OrderNumber,
		ReferenceNumber:      input.ReferenceNumber,
		OrderDate:            input.OrderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		OrderTotalAmount:     input.OrderTotalAmount,
		CurrentStatus:        status,
		Notes:                input.Notes,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypePurchaseOrder,
			EntityId:      order.ID,
			Action:        AuditActionCreate,
			NewState:      &order,
			WorkflowStage: WorkflowStageIntake,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// may return RecordNotFound error
func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[PurchaseOrder](ctx, businessId, id)
}

func UpdatePurchaseOrderStatus(ctx context.Context, id int, status PurchaseOrderStatus) (*PurchaseOrder, error) {
	order, err := GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	oldOrder := *order

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(order).Update("current_status", status).Error; err != nil {
			return err
		}
		order.CurrentStatus = status
		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypePurchaseOrder,
			EntityId:      order.ID,
			Action:        AuditActionStatusChange,
			OldState:      &oldOrder,
			NewState:      order,
			Changes:       map[string]any{"current_status": status},
			WorkflowStage: WorkflowStageIntake,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
