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

// ExpenseClaim is an employee reimbursement request. BusinessId is the
// employee's home tenant; BilledBusinessId is the tenant that pays, which
// differs only for cross-tenant claims backed by a TenantAccessGrant.
type ExpenseClaim struct {
	ID                int              `gorm:"primary_key" json:"id"`
	BusinessId        string           `gorm:"size:64;not null;index" json:"business_id"`
	BilledBusinessId  string           `gorm:"size:64;not null;index" json:"billed_business_id"`
	EmployeeId        int              `gorm:"not null;index" json:"employee_id"`
	CategoryId        int              `gorm:"not null" json:"category_id"`
	Amount            decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Merchant          string           `gorm:"size:191;not null" json:"merchant"`
	Description       string           `gorm:"size:500" json:"description"`
	ClaimDate         time.Time        `gorm:"type:date;not null" json:"claim_date"`
	ReceiptRef        string           `gorm:"size:191" json:"receipt_ref"`
	Attendees         string           `gorm:"size:1000" json:"attendees"`
	OdometerStart     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"odometer_start"`
	OdometerEnd       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"odometer_end"`
	OdometerPhotoRef  string           `gorm:"size:191" json:"odometer_photo_ref"`
	CurrentStatus     ClaimStatus      `gorm:"size:50;not null" json:"current_status"`
	AutoApproved      bool             `gorm:"not null;default:false" json:"auto_approved"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpenseClaim struct {
	BilledBusinessId string           `json:"billed_business_id"`
	EmployeeId       int              `json:"employee_id" validate:"required"`
	CategoryName     string           `json:"category_name" validate:"required"`
	Amount           decimal.Decimal  `json:"amount" validate:"required"`
	Merchant         string           `json:"merchant" validate:"required"`
	Description      string           `json:"description"`
	ClaimDate        time.Time        `json:"claim_date" validate:"required"`
	ReceiptRef       string           `json:"receipt_ref"`
	Attendees        string           `json:"attendees"`
	OdometerStart    *decimal.Decimal `json:"odometer_start"`
	OdometerEnd      *decimal.Decimal `json:"odometer_end"`
	OdometerPhotoRef string           `json:"odometer_photo_ref"`
}

func (c ExpenseClaim) GetBusinessId() string {
	return c.BusinessId
}

// CreateExpenseClaim runs the policy gate pipeline and persists the claim
// only when every hard gate passes. A blocked claim comes back with the
// validation result and no row written; that is not a datastore error, so
// err stays nil. Auto-approve eligible claims land directly in Approved.
func CreateExpenseClaim(ctx context.Context, input *NewExpenseClaim) (*ExpenseClaim, *ClaimValidationResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, err
	}
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, errors.New("business id is required")
	}
	if input.BilledBusinessId == "" {
		input.BilledBusinessId = businessId
	}

	result, category, err := ValidateClaim(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	if !result.Pass {
		return nil, result, nil
	}

	status := ClaimStatusSubmitted
	if result.AutoApprove {
		status = ClaimStatusApproved
	}
	claim := ExpenseClaim{
		BusinessId:       businessId,
		BilledBusinessId: input.BilledBusinessId,
		EmployeeId:       input.EmployeeId,
		CategoryId:       category.ID,
		Amount:           input.Amount,
		Merchant:         input.Merchant,
		Description:      input.Description,
		ClaimDate:        input.ClaimDate,
		ReceiptRef:       input.ReceiptRef,
		Attendees:        input.Attendees,
		OdometerStart:    input.OdometerStart,
		OdometerEnd:      input.OdometerEnd,
		OdometerPhotoRef: input.OdometerPhotoRef,
		CurrentStatus:    status,
		AutoApproved:     result.AutoApprove,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&claim).Error; err != nil {
			return err
		}
		action := AuditActionCreate
		if result.AutoApprove {
			action = AuditActionAutoApprove
		}
		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeExpenseClaim,
			EntityId:      claim.ID,
			Action:        action,
			NewState:      claim,
			WorkflowStage: WorkflowStageValidation,
			WorkflowState: string(status),
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &claim, result, nil
}

func GetExpenseClaim(ctx context.Context, id int) (*ExpenseClaim, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ExpenseClaim](ctx, businessId, id)
}

// UpdateExpenseClaimStatus moves a claim through its lifecycle and audits
// the transition.
func UpdateExpenseClaimStatus(ctx context.Context, id int, status ClaimStatus) (*ExpenseClaim, error) {
	claim, err := GetExpenseClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim.CurrentStatus == status {
		return claim, nil
	}
	oldClaim := *claim

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(claim).Update("current_status", status).Error; err != nil {
			return err
		}
		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeExpenseClaim,
			EntityId:      claim.ID,
			Action:        AuditActionStatusChange,
			OldState:      oldClaim,
			NewState:      claim,
			WorkflowStage: WorkflowStageApproval,
			WorkflowState: string(status),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}
