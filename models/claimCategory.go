package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClaimCategory carries the per-category policy knobs the gate pipeline
// evaluates. A zero cap means "no cap of that kind".
type ClaimCategory struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	BusinessId           string          `gorm:"size:64;not null;index:uniq_claim_category,unique" json:"business_id"`
	Name                 string          `gorm:"size:100;not null;index:uniq_claim_category,unique" json:"name" binding:"required"`
	PerClaimCap          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"per_claim_cap"`
	AnnualCap            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"annual_cap"`
	AutoApproveEnabled   *bool           `gorm:"not null;default:false" json:"auto_approve_enabled"`
	AutoApproveThreshold decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"auto_approve_threshold"`
	RequiresAttendees    *bool           `gorm:"not null;default:false" json:"requires_attendees"`
	RequiresOdometer     *bool           `gorm:"not null;default:false" json:"requires_odometer"`
	IsActive             *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClaimCategory struct {
	Name                 string          `json:"name" validate:"required"`
	PerClaimCap          decimal.Decimal `json:"per_claim_cap"`
	AnnualCap            decimal.Decimal `json:"annual_cap"`
	AutoApproveEnabled   *bool           `json:"auto_approve_enabled"`
	AutoApproveThreshold decimal.Decimal `json:"auto_approve_threshold"`
	RequiresAttendees    *bool           `json:"requires_attendees"`
	RequiresOdometer     *bool           `json:"requires_odometer"`
}

func (c ClaimCategory) GetBusinessId() string {
	return c.BusinessId
}

func CreateClaimCategory(ctx context.Context, input *NewClaimCategory) (*ClaimCategory, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	category := ClaimCategory{
		BusinessId:           businessId,
		Name:                 input.Name,
		PerClaimCap:          input.PerClaimCap,
		AnnualCap:            input.AnnualCap,
		AutoApproveEnabled:   input.AutoApproveEnabled,
		AutoApproveThreshold: input.AutoApproveThreshold,
		RequiresAttendees:    input.RequiresAttendees,
		RequiresOdometer:     input.RequiresOdometer,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[ClaimCategory](businessId); err != nil {
		return nil, err
	}
	return &category, nil
}

// GetClaimCategoryByName does a case-insensitive lookup among active
// categories; returns nil (not an error) when unknown — the gate pipeline
// turns that into a hard block.
func GetClaimCategoryByName(ctx context.Context, name string) (*ClaimCategory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	categories, err := utils.RetrieveRedisList[ClaimCategory](businessId)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).
			Where("business_id = ? AND is_active = true", businessId).
			Find(&categories).Error; err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[ClaimCategory](categories, businessId); err != nil {
			return nil, err
		}
	}

	for _, category := range categories {
		if strings.EqualFold(category.Name, name) {
			return category, nil
		}
	}
	return nil, nil
}

// annualCapStatuses are the claim statuses that count against the annual
// cap: only settled approvals. In-flight claims must not hard-block a new
// claim.
var annualCapStatuses = []ClaimStatus{ClaimStatusApproved, ClaimStatusPaid}

// annualApprovedClaimTotal sums prior approved/paid amounts for
// employee+category+year against the billed tenant.
func annualApprovedClaimTotal(ctx context.Context, tx *gorm.DB, billedBusinessId string, employeeId, categoryId, year int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.WithContext(ctx).Model(&ExpenseClaim{}).
		Where("billed_business_id = ? AND employee_id = ? AND category_id = ? AND YEAR(claim_date) = ?",
			billedBusinessId, employeeId, categoryId, year).
		Where("current_status IN ?", annualCapStatuses).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
