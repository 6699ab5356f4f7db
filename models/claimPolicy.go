package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/shopspring/decimal"
)

const policyBlockPrefix = "[BLOCKED] "

// ClaimValidationResult is the policy gate verdict. Failures are data, not
// errors: a blocked claim produces Pass=false with the reasons listed, and
// the caller decides what to do with it.
type ClaimValidationResult struct {
	Pass        bool     `json:"pass"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	AutoApprove bool     `json:"auto_approve"`
}

func (r *ClaimValidationResult) block(format string, args ...interface{}) {
	r.Errors = append(r.Errors, policyBlockPrefix+fmt.Sprintf(format, args...))
}

func (r *ClaimValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// claimPolicyFacts is everything the gate pipeline needs from the
// datastore, gathered up front so the evaluation itself stays pure.
type claimPolicyFacts struct {
	Category           *ClaimCategory // nil means the category is unknown
	AnnualClaimedSoFar decimal.Decimal
	DuplicateExists    bool
	CrossTenant        bool
	HasActiveGrant     bool
}

// evaluateClaimPolicies runs the seven gates in order and accumulates every
// violation rather than stopping at the first. The one exception is an
// unknown category, which invalidates the remaining gates (they all depend
// on category policy) and returns immediately.
func evaluateClaimPolicies(input *NewExpenseClaim, facts *claimPolicyFacts) *ClaimValidationResult {
	result := &ClaimValidationResult{}

	// Gate 1: category and per-claim cap.
	if facts.Category == nil {
		result.block("unknown expense category %q", input.CategoryName)
		return result
	}
	category := facts.Category
	if category.PerClaimCap.IsPositive() && input.Amount.GreaterThan(category.PerClaimCap) {
		result.block("amount %s exceeds the per-claim limit of %s for category %q",
			input.Amount.StringFixed(2), category.PerClaimCap.StringFixed(2), category.Name)
	}

	// Gate 2: auto-approve eligibility. Only a flag at this point; it is
	// meaningless unless every hard gate passes.
	if category.AutoApproveEnabled != nil && *category.AutoApproveEnabled &&
		category.AutoApproveThreshold.IsPositive() &&
		input.Amount.LessThan(category.AutoApproveThreshold) {
		result.AutoApprove = true
	}

	// Gate 3: annual aggregate against the billed tenant.
	if category.AnnualCap.IsPositive() {
		projected := facts.AnnualClaimedSoFar.Add(input.Amount)
		if projected.GreaterThan(category.AnnualCap) {
			result.block("annual total %s would exceed the annual limit of %s for category %q",
				projected.StringFixed(2), category.AnnualCap.StringFixed(2), category.Name)
		} else if projected.GreaterThan(category.AnnualCap.Mul(decimal.NewFromFloat(0.9))) {
			result.warn("annual total %s is within 10%% of the annual limit %s for category %q",
				projected.StringFixed(2), category.AnnualCap.StringFixed(2), category.Name)
		}
	}

	// Gate 4: category-specific evidence.
	if category.RequiresAttendees != nil && *category.RequiresAttendees && strings.TrimSpace(input.Attendees) == "" {
		result.block("category %q requires an attendee list", category.Name)
	}
	if category.RequiresOdometer != nil && *category.RequiresOdometer {
		switch {
		case input.OdometerStart == nil || input.OdometerEnd == nil:
			result.block("category %q requires odometer start and end readings", category.Name)
		case !input.OdometerEnd.GreaterThan(*input.OdometerStart):
			result.block("odometer end reading %s must be greater than start reading %s",
				input.OdometerEnd.StringFixed(1), input.OdometerStart.StringFixed(1))
		}
		if strings.TrimSpace(input.OdometerPhotoRef) == "" {
			result.block("category %q requires an odometer photo", category.Name)
		}
	}

	// Gate 5: duplicate detection.
	if facts.DuplicateExists {
		result.block("a claim for %s at %q on %s already exists",
			input.Amount.StringFixed(2), input.Merchant, input.ClaimDate.Format("2006-01-02"))
	}

	// Gate 6: receipt.
	if strings.TrimSpace(input.ReceiptRef) == "" {
		result.block("a receipt is required")
	}

	// Gate 7: cross-tenant authorization.
	if facts.CrossTenant && !facts.HasActiveGrant {
		result.block("no active access grant for billing tenant %s", input.BilledBusinessId)
	}

	result.Pass = len(result.Errors) == 0
	if !result.Pass {
		result.AutoApprove = false
	}
	return result
}

// ValidateClaim gathers the datastore facts for the gate pipeline and runs
// it. The returned category is nil when the category name is unknown.
func ValidateClaim(ctx context.Context, input *NewExpenseClaim) (*ClaimValidationResult, *ClaimCategory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, errors.New("business id is required")
	}
	billedBusinessId := input.BilledBusinessId
	if billedBusinessId == "" {
		billedBusinessId = businessId
	}

	category, err := GetClaimCategoryByName(ctx, input.CategoryName)
	if err != nil {
		return nil, nil, err
	}

	facts := claimPolicyFacts{
		Category:    category,
		CrossTenant: billedBusinessId != businessId,
	}
	if category == nil {
		return evaluateClaimPolicies(input, &facts), nil, nil
	}

	db := config.GetDB()
	facts.AnnualClaimedSoFar, err = annualApprovedClaimTotal(ctx, db,
		billedBusinessId, input.EmployeeId, category.ID, input.ClaimDate.Year())
	if err != nil {
		return nil, nil, err
	}

	facts.DuplicateExists, err = duplicateClaimExists(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	if facts.CrossTenant {
		facts.HasActiveGrant, err = HasActiveTenantGrant(ctx, businessId, input.EmployeeId, billedBusinessId)
		if err != nil {
			return nil, nil, err
		}
	}

	return evaluateClaimPolicies(input, &facts), category, nil
}

// duplicateClaimExists matches on employee, amount, merchant (case
// insensitive) and claim date, ignoring claims that already failed.
func duplicateClaimExists(ctx context.Context, input *NewExpenseClaim) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&ExpenseClaim{}).
		Where("employee_id = ? AND amount = ? AND LOWER(merchant) = ? AND claim_date = ?",
			input.EmployeeId, input.Amount, strings.ToLower(input.Merchant), input.ClaimDate.Format("2006-01-02")).
		Where("current_status NOT IN ?", []ClaimStatus{ClaimStatusRejected, ClaimStatusCancelled}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
