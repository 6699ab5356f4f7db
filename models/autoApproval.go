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
)

// AutoApprovalRule holds a tenant's criteria for hands-free invoice
// approval. When several rules are active the oldest one wins; the rest
// exist for operators to toggle between. A rule with AutoApprove off
// evaluates and logs but never transitions anything.
type AutoApprovalRule struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"size:64;not null;index" json:"business_id"`
	RuleName          string          `gorm:"size:100;not null" json:"rule_name"`
	MinimumScore      decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"minimum_score"`
	VarianceTolerance decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"variance_tolerance"`
	AutoApprove       *bool           `gorm:"not null;default:true" json:"auto_approve"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedBy         int             `gorm:"not null" json:"created_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r AutoApprovalRule) GetBusinessId() string {
	return r.BusinessId
}

// ApprovalLog records every auto-approval evaluation, approved or not, so
// that a declined invoice can explain itself later.
type ApprovalLog struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;index" json:"business_id"`
	InvoiceId  int       `gorm:"not null;index" json:"invoice_id"`
	MatchId    int       `gorm:"not null" json:"match_id"`
	RuleId     int       `gorm:"not null" json:"rule_id"`
	Approved   bool      `gorm:"not null" json:"approved"`
	Criteria   string    `gorm:"type:text" json:"criteria"`
	Reason     string    `gorm:"size:500" json:"reason"`
	DecidedAt  time.Time `gorm:"type:datetime(6);not null" json:"decided_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l ApprovalLog) GetBusinessId() string {
	return l.BusinessId
}

// AutoApprovalCriterion is one checked condition in a decision.
type AutoApprovalCriterion struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Met      bool   `json:"met"`
}

// AutoApprovalDecision is the evaluator's verdict. A decline is a normal
// outcome, not an error: Approved is false and Reason says why.
type AutoApprovalDecision struct {
	Approved  bool                    `json:"approved"`
	InvoiceId int                     `json:"invoice_id"`
	MatchId   int                     `json:"match_id,omitempty"`
	RuleId    int                     `json:"rule_id,omitempty"`
	Criteria  []AutoApprovalCriterion `json:"criteria,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
}

func CreateAutoApprovalRule(ctx context.Context, rule *AutoApprovalRule) (*AutoApprovalRule, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if rule.RuleName == "" {
		return nil, errors.New("rule name is required")
	}
	rule.BusinessId = businessId
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		rule.CreatedBy = userId
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[AutoApprovalRule](businessId); err != nil {
		return nil, err
	}
	return rule, nil
}

// activeAutoApprovalRule returns the tenant's oldest active rule, or nil
// when none is configured.
func activeAutoApprovalRule(ctx context.Context) (*AutoApprovalRule, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	rules, err := utils.RetrieveRedisList[AutoApprovalRule](businessId)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).
			Where("business_id = ? AND is_active = true", businessId).
			Order("created_at ASC, id ASC").
			Find(&rules).Error; err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[AutoApprovalRule](rules, businessId); err != nil {
			return nil, err
		}
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return rules[0], nil
}

// evaluateAutoApprovalRule checks the match against the rule. Pure; every
// criterion is reported even after the first miss so the decision record
// reads complete.
func evaluateAutoApprovalRule(rule *AutoApprovalRule, match *ThreeWayMatch) []AutoApprovalCriterion {
	return []AutoApprovalCriterion{
		{
			Name:     "matching_score",
			Expected: fmt.Sprintf(">= %s", rule.MinimumScore.StringFixed(2)),
			Actual:   match.MatchingScore.StringFixed(2),
			Met:      match.MatchingScore.GreaterThanOrEqual(rule.MinimumScore),
		},
		{
			Name:     "variance_amount",
			Expected: fmt.Sprintf("abs <= %s", rule.VarianceTolerance.StringFixed(2)),
			Actual:   match.VarianceAmount.StringFixed(2),
			Met:      match.VarianceAmount.Abs().LessThanOrEqual(rule.VarianceTolerance),
		},
		{
			Name:     "matching_status",
			Expected: string(MatchingStatusMatched),
			Actual:   string(match.MatchingStatus),
			Met:      match.MatchingStatus == MatchingStatusMatched,
		},
	}
}

// applyAutoApprovalRule fills the decision's criteria, reason, and verdict.
// Pure. Even when every criterion is met, a rule with auto-approve switched
// off only records the evaluation; the approval stays with a human.
func applyAutoApprovalRule(decision *AutoApprovalDecision, rule *AutoApprovalRule, match *ThreeWayMatch) {
	decision.Criteria = evaluateAutoApprovalRule(rule, match)
	for _, criterion := range decision.Criteria {
		if !criterion.Met {
			decision.Reason = fmt.Sprintf("criterion %s not met: expected %s, got %s",
				criterion.Name, criterion.Expected, criterion.Actual)
		}
	}
	if decision.Reason == "" && rule.AutoApprove != nil && !*rule.AutoApprove {
		decision.Reason = fmt.Sprintf("rule %q is evaluate-only, auto-approve is disabled", rule.RuleName)
	}
	decision.Approved = decision.Reason == ""
}

// CheckAutoApproval evaluates the invoice's latest three-way match against
// the tenant's active rule. A passing evaluation approves the match,
// transitions the invoice to Approved, and writes the approval log in one
// transaction. Missing match, missing rule, or unmet criteria all come back
// as a declined decision with a nil error.
func CheckAutoApproval(ctx context.Context, invoiceId int) (*AutoApprovalDecision, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	decision := &AutoApprovalDecision{InvoiceId: invoiceId}

	match, err := GetLatestMatchForInvoice(ctx, invoiceId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		decision.Reason = "no three-way match exists for this invoice"
		return decision, nil
	}
	if err != nil {
		return nil, err
	}
	decision.MatchId = match.ID

	if match.ApprovalStatus != nil && *match.ApprovalStatus != MatchApprovalStatusPending {
		decision.Reason = fmt.Sprintf("match already %s", *match.ApprovalStatus)
		return decision, nil
	}

	rule, err := activeAutoApprovalRule(ctx)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		decision.Reason = "no active auto-approval rule is configured"
		return decision, nil
	}
	decision.RuleId = rule.ID
	applyAutoApprovalRule(decision, rule, match)

	criteriaJSON, err := utils.MarshalToJSON(decision.Criteria)
	if err != nil {
		return nil, err
	}
	logEntry := ApprovalLog{
		BusinessId: businessId,
		InvoiceId:  invoiceId,
		MatchId:    match.ID,
		RuleId:     rule.ID,
		Approved:   decision.Approved,
		Criteria:   criteriaJSON,
		Reason:     decision.Reason,
		DecidedAt:  time.Now().UTC(),
	}

	db := config.GetDB()
	if !decision.Approved {
		if err := db.WithContext(ctx).Create(&logEntry).Error; err != nil {
			return nil, err
		}
		return decision, nil
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := approveMatchTx(tx, match.ID, rule.RuleName); err != nil {
			return err
		}
		remark := fmt.Sprintf("auto-approved by rule %q", rule.RuleName)
		if _, err := updateInvoiceStatusTx(tx, invoiceId, InvoiceStatusApproved, remark); err != nil {
			return err
		}
		if err := tx.Create(&logEntry).Error; err != nil {
			return err
		}
		_, err := AppendAudit(tx, AuditEntry{
			EntityType:    EntityTypeInvoice,
			EntityId:      invoiceId,
			Action:        AuditActionAutoApprove,
			NewState:      decision,
			WorkflowStage: WorkflowStageApproval,
			WorkflowState: map[string]any{"rule_id": rule.ID, "approved": true},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}
