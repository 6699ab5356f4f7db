package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func testAutoApprovalRule() *AutoApprovalRule {
	return &AutoApprovalRule{
		ID:                1,
		RuleName:          "clean-match",
		MinimumScore:      decimal.NewFromInt(95),
		VarianceTolerance: decimal.NewFromInt(50),
	}
}

func allCriteriaMet(criteria []AutoApprovalCriterion) bool {
	for _, c := range criteria {
		if !c.Met {
			return false
		}
	}
	return true
}

func TestEvaluateAutoApprovalRuleAllCriteriaMet(t *testing.T) {
	match := &ThreeWayMatch{
		MatchingScore:  decimal.NewFromInt(98),
		VarianceAmount: decimal.NewFromInt(20),
		MatchingStatus: MatchingStatusMatched,
	}
	criteria := evaluateAutoApprovalRule(testAutoApprovalRule(), match)
	if len(criteria) != 3 {
		t.Fatalf("expected 3 criteria, got %d", len(criteria))
	}
	if !allCriteriaMet(criteria) {
		t.Fatalf("expected all criteria met: %+v", criteria)
	}
}

// All-or-nothing: one miss is enough, and every criterion is still
// reported so the decision log reads complete.
func TestEvaluateAutoApprovalRuleAllOrNothing(t *testing.T) {
	cases := []struct {
		name  string
		match ThreeWayMatch
	}{
		{"score below minimum", ThreeWayMatch{
			MatchingScore:  decimal.NewFromInt(94),
			VarianceAmount: decimal.NewFromInt(10),
			MatchingStatus: MatchingStatusMatched,
		}},
		{"variance over tolerance", ThreeWayMatch{
			MatchingScore:  decimal.NewFromInt(99),
			VarianceAmount: decimal.NewFromInt(51),
			MatchingStatus: MatchingStatusMatched,
		}},
		{"negative variance over tolerance", ThreeWayMatch{
			MatchingScore:  decimal.NewFromInt(99),
			VarianceAmount: decimal.NewFromInt(-51),
			MatchingStatus: MatchingStatusMatched,
		}},
		{"status not matched", ThreeWayMatch{
			MatchingScore:  decimal.NewFromInt(99),
			VarianceAmount: decimal.NewFromInt(10),
			MatchingStatus: MatchingStatusPartial,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			criteria := evaluateAutoApprovalRule(testAutoApprovalRule(), &tc.match)
			if len(criteria) != 3 {
				t.Fatalf("expected all criteria reported, got %d", len(criteria))
			}
			if allCriteriaMet(criteria) {
				t.Fatalf("expected at least one unmet criterion: %+v", criteria)
			}
		})
	}
}

func TestEvaluateAutoApprovalRuleBoundaries(t *testing.T) {
	// Score exactly at the minimum and variance exactly at the tolerance
	// both count as met.
	match := &ThreeWayMatch{
		MatchingScore:  decimal.NewFromInt(95),
		VarianceAmount: decimal.NewFromInt(-50),
		MatchingStatus: MatchingStatusMatched,
	}
	criteria := evaluateAutoApprovalRule(testAutoApprovalRule(), match)
	if !allCriteriaMet(criteria) {
		t.Fatalf("boundary values should be met: %+v", criteria)
	}
}

func TestApplyAutoApprovalRuleApprovesWhenFlagged(t *testing.T) {
	match := &ThreeWayMatch{
		ID:             7,
		InvoiceId:      3,
		MatchingScore:  decimal.NewFromInt(98),
		VarianceAmount: decimal.NewFromInt(20),
		MatchingStatus: MatchingStatusMatched,
	}
	decision := &AutoApprovalDecision{InvoiceId: match.InvoiceId, MatchId: match.ID}
	applyAutoApprovalRule(decision, testAutoApprovalRule(), match)
	if !decision.Approved {
		t.Fatalf("expected approval, got reason %q", decision.Reason)
	}
	if decision.Reason != "" {
		t.Fatalf("approved decision should carry no reason, got %q", decision.Reason)
	}
}

// A rule can be configured to evaluate without approving. All criteria met
// still must not transition anything; the decision records why.
func TestApplyAutoApprovalRuleEvaluateOnlyNeverApproves(t *testing.T) {
	evaluateOnly := false
	rule := testAutoApprovalRule()
	rule.AutoApprove = &evaluateOnly

	match := &ThreeWayMatch{
		ID:             7,
		InvoiceId:      3,
		MatchingScore:  decimal.NewFromInt(100),
		VarianceAmount: decimal.Zero,
		MatchingStatus: MatchingStatusMatched,
	}
	decision := &AutoApprovalDecision{InvoiceId: match.InvoiceId, MatchId: match.ID}
	applyAutoApprovalRule(decision, rule, match)
	if !allCriteriaMet(decision.Criteria) {
		t.Fatalf("expected every criterion met: %+v", decision.Criteria)
	}
	if decision.Approved {
		t.Fatal("evaluate-only rule must not approve")
	}
	if decision.Reason == "" {
		t.Fatal("declined decision should explain itself")
	}
}

func TestApplyAutoApprovalRuleUnmetCriterionWinsOverFlag(t *testing.T) {
	// An unmet criterion declines regardless of the auto-approve flag, and
	// the reason names the criterion rather than the flag.
	match := &ThreeWayMatch{
		MatchingScore:  decimal.NewFromInt(80),
		VarianceAmount: decimal.NewFromInt(10),
		MatchingStatus: MatchingStatusMatched,
	}
	decision := &AutoApprovalDecision{}
	applyAutoApprovalRule(decision, testAutoApprovalRule(), match)
	if decision.Approved {
		t.Fatal("expected decline on unmet score criterion")
	}
	if decision.Reason == "" {
		t.Fatal("expected a reason naming the unmet criterion")
	}
}
