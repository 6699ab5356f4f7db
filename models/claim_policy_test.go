package models

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testClaimCategory() *ClaimCategory {
	f := false
	return &ClaimCategory{
		ID:                 1,
		BusinessId:         "biz-1",
		Name:               "Travel",
		PerClaimCap:        decimal.NewFromInt(500),
		AnnualCap:          decimal.NewFromInt(5000),
		AutoApproveEnabled: &f,
		RequiresAttendees:  &f,
		RequiresOdometer:   &f,
	}
}

func testClaimInput() *NewExpenseClaim {
	return &NewExpenseClaim{
		EmployeeId:   7,
		CategoryName: "Travel",
		Amount:       decimal.NewFromInt(120),
		Merchant:     "Grand Hotel",
		ClaimDate:    time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		ReceiptRef:   "rcpt-001",
	}
}

func hasBlock(result *ClaimValidationResult, fragment string) bool {
	for _, e := range result.Errors {
		if strings.Contains(e, fragment) {
			return true
		}
	}
	return false
}

func TestEvaluateClaimPoliciesCleanClaimPasses(t *testing.T) {
	result := evaluateClaimPolicies(testClaimInput(), &claimPolicyFacts{Category: testClaimCategory()})
	if !result.Pass {
		t.Fatalf("expected pass, got errors: %v", result.Errors)
	}
	if result.AutoApprove {
		t.Fatal("auto-approve should be off for this category")
	}
}

func TestEvaluateClaimPoliciesPerClaimCap(t *testing.T) {
	input := testClaimInput()
	input.Amount = decimal.NewFromInt(510)

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: testClaimCategory()})
	if result.Pass {
		t.Fatal("claim over the per-claim cap must not pass")
	}
	if !hasBlock(result, "per-claim limit of 500.00") {
		t.Fatalf("error should name the limit, got %v", result.Errors)
	}
	if !strings.HasPrefix(result.Errors[0], "[BLOCKED] ") {
		t.Fatalf("hard gates must carry the blocked prefix, got %q", result.Errors[0])
	}
}

func TestEvaluateClaimPoliciesUnknownCategoryShortCircuits(t *testing.T) {
	input := testClaimInput()
	input.CategoryName = "Bribes"
	input.ReceiptRef = "" // would also fail the receipt gate, but must not reach it

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: nil})
	if result.Pass {
		t.Fatal("unknown category must not pass")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("unknown category invalidates the remaining gates, got %v", result.Errors)
	}
	if !hasBlock(result, "unknown expense category") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestEvaluateClaimPoliciesMissingReceipt(t *testing.T) {
	input := testClaimInput()
	input.Amount = decimal.NewFromInt(10)
	input.ReceiptRef = ""

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: testClaimCategory()})
	if result.Pass {
		t.Fatal("even a small claim needs a receipt")
	}
	if !hasBlock(result, "receipt is required") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestEvaluateClaimPoliciesAnnualCap(t *testing.T) {
	input := testClaimInput()
	input.Amount = decimal.NewFromInt(400)

	facts := &claimPolicyFacts{
		Category:           testClaimCategory(),
		AnnualClaimedSoFar: decimal.NewFromInt(4800),
	}
	result := evaluateClaimPolicies(input, facts)
	if result.Pass {
		t.Fatal("claim pushing the annual total over the cap must not pass")
	}
	if !hasBlock(result, "annual limit of 5000.00") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestEvaluateClaimPoliciesAnnualCapWarningBand(t *testing.T) {
	input := testClaimInput()
	input.Amount = decimal.NewFromInt(200)

	facts := &claimPolicyFacts{
		Category:           testClaimCategory(),
		AnnualClaimedSoFar: decimal.NewFromInt(4400), // projected 4600 > 90% of 5000
	}
	result := evaluateClaimPolicies(input, facts)
	if !result.Pass {
		t.Fatalf("within the cap should pass, got %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a near-limit warning")
	}
}

func TestEvaluateClaimPoliciesAttendeesRequired(t *testing.T) {
	category := testClaimCategory()
	category.Name = "Entertainment"
	required := true
	category.RequiresAttendees = &required

	input := testClaimInput()
	input.CategoryName = "Entertainment"

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if result.Pass {
		t.Fatal("entertainment without attendees must not pass")
	}
	if !hasBlock(result, "attendee list") {
		t.Fatalf("got %v", result.Errors)
	}

	input.Attendees = "A. Vendor, B. Buyer"
	result = evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if !result.Pass {
		t.Fatalf("attendees supplied, got %v", result.Errors)
	}
}

func TestEvaluateClaimPoliciesOdometerEvidence(t *testing.T) {
	category := testClaimCategory()
	category.Name = "Mileage"
	required := true
	category.RequiresOdometer = &required

	input := testClaimInput()
	input.CategoryName = "Mileage"

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if result.Pass {
		t.Fatal("mileage without readings must not pass")
	}

	start := decimal.NewFromInt(12000)
	end := decimal.NewFromInt(11950) // went backwards
	input.OdometerStart = &start
	input.OdometerEnd = &end
	input.OdometerPhotoRef = "photo-1"
	result = evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if !hasBlock(result, "must be greater than start") {
		t.Fatalf("got %v", result.Errors)
	}

	end = decimal.NewFromInt(12080)
	input.OdometerEnd = &end
	result = evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if !result.Pass {
		t.Fatalf("valid odometer evidence, got %v", result.Errors)
	}
}

func TestEvaluateClaimPoliciesDuplicate(t *testing.T) {
	result := evaluateClaimPolicies(testClaimInput(), &claimPolicyFacts{
		Category:        testClaimCategory(),
		DuplicateExists: true,
	})
	if result.Pass {
		t.Fatal("duplicate claim must not pass")
	}
	if !hasBlock(result, "already exists") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestEvaluateClaimPoliciesCrossTenant(t *testing.T) {
	input := testClaimInput()
	input.BilledBusinessId = "biz-2"

	result := evaluateClaimPolicies(input, &claimPolicyFacts{
		Category:    testClaimCategory(),
		CrossTenant: true,
	})
	if result.Pass {
		t.Fatal("cross-tenant claim without a grant must not pass")
	}
	if !hasBlock(result, "access grant") {
		t.Fatalf("got %v", result.Errors)
	}

	result = evaluateClaimPolicies(input, &claimPolicyFacts{
		Category:       testClaimCategory(),
		CrossTenant:    true,
		HasActiveGrant: true,
	})
	if !result.Pass {
		t.Fatalf("active grant should clear the gate, got %v", result.Errors)
	}
}

func TestEvaluateClaimPoliciesAutoApprove(t *testing.T) {
	category := testClaimCategory()
	enabled := true
	category.AutoApproveEnabled = &enabled
	category.AutoApproveThreshold = decimal.NewFromInt(50)

	input := testClaimInput()
	input.Amount = decimal.NewFromInt(40)

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if !result.Pass || !result.AutoApprove {
		t.Fatalf("small claim should auto-approve, got pass=%v auto=%v %v", result.Pass, result.AutoApprove, result.Errors)
	}

	// At the threshold is not under it.
	input.Amount = decimal.NewFromInt(50)
	result = evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if result.AutoApprove {
		t.Fatal("threshold amount must not auto-approve")
	}
}

func TestEvaluateClaimPoliciesAutoApproveNeverSurvivesABlock(t *testing.T) {
	category := testClaimCategory()
	enabled := true
	category.AutoApproveEnabled = &enabled
	category.AutoApproveThreshold = decimal.NewFromInt(50)

	input := testClaimInput()
	input.Amount = decimal.NewFromInt(40)
	input.ReceiptRef = ""

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: category})
	if result.Pass {
		t.Fatal("missing receipt must block")
	}
	if result.AutoApprove {
		t.Fatal("a blocked claim must never be flagged auto-approve")
	}
}

func TestEvaluateClaimPoliciesAccumulatesViolations(t *testing.T) {
	required := true
	category := testClaimCategory()
	category.RequiresAttendees = &required

	input := testClaimInput()
	input.Amount = decimal.NewFromInt(900) // over cap
	input.ReceiptRef = ""                  // no receipt
	// and no attendees

	result := evaluateClaimPolicies(input, &claimPolicyFacts{Category: category, DuplicateExists: true})
	if len(result.Errors) != 4 {
		t.Fatalf("expected every violated gate reported, got %d: %v", len(result.Errors), result.Errors)
	}
}

// Only settled approvals consume the annual cap; claims still in flight
// must not hard-block a new claim.
func TestAnnualCapCountsOnlyApprovedAndPaid(t *testing.T) {
	counted := map[ClaimStatus]bool{}
	for _, s := range annualCapStatuses {
		counted[s] = true
	}
	if !counted[ClaimStatusApproved] || !counted[ClaimStatusPaid] {
		t.Fatalf("annual cap must count Approved and Paid, got %v", annualCapStatuses)
	}
	for _, s := range []ClaimStatus{ClaimStatusSubmitted, ClaimStatusPending, ClaimStatusRejected, ClaimStatusCancelled} {
		if counted[s] {
			t.Fatalf("annual cap must not count %s claims", s)
		}
	}
}
