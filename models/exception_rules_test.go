package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var exceptionTestNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testOpenInvoice() *Invoice {
	invoiceDate := exceptionTestNow.AddDate(0, 0, -5)
	return &Invoice{
		ID:                 1,
		BusinessId:         "biz-1",
		SupplierId:         3,
		PurchaseOrderId:    10,
		GoodsReceiptId:     20,
		InvoiceNumber:      "INV-100",
		InvoiceDate:        &invoiceDate,
		InvoiceTotalAmount: decimal.NewFromInt(1000),
		CurrentStatus:      InvoiceStatusSubmitted,
		LastStatusChange:   exceptionTestNow.AddDate(0, 0, -5),
		CreatedAt:          exceptionTestNow.AddDate(0, 0, -5),
	}
}

func candidateTypes(candidates []ExceptionCandidate) map[ExceptionType]ExceptionCandidate {
	m := make(map[ExceptionType]ExceptionCandidate, len(candidates))
	for _, c := range candidates {
		m[c.ExceptionType] = c
	}
	return m
}

func TestDetectInvoiceExceptionsCleanInvoice(t *testing.T) {
	facts := exceptionFacts{Invoice: testOpenInvoice()}
	candidates := detectInvoiceExceptions(&facts, defaultExceptionThresholds(), exceptionTestNow)
	if len(candidates) != 0 {
		t.Fatalf("clean invoice raised %+v", candidates)
	}
}

func TestDetectInvoiceExceptionsMissingDocuments(t *testing.T) {
	invoice := testOpenInvoice()
	invoice.PurchaseOrderId = 0
	invoice.GoodsReceiptId = 0

	byType := candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	c, ok := byType[ExceptionTypeMissingDocument]
	if !ok {
		t.Fatal("expected a missing-document exception")
	}
	if c.Severity != ExceptionSeverityHigh {
		t.Fatalf("both documents missing should be High, got %s", c.Severity)
	}

	// A single missing document is just as blocking for the match.
	invoice.PurchaseOrderId = 10
	byType = candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if byType[ExceptionTypeMissingDocument].Severity != ExceptionSeverityHigh {
		t.Fatalf("missing goods receipt should be High, got %s", byType[ExceptionTypeMissingDocument].Severity)
	}

	invoice.PurchaseOrderId = 0
	invoice.GoodsReceiptId = 20
	byType = candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if byType[ExceptionTypeMissingDocument].Severity != ExceptionSeverityHigh {
		t.Fatalf("missing purchase order should be High, got %s", byType[ExceptionTypeMissingDocument].Severity)
	}
}

// Once an invoice is paid, missing documents and aging stop mattering.
func TestDetectInvoiceExceptionsPaidInvoiceSkipsDocumentAndAgingRules(t *testing.T) {
	invoice := testOpenInvoice()
	invoice.CurrentStatus = InvoiceStatusPaid
	invoice.PurchaseOrderId = 0
	invoice.GoodsReceiptId = 0
	old := exceptionTestNow.AddDate(0, 0, -90)
	invoice.InvoiceDate = &old

	byType := candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if _, ok := byType[ExceptionTypeMissingDocument]; ok {
		t.Fatal("missing-document raised for a paid invoice")
	}
	if _, ok := byType[ExceptionTypeAgingThreshold]; ok {
		t.Fatal("aging raised for a paid invoice")
	}
}

func TestDetectInvoiceExceptionsVarianceBands(t *testing.T) {
	cases := []struct {
		variance int64
		severity ExceptionSeverity
		raised   bool
	}{
		{50, "", false},    // under threshold 100
		{100, "", false},   // at threshold, not over
		{300, ExceptionSeverityMedium, true},
		{501, ExceptionSeverityHigh, true},
		{-750, ExceptionSeverityHigh, true}, // absolute value
		{1001, ExceptionSeverityCritical, true},
	}
	for _, tc := range cases {
		match := &ThreeWayMatch{
			ID:             5,
			VarianceAmount: decimal.NewFromInt(tc.variance),
			MatchingScore:  decimal.NewFromInt(90),
			MatchingStatus: MatchingStatusPartial,
		}
		facts := exceptionFacts{Invoice: testOpenInvoice(), Match: match}
		byType := candidateTypes(detectInvoiceExceptions(&facts, defaultExceptionThresholds(), exceptionTestNow))

		c, ok := byType[ExceptionTypeVarianceBreach]
		if ok != tc.raised {
			t.Fatalf("variance %d: raised=%v, want %v", tc.variance, ok, tc.raised)
		}
		if tc.raised && c.Severity != tc.severity {
			t.Fatalf("variance %d: severity %s, want %s", tc.variance, c.Severity, tc.severity)
		}
	}
}

func TestDetectInvoiceExceptionsMatchingFailure(t *testing.T) {
	match := &ThreeWayMatch{
		ID:             5,
		VarianceAmount: decimal.NewFromInt(30),
		MatchingScore:  decimal.NewFromInt(70),
		MatchingStatus: MatchingStatusMismatch,
	}
	facts := exceptionFacts{Invoice: testOpenInvoice(), Match: match}
	byType := candidateTypes(detectInvoiceExceptions(&facts, defaultExceptionThresholds(), exceptionTestNow))

	c, ok := byType[ExceptionTypeMatchingFailure]
	if !ok {
		t.Fatal("expected a matching-failure exception")
	}
	if c.Severity != ExceptionSeverityHigh {
		t.Fatalf("score 70 mismatch should be High, got %s", c.Severity)
	}

	match.MatchingScore = decimal.NewFromInt(40)
	byType = candidateTypes(detectInvoiceExceptions(&facts, defaultExceptionThresholds(), exceptionTestNow))
	if byType[ExceptionTypeMatchingFailure].Severity != ExceptionSeverityCritical {
		t.Fatalf("score under 50 should be Critical")
	}
}

func TestDetectInvoiceExceptionsAging(t *testing.T) {
	invoice := testOpenInvoice()
	old := exceptionTestNow.AddDate(0, 0, -35)
	invoice.InvoiceDate = &old

	byType := candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	c, ok := byType[ExceptionTypeAgingThreshold]
	if !ok {
		t.Fatal("35-day-old invoice should raise aging")
	}
	if c.Severity != ExceptionSeverityMedium {
		t.Fatalf("35 days should be Medium, got %s", c.Severity)
	}

	older := exceptionTestNow.AddDate(0, 0, -61)
	invoice.InvoiceDate = &older
	byType = candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if byType[ExceptionTypeAgingThreshold].Severity != ExceptionSeverityCritical {
		t.Fatal("61 days should be Critical")
	}
}

func TestDetectInvoiceExceptionsApprovalOverdue(t *testing.T) {
	invoice := testOpenInvoice()
	invoice.CurrentStatus = InvoiceStatusUnderReview
	started := exceptionTestNow.AddDate(0, 0, -8)
	invoice.ReviewStartedAt = &started

	byType := candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	c, ok := byType[ExceptionTypeApprovalOverdue]
	if !ok {
		t.Fatal("8 days under review should raise approval-overdue")
	}
	if c.Severity != ExceptionSeverityHigh {
		t.Fatalf("got %s", c.Severity)
	}

	// Not under review: the rule must not fire regardless of the timestamp.
	invoice.CurrentStatus = InvoiceStatusSubmitted
	byType = candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if _, ok := byType[ExceptionTypeApprovalOverdue]; ok {
		t.Fatal("approval-overdue fired outside Under Review")
	}
}

func TestDetectInvoiceExceptionsPaymentDelayed(t *testing.T) {
	cases := []struct {
		lateDays int
		severity ExceptionSeverity
	}{
		{3, ExceptionSeverityMedium}, // any past date raises
		{7, ExceptionSeverityMedium}, // bands are strictly greater
		{8, ExceptionSeverityHigh},
		{14, ExceptionSeverityHigh},
		{15, ExceptionSeverityCritical},
	}
	for _, tc := range cases {
		invoice := testOpenInvoice()
		invoice.CurrentStatus = InvoiceStatusApprovedForPayment
		expected := exceptionTestNow.AddDate(0, 0, -tc.lateDays)
		invoice.ExpectedPaymentDate = &expected

		byType := candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
		c, ok := byType[ExceptionTypePaymentDelayed]
		if !ok {
			t.Fatalf("%d days past expected payment date raised no payment-delayed exception", tc.lateDays)
		}
		if c.Severity != tc.severity {
			t.Fatalf("%d days late: severity %s, want %s", tc.lateDays, c.Severity, tc.severity)
		}
	}

	// A future expected date is not a delay.
	invoice := testOpenInvoice()
	invoice.CurrentStatus = InvoiceStatusApprovedForPayment
	future := exceptionTestNow.AddDate(0, 0, 2)
	invoice.ExpectedPaymentDate = &future
	byType := candidateTypes(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if _, ok := byType[ExceptionTypePaymentDelayed]; ok {
		t.Fatal("payment-delayed raised before the expected date")
	}
}

func invalidDataCandidates(candidates []ExceptionCandidate) []ExceptionCandidate {
	var out []ExceptionCandidate
	for _, c := range candidates {
		if c.ExceptionType == ExceptionTypeInvalidData {
			out = append(out, c)
		}
	}
	return out
}

func TestDetectInvoiceExceptionsInvalidData(t *testing.T) {
	invoice := testOpenInvoice()
	invoice.InvoiceNumber = ""

	got := invalidDataCandidates(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if len(got) != 1 {
		t.Fatalf("missing invoice number should raise one invalid-data candidate, got %d", len(got))
	}
	if got[0].Severity != ExceptionSeverityHigh {
		t.Fatalf("invalid-data severity %s, want High", got[0].Severity)
	}

	invoice = testOpenInvoice()
	invoice.InvoiceTotalAmount = decimal.Zero
	got = invalidDataCandidates(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if len(got) != 1 {
		t.Fatalf("zero amount should raise one invalid-data candidate, got %d", len(got))
	}
	if got[0].Severity != ExceptionSeverityHigh {
		t.Fatalf("invalid-data severity %s, want High", got[0].Severity)
	}
}

// Each data defect is its own candidate, not one rolled-up exception.
func TestDetectInvoiceExceptionsInvalidDataOnePerDefect(t *testing.T) {
	invoice := testOpenInvoice()
	invoice.InvoiceNumber = ""
	invoice.InvoiceDate = nil
	invoice.InvoiceTotalAmount = decimal.Zero

	got := invalidDataCandidates(detectInvoiceExceptions(&exceptionFacts{Invoice: invoice}, defaultExceptionThresholds(), exceptionTestNow))
	if len(got) != 3 {
		t.Fatalf("three data defects should raise three candidates, got %d: %+v", len(got), got)
	}
	for _, c := range got {
		if c.Severity != ExceptionSeverityHigh {
			t.Fatalf("invalid-data candidate %q severity %s, want High", c.Title, c.Severity)
		}
	}
}

func TestDetectInvoiceExceptionsDuplicate(t *testing.T) {
	facts := exceptionFacts{Invoice: testOpenInvoice(), DuplicateExists: true}
	byType := candidateTypes(detectInvoiceExceptions(&facts, defaultExceptionThresholds(), exceptionTestNow))
	c, ok := byType[ExceptionTypeDuplicateDetected]
	if !ok {
		t.Fatal("expected duplicate-detected")
	}
	if c.Severity != ExceptionSeverityHigh {
		t.Fatalf("got %s", c.Severity)
	}
}
