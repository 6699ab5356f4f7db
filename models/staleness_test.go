package models

import (
	"testing"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/utils"
)

func TestClassifyStalenessTiers(t *testing.T) {
	tiers := defaultStalenessTiers()
	cases := []struct {
		days  int
		level StalenessLevel
	}{
		{0, StalenessLevelNone},
		{1, StalenessLevelNone},
		{2, StalenessLevelNone},
		{3, StalenessLevelWarning},
		{6, StalenessLevelWarning},
		{7, StalenessLevelCritical},
		{13, StalenessLevelCritical},
		{14, StalenessLevelSevere},
		{90, StalenessLevelSevere},
	}
	for _, tc := range cases {
		if got := classifyStaleness(tc.days, tiers); got != tc.level {
			t.Fatalf("%d days: got %q, want %q", tc.days, got, tc.level)
		}
	}
}

// An invoice whose latest activity is one day old is not stale no matter
// how old the invoice row itself is.
func TestRecentActivitySuppressesStaleness(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	recentEntry := now.AddDate(0, 0, -1)

	days := utils.DaysSince(recentEntry, now)
	if days != 1 {
		t.Fatalf("DaysSince = %d, want 1", days)
	}
	if level := classifyStaleness(days, defaultStalenessTiers()); level != StalenessLevelNone {
		t.Fatalf("1-day-old activity classified %q, want none", level)
	}
}

func TestExpectedStalenessActionPerStatus(t *testing.T) {
	cases := []struct {
		status InvoiceStatus
		want   string
	}{
		{InvoiceStatusDraft, "complete and submit the invoice"},
		{InvoiceStatusSubmitted, "pick the invoice up for review"},
		{InvoiceStatusUnderReview, "finish the review decision"},
		{InvoiceStatusApproved, "schedule the invoice for payment"},
		{InvoiceStatusApprovedForPayment, "execute the payment"},
		{InvoiceStatusDisputed, "resolve the dispute"},
	}
	for _, tc := range cases {
		if got := expectedStalenessAction(tc.status); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestClassifyStalenessCustomTiers(t *testing.T) {
	tiers := stalenessTiers{WarningDays: 1, CriticalDays: 2, SevereDays: 3}
	if classifyStaleness(1, tiers) != StalenessLevelWarning {
		t.Fatal("custom warning tier ignored")
	}
	if classifyStaleness(3, tiers) != StalenessLevelSevere {
		t.Fatal("custom severe tier ignored")
	}
}
