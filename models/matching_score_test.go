package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeMatchScorePerfectMatch(t *testing.T) {
	amount := decimal.NewFromInt(1000)
	variance, score, status := computeMatchScore(amount, amount, amount, defaultScoreBands())

	if !variance.IsZero() {
		t.Fatalf("variance = %s, want 0", variance)
	}
	if !score.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("score = %s, want 100", score)
	}
	if status != MatchingStatusMatched {
		t.Fatalf("status = %s, want %s", status, MatchingStatusMatched)
	}
}

func TestComputeMatchScoreOverbilledInvoice(t *testing.T) {
	po := decimal.NewFromInt(1000)
	grn := decimal.NewFromInt(1000)
	inv := decimal.NewFromInt(1300)

	variance, score, status := computeMatchScore(po, grn, inv, defaultScoreBands())

	if !variance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("variance = %s, want 300", variance)
	}
	// |300| / max(1000, 1000) * 100 = 30; 100 - 30 = 70.
	if !score.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("score = %s, want 70", score)
	}
	if status != MatchingStatusMismatch {
		t.Fatalf("status = %s, want %s", status, MatchingStatusMismatch)
	}
}

func TestComputeMatchScoreBands(t *testing.T) {
	bands := defaultScoreBands()
	cases := []struct {
		name   string
		po     int64
		inv    int64
		status MatchingStatus
	}{
		{"exact", 1000, 1000, MatchingStatusMatched},
		{"small variance stays matched", 1000, 1020, MatchingStatusMatched},
		{"moderate variance is partial", 1000, 1100, MatchingStatusPartial},
		{"large variance is mismatch", 1000, 1300, MatchingStatusMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			po := decimal.NewFromInt(tc.po)
			inv := decimal.NewFromInt(tc.inv)
			_, _, status := computeMatchScore(po, po, inv, bands)
			if status != tc.status {
				t.Fatalf("status = %s, want %s", status, tc.status)
			}
		})
	}
}

// Widening the variance must never raise the score.
func TestComputeMatchScoreMonotonicity(t *testing.T) {
	po := decimal.NewFromInt(1000)
	grn := decimal.NewFromInt(1000)

	previous := decimal.NewFromInt(101)
	for delta := int64(0); delta <= 2000; delta += 50 {
		inv := po.Add(decimal.NewFromInt(delta))
		_, score, _ := computeMatchScore(po, grn, inv, defaultScoreBands())
		if score.GreaterThan(previous) {
			t.Fatalf("score increased from %s to %s at delta %d", previous, score, delta)
		}
		previous = score
	}
}

func TestComputeMatchScoreZeroAmounts(t *testing.T) {
	variance, score, status := computeMatchScore(decimal.Zero, decimal.Zero, decimal.Zero, defaultScoreBands())

	if !variance.IsZero() {
		t.Fatalf("variance = %s, want 0", variance)
	}
	if !score.IsZero() {
		t.Fatalf("score = %s, want 0", score)
	}
	if status != MatchingStatusMismatch {
		t.Fatalf("status = %s, want %s", status, MatchingStatusMismatch)
	}
}

func TestComputeMatchScoreClampsNegative(t *testing.T) {
	// Variance more than double the denominator would drive the raw score
	// below zero.
	po := decimal.NewFromInt(100)
	inv := decimal.NewFromInt(500)

	_, score, status := computeMatchScore(po, po, inv, defaultScoreBands())
	if !score.IsZero() {
		t.Fatalf("score = %s, want clamp to 0", score)
	}
	if status != MatchingStatusMismatch {
		t.Fatalf("status = %s, want %s", status, MatchingStatusMismatch)
	}
}

func TestComputeMatchScoreUnderbilledInvoice(t *testing.T) {
	po := decimal.NewFromInt(1000)
	inv := decimal.NewFromInt(700)

	variance, _, _ := computeMatchScore(po, po, inv, defaultScoreBands())
	if !variance.Equal(decimal.NewFromInt(-300)) {
		t.Fatalf("variance = %s, want -300 (signed)", variance)
	}
}
