package models

import (
	"fmt"
	"testing"
	"time"
)

func buildTestChain(t *testing.T, length int) []*AuditRecord {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	records := make([]*AuditRecord, 0, length)
	var previousHash *string
	for i := 0; i < length; i++ {
		record := &AuditRecord{
			ID:             i + 1,
			BusinessId:     "biz-1",
			EntityType:     EntityTypeInvoice,
			EntityId:       42,
			ProofSequence:  i + 1,
			ProofTimestamp: base.Add(time.Duration(i) * time.Minute),
			Action:         AuditActionUpdate,
			UserId:         1,
			UserName:       "Reviewer",
			NewState:       fmt.Sprintf(`{"revision":%d}`, i+1),
			PreviousHash:   previousHash,
		}
		if i == 0 {
			record.Action = AuditActionCreate
		}
		hash, err := computeAuditContentHash(record)
		if err != nil {
			t.Fatalf("computeAuditContentHash: %v", err)
		}
		record.ContentHash = hash
		// Copy the hash: linking to the field itself would let a later
		// mutation of the record rewrite the successor's stored link.
		link := hash
		previousHash = &link
		records = append(records, record)
	}
	return records
}

func TestVerifyChainRecordsValidChain(t *testing.T) {
	records := buildTestChain(t, 10)
	if broken := verifyChainRecords(records); len(broken) != 0 {
		t.Fatalf("expected clean chain, got %d defects: %+v", len(broken), broken)
	}
}

func TestVerifyChainRecordsEmptyChain(t *testing.T) {
	if broken := verifyChainRecords(nil); len(broken) != 0 {
		t.Fatalf("empty chain should verify, got %+v", broken)
	}
}

// Tampering with one record's payload must surface exactly that record, not
// cascade into its untouched successors.
func TestVerifyChainRecordsDetectsTamperedRecord(t *testing.T) {
	records := buildTestChain(t, 8)
	records[4].NewState = `{"revision":5,"invoice_total_amount":"999999"}`

	broken := verifyChainRecords(records)
	if len(broken) != 1 {
		t.Fatalf("expected exactly 1 defect, got %d: %+v", len(broken), broken)
	}
	if broken[0].RecordId != records[4].ID {
		t.Fatalf("flagged record %d, want %d", broken[0].RecordId, records[4].ID)
	}
	if broken[0].Reason != "content hash mismatch" {
		t.Fatalf("reason = %q, want content hash mismatch", broken[0].Reason)
	}
}

func TestVerifyChainRecordsDetectsRelinkedHash(t *testing.T) {
	records := buildTestChain(t, 5)
	// Attacker rewrites a record AND recomputes its hash. The successor's
	// stored previous_hash no longer matches.
	records[2].NewState = `{"revision":3,"laundered":true}`
	hash, err := computeAuditContentHash(records[2])
	if err != nil {
		t.Fatalf("computeAuditContentHash: %v", err)
	}
	records[2].ContentHash = hash

	broken := verifyChainRecords(records)
	if len(broken) != 1 {
		t.Fatalf("expected 1 defect, got %d: %+v", len(broken), broken)
	}
	if broken[0].RecordId != records[3].ID {
		t.Fatalf("flagged record %d, want successor %d", broken[0].RecordId, records[3].ID)
	}
	if broken[0].Reason != "previous hash does not match prior record" {
		t.Fatalf("reason = %q", broken[0].Reason)
	}
}

func TestVerifyChainRecordsDetectsSequenceGap(t *testing.T) {
	records := buildTestChain(t, 6)
	// Delete a middle record, as a purge attempt would.
	tampered := append(records[:3:3], records[4:]...)

	broken := verifyChainRecords(tampered)
	if len(broken) == 0 {
		t.Fatal("expected defects after deleting a record")
	}
	foundGap := false
	foundLink := false
	for _, b := range broken {
		if b.Reason == "sequence gap after 3" {
			foundGap = true
		}
		if b.Reason == "previous hash does not match prior record" {
			foundLink = true
		}
	}
	if !foundGap || !foundLink {
		t.Fatalf("expected both gap and link defects, got %+v", broken)
	}
}

func TestVerifyChainRecordsDetectsForgedFirstRecord(t *testing.T) {
	records := buildTestChain(t, 3)
	bogus := "deadbeef"
	records[0].PreviousHash = &bogus

	broken := verifyChainRecords(records)
	if len(broken) != 1 {
		t.Fatalf("expected 1 defect, got %+v", broken)
	}
	if broken[0].Reason != "first record carries a previous hash" {
		t.Fatalf("reason = %q", broken[0].Reason)
	}
}

func TestVerifyChainRecordsDetectsMissingPreviousHash(t *testing.T) {
	records := buildTestChain(t, 4)
	records[2].PreviousHash = nil

	broken := verifyChainRecords(records)
	if len(broken) != 1 {
		t.Fatalf("expected 1 defect, got %+v", broken)
	}
	if broken[0].Reason != "missing previous hash" {
		t.Fatalf("reason = %q", broken[0].Reason)
	}
}

// The content hash must not depend on JSON key order in state snapshots.
func TestComputeAuditContentHashCanonical(t *testing.T) {
	a := &AuditRecord{
		BusinessId:     "biz-1",
		EntityType:     EntityTypeInvoice,
		EntityId:       7,
		Action:         AuditActionUpdate,
		UserId:         3,
		ProofTimestamp: time.Date(2026, 3, 1, 9, 0, 0, 123456000, time.UTC),
		NewState:       `{"amount":"100","status":"Approved"}`,
	}
	b := *a
	b.NewState = `{"status":"Approved","amount":"100"}`

	// Snapshots are canonicalized before they reach the record, so identical
	// content in different key order must hash identically once serialized
	// through serializeAuditSnapshot.
	sa, err := serializeAuditSnapshot(a.NewState)
	if err != nil {
		t.Fatalf("serializeAuditSnapshot: %v", err)
	}
	sb, err := serializeAuditSnapshot(b.NewState)
	if err != nil {
		t.Fatalf("serializeAuditSnapshot: %v", err)
	}
	if sa != sb {
		t.Fatalf("canonical snapshots differ: %q vs %q", sa, sb)
	}

	a.NewState, b.NewState = sa, sb
	ha, err := computeAuditContentHash(a)
	if err != nil {
		t.Fatalf("computeAuditContentHash: %v", err)
	}
	hb, err := computeAuditContentHash(&b)
	if err != nil {
		t.Fatalf("computeAuditContentHash: %v", err)
	}
	if ha != hb {
		t.Fatalf("hashes differ for canonically equal snapshots")
	}
}

// A microsecond-truncated timestamp must survive the fixed-width layout
// round trip, or hashes recomputed after a DATETIME(6) read would drift.
func TestAuditTimeLayoutRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 120000000, time.UTC) // trailing zeros in the fraction
	formatted := ts.Format(auditTimeLayout)
	parsed, err := time.Parse(auditTimeLayout, formatted)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Fatalf("round trip drifted: %s vs %s", parsed, ts)
	}
	if formatted != "2026-03-01T09:00:00.120000Z" {
		t.Fatalf("unexpected fixed-width format: %q", formatted)
	}
}
