package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditRecord is one link of a per-entity tamper-evident chain. Records are
// append-only: nothing in this codebase updates or deletes them.
//
// For any (business_id, entity_type, entity_id), walking records by
// proof_sequence ascending must satisfy
//
//	record[i].previous_hash == record[i-1].content_hash
//
// and every content_hash must recompute from the stored fields.
type AuditRecord struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index:uniq_audit_chain,unique" json:"business_id"`
	EntityType string `gorm:"size:100;not null;index:uniq_audit_chain,unique" json:"entity_type"`
	EntityId   int    `gorm:"not null;index:uniq_audit_chain,unique" json:"entity_id"`
	// ProofSequence is a per-entity monotonic counter; the unique index makes
	// concurrent appends for the same entity collide instead of forking the chain.
	ProofSequence  int       `gorm:"not null;index:uniq_audit_chain,unique" json:"proof_sequence"`
	ProofTimestamp time.Time `gorm:"type:datetime(6);not null;index" json:"proof_timestamp"`
	Action         string    `gorm:"size:50;not null;index" json:"action"`
	UserId         int       `gorm:"not null;index" json:"user_id"`
	UserName       string    `gorm:"size:100" json:"user_name"`
	OldState       string    `gorm:"type:text" json:"old_state"`
	NewState       string    `gorm:"type:text" json:"new_state"`
	Changes        string    `gorm:"type:text" json:"changes"`
	ContentHash    string    `gorm:"size:64;not null" json:"content_hash"`
	PreviousHash   *string   `gorm:"size:64" json:"previous_hash"`
	WorkflowStage  string    `gorm:"size:50;index" json:"workflow_stage"`
	WorkflowState  string    `gorm:"type:text" json:"workflow_state"`
	RequestIP      string    `gorm:"size:64" json:"request_ip"`
	UserAgent      string    `gorm:"size:255" json:"user_agent"`
	RequestId      string    `gorm:"size:64" json:"request_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AuditEntry is the caller-facing input of AppendAudit. Snapshots may be any
// JSON-serializable value; nil means "no snapshot" (first write / deletion).
type AuditEntry struct {
	EntityType    string
	EntityId      int
	Action        string
	OldState      interface{}
	NewState      interface{}
	Changes       interface{}
	WorkflowStage string
	WorkflowState interface{}
}

// Fixed-width fraction so that a hash recomputed after a DATETIME(6) round
// trip sees the identical timestamp string.
const auditTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// computeAuditContentHash hashes the canonical serialization of the fields
// the chain certifies. Keys are sorted by CanonicalJSON, so struct/platform
// field order can never change the digest.
func computeAuditContentHash(r *AuditRecord) (string, error) {
	payload := map[string]interface{}{
		"entity_type":     r.EntityType,
		"entity_id":       r.EntityId,
		"action":          r.Action,
		"actor_id":        r.UserId,
		"actor_name":      r.UserName,
		"old_state":       r.OldState,
		"new_state":       r.NewState,
		"proof_timestamp": r.ProofTimestamp.UTC().Format(auditTimeLayout),
	}
	b, err := utils.CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// AppendAudit writes the next chain record for the entry's entity inside the
// caller's transaction. The caller MUST treat an error as fatal to the
// enclosing mutation: a write that cannot be audited must not happen.
//
// Appends for one entity are serialized by locking the current chain tail;
// the unique (business, entity, sequence) index is the backstop if two
// uncoordinated instances race past the lock.
func AppendAudit(tx *gorm.DB, entry AuditEntry) (*AuditRecord, error) {
	if tx == nil {
		return nil, errors.New("audit append requires a transaction")
	}
	ctx := tx.Statement.Context

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	oldState, err := serializeAuditSnapshot(entry.OldState)
	if err != nil {
		return nil, fmt.Errorf("serialize old state: %w", err)
	}
	newState, err := serializeAuditSnapshot(entry.NewState)
	if err != nil {
		return nil, fmt.Errorf("serialize new state: %w", err)
	}
	changes, err := serializeAuditSnapshot(entry.Changes)
	if err != nil {
		return nil, fmt.Errorf("serialize changes: %w", err)
	}
	workflowState, err := serializeAuditSnapshot(entry.WorkflowState)
	if err != nil {
		return nil, fmt.Errorf("serialize workflow state: %w", err)
	}

	// Lock the chain tail so concurrent appends for this entity queue up.
	var tail AuditRecord
	tailErr := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND entity_type = ? AND entity_id = ?", businessId, entry.EntityType, entry.EntityId).
		Order("proof_sequence DESC").
		First(&tail).Error

	var previousHash *string
	sequence := 1
	if tailErr == nil {
		h := tail.ContentHash
		previousHash = &h
		sequence = tail.ProofSequence + 1
	} else if !errors.Is(tailErr, gorm.ErrRecordNotFound) {
		return nil, tailErr
	}

	record := AuditRecord{
		BusinessId:     businessId,
		EntityType:     entry.EntityType,
		EntityId:       entry.EntityId,
		ProofSequence:  sequence,
		ProofTimestamp: time.Now().UTC().Truncate(time.Microsecond),
		Action:         entry.Action,
		UserId:         userId,
		UserName:       userName,
		OldState:       oldState,
		NewState:       newState,
		Changes:        changes,
		PreviousHash:   previousHash,
		WorkflowStage:  entry.WorkflowStage,
		WorkflowState:  workflowState,
	}
	if ip, ok := utils.GetRequestIPFromContext(ctx); ok {
		record.RequestIP = ip
	}
	if ua, ok := utils.GetUserAgentFromContext(ctx); ok {
		record.UserAgent = ua
	}
	if rid, ok := utils.GetRequestIdFromContext(ctx); ok {
		record.RequestId = rid
	}

	record.ContentHash, err = computeAuditContentHash(&record)
	if err != nil {
		return nil, err
	}

	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AppendReadAudit records a read-path event (export, trail inspection).
// Best effort: gated by AUDIT_READ_LOGGING and never fails the caller.
func AppendReadAudit(ctx context.Context, entityType string, entityId int, action string) {
	if !config.BestEffortReadAudits() {
		return
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := AppendAudit(tx, AuditEntry{
			EntityType: entityType,
			EntityId:   entityId,
			Action:     action,
		})
		return err
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "AppendReadAudit", "best-effort read audit dropped", map[string]any{
			"entity_type": entityType,
			"entity_id":   entityId,
			"action":      action,
		}, err)
	}
}

func serializeAuditSnapshot(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	// Strings are assumed to already be JSON snapshots; re-encode them
	// canonically so hashing stays deterministic.
	if s, ok := v.(string); ok {
		if s == "" {
			return "", nil
		}
		return utils.CanonicalizeJSONString(s)
	}
	b, err := utils.CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

/* verification */

type BrokenAuditRecord struct {
	RecordId      int    `json:"record_id"`
	ProofSequence int    `json:"proof_sequence"`
	Reason        string `json:"reason"`
}

type AuditVerification struct {
	EntityType    string              `json:"entity_type"`
	EntityId      int                 `json:"entity_id"`
	Valid         bool                `json:"valid"`
	RecordCount   int                 `json:"record_count"`
	BrokenRecords []BrokenAuditRecord `json:"broken_records"`
}

// verifyChainRecords re-derives every link of an already-ordered chain and
// reports ALL defects, so a caller sees the full extent of the damage.
// Nothing is ever repaired here; broken chains are reported as data.
func verifyChainRecords(records []*AuditRecord) []BrokenAuditRecord {
	var broken []BrokenAuditRecord

	for i, record := range records {
		expected, err := computeAuditContentHash(record)
		if err != nil {
			broken = append(broken, BrokenAuditRecord{record.ID, record.ProofSequence, "content hash not computable: " + err.Error()})
			continue
		}
		if expected != record.ContentHash {
			broken = append(broken, BrokenAuditRecord{record.ID, record.ProofSequence, "content hash mismatch"})
		}

		if i == 0 {
			if record.PreviousHash != nil {
				broken = append(broken, BrokenAuditRecord{record.ID, record.ProofSequence, "first record carries a previous hash"})
			}
			continue
		}

		prior := records[i-1]
		if record.ProofSequence != prior.ProofSequence+1 {
			broken = append(broken, BrokenAuditRecord{record.ID, record.ProofSequence,
				fmt.Sprintf("sequence gap after %d", prior.ProofSequence)})
		}
		if record.PreviousHash == nil {
			broken = append(broken, BrokenAuditRecord{record.ID, record.ProofSequence, "missing previous hash"})
			continue
		}
		// Link against the stored prior hash, not the recomputed one: a
		// tampered record must surface once, not cascade into its successor.
		if *record.PreviousHash != prior.ContentHash {
			broken = append(broken, BrokenAuditRecord{record.ID, record.ProofSequence, "previous hash does not match prior record"})
		}
	}
	return broken
}

// VerifyAuditChain walks the full chain of one entity.
func VerifyAuditChain(ctx context.Context, entityType string, entityId int) (*AuditVerification, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	records, err := GetAuditsByEntity(ctx, entityType, entityId)
	if err != nil {
		return nil, err
	}

	broken := verifyChainRecords(records)
	return &AuditVerification{
		EntityType:    entityType,
		EntityId:      entityId,
		Valid:         len(broken) == 0,
		RecordCount:   len(records),
		BrokenRecords: broken,
	}, nil
}

// GetAuditsByEntity returns an entity's chain ordered oldest first.
func GetAuditsByEntity(ctx context.Context, entityType string, entityId int) ([]*AuditRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var records []*AuditRecord
	err := db.WithContext(ctx).
		Where("business_id = ? AND entity_type = ? AND entity_id = ?", businessId, entityType, entityId).
		Order("proof_timestamp ASC, proof_sequence ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

type AuditSearchFilter struct {
	EntityType    *string
	Action        *string
	UserId        *int
	WorkflowStage *string
	FromDate      *time.Time
	ToDate        *time.Time
	Limit         int
	Offset        int
}

// SearchAudits is the generic filtered read path over the ledger.
func SearchAudits(ctx context.Context, filter AuditSearchFilter) ([]*AuditRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter.EntityType != nil && *filter.EntityType != "" {
		dbCtx = dbCtx.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.Action != nil && *filter.Action != "" {
		dbCtx = dbCtx.Where("action = ?", *filter.Action)
	}
	if filter.UserId != nil && *filter.UserId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", *filter.UserId)
	}
	if filter.WorkflowStage != nil && *filter.WorkflowStage != "" {
		dbCtx = dbCtx.Where("workflow_stage = ?", *filter.WorkflowStage)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("proof_timestamp >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("proof_timestamp <= ?", *filter.ToDate)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var records []*AuditRecord
	err := dbCtx.Order("proof_timestamp DESC, proof_sequence DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AuditChainRef identifies one per-entity chain.
type AuditChainRef struct {
	EntityType string `json:"entity_type"`
	EntityId   int    `json:"entity_id"`
}

// ListAuditChains enumerates every chain of the tenant, for bulk
// verification sweeps.
func ListAuditChains(ctx context.Context, entityType string) ([]AuditChainRef, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&AuditRecord{}).
		Distinct("entity_type", "entity_id").
		Where("business_id = ?", businessId)
	if entityType != "" {
		dbCtx = dbCtx.Where("entity_type = ?", entityType)
	}

	var chains []AuditChainRef
	if err := dbCtx.Order("entity_type ASC, entity_id ASC").Find(&chains).Error; err != nil {
		return nil, err
	}
	return chains, nil
}
