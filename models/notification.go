package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Notification is the in-app record; delivery to the message bus goes
// through NotificationOutboxRecord so that a notification is never lost
// between the business transaction and the publish.
type Notification struct {
	ID                string               `gorm:"primary_key;size:36" json:"id"`
	BusinessId        string               `gorm:"size:64;not null;index" json:"business_id"`
	Recipient         string               `gorm:"size:191;not null" json:"recipient"`
	NotificationType  NotificationType     `gorm:"size:50;not null;index" json:"notification_type"`
	Title             string               `gorm:"size:255;not null" json:"title"`
	Message           string               `gorm:"type:text" json:"message"`
	RelatedEntityType string               `gorm:"size:100;index:idx_notification_entity" json:"related_entity_type"`
	RelatedEntityId   int                  `gorm:"index:idx_notification_entity" json:"related_entity_id"`
	Priority          NotificationPriority `gorm:"size:20;not null" json:"priority"`
	IsRead            bool                 `gorm:"not null;default:false" json:"is_read"`
	CreatedAt         time.Time            `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (n Notification) GetBusinessId() string {
	return n.BusinessId
}

// NotificationOutboxRecord is one pending publish. The dispatcher claims
// rows with SKIP LOCKED, publishes, and marks them; a crashed dispatcher's
// claims expire via locked_at and get retried.
type NotificationOutboxRecord struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	BusinessId     string              `gorm:"size:64;not null;index" json:"business_id"`
	NotificationId string              `gorm:"size:36;not null;index" json:"notification_id"`
	Payload        string              `gorm:"type:text;not null" json:"payload"`
	PublishStatus  OutboxPublishStatus `gorm:"size:20;not null;index" json:"publish_status"`
	Attempts       int                 `gorm:"not null;default:0" json:"attempts"`
	LastError      string              `gorm:"size:1000" json:"last_error"`
	LockedAt       *time.Time          `json:"locked_at"`
	LockedBy       *string             `gorm:"size:100" json:"locked_by"`
	PublishedAt    *time.Time          `json:"published_at"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r NotificationOutboxRecord) GetBusinessId() string {
	return r.BusinessId
}

type NewNotification struct {
	Recipient         string
	NotificationType  NotificationType
	Title             string
	Message           string
	RelatedEntityType string
	RelatedEntityId   int
	Priority          NotificationPriority
}

// SendNotification writes the notification and its outbox record inside the
// caller's transaction. Nothing is published here; the dispatcher owns the
// bus. Rolling back the enclosing transaction drops both rows together.
func SendNotification(tx *gorm.DB, input NewNotification) (*Notification, error) {
	if tx == nil {
		return nil, errors.New("send notification requires a transaction")
	}
	ctx := tx.Statement.Context
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Recipient == "" {
		return nil, errors.New("recipient is required")
	}
	if input.Priority == "" {
		input.Priority = NotificationPriorityNormal
	}

	notification := Notification{
		ID:                uuid.NewString(),
		BusinessId:        businessId,
		Recipient:         input.Recipient,
		NotificationType:  input.NotificationType,
		Title:             input.Title,
		Message:           input.Message,
		RelatedEntityType: input.RelatedEntityType,
		RelatedEntityId:   input.RelatedEntityId,
		Priority:          input.Priority,
	}
	if err := tx.Create(&notification).Error; err != nil {
		return nil, err
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	payload, err := utils.MarshalToJSON(config.NotificationMessage{
		ID:                notification.ID,
		BusinessId:        businessId,
		Recipient:         notification.Recipient,
		NotificationType:  string(notification.NotificationType),
		Title:             notification.Title,
		Message:           notification.Message,
		RelatedEntityType: notification.RelatedEntityType,
		RelatedEntityId:   notification.RelatedEntityId,
		Priority:          string(notification.Priority),
		CreatedAt:         notification.CreatedAt.UTC(),
		CorrelationId:     correlationId,
	})
	if err != nil {
		return nil, err
	}

	outbox := NotificationOutboxRecord{
		BusinessId:     businessId,
		NotificationId: notification.ID,
		Payload:        payload,
		PublishStatus:  OutboxPublishStatusPending,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

// ClaimOutboxRecords locks up to batchSize pending (or stale-claimed) rows
// for the given worker. SKIP LOCKED keeps concurrent dispatchers from
// serializing on each other's batches.
func ClaimOutboxRecords(ctx context.Context, workerId string, batchSize int, lockTTL time.Duration) ([]*NotificationOutboxRecord, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTTL)

	var claimed []*NotificationOutboxRecord
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status = ?", OutboxPublishStatusPending).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(batchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for _, rec := range claimed {
			rec.LockedAt = &now
			rec.LockedBy = &workerId
			if err := tx.Model(&NotificationOutboxRecord{}).
				Where("id = ?", rec.ID).
				Updates(map[string]interface{}{
					"locked_at": rec.LockedAt,
					"locked_by": rec.LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkOutboxPublished finalizes a claimed record after a successful publish.
func MarkOutboxPublished(ctx context.Context, recordId int) error {
	now := time.Now().UTC()
	db := config.GetDB()
	return db.WithContext(ctx).Model(&NotificationOutboxRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"publish_status": OutboxPublishStatusSent,
			"published_at":   now,
			"locked_at":      nil,
			"locked_by":      nil,
		}).Error
}

// MarkOutboxFailed records a failed publish attempt and releases the claim
// so another pass can retry. The record stays Pending until maxAttempts is
// exhausted, after which it parks as Failed for operator attention.
func MarkOutboxFailed(ctx context.Context, record *NotificationOutboxRecord, publishErr error, maxAttempts int) error {
	attempts := record.Attempts + 1
	status := OutboxPublishStatusPending
	if maxAttempts > 0 && attempts >= maxAttempts {
		status = OutboxPublishStatusFailed
	}
	lastError := ""
	if publishErr != nil {
		lastError = publishErr.Error()
		if len(lastError) > 1000 {
			lastError = lastError[:1000]
		}
	}

	db := config.GetDB()
	return db.WithContext(ctx).Model(&NotificationOutboxRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"publish_status": status,
			"attempts":       attempts,
			"last_error":     lastError,
			"locked_at":      nil,
			"locked_by":      nil,
		}).Error
}

// ListNotificationsForEntity returns notifications tied to one entity,
// newest first. The staleness detector uses this window to decide whether a
// reminder was already sent.
func ListNotificationsForEntity(ctx context.Context, entityType string, entityId int, since time.Time) ([]*Notification, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var notifications []*Notification
	err := db.WithContext(ctx).
		Where("business_id = ? AND related_entity_type = ? AND related_entity_id = ?", businessId, entityType, entityId).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}
