package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/vendorportal_backend/appctx"
	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/models"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/sirupsen/logrus"
)

const maxPublishAttempts = 5

// notification-dispatcher drains the notification outbox into Pub/Sub.
// Delivery is at-least-once: a crash between publish and mark leaves the
// row claimed, and the claim expires after lockTTL for the next pass.
type dispatcher struct {
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func main() {
	batchSize := flag.Int("batch-size", 50, "Outbox rows claimed per pass.")
	intervalSec := flag.Int("interval", 2, "Seconds between passes.")
	flag.Parse()

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	d := &dispatcher{
		Logger:    config.GetLogger(),
		WorkerID:  "dispatcher-" + time.Now().Format("20060102-150405.000"),
		BatchSize: *batchSize,
		Interval:  time.Duration(*intervalSec) * time.Second,
		LockTTL:   30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !config.PubSubConfigured() {
		d.Logger.Warn("Pub/Sub not configured; outbox rows will be marked as sent without publishing")
	}
	d.run(ctx)
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Interval):
		}
	}
}

func (d *dispatcher) processOnce(ctx context.Context) {
	claimed, err := models.ClaimOutboxRecords(ctx, d.WorkerID, d.BatchSize, d.LockTTL)
	if err != nil {
		d.Logger.WithError(err).Error("failed to claim outbox records")
		return
	}

	for _, rec := range claimed {
		procCtx := appctx.Set(ctx, appctx.ContextKeyBusinessId, rec.BusinessId)
		procCtx = appctx.Set(procCtx, appctx.ContextKeyUserId, 0)

		if err := d.publishRecord(procCtx, rec); err != nil {
			d.Logger.WithFields(logrus.Fields{
				"outbox_id": rec.ID,
				"attempts":  rec.Attempts + 1,
			}).WithError(err).Error("publish failed")
			if markErr := models.MarkOutboxFailed(procCtx, rec, err, maxPublishAttempts); markErr != nil {
				d.Logger.WithField("outbox_id", rec.ID).WithError(markErr).Error("failed to record publish failure")
			}
			continue
		}
		if err := models.MarkOutboxPublished(procCtx, rec.ID); err != nil {
			// The message went out; the next pass will re-publish. Consumers
			// must dedupe on the notification id.
			d.Logger.WithField("outbox_id", rec.ID).WithError(err).Error("published but failed to mark; will retry")
		}
	}
}

func (d *dispatcher) publishRecord(ctx context.Context, rec *models.NotificationOutboxRecord) error {
	var msg config.NotificationMessage
	if err := utils.UnmarshalFromJSON([]byte(rec.Payload), &msg); err != nil {
		return fmt.Errorf("malformed outbox payload: %w", err)
	}

	if !config.PubSubConfigured() {
		d.Logger.WithFields(logrus.Fields{
			"notification_id": msg.ID,
			"recipient":       msg.Recipient,
			"type":            msg.NotificationType,
		}).Info("direct mode: notification delivered without Pub/Sub")
		return nil
	}

	serverID, err := config.PublishNotification(ctx, msg)
	if err != nil {
		return err
	}
	d.Logger.WithFields(logrus.Fields{
		"notification_id": msg.ID,
		"server_msg_id":   serverID,
	}).Info("notification published")
	return nil
}
