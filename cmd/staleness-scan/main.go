package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/vendorportal_backend/appctx"
	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/models"
	"github.com/mmdatafocus/vendorportal_backend/utils"
)

// staleness-scan sweeps every tenant's open invoices and maintains the
// staleness flags. Cron-driven, single-flight via redis lock.
func main() {
	businessID := flag.String("business-id", "", "Optional: scan only one business (uuid string). If empty, scans all businesses.")
	flag.Parse()

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	logger := config.GetLogger()
	ctx := context.Background()
	ctx = appctx.Set(ctx, appctx.ContextKeyUserId, 0)
	ctx = appctx.Set(ctx, appctx.ContextKeyUserName, "StalenessScan")

	var businessIds []string
	var err error
	if strings.TrimSpace(*businessID) != "" {
		businessIds = []string{strings.TrimSpace(*businessID)}
	} else {
		businessIds, err = models.ListActiveBusinessIds(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list businesses: %v\n", err)
			os.Exit(1)
		}
	}

	ran, err := utils.WithRedisLock(ctx, "lock:staleness-scan", 10*time.Minute, func() error {
		for _, bid := range businessIds {
			bizCtx := appctx.Set(ctx, appctx.ContextKeyBusinessId, bid)
			flagged, err := models.DetectStaleInvoices(bizCtx)
			if err != nil {
				logger.WithField("business_id", bid).WithError(err).Error("staleness scan failed for business")
				continue
			}
			logger.WithField("business_id", bid).WithField("flagged", len(flagged)).Info("staleness scan done")
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "staleness scan failed: %v\n", err)
		os.Exit(1)
	}
	if !ran {
		logger.Info("another staleness scan holds the lock; skipping")
	}
}
