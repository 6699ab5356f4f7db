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

// exception-scan runs the exception detector over every tenant (or one,
// with -business-id). Intended to run from cron; a redis lock keeps
// overlapping invocations from double-scanning.
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
	ctx = appctx.Set(ctx, appctx.ContextKeyUserName, "ExceptionScan")

	businessIds, err := scanTargets(ctx, *businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list businesses: %v\n", err)
		os.Exit(1)
	}

	ran, err := utils.WithRedisLock(ctx, "lock:exception-scan", 10*time.Minute, func() error {
		for _, bid := range businessIds {
			bizCtx := appctx.Set(ctx, appctx.ContextKeyBusinessId, bid)
			raised, err := models.ScanInvoiceExceptions(bizCtx)
			if err != nil {
				logger.WithField("business_id", bid).WithError(err).Error("exception scan failed for business")
				continue
			}
			logger.WithField("business_id", bid).WithField("raised", len(raised)).Info("exception scan done")
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "exception scan failed: %v\n", err)
		os.Exit(1)
	}
	if !ran {
		logger.Info("another exception scan holds the lock; skipping")
	}
}

func scanTargets(ctx context.Context, businessID string) ([]string, error) {
	if strings.TrimSpace(businessID) != "" {
		return []string{strings.TrimSpace(businessID)}, nil
	}
	return models.ListActiveBusinessIds(ctx)
}
