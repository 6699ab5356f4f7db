package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/vendorportal_backend/appctx"
	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/models/reports"
)

// reconciliation-report writes the per-supplier reconciliation rollup as an
// xlsx workbook, for the weekly finance review.
func main() {
	businessID := flag.String("business-id", "", "Business to report on (uuid string). Required.")
	output := flag.String("output", "reconciliation-report.xlsx", "Output file path.")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "-business-id is required")
		os.Exit(2)
	}

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = appctx.Set(ctx, appctx.ContextKeyBusinessId, strings.TrimSpace(*businessID))
	ctx = appctx.Set(ctx, appctx.ContextKeyUserId, 0)
	ctx = appctx.Set(ctx, appctx.ContextKeyUserName, "ReconciliationReport")

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", *output, err)
		os.Exit(1)
	}
	defer f.Close()

	if err := reports.ExportReconciliationSummaryExcel(ctx, f); err != nil {
		fmt.Fprintf(os.Stderr, "failed to export report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *output)
}
