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
	"github.com/mmdatafocus/vendorportal_backend/models"
)

// audit-verify re-derives every hash chain and reports tampering. Exits
// nonzero when any chain fails, so it can gate a compliance pipeline.
func main() {
	businessID := flag.String("business-id", "", "Business to verify (uuid string). Required unless -all-businesses.")
	allBusinesses := flag.Bool("all-businesses", false, "Verify every business.")
	entityType := flag.String("entity-type", "", "Optional: restrict to one entity type (e.g. Invoice).")
	entityID := flag.Int("entity-id", 0, "Optional: verify a single entity's chain (requires -entity-type).")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" && !*allBusinesses {
		fmt.Fprintln(os.Stderr, "either -business-id or -all-businesses is required")
		os.Exit(2)
	}
	if *entityID > 0 && strings.TrimSpace(*entityType) == "" {
		fmt.Fprintln(os.Stderr, "-entity-id requires -entity-type")
		os.Exit(2)
	}

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = appctx.Set(ctx, appctx.ContextKeyUserId, 0)
	ctx = appctx.Set(ctx, appctx.ContextKeyUserName, "AuditVerify")

	var businessIds []string
	if *allBusinesses {
		var err error
		businessIds, err = models.ListActiveBusinessIds(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list businesses: %v\n", err)
			os.Exit(1)
		}
	} else {
		businessIds = []string{strings.TrimSpace(*businessID)}
	}

	totalChains := 0
	brokenChains := 0
	for _, bid := range businessIds {
		bizCtx := appctx.Set(ctx, appctx.ContextKeyBusinessId, bid)

		var chains []models.AuditChainRef
		if *entityID > 0 {
			chains = []models.AuditChainRef{{EntityType: *entityType, EntityId: *entityID}}
		} else {
			var err error
			chains, err = models.ListAuditChains(bizCtx, *entityType)
			if err != nil {
				fmt.Fprintf(os.Stderr, "business %s: failed to list chains: %v\n", bid, err)
				os.Exit(1)
			}
		}

		for _, chain := range chains {
			verification, err := models.VerifyAuditChain(bizCtx, chain.EntityType, chain.EntityId)
			if err != nil {
				fmt.Fprintf(os.Stderr, "business %s: %s/%d: verification error: %v\n", bid, chain.EntityType, chain.EntityId, err)
				os.Exit(1)
			}
			totalChains++
			if verification.Valid {
				continue
			}
			brokenChains++
			for _, b := range verification.BrokenRecords {
				fmt.Printf("TAMPERED business=%s entity=%s/%d record=%d sequence=%d reason=%q\n",
					bid, chain.EntityType, chain.EntityId, b.RecordId, b.ProofSequence, b.Reason)
			}
		}
	}

	fmt.Printf("verified %d chains, %d broken\n", totalChains, brokenChains)
	if brokenChains > 0 {
		os.Exit(1)
	}
}
