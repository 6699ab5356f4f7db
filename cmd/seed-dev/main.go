package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/vendorportal_backend/appctx"
	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/models"
	"github.com/shopspring/decimal"
)

// seed-dev provisions a complete local walkthrough: a business, a supplier,
// claim categories, an auto-approval rule, and one invoice taken through
// matching and auto-approval. Dev environments only.
func main() {
	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()
	ctx = appctx.Set(ctx, appctx.ContextKeyUserId, 1)
	ctx = appctx.Set(ctx, appctx.ContextKeyUserName, "SeedDev")

	business, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:     "Dev Vendor Portal",
		Timezone: "Asia/Yangon",
	})
	if err != nil {
		fail("create business", err)
	}
	ctx = appctx.Set(ctx, appctx.ContextKeyBusinessId, business.ID.String())
	fmt.Printf("business: %s\n", business.ID)

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{
		Name:  "Acme Industrial Supply",
		Email: "billing@acme-industrial.example",
	})
	if err != nil {
		fail("create supplier", err)
	}

	boolTrue := true
	for _, category := range []models.NewClaimCategory{
		{
			Name:                 "Travel",
			PerClaimCap:          decimal.NewFromInt(500),
			AnnualCap:            decimal.NewFromInt(5000),
			AutoApproveEnabled:   &boolTrue,
			AutoApproveThreshold: decimal.NewFromInt(50),
		},
		{
			Name:              "Entertainment",
			PerClaimCap:       decimal.NewFromInt(300),
			AnnualCap:         decimal.NewFromInt(2000),
			RequiresAttendees: &boolTrue,
		},
		{
			Name:             "Mileage",
			PerClaimCap:      decimal.NewFromInt(200),
			AnnualCap:        decimal.NewFromInt(3000),
			RequiresOdometer: &boolTrue,
		},
	} {
		c := category
		if _, err := models.CreateClaimCategory(ctx, &c); err != nil {
			fail("create claim category "+category.Name, err)
		}
	}

	if _, err := models.CreateAutoApprovalRule(ctx, &models.AutoApprovalRule{
		RuleName:          "clean-match",
		MinimumScore:      decimal.NewFromInt(98),
		VarianceTolerance: decimal.NewFromInt(25),
		AutoApprove:       &boolTrue,
	}); err != nil {
		fail("create auto-approval rule", err)
	}

	now := time.Now().UTC()
	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:       supplier.ID,
		OrderNumber:      "PO-1001",
		OrderDate:        now.AddDate(0, 0, -14),
		OrderTotalAmount: decimal.NewFromInt(1000),
		CurrentStatus:    models.PurchaseOrderStatusConfirmed,
	})
	if err != nil {
		fail("create purchase order", err)
	}

	grn, err := models.CreateGoodsReceipt(ctx, &models.NewGoodsReceipt{
		PurchaseOrderId: po.ID,
		ReceiptNumber:   "GRN-1001",
		ReceivedDate:    now.AddDate(0, 0, -7),
		ReceivedAmount:  decimal.NewFromInt(1000),
	})
	if err != nil {
		fail("create goods receipt", err)
	}

	invoiceDate := now.AddDate(0, 0, -3)
	invoice, err := models.CreateInvoice(ctx, &models.NewInvoice{
		SupplierId:         supplier.ID,
		PurchaseOrderId:    po.ID,
		GoodsReceiptId:     grn.ID,
		InvoiceNumber:      "INV-1001",
		InvoiceDate:        &invoiceDate,
		InvoiceTotalAmount: decimal.NewFromInt(1000),
	})
	if err != nil {
		fail("create invoice", err)
	}

	match, err := models.MatchDocuments(ctx, po.ID, grn.ID, invoice.ID)
	if err != nil {
		fail("match documents", err)
	}
	fmt.Printf("match: score=%s status=%s\n", match.MatchingScore, match.MatchingStatus)

	decision, err := models.CheckAutoApproval(ctx, invoice.ID)
	if err != nil {
		fail("auto approval", err)
	}
	fmt.Printf("auto-approval: approved=%v reason=%q\n", decision.Approved, decision.Reason)

	verification, err := models.VerifyAuditChain(ctx, models.EntityTypeInvoice, invoice.ID)
	if err != nil {
		fail("verify audit chain", err)
	}
	fmt.Printf("audit chain: records=%d valid=%v\n", verification.RecordCount, verification.Valid)
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
