package models

import (
	"log"

	"github.com/mmdatafocus/vendorportal_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Supplier{},
		&PurchaseOrder{}, &GoodsReceipt{}, &Invoice{}, &InvoiceStatusEntry{},
		&AuditRecord{},
		&ThreeWayMatch{},
		&ClaimCategory{}, &ExpenseClaim{}, &TenantAccessGrant{},
		&AutoApprovalRule{}, &ApprovalLog{},
		&InvoiceException{}, &InvoiceStaleness{},
		&Notification{}, &NotificationOutboxRecord{},
		&Setting{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
