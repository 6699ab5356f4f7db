package reports

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mmdatafocus/vendorportal_backend/config"
	"github.com/mmdatafocus/vendorportal_backend/models"
	"github.com/mmdatafocus/vendorportal_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ReconciliationSummaryResponse is one supplier's row of the rollup.
type ReconciliationSummaryResponse struct {
	SupplierId           int             `json:"supplierId"`
	SupplierName         string          `json:"supplierName"`
	InvoiceCount         int             `json:"invoiceCount"`
	OpenInvoiceCount     int             `json:"openInvoiceCount"`
	MatchedCount         int             `json:"matchedCount"`
	PartialCount         int             `json:"partialCount"`
	MismatchCount        int             `json:"mismatchCount"`
	PaymentEligibleCount int             `json:"paymentEligibleCount"`
	TotalInvoiced        decimal.Decimal `json:"totalInvoiced"`
	TotalVariance        decimal.Decimal `json:"totalVariance"`
	OpenExceptionCount   int             `json:"openExceptionCount"`
}

func GetReconciliationSummaryReport(ctx context.Context) ([]*ReconciliationSummaryResponse, error) {

	var results []*ReconciliationSummaryResponse
	sql := `
WITH InvoiceRollup AS (
    SELECT
        i.supplier_id,
        COUNT(*) AS invoice_count,
        SUM(
            CASE
                WHEN i.current_status NOT IN ('Paid', 'Rejected') THEN 1
                ELSE 0
            END
        ) AS open_invoice_count,
        SUM(i.invoice_total_amount) AS total_invoiced
    FROM
        invoices i
    WHERE
        i.business_id = @businessId
    GROUP BY
        i.supplier_id
),
MatchRollup AS (
    SELECT
        i.supplier_id,
        SUM(CASE WHEN m.matching_status = 'Matched' THEN 1 ELSE 0 END) AS matched_count,
        SUM(CASE WHEN m.matching_status = 'Partial' THEN 1 ELSE 0 END) AS partial_count,
        SUM(CASE WHEN m.matching_status = 'Mismatch' THEN 1 ELSE 0 END) AS mismatch_count,
        SUM(CASE WHEN m.payment_eligible THEN 1 ELSE 0 END) AS payment_eligible_count,
        SUM(ABS(m.variance_amount)) AS total_variance
    FROM
        three_way_matches m
        JOIN invoices i ON i.id = m.invoice_id
    WHERE
        m.business_id = @businessId
    GROUP BY
        i.supplier_id
),
ExceptionRollup AS (
    SELECT
        i.supplier_id,
        COUNT(*) AS open_exception_count
    FROM
        invoice_exceptions e
        JOIN invoices i ON i.id = e.invoice_id
    WHERE
        e.business_id = @businessId
        AND e.open_marker IS NOT NULL
    GROUP BY
        i.supplier_id
)
SELECT
    suppliers.id AS supplier_id,
    suppliers.name AS supplier_name,
    COALESCE(ir.invoice_count, 0) AS invoice_count,
    COALESCE(ir.open_invoice_count, 0) AS open_invoice_count,
    COALESCE(mr.matched_count, 0) AS matched_count,
    COALESCE(mr.partial_count, 0) AS partial_count,
    COALESCE(mr.mismatch_count, 0) AS mismatch_count,
    COALESCE(mr.payment_eligible_count, 0) AS payment_eligible_count,
    COALESCE(ir.total_invoiced, 0) AS total_invoiced,
    COALESCE(mr.total_variance, 0) AS total_variance,
    COALESCE(er.open_exception_count, 0) AS open_exception_count
FROM
    suppliers
    LEFT JOIN InvoiceRollup ir ON ir.supplier_id = suppliers.id
    LEFT JOIN MatchRollup mr ON mr.supplier_id = suppliers.id
    LEFT JOIN ExceptionRollup er ON er.supplier_id = suppliers.id
WHERE
    suppliers.business_id = @businessId
ORDER BY
    suppliers.name;
`
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
	}).Scan(&results).Error; err != nil {
		return nil, err
	}

	models.AppendReadAudit(ctx, "ReconciliationReport", 0, models.AuditActionExport)
	return results, nil
}

// ExportReconciliationSummaryExcel writes the rollup as a workbook.
func ExportReconciliationSummaryExcel(ctx context.Context, w io.Writer) error {

	data, err := GetReconciliationSummaryReport(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{
		"Supplier", "Invoices", "Open Invoices", "Matched", "Partial", "Mismatch",
		"Payment Eligible", "Total Invoiced", "Total Variance", "Open Exceptions",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheet, cell, h)
	}

	for i, d := range data {
		row := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), d.SupplierName)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), d.InvoiceCount)
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), d.OpenInvoiceCount)
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), d.MatchedCount)
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), d.PartialCount)
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), d.MismatchCount)
		f.SetCellValue(sheet, "G"+fmt.Sprint(row), d.PaymentEligibleCount)
		f.SetCellValue(sheet, "H"+fmt.Sprint(row), d.TotalInvoiced.InexactFloat64())
		f.SetCellValue(sheet, "I"+fmt.Sprint(row), d.TotalVariance.InexactFloat64())
		f.SetCellValue(sheet, "J"+fmt.Sprint(row), d.OpenExceptionCount)
	}

	return f.Write(w)
}
