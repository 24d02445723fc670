/*
Package report exports contract-payment data as XLSX workbooks.

PURPOSE:
  Produces the accounting export: one summary sheet across all records
  plus a ledger sheet listing every payment entry. Read-only over the
  store; no engine state changes.
*/
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/billing-engine/billing"
)

// Generator builds XLSX reports from store data.
type Generator struct {
	store billing.Store
}

// NewGenerator creates a report generator over the given store.
func NewGenerator(store billing.Store) *Generator {
	return &Generator{store: store}
}

// Generate renders the full contract-payments workbook.
func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	records, err := g.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contract payments: %w", err)
	}

	file := excelize.NewFile()

	summarySheet := "Contract Payments"
	file.SetSheetName("Sheet1", summarySheet)
	if err := g.writeSummary(file, summarySheet, records); err != nil {
		return nil, err
	}

	ledgerSheet := "Payment Ledger"
	if _, err := file.NewSheet(ledgerSheet); err != nil {
		return nil, err
	}
	if err := g.writeLedger(ctx, file, ledgerSheet, records); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, records []*billing.ContractPayment) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	headers := []string{
		"ID", "Project Period", "Talent Assignment",
		"Contract Status", "Payment Status", "Method",
		"Currency", "Billable Hours", "Coefficient",
		"Planned (VND)", "Actual (VND)", "Paid (VND)", "Remaining (VND)",
		"Invoice No.", "Invoice Date", "Last Payment", "Finished",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		set(cell, h)
	}

	for r, cp := range records {
		row := r + 2
		values := []interface{}{
			cp.ID, cp.ProjectPeriodID, cp.TalentAssignmentID,
			string(cp.ContractStatus), string(cp.PaymentStatus), string(cp.Terms.Method),
			cp.Terms.CurrencyCode, cp.BillableHours.String(), cp.ManMonthCoefficient.String(),
			int64(cp.PlannedAmountVND), int64(cp.ActualAmountVND),
			int64(cp.TotalPaidAmount), int64(cp.RemainingBalance()),
			cp.InvoiceNumber, formatDate(cp.InvoiceDate), formatDate(cp.LastPaymentDate),
			cp.IsFinished,
		}
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return err
			}
			set(cell, v)
		}
	}
	return nil
}

func (g *Generator) writeLedger(ctx context.Context, file *excelize.File, sheet string, records []*billing.ContractPayment) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	headers := []string{
		"Contract Payment", "Entry ID", "Amount (VND)", "Date", "Note", "Recorded By", "Evidence URL",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		set(cell, h)
	}

	row := 2
	for _, cp := range records {
		entries, err := g.store.ListPayments(ctx, cp.ID)
		if err != nil {
			return fmt.Errorf("list payments for %s: %w", cp.ID, err)
		}
		for _, e := range entries {
			values := []interface{}{
				e.ContractPaymentID, e.ID, int64(e.Amount),
				formatDate(e.Date), e.Note, e.RecordedBy, e.EvidenceURL,
			}
			for i, v := range values {
				cell, err := excelize.CoordinatesToCellName(i+1, row)
				if err != nil {
					return err
				}
				set(cell, v)
			}
			row++
		}
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
