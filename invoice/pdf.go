/*
Package invoice renders contract-payment invoices as PDF.

PURPOSE:
  Produces the printable invoice for an Invoiced contract payment:
  billing terms, the tier breakdown from the overtime calculation, and
  the payment summary. The engine stores amounts; this package only
  formats them.

SEE ALSO:
  - billing/calculator.go: TierLine, the breakdown rows rendered here
*/
package invoice

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/warp/billing-engine/billing"
)

// Generator renders invoice PDFs using gofpdf's built-in fonts.
type Generator struct {
	fontName string
}

// NewGenerator creates a PDF generator.
func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

// Generate renders the invoice for cp. The record must carry an invoice
// number, so callers should only render Invoiced or later records.
func (g *Generator) Generate(cp *billing.ContractPayment) ([]byte, error) {
	if cp.InvoiceNumber == "" {
		return nil, fmt.Errorf("record %s has no invoice number", cp.ID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Invoice No. %s, dated %s", cp.InvoiceNumber, formatDate(cp.InvoiceDate)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Contract payment %s", cp.ID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	g.addTermsBlock(pdf, cp)
	pdf.Ln(2)

	if cp.Terms.Method == billing.MethodPercentage && len(cp.TierBreakdown) > 0 {
		g.addBreakdownTable(pdf, cp)
		pdf.Ln(2)
	}

	g.addTotalsBlock(pdf, cp)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) addTermsBlock(pdf *gofpdf.Fpdf, cp *billing.ContractPayment) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Billing terms", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)

	lines := []string{
		fmt.Sprintf("Method: %s", cp.Terms.Method),
		fmt.Sprintf("Unit price: %s %s", cp.Terms.UnitPriceForeign.StringFixed(2), cp.Terms.CurrencyCode),
		fmt.Sprintf("Exchange rate: %s VND/%s", cp.Terms.ExchangeRate.String(), cp.Terms.CurrencyCode),
		fmt.Sprintf("Billable hours: %s (standard %s)", cp.BillableHours.String(), cp.Terms.StandardHours.String()),
		fmt.Sprintf("Man-month coefficient: %s", cp.ManMonthCoefficient.String()),
	}
	for _, line := range lines {
		pdf.MultiCell(0, 5, line, "", "L", false)
	}
}

func (g *Generator) addBreakdownTable(pdf *gofpdf.Fpdf, cp *billing.ContractPayment) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Overtime breakdown", "", 1, "L", false, 0, "")

	headers := []string{"Bracket", "Hours", "Rate", "Multiplier", cp.Terms.CurrencyCode, "VND"}
	colWidths := []float64{35, 20, 30, 25, 35, 35}
	g.drawTableRow(pdf, headers, colWidths, true)

	for _, line := range cp.TierBreakdown {
		row := []string{
			formatBracket(line.Low, line.High),
			line.Hours.String(),
			line.BaseRate.StringFixed(4),
			line.Multiplier.String(),
			line.AmountForeign.StringFixed(2),
			formatVND(line.AmountVND),
		}
		g.drawTableRow(pdf, row, colWidths, false)
	}
}

func (g *Generator) addTotalsBlock(pdf *gofpdf.Fpdf, cp *billing.ContractPayment) {
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Planned amount: %s VND", formatVND(cp.PlannedAmountVND)), "", 1, "R", false, 0, "")

	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Amount due: %s VND", formatVND(cp.ActualAmountVND)), "", 1, "R", false, 0, "")

	if cp.TotalPaidAmount > 0 {
		pdf.SetFont(g.fontName, "", 11)
		pdf.CellFormat(0, 6, fmt.Sprintf("Paid to date: %s VND", formatVND(cp.TotalPaidAmount)), "", 1, "R", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("Remaining: %s VND", formatVND(cp.RemainingBalance())), "", 1, "R", false, 0, "")
	}
}

func (g *Generator) drawTableRow(pdf *gofpdf.Fpdf, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(g.fontName, style, 10)
	for i, col := range cols {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func formatBracket(low, high int64) string {
	if high == 0 && low > 0 {
		return fmt.Sprintf("%d+", low)
	}
	return fmt.Sprintf("%d-%d", low, high)
}

// formatVND groups digits with commas: 51250000 -> "51,250,000".
func formatVND(v billing.VND) string {
	s := strconv.FormatInt(int64(v), 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02 Jan 2006")
}
