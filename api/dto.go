/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

EVIDENCE:
  Gated transitions carry their supporting document inline as base64:
    "evidence": {"file_name": "contract.pdf", "content_base64": "..."}
  The engine rejects the transition when evidence is missing, so DTOs
  pass nil through rather than inventing an empty file.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain model these map from
*/
package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateContractPaymentRequest creates a draft record.
type CreateContractPaymentRequest struct {
	ID                 string `json:"id,omitempty"`
	ProjectPeriodID    string `json:"project_period_id"`
	TalentAssignmentID string `json:"talent_assignment_id"`
}

// EvidenceDTO is an inline supporting document.
type EvidenceDTO struct {
	FileName      string `json:"file_name"`
	ContentBase64 string `json:"content_base64"`
}

func (e *EvidenceDTO) toEvidence() (*billing.Evidence, error) {
	if e == nil {
		return nil, nil
	}
	content, err := base64.StdEncoding.DecodeString(e.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid evidence content: %w", err)
	}
	return &billing.Evidence{FileName: e.FileName, Content: bytes.NewReader(content)}, nil
}

// NotesRequest carries free-form notes for simple transitions.
type NotesRequest struct {
	Notes string `json:"notes,omitempty"`
}

// VerifyRequest verifies a submitted contract.
type VerifyRequest struct {
	Notes    string       `json:"notes,omitempty"`
	Evidence *EvidenceDTO `json:"evidence,omitempty"`
}

// RejectRequest rejects a submitted contract.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// SubmitRequest submits a draft with its billing terms.
type SubmitRequest struct {
	UnitPriceForeign string       `json:"unit_price_foreign"`
	CurrencyCode     string       `json:"currency_code"`
	ExchangeRate     string       `json:"exchange_rate"`
	Method           string       `json:"calculation_method"`
	PercentageValue  string       `json:"percentage_value,omitempty"`
	FixedAmount      string       `json:"fixed_amount,omitempty"`
	StandardHours    string       `json:"standard_hours,omitempty"`
	Evidence         *EvidenceDTO `json:"evidence,omitempty"`
}

func (r SubmitRequest) toTerms() (billing.BillingTerms, error) {
	var terms billing.BillingTerms
	var err error

	if terms.UnitPriceForeign, err = parseDecimalField(r.UnitPriceForeign, "unit_price_foreign"); err != nil {
		return terms, err
	}
	if terms.ExchangeRate, err = parseDecimalField(r.ExchangeRate, "exchange_rate"); err != nil {
		return terms, err
	}
	if terms.Method, err = billing.ParseCalculationMethod(r.Method); err != nil {
		return terms, err
	}
	if r.PercentageValue != "" {
		if terms.PercentageValue, err = parseDecimalField(r.PercentageValue, "percentage_value"); err != nil {
			return terms, err
		}
	}
	if r.FixedAmount != "" {
		if terms.FixedAmount, err = parseDecimalField(r.FixedAmount, "fixed_amount"); err != nil {
			return terms, err
		}
	}
	if r.StandardHours != "" {
		if terms.StandardHours, err = parseDecimalField(r.StandardHours, "standard_hours"); err != nil {
			return terms, err
		}
	}
	terms.CurrencyCode = r.CurrencyCode
	return terms, nil
}

// StartBillingRequest runs the billing calculation.
type StartBillingRequest struct {
	BillableHours string       `json:"billable_hours"`
	Notes         string       `json:"notes,omitempty"`
	Evidence      *EvidenceDTO `json:"evidence,omitempty"`
}

// CreateInvoiceRequest issues the invoice.
type CreateInvoiceRequest struct {
	InvoiceNumber string       `json:"invoice_number"`
	InvoiceDate   string       `json:"invoice_date"` // YYYY-MM-DD
	Notes         string       `json:"notes,omitempty"`
	Evidence      *EvidenceDTO `json:"evidence,omitempty"`
}

// RecordPaymentRequest records one payment against the invoice.
type RecordPaymentRequest struct {
	Amount      int64        `json:"amount_vnd"`
	PaymentDate string       `json:"payment_date"` // YYYY-MM-DD
	Note        string       `json:"note,omitempty"`
	Evidence    *EvidenceDTO `json:"evidence,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ContractPaymentDTO represents a record in API responses.
type ContractPaymentDTO struct {
	ID                 string `json:"id"`
	ProjectPeriodID    string `json:"project_period_id"`
	TalentAssignmentID string `json:"talent_assignment_id"`

	ContractStatus  string `json:"contract_status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Notes           string `json:"notes,omitempty"`

	UnitPriceForeign string `json:"unit_price_foreign"`
	CurrencyCode     string `json:"currency_code,omitempty"`
	ExchangeRate     string `json:"exchange_rate"`
	Method           string `json:"calculation_method,omitempty"`
	PercentageValue  string `json:"percentage_value,omitempty"`
	FixedAmount      string `json:"fixed_amount,omitempty"`
	StandardHours    string `json:"standard_hours,omitempty"`

	PlannedAmountVND    int64         `json:"planned_amount_vnd"`
	BillableHours       string        `json:"billable_hours,omitempty"`
	ManMonthCoefficient string        `json:"man_month_coefficient,omitempty"`
	ActualAmountVND     int64         `json:"actual_amount_vnd"`
	TierBreakdown       []TierLineDTO `json:"tier_breakdown,omitempty"`

	PaymentStatus   string `json:"payment_status"`
	InvoiceNumber   string `json:"invoice_number,omitempty"`
	InvoiceDate     string `json:"invoice_date,omitempty"`
	TotalPaidAmount int64  `json:"total_paid_amount"`
	RemainingVND    int64  `json:"remaining_vnd"`
	LastPaymentDate string `json:"last_payment_date,omitempty"`
	IsFinished      bool   `json:"is_finished"`

	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TierLineDTO is one row of the overtime breakdown.
type TierLineDTO struct {
	Low           int64  `json:"low"`
	High          int64  `json:"high,omitempty"`
	Hours         string `json:"hours"`
	Multiplier    string `json:"multiplier"`
	AmountForeign string `json:"amount_foreign"`
	AmountVND     int64  `json:"amount_vnd"`
}

// PaymentEntryDTO is one ledger entry in API responses.
type PaymentEntryDTO struct {
	ID                string `json:"id"`
	ContractPaymentID string `json:"contract_payment_id"`
	AmountVND         int64  `json:"amount_vnd"`
	Date              string `json:"date"`
	Note              string `json:"note,omitempty"`
	EvidenceURL       string `json:"evidence_url,omitempty"`
	RecordedBy        string `json:"recorded_by,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toContractPaymentDTO(cp *billing.ContractPayment) ContractPaymentDTO {
	dto := ContractPaymentDTO{
		ID:                 cp.ID,
		ProjectPeriodID:    cp.ProjectPeriodID,
		TalentAssignmentID: cp.TalentAssignmentID,
		ContractStatus:     string(cp.ContractStatus),
		RejectionReason:    cp.RejectionReason,
		Notes:              cp.Notes,
		UnitPriceForeign:   cp.Terms.UnitPriceForeign.String(),
		CurrencyCode:       cp.Terms.CurrencyCode,
		ExchangeRate:       cp.Terms.ExchangeRate.String(),
		Method:             string(cp.Terms.Method),
		PlannedAmountVND:   int64(cp.PlannedAmountVND),
		ActualAmountVND:    int64(cp.ActualAmountVND),
		PaymentStatus:      string(cp.PaymentStatus),
		InvoiceNumber:      cp.InvoiceNumber,
		InvoiceDate:        formatDate(cp.InvoiceDate),
		TotalPaidAmount:    int64(cp.TotalPaidAmount),
		RemainingVND:       int64(cp.RemainingBalance()),
		LastPaymentDate:    formatDate(cp.LastPaymentDate),
		IsFinished:         cp.IsFinished,
		Version:            cp.Version,
		CreatedAt:          cp.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          cp.UpdatedAt.Format(time.RFC3339),
	}
	if !cp.Terms.PercentageValue.IsZero() {
		dto.PercentageValue = cp.Terms.PercentageValue.String()
	}
	if !cp.Terms.FixedAmount.IsZero() {
		dto.FixedAmount = cp.Terms.FixedAmount.String()
	}
	if !cp.Terms.StandardHours.IsZero() {
		dto.StandardHours = cp.Terms.StandardHours.String()
	}
	if !cp.BillableHours.IsZero() {
		dto.BillableHours = cp.BillableHours.String()
	}
	if !cp.ManMonthCoefficient.IsZero() {
		dto.ManMonthCoefficient = cp.ManMonthCoefficient.String()
	}
	for _, line := range cp.TierBreakdown {
		dto.TierBreakdown = append(dto.TierBreakdown, TierLineDTO{
			Low:           line.Low,
			High:          line.High,
			Hours:         line.Hours.String(),
			Multiplier:    line.Multiplier.String(),
			AmountForeign: line.AmountForeign.String(),
			AmountVND:     int64(line.AmountVND),
		})
	}
	return dto
}

func toPaymentEntryDTO(e billing.PaymentEntry) PaymentEntryDTO {
	return PaymentEntryDTO{
		ID:                e.ID,
		ContractPaymentID: e.ContractPaymentID,
		AmountVND:         int64(e.Amount),
		Date:              formatDate(e.Date),
		Note:              e.Note,
		EvidenceURL:       e.EvidenceURL,
		RecordedBy:        e.RecordedBy,
	}
}

func parseDecimalField(value, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

func parseDateField(value, field string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s (use YYYY-MM-DD): %w", field, err)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
