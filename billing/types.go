/*
Package billing provides the contract payment lifecycle and billing
calculation engine.

PURPOSE:
  This package contains the domain logic that governs how a client-billing
  record moves through its multi-party approval workflow and how reported
  work hours are converted into a payable VND amount. It owns the two
  status state machines, the tiered billing calculator, the payment
  ledger, and the retry policy around invoice creation.

KEY CONCEPTS IN THIS FILE (types.go):
  - VND: Whole-dong amounts (no sub-unit), the settlement currency
  - BillingTerms: The commercial terms fixed at submission
  - ContractPayment: The central entity, one per talent per project period
  - Role: The caller's role, gating which transitions are permitted

DESIGN PRINCIPLES:
  1. Precision: Foreign-currency math uses decimal.Decimal, never float64
  2. Derived state: ActualAmountVND and IsFinished are computed, not set
  3. Optimistic concurrency: every record carries a Version token
  4. Auditability: every accepted payment is an append-only ledger entry

SEE ALSO:
  - transitions.go: The two status state machines
  - calculator.go: Planned/actual amount computation
  - ledger.go: Partial-payment accumulation
  - service.go: Orchestration over store and collaborators
*/
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - VND is settled in whole dong
// =============================================================================

// VND is an amount in Vietnamese dong. The currency has no sub-unit in
// practice, so amounts are plain integers.
type VND int64

// vnd converts a decimal amount to whole dong, rounding half away from zero.
func vnd(d decimal.Decimal) VND {
	return VND(d.Round(0).IntPart())
}

// =============================================================================
// STATUS DIMENSIONS
// =============================================================================

// ContractStatus tracks the approval lifecycle of the billing terms.
type ContractStatus string

const (
	ContractDraft               ContractStatus = "Draft"
	ContractNeedMoreInformation ContractStatus = "NeedMoreInformation"
	ContractSubmitted           ContractStatus = "Submitted"
	ContractVerified            ContractStatus = "Verified"
	ContractApproved            ContractStatus = "Approved"
	ContractRejected            ContractStatus = "Rejected"
)

// PaymentStatus tracks the billing-to-cash lifecycle. It only advances once
// the contract side has reached Approved.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "Pending"
	PaymentProcessing    PaymentStatus = "Processing"
	PaymentInvoiced      PaymentStatus = "Invoiced"
	PaymentPartiallyPaid PaymentStatus = "PartiallyPaid"
	PaymentPaid          PaymentStatus = "Paid"
)

// =============================================================================
// CALCULATION METHOD
// =============================================================================

// CalculationMethod selects how billable hours translate into money.
type CalculationMethod string

const (
	// MethodPercentage bills hours across progressive overtime tiers, each
	// paying a multiple of the hourly base rate.
	MethodPercentage CalculationMethod = "Percentage"

	// MethodFixedAmount bills a fixed fee regardless of hours.
	MethodFixedAmount CalculationMethod = "FixedAmount"
)

// ParseCalculationMethod normalizes a stored method discriminant. The legacy
// literal "Fixed" appears in older records and is treated as a display alias
// of FixedAmount, never as a third method.
func ParseCalculationMethod(s string) (CalculationMethod, error) {
	switch s {
	case string(MethodPercentage):
		return MethodPercentage, nil
	case string(MethodFixedAmount), "Fixed":
		return MethodFixedAmount, nil
	default:
		return "", fmt.Errorf("%w: unknown calculation method %q", ErrValidation, s)
	}
}

// =============================================================================
// ROLES
// =============================================================================

// Role is the caller's resolved role. Resolution itself (sessions, tokens)
// is an external concern; the engine only checks that the role held is
// permitted to perform a given transition.
type Role string

const (
	RoleSales      Role = "Sales"
	RoleAccountant Role = "Accountant"
	RoleManager    Role = "Manager"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// =============================================================================
// BILLING TERMS - Fixed at submission, immutable after approval
// =============================================================================

// DefaultStandardHours is the baseline full-period hour count used to derive
// an hourly base rate from the period unit price.
var DefaultStandardHours = decimal.NewFromInt(160)

// BillingTerms are the commercial terms Sales submits for accountant review.
type BillingTerms struct {
	UnitPriceForeign decimal.Decimal   // period unit price in CurrencyCode, > 0
	CurrencyCode     string            // e.g. "USD", "JPY"
	ExchangeRate     decimal.Decimal   // CurrencyCode -> VND, > 0
	Method           CalculationMethod // Percentage or FixedAmount
	PercentageValue  decimal.Decimal   // required iff Percentage, > 0
	FixedAmount      decimal.Decimal   // required iff FixedAmount, must equal unit price
	StandardHours    decimal.Decimal   // defaulted to 160 when zero
}

// Validate checks the field-level preconditions for submission.
func (t *BillingTerms) Validate() error {
	if !t.UnitPriceForeign.IsPositive() {
		return newValidationError("unit_price_foreign_currency", "must be greater than zero")
	}
	if t.CurrencyCode == "" {
		return newValidationError("currency_code", "is required")
	}
	if !t.ExchangeRate.IsPositive() {
		return newValidationError("exchange_rate", "must be greater than zero")
	}
	if t.StandardHours.IsZero() {
		t.StandardHours = DefaultStandardHours
	}
	if !t.StandardHours.IsPositive() {
		return newValidationError("standard_hours", "must be greater than zero")
	}

	switch t.Method {
	case MethodPercentage:
		if !t.PercentageValue.IsPositive() {
			return newValidationError("percentage_value", "must be greater than zero for the Percentage method")
		}
	case MethodFixedAmount:
		if !t.FixedAmount.IsPositive() {
			return newValidationError("fixed_amount", "must be greater than zero for the FixedAmount method")
		}
		if !t.FixedAmount.Equal(t.UnitPriceForeign) {
			return newValidationError("fixed_amount", "must equal unit_price_foreign_currency for the FixedAmount method")
		}
	default:
		return newValidationError("calculation_method", fmt.Sprintf("unknown method %q", t.Method))
	}
	return nil
}

// PlannedAmount computes the planned VND amount from terms alone. It is
// hour-independent: for Percentage it assumes the nominal percentage of the
// unit price, for FixedAmount it is the fixed fee converted once.
func (t BillingTerms) PlannedAmount() VND {
	switch t.Method {
	case MethodFixedAmount:
		return vnd(t.FixedAmount.Mul(t.ExchangeRate))
	default:
		hundred := decimal.NewFromInt(100)
		return vnd(t.UnitPriceForeign.Mul(t.ExchangeRate).Mul(t.PercentageValue).Div(hundred))
	}
}

// =============================================================================
// CONTRACT PAYMENT - The central entity
// =============================================================================

// ContractPayment is one client-billing record for a talent assignment in a
// project period. All field mutation goes through the transition methods in
// transitions.go and ledger.go; nothing else may write to it.
type ContractPayment struct {
	ID string

	// External references, resolved to display names outside this engine.
	ProjectPeriodID    string
	TalentAssignmentID string

	// Approval phase.
	ContractStatus  ContractStatus
	RejectionReason string
	Notes           string

	// Billing terms, set once at Submit.
	Terms            BillingTerms
	PlannedAmountVND VND

	// Billing actuals, set once at StartBilling.
	BillableHours       decimal.Decimal
	ManMonthCoefficient decimal.Decimal
	ActualAmountVND     VND
	TierBreakdown       []TierLine // retained for display and audit

	// Cash phase.
	PaymentStatus   PaymentStatus
	InvoiceNumber   string
	InvoiceDate     time.Time
	TotalPaidAmount VND
	LastPaymentDate time.Time
	IsFinished      bool

	// Optimistic concurrency token, incremented by the store on save.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewContractPayment creates a Draft record when a project period opens.
func NewContractPayment(id, projectPeriodID, talentAssignmentID string) *ContractPayment {
	now := time.Now().UTC()
	return &ContractPayment{
		ID:                 id,
		ProjectPeriodID:    projectPeriodID,
		TalentAssignmentID: talentAssignmentID,
		ContractStatus:     ContractDraft,
		PaymentStatus:      PaymentPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// RemainingBalance is the unpaid portion of the actual amount. Only
// meaningful once an invoice exists.
func (cp *ContractPayment) RemainingBalance() VND {
	switch cp.PaymentStatus {
	case PaymentInvoiced:
		return cp.ActualAmountVND
	case PaymentPartiallyPaid:
		return cp.ActualAmountVND - cp.TotalPaidAmount
	case PaymentPaid:
		return 0
	default:
		return 0
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state behind the engine's back.
func (cp *ContractPayment) Clone() *ContractPayment {
	out := *cp
	if cp.TierBreakdown != nil {
		out.TierBreakdown = make([]TierLine, len(cp.TierBreakdown))
		copy(out.TierBreakdown, cp.TierBreakdown)
	}
	return &out
}

// =============================================================================
// PAYMENT LEDGER ENTRY
// =============================================================================

// PaymentEntry is one accepted payment against an invoice. Entries are
// append-only: the sum of entries for a record always equals its
// TotalPaidAmount.
type PaymentEntry struct {
	ID                string
	ContractPaymentID string
	Amount            VND
	Date              time.Time
	Note              string
	EvidenceURL       string
	RecordedBy        string
	CreatedAt         time.Time
}
