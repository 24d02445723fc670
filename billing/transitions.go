/*
transitions.go - The two status state machines

PURPOSE:
  Every status change on a ContractPayment is expressed as an explicit
  transition table plus an operation method that validates preconditions,
  consults the table, and only then mutates the record. No call site can
  move a record between states any other way.

THE TWO DIMENSIONS:
  Contract status (approval of terms):
    Draft -> {NeedMoreInformation, Submitted}
    NeedMoreInformation -> Submitted
    Submitted -> {Verified, Rejected}
    Verified -> Approved
    Rejected, Approved are terminal for this dimension.

  Payment status (billing to cash), unlocked by Approved:
    Pending -> Processing -> Invoiced -> {PartiallyPaid, Paid}
    PartiallyPaid -> {PartiallyPaid, Paid}

EVIDENCE:
  Gated transitions (submit, verify, start billing, invoice, payment)
  require a supporting document. That is a precondition enforced by the
  service layer, which must complete the evidence upload BEFORE calling a
  method here. The methods themselves are pure record mutations.

SEE ALSO:
  - ledger.go: RecordPayment, the remaining cash-side mutation
  - service.go: Role gating, evidence ordering, persistence
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSITION TABLES
// =============================================================================

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractDraft:               {ContractNeedMoreInformation, ContractSubmitted},
	ContractNeedMoreInformation: {ContractSubmitted},
	ContractSubmitted:           {ContractVerified, ContractRejected},
	ContractVerified:            {ContractApproved},
	ContractApproved:            {},
	ContractRejected:            {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:       {PaymentProcessing},
	PaymentProcessing:    {PaymentInvoiced},
	PaymentInvoiced:      {PaymentPartiallyPaid, PaymentPaid},
	PaymentPartiallyPaid: {PaymentPartiallyPaid, PaymentPaid},
	PaymentPaid:          {},
}

// CanTransitionContract reports whether the contract table permits the move.
func CanTransitionContract(from, to ContractStatus) bool {
	for _, next := range contractTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment table permits the move.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (cp *ContractPayment) moveContract(to ContractStatus) error {
	if !CanTransitionContract(cp.ContractStatus, to) {
		return &TransitionError{
			Dimension: "contract_status",
			From:      string(cp.ContractStatus),
			To:        string(to),
		}
	}
	cp.ContractStatus = to
	cp.UpdatedAt = time.Now().UTC()
	return nil
}

func (cp *ContractPayment) movePayment(to PaymentStatus) error {
	if !CanTransitionPayment(cp.PaymentStatus, to) {
		return &TransitionError{
			Dimension: "payment_status",
			From:      string(cp.PaymentStatus),
			To:        string(to),
		}
	}
	cp.PaymentStatus = to
	cp.UpdatedAt = time.Now().UTC()
	return nil
}

// =============================================================================
// CONTRACT STATUS OPERATIONS
// =============================================================================

// RequestMoreInformation sends a draft back to Sales for clarification.
// Only meaningful while the cash side has not started.
func (cp *ContractPayment) RequestMoreInformation(notes string) error {
	if cp.PaymentStatus != PaymentPending {
		return &TransitionError{
			Dimension: "contract_status",
			From:      string(cp.ContractStatus),
			To:        string(ContractNeedMoreInformation),
		}
	}
	if err := cp.moveContract(ContractNeedMoreInformation); err != nil {
		return err
	}
	if notes != "" {
		cp.Notes = notes
	}
	return nil
}

// Submit records the billing terms and computes the planned amount. The
// planned amount depends on terms only, never on actual hours.
func (cp *ContractPayment) Submit(terms BillingTerms) error {
	if err := terms.Validate(); err != nil {
		return err
	}
	if err := cp.moveContract(ContractSubmitted); err != nil {
		return err
	}
	cp.Terms = terms
	cp.PlannedAmountVND = terms.PlannedAmount()
	return nil
}

// VerifyContract marks the submitted terms as checked by the accountant.
func (cp *ContractPayment) VerifyContract(notes string) error {
	if err := cp.moveContract(ContractVerified); err != nil {
		return err
	}
	if notes != "" {
		cp.Notes = notes
	}
	return nil
}

// RejectContract terminally rejects submitted terms. A non-empty reason is
// mandatory; the payment status is left untouched (it remains Pending).
func (cp *ContractPayment) RejectContract(reason string) error {
	if reason == "" {
		return newValidationError("rejection_reason", "is required")
	}
	if err := cp.moveContract(ContractRejected); err != nil {
		return err
	}
	cp.RejectionReason = reason
	return nil
}

// ApproveContract is the only transition that unlocks the payment status
// machine.
func (cp *ContractPayment) ApproveContract(notes string) error {
	if err := cp.moveContract(ContractApproved); err != nil {
		return err
	}
	if notes != "" {
		cp.Notes = notes
	}
	return nil
}

// =============================================================================
// PAYMENT STATUS OPERATIONS
// =============================================================================

// StartBilling supplies the actual billable hours and invokes the
// calculator. The actual amount is set exactly once, here, and never
// mutated afterward.
func (cp *ContractPayment) StartBilling(billableHours decimal.Decimal, schedule TierSchedule, notes string) (*CalculationResult, error) {
	if cp.ContractStatus != ContractApproved {
		return nil, &TransitionError{
			Dimension: "payment_status",
			From:      string(cp.PaymentStatus),
			To:        string(PaymentProcessing),
		}
	}
	if !billableHours.IsPositive() {
		return nil, newValidationError("billable_hours", "must be greater than zero")
	}
	if !CanTransitionPayment(cp.PaymentStatus, PaymentProcessing) {
		return nil, &TransitionError{
			Dimension: "payment_status",
			From:      string(cp.PaymentStatus),
			To:        string(PaymentProcessing),
		}
	}

	result, err := Calculate(CalculationInput{
		Method:           cp.Terms.Method,
		BillableHours:    billableHours,
		UnitPriceForeign: cp.Terms.UnitPriceForeign,
		ExchangeRate:     cp.Terms.ExchangeRate,
		StandardHours:    cp.Terms.StandardHours,
		PercentageValue:  cp.Terms.PercentageValue,
		FixedAmount:      cp.Terms.FixedAmount,
		PlannedAmountVND: cp.PlannedAmountVND,
		Schedule:         schedule,
	})
	if err != nil {
		return nil, err
	}

	if err := cp.movePayment(PaymentProcessing); err != nil {
		return nil, err
	}
	cp.BillableHours = billableHours
	cp.ManMonthCoefficient = result.Coefficient
	cp.ActualAmountVND = result.ActualAmountVND
	cp.TierBreakdown = result.Lines
	if notes != "" {
		cp.Notes = notes
	}
	return result, nil
}

// CreateInvoice records the invoice identity. The invoice date is
// normalized to a full UTC timestamp at midnight so that payment-date
// ordering compares whole days.
func (cp *ContractPayment) CreateInvoice(invoiceNumber string, invoiceDate time.Time, notes string) error {
	if invoiceNumber == "" {
		return newValidationError("invoice_number", "is required")
	}
	if invoiceDate.IsZero() {
		return newValidationError("invoice_date", "is required")
	}
	if err := cp.movePayment(PaymentInvoiced); err != nil {
		return err
	}
	cp.InvoiceNumber = invoiceNumber
	cp.InvoiceDate = normalizeDate(invoiceDate)
	if notes != "" {
		cp.Notes = notes
	}
	return nil
}

// normalizeDate strips the time-of-day component, keeping a full timestamp
// at UTC midnight.
func normalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
