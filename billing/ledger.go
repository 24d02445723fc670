/*
ledger.go - Partial-payment accumulation against an invoice

PURPOSE:
  Accumulates payments against the computed actual amount, enforcing the
  two hard preconditions of the payment ledger:

    1. No overpayment: receivedAmount <= remaining balance, always.
    2. Date ordering: paymentDate >= invoiceDate, always.

  Each accepted payment both bumps the running TotalPaidAmount and yields
  an append-only PaymentEntry, so the full history can be reconstructed.
  The sum of entries always equals TotalPaidAmount - an invariant the
  tests assert directly.

INVARIANTS:
  0 <= TotalPaidAmount <= ActualAmountVND at all times.
  IsFinished is derived: true exactly when the amount is fully covered.

SEE ALSO:
  - transitions.go: The payment status table RecordPayment moves through
  - service.go: Persists the entry and the record atomically
*/
package billing

import "time"

// RecordPayment applies one received payment. Preconditions are checked
// before any mutation: a rejected payment leaves the record untouched.
//
// The returned entry carries the amount, date and note; the service layer
// assigns its identity and evidence reference before persisting it.
func (cp *ContractPayment) RecordPayment(amount VND, paymentDate time.Time, note string) (*PaymentEntry, error) {
	if cp.PaymentStatus != PaymentInvoiced && cp.PaymentStatus != PaymentPartiallyPaid {
		return nil, &TransitionError{
			Dimension: "payment_status",
			From:      string(cp.PaymentStatus),
			To:        string(PaymentPartiallyPaid),
		}
	}
	if amount <= 0 {
		return nil, newValidationError("received_amount", "must be greater than zero")
	}
	if paymentDate.IsZero() {
		return nil, newValidationError("payment_date", "is required")
	}

	day := normalizeDate(paymentDate)
	if day.Before(cp.InvoiceDate) {
		return nil, &PaymentDateError{InvoiceDate: cp.InvoiceDate, PaymentDate: day}
	}

	remaining := cp.RemainingBalance()
	if amount > remaining {
		return nil, &OverpaymentError{
			ContractPaymentID: cp.ID,
			Remaining:         remaining,
			Requested:         amount,
		}
	}

	next := PaymentPartiallyPaid
	if cp.TotalPaidAmount+amount == cp.ActualAmountVND {
		next = PaymentPaid
	}
	if err := cp.movePayment(next); err != nil {
		return nil, err
	}

	cp.TotalPaidAmount += amount
	cp.LastPaymentDate = day
	cp.IsFinished = cp.PaymentStatus == PaymentPaid
	if note != "" {
		cp.Notes = note
	}

	return &PaymentEntry{
		ContractPaymentID: cp.ID,
		Amount:            amount,
		Date:              day,
		Note:              note,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// LedgerTotal sums a slice of entries. Kept next to RecordPayment so the
// "entries sum to TotalPaidAmount" invariant has a single obvious oracle.
func LedgerTotal(entries []PaymentEntry) VND {
	var total VND
	for _, e := range entries {
		total += e.Amount
	}
	return total
}
