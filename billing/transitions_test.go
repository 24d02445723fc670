package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func validTerms() billing.BillingTerms {
	return billing.BillingTerms{
		UnitPriceForeign: dec("1600"),
		CurrencyCode:     "USD",
		ExchangeRate:     dec("25000"),
		Method:           billing.MethodPercentage,
		PercentageValue:  dec("100"),
	}
}

func draftRecord() *billing.ContractPayment {
	return billing.NewContractPayment("cp-1", "period-1", "assignment-1")
}

func approvedRecord(t *testing.T) *billing.ContractPayment {
	t.Helper()
	cp := draftRecord()
	require.NoError(t, cp.Submit(validTerms()))
	require.NoError(t, cp.VerifyContract(""))
	require.NoError(t, cp.ApproveContract(""))
	return cp
}

func invoicedRecord(t *testing.T) *billing.ContractPayment {
	t.Helper()
	cp := approvedRecord(t)
	_, err := cp.StartBilling(dec("200"), nil, "")
	require.NoError(t, err)
	require.NoError(t, cp.CreateInvoice("INV-001", date(2026, 3, 10), ""))
	return cp
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// TRANSITION TABLES
// =============================================================================

func TestCanTransitionContract(t *testing.T) {
	allowed := []struct{ from, to billing.ContractStatus }{
		{billing.ContractDraft, billing.ContractNeedMoreInformation},
		{billing.ContractDraft, billing.ContractSubmitted},
		{billing.ContractNeedMoreInformation, billing.ContractSubmitted},
		{billing.ContractSubmitted, billing.ContractVerified},
		{billing.ContractSubmitted, billing.ContractRejected},
		{billing.ContractVerified, billing.ContractApproved},
	}
	for _, tr := range allowed {
		assert.True(t, billing.CanTransitionContract(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	forbidden := []struct{ from, to billing.ContractStatus }{
		{billing.ContractDraft, billing.ContractVerified},
		{billing.ContractDraft, billing.ContractApproved},
		{billing.ContractVerified, billing.ContractRejected},
		{billing.ContractApproved, billing.ContractDraft},
		{billing.ContractRejected, billing.ContractSubmitted},
		{billing.ContractApproved, billing.ContractApproved},
	}
	for _, tr := range forbidden {
		assert.False(t, billing.CanTransitionContract(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestCanTransitionPayment(t *testing.T) {
	allowed := []struct{ from, to billing.PaymentStatus }{
		{billing.PaymentPending, billing.PaymentProcessing},
		{billing.PaymentProcessing, billing.PaymentInvoiced},
		{billing.PaymentInvoiced, billing.PaymentPartiallyPaid},
		{billing.PaymentInvoiced, billing.PaymentPaid},
		{billing.PaymentPartiallyPaid, billing.PaymentPaid},
	}
	for _, tr := range allowed {
		assert.True(t, billing.CanTransitionPayment(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	forbidden := []struct{ from, to billing.PaymentStatus }{
		{billing.PaymentPending, billing.PaymentInvoiced},
		{billing.PaymentPending, billing.PaymentPaid},
		{billing.PaymentProcessing, billing.PaymentPaid},
		{billing.PaymentPaid, billing.PaymentInvoiced},
		{billing.PaymentInvoiced, billing.PaymentPending},
	}
	for _, tr := range forbidden {
		assert.False(t, billing.CanTransitionPayment(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}
}

// =============================================================================
// CONTRACT REVIEW FLOW
// =============================================================================

func TestSubmit_ComputesPlannedAmount(t *testing.T) {
	// GIVEN: a draft with 100% of $1600 at 25000 VND/USD
	// THEN: planned amount 40,000,000 VND, contract Submitted

	cp := draftRecord()
	require.NoError(t, cp.Submit(validTerms()))

	assert.Equal(t, billing.ContractSubmitted, cp.ContractStatus)
	assert.Equal(t, billing.PaymentPending, cp.PaymentStatus)
	assert.Equal(t, billing.VND(40_000_000), cp.PlannedAmountVND)
}

func TestSubmit_RejectsInvalidTerms(t *testing.T) {
	cp := draftRecord()

	terms := validTerms()
	terms.ExchangeRate = dec("0")

	err := cp.Submit(terms)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Equal(t, billing.ContractDraft, cp.ContractStatus, "failed submit leaves the draft untouched")
}

func TestSubmit_AfterRequestMoreInformation(t *testing.T) {
	cp := draftRecord()
	require.NoError(t, cp.RequestMoreInformation("missing exchange rate evidence"))
	assert.Equal(t, billing.ContractNeedMoreInformation, cp.ContractStatus)

	require.NoError(t, cp.Submit(validTerms()))
	assert.Equal(t, billing.ContractSubmitted, cp.ContractStatus)
}

func TestRejectContract_RequiresReason(t *testing.T) {
	cp := draftRecord()
	require.NoError(t, cp.Submit(validTerms()))

	err := cp.RejectContract("")
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrValidation)

	require.NoError(t, cp.RejectContract("rate sheet does not match contract"))
	assert.Equal(t, billing.ContractRejected, cp.ContractStatus)
	assert.Equal(t, "rate sheet does not match contract", cp.RejectionReason)
}

func TestRejectedContractIsTerminal(t *testing.T) {
	cp := draftRecord()
	require.NoError(t, cp.Submit(validTerms()))
	require.NoError(t, cp.RejectContract("bad terms"))

	err := cp.Submit(validTerms())
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestApprove_RequiresVerified(t *testing.T) {
	cp := draftRecord()
	require.NoError(t, cp.Submit(validTerms()))

	err := cp.ApproveContract("")
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)

	var transitionErr *billing.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, string(billing.ContractSubmitted), transitionErr.From)
}

// =============================================================================
// BILLING FLOW
// =============================================================================

func TestStartBilling_RequiresApprovedContract(t *testing.T) {
	cp := draftRecord()
	require.NoError(t, cp.Submit(validTerms()))

	_, err := cp.StartBilling(dec("200"), nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestStartBilling_StoresCalculationOutput(t *testing.T) {
	cp := approvedRecord(t)

	result, err := cp.StartBilling(dec("200"), nil, "")
	require.NoError(t, err)

	assert.Equal(t, billing.PaymentProcessing, cp.PaymentStatus)
	assert.Equal(t, billing.VND(51_250_000), cp.ActualAmountVND)
	assert.True(t, cp.ManMonthCoefficient.Equal(dec("1.28125")))
	assert.Equal(t, result.Lines, cp.TierBreakdown)
	assert.True(t, cp.BillableHours.Equal(dec("200")))
}

func TestStartBilling_RejectsNonPositiveHours(t *testing.T) {
	cp := approvedRecord(t)

	_, err := cp.StartBilling(dec("0"), nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Equal(t, billing.PaymentPending, cp.PaymentStatus)
}

func TestCreateInvoice_FromPendingRejected(t *testing.T) {
	// Invoicing without running the calculation first is an ordering bug.
	cp := approvedRecord(t)

	err := cp.CreateInvoice("INV-001", date(2026, 3, 10), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestCreateInvoice_RequiresNumberAndDate(t *testing.T) {
	cp := approvedRecord(t)
	_, err := cp.StartBilling(dec("200"), nil, "")
	require.NoError(t, err)

	err = cp.CreateInvoice("", date(2026, 3, 10), "")
	assert.ErrorIs(t, err, billing.ErrValidation)

	err = cp.CreateInvoice("INV-001", time.Time{}, "")
	assert.ErrorIs(t, err, billing.ErrValidation)

	require.NoError(t, cp.CreateInvoice("INV-001", date(2026, 3, 10), ""))
	assert.Equal(t, billing.PaymentInvoiced, cp.PaymentStatus)
	assert.Equal(t, "INV-001", cp.InvoiceNumber)
}

func TestCreateInvoice_NormalizesDateToUTCMidnight(t *testing.T) {
	cp := approvedRecord(t)
	_, err := cp.StartBilling(dec("200"), nil, "")
	require.NoError(t, err)

	loc := time.FixedZone("ICT", 7*60*60)
	local := time.Date(2026, 3, 10, 15, 30, 0, 0, loc)
	require.NoError(t, cp.CreateInvoice("INV-001", local, ""))

	assert.Equal(t, date(2026, 3, 10), cp.InvoiceDate)
}
