package invoice_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoice"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func invoicedRecord(t *testing.T) *billing.ContractPayment {
	t.Helper()
	cp := billing.NewContractPayment("cp-1", "period-1", "assignment-1")
	require.NoError(t, cp.Submit(billing.BillingTerms{
		UnitPriceForeign: dec("1600"),
		CurrencyCode:     "USD",
		ExchangeRate:     dec("25000"),
		Method:           billing.MethodPercentage,
		PercentageValue:  dec("100"),
	}))
	require.NoError(t, cp.VerifyContract(""))
	require.NoError(t, cp.ApproveContract(""))
	_, err := cp.StartBilling(dec("200"), nil, "")
	require.NoError(t, err)
	require.NoError(t, cp.CreateInvoice("INV-001", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), ""))
	return cp
}

func TestGenerate_ProducesPDF(t *testing.T) {
	pdf, err := invoice.NewGenerator().Generate(invoicedRecord(t))
	require.NoError(t, err)

	require.NotEmpty(t, pdf)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}

func TestGenerate_RejectsRecordWithoutInvoice(t *testing.T) {
	cp := billing.NewContractPayment("cp-1", "p", "a")

	_, err := invoice.NewGenerator().Generate(cp)
	assert.Error(t, err)
}
