package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/billing/store"
)

const testSecret = "test-secret"

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mem := store.NewTxMemory()
	svc := billing.NewService(mem, &nullEvidence{}, nil, zerolog.Nop())

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(svc), testSecret))
	t.Cleanup(srv.Close)
	return srv
}

// nullEvidence accepts any upload; API tests target HTTP behavior, not
// storage.
type nullEvidence struct{}

func (nullEvidence) Upload(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "https://evidence.local/test", nil
}

func token(t *testing.T, role billing.Role) string {
	t.Helper()
	tok, err := api.SignToken(testSecret, billing.Actor{ID: "u-" + string(role), Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, method, url, bearer string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeRecord(t *testing.T, resp *http.Response) api.ContractPaymentDTO {
	t.Helper()
	defer resp.Body.Close()
	var dto api.ContractPaymentDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dto))
	return dto
}

func inlineEvidence(name string) *api.EvidenceDTO {
	return &api.EvidenceDTO{
		FileName:      name,
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("file body")),
	}
}

// createDraft posts a new record and returns its ID.
func createDraft(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contract-payments", token(t, billing.RoleSales),
		api.CreateContractPaymentRequest{ProjectPeriodID: "period-1", TalentAssignmentID: "assignment-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeRecord(t, resp).ID
}

func submitBody() api.SubmitRequest {
	return api.SubmitRequest{
		UnitPriceForeign: "1600",
		CurrencyCode:     "USD",
		ExchangeRate:     "25000",
		Method:           "Percentage",
		PercentageValue:  "100",
		Evidence:         inlineEvidence("terms.pdf"),
	}
}

// invoiceReady drives a record to Invoiced over HTTP.
func invoiceReady(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	id := createDraft(t, srv)
	base := srv.URL + "/api/contract-payments/" + id

	resp := doJSON(t, http.MethodPost, base+"/submit", token(t, billing.RoleSales), submitBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/verify", token(t, billing.RoleAccountant),
		api.VerifyRequest{Evidence: inlineEvidence("signed.pdf")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/approve", token(t, billing.RoleManager), api.NotesRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/start-billing", token(t, billing.RoleAccountant),
		api.StartBillingRequest{BillableHours: "200", Evidence: inlineEvidence("worksheet.xlsx")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/invoice", token(t, billing.RoleAccountant),
		api.CreateInvoiceRequest{InvoiceNumber: "INV-001", InvoiceDate: "2026-03-10", Evidence: inlineEvidence("invoice.pdf")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	return id
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAPI_RequiresBearerToken(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contract-payments", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_RejectsForgedToken(t *testing.T) {
	srv := newTestServer(t)

	forged, err := api.SignToken("wrong-secret", billing.Actor{ID: "x", Role: billing.RoleManager}, time.Hour)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contract-payments", forged, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_HealthIsPublic(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_FullLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := invoiceReady(t, srv)
	base := srv.URL + "/api/contract-payments/" + id

	// Partial payment
	resp := doJSON(t, http.MethodPost, base+"/payments", token(t, billing.RoleAccountant),
		api.RecordPaymentRequest{Amount: 30_000_000, PaymentDate: "2026-03-15", Evidence: inlineEvidence("r1.pdf")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto := decodeRecord(t, resp)
	assert.Equal(t, "PartiallyPaid", dto.PaymentStatus)
	assert.Equal(t, int64(21_250_000), dto.RemainingVND)

	// Settlement
	resp = doJSON(t, http.MethodPost, base+"/payments", token(t, billing.RoleAccountant),
		api.RecordPaymentRequest{Amount: 21_250_000, PaymentDate: "2026-03-20", Evidence: inlineEvidence("r2.pdf")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto = decodeRecord(t, resp)
	assert.Equal(t, "Paid", dto.PaymentStatus)
	assert.True(t, dto.IsFinished)
	assert.Len(t, dto.TierBreakdown, 3)

	// Ledger
	resp = doJSON(t, http.MethodGet, base+"/payments", token(t, billing.RoleAccountant), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	var entries []api.PaymentEntryDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(30_000_000), entries[0].AmountVND)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	srv := newTestServer(t)
	id := invoiceReady(t, srv)
	base := srv.URL + "/api/contract-payments/" + id

	cases := []struct {
		name   string
		status int
		do     func() *http.Response
	}{
		{"unknown record is 404", http.StatusNotFound, func() *http.Response {
			return doJSON(t, http.MethodGet, srv.URL+"/api/contract-payments/ghost", token(t, billing.RoleSales), nil)
		}},
		{"wrong role is 403", http.StatusForbidden, func() *http.Response {
			return doJSON(t, http.MethodPost, base+"/payments", token(t, billing.RoleSales),
				api.RecordPaymentRequest{Amount: 1, PaymentDate: "2026-03-15", Evidence: inlineEvidence("r.pdf")})
		}},
		{"double invoice is 409", http.StatusConflict, func() *http.Response {
			return doJSON(t, http.MethodPost, base+"/invoice", token(t, billing.RoleAccountant),
				api.CreateInvoiceRequest{InvoiceNumber: "INV-002", InvoiceDate: "2026-03-11", Evidence: inlineEvidence("i.pdf")})
		}},
		{"overpayment is 409", http.StatusConflict, func() *http.Response {
			return doJSON(t, http.MethodPost, base+"/payments", token(t, billing.RoleAccountant),
				api.RecordPaymentRequest{Amount: 99_000_000, PaymentDate: "2026-03-15", Evidence: inlineEvidence("r.pdf")})
		}},
		{"payment before invoice date is 422", http.StatusUnprocessableEntity, func() *http.Response {
			return doJSON(t, http.MethodPost, base+"/payments", token(t, billing.RoleAccountant),
				api.RecordPaymentRequest{Amount: 1_000_000, PaymentDate: "2026-03-01", Evidence: inlineEvidence("r.pdf")})
		}},
		{"missing evidence is 400", http.StatusBadRequest, func() *http.Response {
			return doJSON(t, http.MethodPost, base+"/payments", token(t, billing.RoleAccountant),
				api.RecordPaymentRequest{Amount: 1_000_000, PaymentDate: "2026-03-15"})
		}},
		{"malformed date is 400", http.StatusBadRequest, func() *http.Response {
			return doJSON(t, http.MethodPost, base+"/payments", token(t, billing.RoleAccountant),
				api.RecordPaymentRequest{Amount: 1_000_000, PaymentDate: "15/03/2026", Evidence: inlineEvidence("r.pdf")})
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := tc.do()
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			var body api.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestAPI_RejectReturnsReason(t *testing.T) {
	srv := newTestServer(t)
	id := createDraft(t, srv)
	base := srv.URL + "/api/contract-payments/" + id

	resp := doJSON(t, http.MethodPost, base+"/submit", token(t, billing.RoleSales), submitBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/reject", token(t, billing.RoleAccountant),
		api.RejectRequest{Reason: "rate sheet mismatch"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto := decodeRecord(t, resp)
	assert.Equal(t, "Rejected", dto.ContractStatus)
	assert.Equal(t, "rate sheet mismatch", dto.RejectionReason)

	// Empty reason is a validation failure.
	id2 := createDraft(t, srv)
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/contract-payments/"+id2+"/submit", token(t, billing.RoleSales), submitBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/contract-payments/"+id2+"/reject", token(t, billing.RoleAccountant),
		api.RejectRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// DOCUMENT ENDPOINTS
// =============================================================================

func TestAPI_InvoicePDF(t *testing.T) {
	srv := newTestServer(t)
	id := invoiceReady(t, srv)

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/contract-payments/%s/invoice.pdf", srv.URL, id),
		token(t, billing.RoleAccountant), nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
}

func TestAPI_InvoicePDFBeforeInvoicing(t *testing.T) {
	srv := newTestServer(t)
	id := createDraft(t, srv)

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/contract-payments/%s/invoice.pdf", srv.URL, id),
		token(t, billing.RoleAccountant), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_XLSXReport(t *testing.T) {
	srv := newTestServer(t)
	invoiceReady(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/reports/contract-payments.xlsx",
		token(t, billing.RoleAccountant), nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
}
