/*
handlers.go - HTTP API handlers for the contract billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. Role checks live in
  the engine; handlers only translate its errors to HTTP statuses.

ENDPOINTS:
  Records:
    POST   /api/contract-payments                      Create draft
    GET    /api/contract-payments                      List all
    GET    /api/contract-payments/{id}                 Get detail
    GET    /api/contract-payments/{id}/payments        Payment ledger
    GET    /api/contract-payments/{id}/invoice.pdf     Invoice PDF

  Contract transitions:
    POST   /api/contract-payments/{id}/request-info    Draft -> NeedMoreInformation
    POST   /api/contract-payments/{id}/submit          -> Submitted (terms + evidence)
    POST   /api/contract-payments/{id}/verify          Submitted -> Verified
    POST   /api/contract-payments/{id}/reject          Submitted -> Rejected
    POST   /api/contract-payments/{id}/approve         Verified -> Approved

  Payment transitions:
    POST   /api/contract-payments/{id}/start-billing   Pending -> Processing
    POST   /api/contract-payments/{id}/invoice         Processing -> Invoiced
    POST   /api/contract-payments/{id}/payments        Record a payment

  Reports:
    GET    /api/reports/contract-payments.xlsx         Accounting export

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, validation errors
  - 401: Missing/invalid token (middleware)
  - 403: Role not permitted for the operation
  - 404: Record not found
  - 409: Invalid transition, stale write, overpayment, retries exhausted
  - 422: Payment date before invoice date
  - 502: Evidence upload or document linkage failure

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - billing/errors.go: The error taxonomy mapped here
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *billing.Service
	Invoices *invoice.Generator
	Reports  *report.Generator
}

// NewHandler creates a handler over the engine.
func NewHandler(svc *billing.Service) *Handler {
	return &Handler{
		Service:  svc,
		Invoices: invoice.NewGenerator(),
		Reports:  report.NewGenerator(svc.Store),
	}
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// CreateContractPayment creates a draft record.
func (h *Handler) CreateContractPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req CreateContractPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cp, err := h.Service.CreateDraft(r.Context(), actor, req.ID, req.ProjectPeriodID, req.TalentAssignmentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractPaymentDTO(cp))
}

// ListContractPayments returns all records, newest first.
func (h *Handler) ListContractPayments(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contract payments", err)
		return
	}

	dtos := make([]ContractPaymentDTO, 0, len(records))
	for _, cp := range records {
		dtos = append(dtos, toContractPaymentDTO(cp))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetContractPayment returns one record.
func (h *Handler) GetContractPayment(w http.ResponseWriter, r *http.Request) {
	cp, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// ListPayments returns the record's payment ledger.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Payments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]PaymentEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toPaymentEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CONTRACT TRANSITION HANDLERS
// =============================================================================

// RequestInfo moves a draft back for more information.
func (h *Handler) RequestInfo(w http.ResponseWriter, r *http.Request) {
	h.notesTransition(w, r, h.Service.RequestMoreInformation)
}

// Submit attaches billing terms and submits the contract for review.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	terms, err := req.toTerms()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid billing terms", err)
		return
	}
	ev, err := req.Evidence.toEvidence()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid evidence", err)
		return
	}

	cp, err := h.Service.Submit(r.Context(), actor, chi.URLParam(r, "id"), terms, ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// Verify marks a submitted contract as verified.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ev, err := req.Evidence.toEvidence()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid evidence", err)
		return
	}

	cp, err := h.Service.VerifyContract(r.Context(), actor, chi.URLParam(r, "id"), req.Notes, ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// Reject rejects a submitted contract with a mandatory reason.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cp, err := h.Service.RejectContract(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// Approve approves a verified contract.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.notesTransition(w, r, h.Service.ApproveContract)
}

// =============================================================================
// PAYMENT TRANSITION HANDLERS
// =============================================================================

// StartBilling runs the billing calculation for an approved contract.
func (h *Handler) StartBilling(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req StartBillingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hours, err := parseDecimalField(req.BillableHours, "billable_hours")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid billable hours", err)
		return
	}
	ev, err := req.Evidence.toEvidence()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid evidence", err)
		return
	}

	cp, err := h.Service.StartBilling(r.Context(), actor, chi.URLParam(r, "id"), hours, req.Notes, ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// CreateInvoice issues the invoice for a record being processed.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	invoiceDate, err := parseDateField(req.InvoiceDate, "invoice_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice date", err)
		return
	}
	ev, err := req.Evidence.toEvidence()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid evidence", err)
		return
	}

	cp, err := h.Service.CreateInvoice(r.Context(), actor, chi.URLParam(r, "id"), req.InvoiceNumber, invoiceDate, req.Notes, ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// RecordPayment records one payment against the invoice.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	paymentDate, err := parseDateField(req.PaymentDate, "payment_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment date", err)
		return
	}
	ev, err := req.Evidence.toEvidence()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid evidence", err)
		return
	}

	cp, err := h.Service.RecordPayment(r.Context(), actor, chi.URLParam(r, "id"),
		billing.VND(req.Amount), paymentDate, req.Note, ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// InvoicePDF renders the record's invoice as PDF.
func (h *Handler) InvoicePDF(w http.ResponseWriter, r *http.Request) {
	cp, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if cp.InvoiceNumber == "" {
		writeError(w, http.StatusConflict, "Record has no invoice yet", nil)
		return
	}

	pdf, err := h.Invoices.Generate(cp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render invoice", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "invoice-"+cp.InvoiceNumber+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// ContractPaymentsReport renders the accounting export as XLSX.
func (h *Handler) ContractPaymentsReport(w http.ResponseWriter, r *http.Request) {
	book, err := h.Reports.Generate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate report", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="contract-payments.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(book)
}

// =============================================================================
// HELPERS
// =============================================================================

// notesTransition handles the transitions whose only input is a note.
func (h *Handler) notesTransition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, actor billing.Actor, id, notes string) (*billing.ContractPayment, error)) {

	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req NotesRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	cp, err := op(r.Context(), actor, chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractPaymentDTO(cp))
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		writeError(w, http.StatusNotFound, "Contract payment not found", err)
	case errors.Is(err, billing.ErrUnauthorizedRole):
		writeError(w, http.StatusForbidden, "Role not permitted for this operation", err)
	case errors.Is(err, billing.ErrPaymentBeforeInvoice):
		writeError(w, http.StatusUnprocessableEntity, "Payment date precedes invoice date", err)
	case errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrOverpayment),
		errors.Is(err, billing.ErrConcurrentModification),
		errors.Is(err, billing.ErrRetriesExhausted):
		writeError(w, http.StatusConflict, "Conflicting state change", err)
	case billing.IsCollaboratorError(err):
		writeError(w, http.StatusBadGateway, "Upstream collaborator failed", err)
	case errors.Is(err, billing.ErrValidation), errors.Is(err, billing.ErrMissingEvidence):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
