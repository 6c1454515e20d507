/*
handlers.go - HTTP handlers for the payment statement service

PURPOSE:
  Exposes the loan ledger via a small JSON API plus two server-rendered
  pages. Handlers parse HTTP, delegate to the ledger core, and map
  errors onto status codes.

ENDPOINTS:
  GET  /balance-and-history  Current state + full ledger, newest first
  POST /transactions         Record an interest or payment mutation
  GET  /accrue-interest      Cron-triggered monthly interest accrual
  GET  /                     HTML statement page
  GET  /pay                  Payment form (Basic-Auth gated)
  POST /pay                  Submit a payment from the form

ERROR HANDLING:
  - 400: validation errors (bad type, non-positive/non-numeric amount)
  - 401: missing/invalid cron secret or Basic-Auth credentials
  - 500: store failures (nothing was committed; safe to retry)

SEE ALSO:
  - dto.go: wire shapes
  - server.go: router setup and middleware
  - page.go: HTML rendering
*/
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/drimstor/payment-statement/ledger"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *ledger.Engine
	Accrual *ledger.AccrualPolicy

	// CronSecret gates /accrue-interest. Empty means open (trusted
	// network), matching the deployment this service replaces.
	CronSecret string

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewHandler creates a handler over the given engine and policy.
func NewHandler(engine *ledger.Engine, accrual *ledger.AccrualPolicy, cronSecret string) *Handler {
	return &Handler{
		Engine:     engine,
		Accrual:    accrual,
		CronSecret: cronSecret,
		Now:        time.Now,
	}
}

// =============================================================================
// QUERY SURFACE
// =============================================================================

// GetBalanceAndHistory returns the current state and the full ledger.
func (h *Handler) GetBalanceAndHistory(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balance", err)
		return
	}

	writeJSON(w, http.StatusOK, SnapshotResponse{
		State:        toStateDTO(snap.State),
		Transactions: toTransactionDTOs(snap.Transactions),
	})
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateTransaction records one interest or payment mutation.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	typ := ledger.TxType(req.Type)
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid transaction type", nil)
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid amount", nil)
		return
	}

	result, err := h.Engine.ApplyTransaction(r.Context(), typ, amount)
	if err != nil {
		if ledger.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to add transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, MutationResponse{
		State:       toStateDTO(result.State),
		Transaction: toTransactionDTO(result.Transaction),
	})
}

// =============================================================================
// ACCRUAL TRIGGER
// =============================================================================

// AccrueInterest is invoked by the external cron (and the in-process
// scheduler). The accrual policy supplies exactly-once-per-month
// semantics regardless of how often this fires.
func (h *Handler) AccrueInterest(w http.ResponseWriter, r *http.Request) {
	if !h.cronAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	result, err := h.Accrual.Run(r.Context(), h.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to apply interest", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccrualResponse(result))
}

// cronAuthorized accepts the secret as a Bearer token or an
// X-Cron-Secret header. No secret configured means the route is open.
func (h *Handler) cronAuthorized(r *http.Request) bool {
	if h.CronSecret == "" {
		return true
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.CronSecret)) == 1 {
			return true
		}
	}
	return subtle.ConstantTimeCompare(
		[]byte(r.Header.Get("X-Cron-Secret")), []byte(h.CronSecret)) == 1
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil && !errors.Is(err, ledger.ErrStoreFailure) {
		// Store internals stay out of client responses.
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
