/*
dto.go - Request/response shapes for the HTTP API

PURPOSE:
  Wire-level structs, decoupled from the ledger domain types. Amounts
  travel as JSON numbers (matching the original API contract), while
  the core keeps decimal.Decimal internally.
*/
package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drimstor/payment-statement/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// TransactionRequest is the POST /transactions body.
//
// Amount stays raw so a non-numeric value ("abc", null, []) becomes a
// validation failure instead of a generic decode error.
type TransactionRequest struct {
	Type   string          `json:"type"`
	Amount json.RawMessage `json:"amount"`
}

// parseAmount accepts a JSON number or a numeric string and rejects
// everything else (including NaN/Infinity, which are not valid JSON
// and not valid decimals).
func parseAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return decimal.Decimal{}, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return decimal.Decimal{}, false
		}
		trimmed = []byte(s)
	}
	d, err := decimal.NewFromString(string(trimmed))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// =============================================================================
// RESPONSES
// =============================================================================

// StateDTO mirrors ledger.LoanState on the wire.
type StateDTO struct {
	TotalDebt         float64 `json:"totalDebt"`
	LastInterestMonth string  `json:"lastInterestMonth,omitempty"`
}

// TransactionDTO mirrors ledger.Transaction on the wire.
type TransactionDTO struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date"`
	BalanceAfter float64 `json:"balanceAfter"`
}

// SnapshotResponse is the GET /balance-and-history body.
type SnapshotResponse struct {
	State        StateDTO         `json:"state"`
	Transactions []TransactionDTO `json:"transactions"`
}

// MutationResponse is the POST /transactions success body.
type MutationResponse struct {
	State       StateDTO       `json:"state"`
	Transaction TransactionDTO `json:"transaction"`
}

// AccrualResponse is the GET /accrue-interest body.
type AccrualResponse struct {
	Applied     bool            `json:"applied"`
	Reason      string          `json:"reason,omitempty"`
	State       *StateDTO       `json:"state,omitempty"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

// ErrorResponse carries a client-facing error message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toStateDTO(state ledger.LoanState) StateDTO {
	return StateDTO{
		TotalDebt:         state.TotalDebt.InexactFloat64(),
		LastInterestMonth: state.LastInterestMonth,
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           tx.ID,
		Type:         string(tx.Type),
		Amount:       tx.Amount.InexactFloat64(),
		Date:         tx.Date.UTC().Format(time.RFC3339),
		BalanceAfter: tx.BalanceAfter.InexactFloat64(),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	return dtos
}

func toAccrualResponse(res ledger.AccrualResult) AccrualResponse {
	out := AccrualResponse{Applied: res.Applied, Reason: res.Reason}
	if res.State != nil {
		dto := toStateDTO(*res.State)
		out.State = &dto
	}
	if res.Transaction != nil {
		dto := toTransactionDTO(*res.Transaction)
		out.Transaction = &dto
	}
	return out
}
