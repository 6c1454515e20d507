/*
page.go - Server-rendered HTML pages

PURPOSE:
  Two small pages on top of the same ledger core the JSON API uses:
  - "/"    the statement: current debt plus full history, newest first
  - "/pay" a Basic-Auth-gated form that records a payment

  Templates are embedded strings parsed at startup; there is no asset
  pipeline and no client-side code beyond the form itself.
*/
package api

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drimstor/payment-statement/ledger"
)

var pageFuncs = template.FuncMap{
	"money": formatMoney,
	"day":   formatDay,
}

var statementTmpl = template.Must(template.New("statement").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Loan statement</title>
<style>
  body { font-family: system-ui, sans-serif; max-width: 640px; margin: 40px auto; padding: 0 16px; color: #1a1a2e; }
  h1 { font-size: 1.1rem; color: #6b7280; font-weight: 500; margin-bottom: 4px; }
  .debt { font-size: 2.2rem; font-weight: 700; margin-bottom: 24px; }
  table { width: 100%; border-collapse: collapse; }
  th, td { text-align: left; padding: 8px 6px; border-bottom: 1px solid #e5e7eb; font-size: 0.9rem; }
  th { color: #6b7280; font-weight: 500; }
  .interest { color: #b91c1c; }
  .payment { color: #15803d; }
  .empty { color: #6b7280; padding: 24px 0; }
</style>
</head>
<body>
<h1>Outstanding debt</h1>
<div class="debt">{{money .State.TotalDebt}}</div>
<table>
<thead><tr><th>Date</th><th>Type</th><th>Amount</th><th>Balance</th></tr></thead>
<tbody>
{{range .Transactions}}
<tr>
  <td>{{day .Date}}</td>
  <td class="{{.Type}}">{{.Type}}</td>
  <td>{{if eq .Type "payment"}}&minus;{{else}}&plus;{{end}}{{money .Amount}}</td>
  <td>{{money .BalanceAfter}}</td>
</tr>
{{else}}
<tr><td colspan="4" class="empty">No transactions yet</td></tr>
{{end}}
</tbody>
</table>
</body>
</html>
`))

var payTmpl = template.Must(template.New("pay").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Record payment</title>
<style>
  body { font-family: system-ui, sans-serif; max-width: 420px; margin: 60px auto; padding: 0 16px; color: #1a1a2e; }
  label { display: block; margin-bottom: 8px; color: #6b7280; }
  input { font-size: 1.2rem; padding: 8px; width: 100%; box-sizing: border-box; margin-bottom: 16px; }
  button { font-size: 1rem; padding: 10px 24px; cursor: pointer; }
  .error { color: #b91c1c; margin-bottom: 16px; }
</style>
</head>
<body>
<h1>Record payment</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/pay">
  <label for="amount">Payment amount</label>
  <input id="amount" name="amount" inputmode="decimal" autocomplete="off" autofocus>
  <button type="submit">Save</button>
</form>
</body>
</html>
`))

// statementView feeds the statement template.
type statementView struct {
	State        ledger.LoanState
	Transactions []ledger.Transaction
}

type payView struct {
	Error string
}

// =============================================================================
// PAGE HANDLERS
// =============================================================================

// StatementPage renders the debt and history.
func (h *Handler) StatementPage(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "Failed to load statement", http.StatusInternalServerError)
		return
	}
	renderPage(w, statementTmpl, statementView(snap))
}

// PayPage renders the payment form.
func (h *Handler) PayPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, payTmpl, payView{})
}

// SubmitPayment records a payment from the form and redirects to the
// statement. Comma decimal separators are accepted ("199,50").
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderPage(w, payTmpl, payView{Error: "Could not read the form"})
		return
	}

	raw := normalizeFormAmount(r.PostFormValue("amount"))
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		renderPage(w, payTmpl, payView{Error: "Enter a positive amount"})
		return
	}

	if _, err := h.Engine.ApplyTransaction(r.Context(), ledger.TxPayment, amount); err != nil {
		renderPage(w, payTmpl, payView{Error: "Could not save the payment, try again"})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// =============================================================================
// RENDER HELPERS
// =============================================================================

func renderPage(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Render failed", http.StatusInternalServerError)
	}
}

func normalizeFormAmount(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case ',':
			out = append(out, '.')
		case ' ':
			// thousands separators pasted from the statement
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func formatMoney(d decimal.Decimal) string {
	return fmt.Sprintf("%s ₽", d.StringFixed(2))
}

func formatDay(t time.Time) string {
	return t.Local().Format("2 Jan 2006")
}
