/*
handlers.go - HTTP handlers for the ledger engine

PURPOSE:
  Thin adapters from HTTP to the banking service layer. Handlers decode
  the request, call exactly one service method, and map the error class
  to a status code. No business rules live here.

ERROR MAPPING:
  ledger.ErrNotFound            -> 404
  ledger.IsClientError          -> 400 (409 for terminal-state guards)
  ledger.ErrConcurrentModification -> 409
  anything else                 -> 500

SEE ALSO:
  - server.go: route wiring
  - banking:   the service methods called here
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/events"
	"github.com/warp/ledger-engine/ledger"
)

// Handler carries the service dependencies for all routes.
type Handler struct {
	Manager   *banking.TransactionManager
	Scheduler *banking.FutureScheduler
	Log       zerolog.Logger

	// Events, when set, backs GET /api/events with recent emissions.
	// Nil leaves the endpoint serving an empty list.
	Events *events.MemoryEmitter
}

func NewHandler(manager *banking.TransactionManager, scheduler *banking.FutureScheduler, log zerolog.Logger) *Handler {
	return &Handler{Manager: manager, Scheduler: scheduler, Log: log}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}

	opening := decimal.Zero
	if req.OpeningBalance != "" {
		var err error
		opening, err = decimal.NewFromString(req.OpeningBalance)
		if err != nil {
			h.badRequest(w, err)
			return
		}
	}

	account, err := h.Manager.CreateAccount(r.Context(), banking.CreateAccountInput{
		AccountNumber:  req.AccountNumber,
		Name:           req.Name,
		BankName:       req.BankName,
		OpeningBalance: opening,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Manager.GetAccount(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}

	account, err := h.Manager.UpdateAccount(r.Context(), ledger.AccountID(chi.URLParam(r, "id")), banking.UpdateAccountInput{
		Name:     req.Name,
		BankName: req.BankName,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	accounts, err := h.Manager.ListAccounts(r.Context(), activeOnly)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, toAccountResponse(&accounts[i]))
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Manager.BalanceSummary(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toBalanceSummaryResponse(summary))
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req adjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.badRequest(w, err)
		return
	}

	account, err := h.Manager.AdjustBalance(r.Context(), ledger.AccountID(chi.URLParam(r, "id")), amount, req.Credit)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) RecalculateBalance(w http.ResponseWriter, r *http.Request) {
	account, err := h.Manager.RecalculateBalance(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toAccountResponse(account))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.badRequest(w, err)
		return
	}

	txn, err := h.Manager.Create(r.Context(), in)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.Manager.Get(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f := ledger.TransactionFilter{
		AccountID: ledger.AccountID(r.URL.Query().Get("account_id")),
		Status:    ledger.TransactionStatus(r.URL.Query().Get("status")),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}

	txns, err := h.Manager.List(r.Context(), f)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, toTransactionResponse(&txns[i]))
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	var req verifyTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}

	txn, err := h.Manager.Verify(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), ledger.ActorID(req.Actor))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) VoidTransaction(w http.ResponseWriter, r *http.Request) {
	var req voidTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}

	txn, err := h.Manager.Void(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), ledger.ActorID(req.Actor), req.Reason)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toTransactionResponse(txn))
}

// =============================================================================
// FUTURE TRANSACTIONS
// =============================================================================

func (h *Handler) CreateFuture(w http.ResponseWriter, r *http.Request) {
	var req createFutureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.badRequest(w, err)
		return
	}

	ft, err := h.Scheduler.Create(r.Context(), in)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, toFutureResponse(ft))
}

func (h *Handler) GetFuture(w http.ResponseWriter, r *http.Request) {
	ft, err := h.Scheduler.Get(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toFutureResponse(ft))
}

func (h *Handler) ListFutures(w http.ResponseWriter, r *http.Request) {
	f := ledger.FutureFilter{
		AccountID: ledger.AccountID(r.URL.Query().Get("account_id")),
		Status:    ledger.FutureStatus(r.URL.Query().Get("status")),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}

	fts, err := h.Scheduler.List(r.Context(), f)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	out := make([]futureResponse, 0, len(fts))
	for i := range fts {
		out = append(out, toFutureResponse(&fts[i]))
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) UpdateFuture(w http.ResponseWriter, r *http.Request) {
	var req updateFutureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.badRequest(w, err)
		return
	}

	ft, err := h.Scheduler.Update(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), in)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toFutureResponse(ft))
}

func (h *Handler) TriggerFuture(w http.ResponseWriter, r *http.Request) {
	var req triggerFutureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}
	actor := ledger.ActorID(req.Actor)
	if actor == "" {
		actor = ledger.SystemActor
	}

	result, err := h.Scheduler.Trigger(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), actor)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toTriggerResponse(result))
}

func (h *Handler) ScrapFuture(w http.ResponseWriter, r *http.Request) {
	var req scrapFutureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}

	ft, err := h.Scheduler.Scrap(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), ledger.ActorID(req.Actor), req.Reason)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toFutureResponse(ft))
}

func (h *Handler) ListDue(w http.ResponseWriter, r *http.Request) {
	target := ledger.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		var err error
		target, err = ledger.ParseDate(s)
		if err != nil {
			h.badRequest(w, err)
			return
		}
	}

	fts, err := h.Scheduler.GetDue(r.Context(), target)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	out := make([]futureResponse, 0, len(fts))
	for i := range fts {
		out = append(out, toFutureResponse(&fts[i]))
	}
	h.respond(w, http.StatusOK, out)
}

// =============================================================================
// EVENTS
// =============================================================================

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		h.respond(w, http.StatusOK, []events.Event{})
		return
	}

	limit := queryInt(r, "limit")
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var out []events.Event
	if et := r.URL.Query().Get("type"); et != "" {
		matched := h.Events.OfType(et)
		for i := len(matched) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, matched[i])
		}
	} else {
		out = h.Events.Recent(limit)
	}
	if out == nil {
		out = []events.Event{}
	}
	h.respond(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Log.Warn().Err(err).Msg("response encoding failed")
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	h.respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		h.respond(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrAlreadyProcessed), errors.Is(err, ledger.ErrAlreadyTerminal),
		errors.Is(err, ledger.ErrConcurrentModification):
		h.respond(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case ledger.IsClientError(err):
		h.respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.Log.Error().Err(err).Msg("internal error")
		h.respond(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
