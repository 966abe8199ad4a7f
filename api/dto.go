/*
dto.go - Request/response shapes for the HTTP API

PURPOSE:
  JSON wire types and their conversions to and from the domain model.
  Amounts travel as decimal strings, dates as YYYY-MM-DD.

SEE ALSO:
  - handlers.go: uses these for decoding and encoding
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

type createAccountRequest struct {
	AccountNumber  string `json:"account_number"`
	Name           string `json:"name"`
	BankName       string `json:"bank_name"`
	OpeningBalance string `json:"opening_balance"`
}

type updateAccountRequest struct {
	Name     *string `json:"name"`
	BankName *string `json:"bank_name"`
	IsActive *bool   `json:"is_active"`
}

type createTransactionRequest struct {
	AccountID       string `json:"account_id"`
	Amount          string `json:"amount"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	ReferenceNumber string `json:"reference_number"`
	Notes           string `json:"notes"`
	TransactionDate string `json:"transaction_date"`
	CreatedBy       string `json:"created_by"`
}

type voidTransactionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type verifyTransactionRequest struct {
	Actor string `json:"actor"`
}

type createFutureRequest struct {
	AccountID       string `json:"account_id"`
	Amount          string `json:"amount"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	ReferenceNumber string `json:"reference_number"`
	Notes           string `json:"notes"`
	DueDate         string `json:"due_date"`
	TriggerType     string `json:"trigger_type"`
	CreatedBy       string `json:"created_by"`

	NotificationDays    []int    `json:"notification_days"`
	NotificationUserIDs []string `json:"notification_user_ids"`
}

type updateFutureRequest struct {
	Amount      *string `json:"amount"`
	Description *string `json:"description"`
	Notes       *string `json:"notes"`
	DueDate     *string `json:"due_date"`

	NotificationDays    []int    `json:"notification_days"`
	NotificationUserIDs []string `json:"notification_user_ids"`
}

type triggerFutureRequest struct {
	Actor string `json:"actor"`
}

type scrapFutureRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type adjustBalanceRequest struct {
	Amount string `json:"amount"`
	Credit bool   `json:"credit"`
}

func (r createTransactionRequest) toInput() (banking.CreateTransactionInput, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return banking.CreateTransactionInput{}, fmt.Errorf("amount %q: %w", r.Amount, err)
	}

	var txDate time.Time
	if r.TransactionDate != "" {
		txDate, err = time.Parse(time.RFC3339, r.TransactionDate)
		if err != nil {
			return banking.CreateTransactionInput{}, fmt.Errorf("transaction_date %q: %w", r.TransactionDate, err)
		}
	}

	return banking.CreateTransactionInput{
		AccountID:       ledger.AccountID(r.AccountID),
		Amount:          amount,
		Category:        ledger.TransactionCategory(r.Category),
		Description:     r.Description,
		ReferenceNumber: r.ReferenceNumber,
		Notes:           r.Notes,
		TransactionDate: txDate,
		CreatedBy:       ledger.ActorID(r.CreatedBy),
	}, nil
}

func (r createFutureRequest) toInput() (banking.CreateFutureInput, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return banking.CreateFutureInput{}, fmt.Errorf("amount %q: %w", r.Amount, err)
	}
	due, err := ledger.ParseDate(r.DueDate)
	if err != nil {
		return banking.CreateFutureInput{}, fmt.Errorf("due_date %q: %w", r.DueDate, err)
	}

	return banking.CreateFutureInput{
		AccountID:           ledger.AccountID(r.AccountID),
		Amount:              amount,
		Category:            ledger.TransactionCategory(r.Category),
		Description:         r.Description,
		ReferenceNumber:     r.ReferenceNumber,
		Notes:               r.Notes,
		DueDate:             due,
		TriggerType:         ledger.TriggerType(r.TriggerType),
		CreatedBy:           ledger.ActorID(r.CreatedBy),
		NotificationDays:    r.NotificationDays,
		NotificationUserIDs: r.NotificationUserIDs,
	}, nil
}

func (r updateFutureRequest) toInput() (banking.UpdateFutureInput, error) {
	in := banking.UpdateFutureInput{
		Description:         r.Description,
		Notes:               r.Notes,
		NotificationDays:    r.NotificationDays,
		NotificationUserIDs: r.NotificationUserIDs,
	}

	if r.Amount != nil {
		amount, err := decimal.NewFromString(*r.Amount)
		if err != nil {
			return in, fmt.Errorf("amount %q: %w", *r.Amount, err)
		}
		in.Amount = &amount
	}
	if r.DueDate != nil {
		due, err := ledger.ParseDate(*r.DueDate)
		if err != nil {
			return in, fmt.Errorf("due_date %q: %w", *r.DueDate, err)
		}
		in.DueDate = &due
	}
	return in, nil
}

// =============================================================================
// RESPONSES
// =============================================================================

type accountResponse struct {
	ID               string `json:"id"`
	AccountNumber    string `json:"account_number"`
	Name             string `json:"name"`
	BankName         string `json:"bank_name,omitempty"`
	CurrentBalance   string `json:"current_balance"`
	AvailableBalance string `json:"available_balance"`
	IsActive         bool   `json:"is_active"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func toAccountResponse(a *ledger.Account) accountResponse {
	return accountResponse{
		ID:               string(a.ID),
		AccountNumber:    a.AccountNumber,
		Name:             a.Name,
		BankName:         a.BankName,
		CurrentBalance:   a.CurrentBalance.String(),
		AvailableBalance: a.AvailableBalance.String(),
		IsActive:         a.IsActive,
		CreatedAt:        a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        a.UpdatedAt.Format(time.RFC3339),
	}
}

type balanceSummaryResponse struct {
	AccountID        string  `json:"account_id"`
	AccountNumber    string  `json:"account_number"`
	Name             string  `json:"name"`
	CurrentBalance   string  `json:"current_balance"`
	AvailableBalance string  `json:"available_balance"`
	PendingCount     int     `json:"pending_count"`
	LastTransaction  *string `json:"last_transaction,omitempty"`
}

func toBalanceSummaryResponse(s *ledger.BalanceSummary) balanceSummaryResponse {
	resp := balanceSummaryResponse{
		AccountID:        string(s.AccountID),
		AccountNumber:    s.AccountNumber,
		Name:             s.Name,
		CurrentBalance:   s.CurrentBalance.String(),
		AvailableBalance: s.AvailableBalance.String(),
		PendingCount:     s.PendingCount,
	}
	if s.LastTransaction != nil {
		last := s.LastTransaction.Format(time.RFC3339)
		resp.LastTransaction = &last
	}
	return resp
}

type transactionResponse struct {
	ID              string  `json:"id"`
	AccountID       string  `json:"account_id"`
	Amount          string  `json:"amount"`
	Category        string  `json:"category"`
	Status          string  `json:"status"`
	Description     string  `json:"description,omitempty"`
	ReferenceNumber string  `json:"reference_number,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	TransactionDate string  `json:"transaction_date"`
	ProcessedDate   *string `json:"processed_date,omitempty"`
	VerifiedDate    *string `json:"verified_date,omitempty"`
	CreatedBy       string  `json:"created_by"`
	VerifiedBy      string  `json:"verified_by,omitempty"`
	VoidedBy        string  `json:"voided_by,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func toTransactionResponse(t *ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:              string(t.ID),
		AccountID:       string(t.AccountID),
		Amount:          t.Amount.String(),
		Category:        string(t.Category),
		Status:          string(t.Status),
		Description:     t.Description,
		ReferenceNumber: t.ReferenceNumber,
		Notes:           t.Notes,
		TransactionDate: t.TransactionDate.Format(time.RFC3339),
		ProcessedDate:   formatTimePtr(t.ProcessedDate),
		VerifiedDate:    formatTimePtr(t.VerifiedDate),
		CreatedBy:       string(t.CreatedBy),
		VerifiedBy:      string(t.VerifiedBy),
		VoidedBy:        string(t.VoidedBy),
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
}

type futureResponse struct {
	ID              string  `json:"id"`
	AccountID       string  `json:"account_id"`
	Amount          string  `json:"amount"`
	Category        string  `json:"category"`
	Status          string  `json:"status"`
	Description     string  `json:"description,omitempty"`
	ReferenceNumber string  `json:"reference_number,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	DueDate         string  `json:"due_date"`
	TriggerType     string  `json:"trigger_type"`
	TriggeredDate   *string `json:"triggered_date,omitempty"`
	ProcessedDate   *string `json:"processed_date,omitempty"`
	CreatedBy       string  `json:"created_by"`
	TriggeredBy     string  `json:"triggered_by,omitempty"`
	ScrappedBy      string  `json:"scrapped_by,omitempty"`

	NotificationDays    []int    `json:"notification_days,omitempty"`
	NotificationUserIDs []string `json:"notification_user_ids,omitempty"`

	CreatedAt string `json:"created_at"`
}

func toFutureResponse(ft *ledger.FutureTransaction) futureResponse {
	return futureResponse{
		ID:                  string(ft.ID),
		AccountID:           string(ft.AccountID),
		Amount:              ft.Amount.String(),
		Category:            string(ft.Category),
		Status:              string(ft.Status),
		Description:         ft.Description,
		ReferenceNumber:     ft.ReferenceNumber,
		Notes:               ft.Notes,
		DueDate:             ft.DueDate.String(),
		TriggerType:         string(ft.TriggerType),
		TriggeredDate:       formatTimePtr(ft.TriggeredDate),
		ProcessedDate:       formatTimePtr(ft.ProcessedDate),
		CreatedBy:           string(ft.CreatedBy),
		TriggeredBy:         string(ft.TriggeredBy),
		ScrappedBy:          string(ft.ScrappedBy),
		NotificationDays:    ft.NotificationDays,
		NotificationUserIDs: ft.NotificationUserIDs,
		CreatedAt:           ft.CreatedAt.Format(time.RFC3339),
	}
}

type triggerResponse struct {
	Future      futureResponse       `json:"future_transaction"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
	AlreadyDone bool                 `json:"already_done"`
}

func toTriggerResponse(r *banking.TriggerResult) triggerResponse {
	resp := triggerResponse{
		Future:      toFutureResponse(r.Future),
		AlreadyDone: r.AlreadyDone,
	}
	if r.Transaction != nil {
		t := toTransactionResponse(r.Transaction)
		resp.Transaction = &t
	}
	return resp
}

type errorResponse struct {
	Error string `json:"error"`
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
