/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * Monetary amounts arrive as locale-formatted strings ("1.234,56" and
 * "1,234.56" are both accepted) and are parsed to minor units before reaching
 * the service.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/storemax/ledger-service/internal/app"
	"github.com/storemax/ledger-service/internal/domain"
	"github.com/storemax/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
	view    *app.LiveAccountView
}

// NewLedgerHandlers creates a new instance of LedgerHandlers. The live view
// may be nil when the service runs without a RabbitMQ consumer.
func NewLedgerHandlers(service *app.Service, view *app.LiveAccountView) *LedgerHandlers {
	return &LedgerHandlers{service: service, view: view}
}

// registerTransactionRequest is the embedded transaction of a registration
// payload. Value is a locale-formatted amount string.
type registerTransactionRequest struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// registerAccountRequest is the payload for POST /accounts. An empty code
// means creation; the service allocates the next custom code.
type registerAccountRequest struct {
	Code          string                      `json:"code,omitempty"`
	Name          string                      `json:"name"`
	AgencyNumber  string                      `json:"agency_number"`
	AccountNumber string                      `json:"account_number"`
	IsDefault     bool                        `json:"is_default"`
	Transaction   *registerTransactionRequest `json:"transaction,omitempty"`
}

// accountListResponse pairs one page of accounts with the counter the front
// end renders next to the list.
type accountListResponse struct {
	Accounts []domain.BankAccount  `json:"accounts"`
	Counter  domain.AccountCounter `json:"counter"`
}

// RegisterAccountHandler handles account creation and updates.
func (h *LedgerHandlers) RegisterAccountHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	var req registerAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := domain.AccountInput{
		Name:          strings.TrimSpace(req.Name),
		AgencyNumber:  strings.TrimSpace(req.AgencyNumber),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		IsDefault:     req.IsDefault,
	}

	creating := strings.TrimSpace(req.Code) == ""
	if !creating {
		code, err := domain.ParseAccountCode(req.Code)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		input.Code = &code
	}

	if req.Transaction != nil {
		value, err := domain.ParseAmount(req.Transaction.Value)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid transaction value")
			return
		}
		input.Transaction = &domain.TransactionInput{
			Type:        domain.TransactionType(strings.ToUpper(strings.TrimSpace(req.Transaction.Type))),
			Value:       value,
			Description: req.Transaction.Description,
		}
	}

	account, err := h.service.RegisterAccount(r.Context(), owner, input, nil)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if creating {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, account)
}

// GetAccountHandler returns one account by code.
func (h *LedgerHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	account, err := h.service.GetAccount(r.Context(), owner, chi.URLParam(r, "code"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if account == nil {
		h.writeError(w, http.StatusNotFound, "Account not found")
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// DeleteAccountHandler removes one account by code.
func (h *LedgerHandlers) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	if err := h.service.DeleteAccount(r.Context(), owner, chi.URLParam(r, "code"), nil); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListAccountsHandler returns the owner's full account list via the paged
// store read, together with the counter pair.
func (h *LedgerHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	accounts, counter, err := h.service.FetchAllAccounts(r.Context(), owner, app.FlexQueryOptions{})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.BankAccount{}
	}
	h.writeJSON(w, http.StatusOK, accountListResponse{Accounts: accounts, Counter: counter})
}

// LiveAccountsHandler returns the current projection of the live account view.
func (h *LedgerHandlers) LiveAccountsHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}
	if h.view == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Live account view is not enabled")
		return
	}

	update, err := h.view.Snapshot(r.Context(), owner)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if update.Accounts == nil {
		update.Accounts = []domain.BankAccount{}
	}
	h.writeJSON(w, http.StatusOK, accountListResponse{Accounts: update.Accounts, Counter: update.Counter})
}

// ListTransactionsHandler returns the transaction log for one account.
func (h *LedgerHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	opts := store.ListOptions{Limit: 50}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 500 {
			opts.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			opts.Offset = offset
		}
	}

	entries, err := h.service.ListTransactions(r.Context(), owner, chi.URLParam(r, "code"), opts)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.BankTransaction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": entries})
}

// TransferHandler moves value between two of the owner's accounts.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	value, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer amount")
		return
	}

	if err := h.service.TransferBetweenAccounts(r.Context(), owner, req.FromCode, req.ToCode, value, req.Description); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "completed",
		"amount": domain.FormatAmount(value),
	})
}

// EnsureVaultHandler lazily provisions the owner's default vault account.
func (h *LedgerHandlers) EnsureVaultHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	if err := h.service.EnsureDefaultVaultAccount(r.Context(), owner); err != nil {
		h.handleServiceError(w, err)
		return
	}

	vault, err := h.service.GetVaultAccount(r.Context(), owner)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vault)
}

// GetVaultHandler returns the owner's vault account if provisioned.
func (h *LedgerHandlers) GetVaultHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := GetOwnerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Owner not found in request context")
		return
	}

	vault, err := h.service.GetVaultAccount(r.Context(), owner)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if vault == nil {
		h.writeError(w, http.StatusNotFound, "Vault account not provisioned")
		return
	}
	h.writeJSON(w, http.StatusOK, vault)
}

// handleServiceError maps service and store errors onto HTTP statuses.
func (h *LedgerHandlers) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyAccountCode),
		errors.Is(err, domain.ErrInvalidAccountCode),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, app.ErrMissingTransferAccounts),
		errors.Is(err, app.ErrSameTransferAccounts),
		errors.Is(err, app.ErrInvalidTransferValue),
		errors.Is(err, app.ErrInvalidTransactionValue),
		errors.Is(err, app.ErrInvalidTransactionType):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrAccountCodeConflict),
		errors.Is(err, app.ErrNoFreeReservedCode):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInsufficientBalance):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient balance")
	case errors.Is(err, app.ErrDefaultAccountProtected):
		h.writeError(w, http.StatusForbidden, "Default accounts cannot be deleted")
	case errors.Is(err, app.ErrTransferRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
