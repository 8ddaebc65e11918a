package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/atelier-market/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type WalletAPI interface {
	GetWallet(ctx context.Context, userID string) (*models.Account, error)
	ListTransactions(ctx context.Context, userID string, f services.EntryFilter) ([]models.LedgerEntry, int, error)
	Deposit(ctx context.Context, userID string, amount money.Money, provider, reference string) (*services.DepositResult, error)
	SettleBooking(ctx context.Context, bookingID, clientID, workerID string, amount money.Money) (*services.BookingResult, error)
}

type WalletHandler struct {
	service   WalletAPI
	validator *services.ValidationHelper
	currency  string
}

func NewWalletHandler(service WalletAPI, currency string) *WalletHandler {
	return &WalletHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		currency:  currency,
	}
}

type DepositRequest struct {
	UserID    string `json:"userId" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Provider  string `json:"provider" validate:"required"`
	Reference string `json:"reference" validate:"required"`
}

type BookingSettlementRequest struct {
	ClientID string `json:"clientId" validate:"required"`
	WorkerID string `json:"workerId" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
}

type TransactionList struct {
	Entries []models.LedgerEntry `json:"entries"`
	Total   int                  `json:"total"`
}

// GetWallet returns the caller's wallet
// @Summary Get wallet
// @Description Balances and lifetime totals of the authenticated user's wallet
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ListTransactions pages through the caller's ledger entries
// @Summary List wallet transactions
// @Description Ledger entries newest first, optionally filtered by kind
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param type query string false "Entry kind"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} handlers.TransactionList
// @Failure 400 {object} services.ErrorResponse
// @Router /wallet/transactions [get]
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := services.EntryFilter{Kind: models.EntryKind(q.Get("type"))}
	var err error
	if s := q.Get("limit"); s != "" {
		if filter.Limit, err = strconv.Atoi(s); err != nil {
			services.SendErrorResponse(w, "limit must be an integer", http.StatusBadRequest, nil)
			return
		}
	}
	if s := q.Get("offset"); s != "" {
		if filter.Offset, err = strconv.Atoi(s); err != nil {
			services.SendErrorResponse(w, "offset must be an integer", http.StatusBadRequest, nil)
			return
		}
	}

	entries, total, err := h.service.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, TransactionList{Entries: entries, Total: total})
}

// Deposit credits a confirmed top-up
// @Summary Credit a deposit
// @Description Called by the payment gateway once a top-up is confirmed. Replays of the same provider reference are idempotent.
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.DepositRequest true "Confirmed deposit"
// @Success 201 {object} services.DepositResult
// @Success 200 {object} services.DepositResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /wallet/deposits [post]
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, h.currency)
	if !ok {
		return
	}

	result, err := h.service.Deposit(r.Context(), req.UserID, amount, req.Provider, req.Reference)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// SettleBooking splits a completed booking between worker and platform
// @Summary Settle a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body handlers.BookingSettlementRequest true "Booking settlement"
// @Success 201 {object} services.BookingResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/settle [post]
func (h *WalletHandler) SettleBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingSettlementRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, h.currency)
	if !ok {
		return
	}

	result, err := h.service.SettleBooking(r.Context(), chi.URLParam(r, "bookingId"), req.ClientID, req.WorkerID, amount)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
