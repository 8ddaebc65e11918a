package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/atelier-market/backend/internal/money"
	"github.com/atelier-market/backend/internal/services"
)

type PayoutAPI interface {
	RequestPayout(ctx context.Context, userID string, amount money.Money) (*services.PayoutResult, error)
	RunPayoutCycle(ctx context.Context, cycleDate time.Time) (*services.CycleReport, error)
}

type PayoutHandler struct {
	service   PayoutAPI
	validator *services.ValidationHelper
	currency  string
}

func NewPayoutHandler(service PayoutAPI, currency string) *PayoutHandler {
	return &PayoutHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		currency:  currency,
	}
}

type PayoutRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// RequestPayout withdraws pending earnings on demand
// @Summary Request payout
// @Description Sends pending earnings to the payment rail. At most one payout per day.
// @Tags Payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.PayoutRequest true "Payout amount"
// @Success 201 {object} services.PayoutResult
// @Failure 402 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /payouts [post]
func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req PayoutRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, h.currency)
	if !ok {
		return
	}

	result, err := h.service.RequestPayout(r.Context(), userID, amount)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RunPayoutCycle triggers the scheduled payout cycle immediately
// @Summary Run payout cycle
// @Tags Payouts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.CycleReport
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/payouts/run [post]
func (h *PayoutHandler) RunPayoutCycle(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunPayoutCycle(r.Context(), time.Now().UTC())
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	if report.LockHeld {
		services.SendErrorResponse(w, "Payout cycle already running", http.StatusConflict, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
