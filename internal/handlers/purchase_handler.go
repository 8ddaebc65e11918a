package handlers

import (
	"context"
	"net/http"

	"github.com/atelier-market/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type PurchaseAPI interface {
	PurchaseItem(ctx context.Context, buyerID, itemID string) (*services.PurchaseResult, error)
	HasAccess(ctx context.Context, buyerID, itemID string) (bool, error)
	RefundPurchase(ctx context.Context, purchaseID string) (*services.RefundResult, error)
}

type PurchaseHandler struct {
	service PurchaseAPI
}

func NewPurchaseHandler(service PurchaseAPI) *PurchaseHandler {
	return &PurchaseHandler{service: service}
}

type AccessResponse struct {
	AlbumID   string `json:"albumId"`
	HasAccess bool   `json:"hasAccess"`
}

// PurchaseAlbum buys an album with wallet balance
// @Summary Purchase album
// @Description Debits the buyer and splits the price between seller and platform
// @Tags Albums
// @Produce json
// @Security BearerAuth
// @Param albumId path string true "Album ID"
// @Success 201 {object} services.PurchaseResult
// @Failure 402 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /albums/{albumId}/purchase [post]
func (h *PurchaseHandler) PurchaseAlbum(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.service.PurchaseItem(r.Context(), userID, chi.URLParam(r, "albumId"))
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// CheckAccess reports whether the caller owns an album
// @Summary Check album access
// @Tags Albums
// @Produce json
// @Security BearerAuth
// @Param albumId path string true "Album ID"
// @Success 200 {object} handlers.AccessResponse
// @Router /albums/{albumId}/access [get]
func (h *PurchaseHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	albumID := chi.URLParam(r, "albumId")
	access, err := h.service.HasAccess(r.Context(), userID, albumID)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AccessResponse{AlbumID: albumID, HasAccess: access})
}

// RefundPurchase reverses a purchase
// @Summary Refund purchase
// @Tags Albums
// @Produce json
// @Security BearerAuth
// @Param purchaseId path string true "Purchase ID"
// @Success 200 {object} services.RefundResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /purchases/{purchaseId}/refund [post]
func (h *PurchaseHandler) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RefundPurchase(r.Context(), chi.URLParam(r, "purchaseId"))
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
