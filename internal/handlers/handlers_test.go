package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atelier-market/backend/internal/middleware"
	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/atelier-market/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func usd(s string) money.Money { return money.MustParse(s, "USD") }

func amountOf(s string) any {
	return mock.MatchedBy(func(m money.Money) bool { return m.Equal(usd(s)) })
}

// newRequest builds a request authenticated as userID with chi URL params.
func newRequest(method, target, body, userID string, params map[string]string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := r.Context()
	if userID != "" {
		ctx = middleware.WithUser(ctx, userID, "")
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return r.WithContext(ctx)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) services.ErrorResponse {
	t.Helper()
	var resp services.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWalletHandler_GetWallet(t *testing.T) {
	svc := new(MockWalletService)
	handler := NewWalletHandler(svc, "USD")

	svc.On("GetWallet", mock.Anything, "buyer-1").Return(&models.Account{
		UserID:   "buyer-1",
		Balance:  usd("1500"),
		Currency: "USD",
		IsActive: true,
	}, nil)

	w := httptest.NewRecorder()
	handler.GetWallet(w, newRequest(http.MethodGet, "/api/v1/wallet", "", "buyer-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "1500.00", body["balance"])
	assert.Equal(t, true, body["isActive"])

	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetWallet(w, newRequest(http.MethodGet, "/api/v1/wallet", "", "", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWalletHandler_ListTransactions(t *testing.T) {
	svc := new(MockWalletService)
	handler := NewWalletHandler(svc, "USD")

	svc.On("ListTransactions", mock.Anything, "buyer-1", services.EntryFilter{Kind: models.EntryPurchase, Limit: 10, Offset: 20}).
		Return([]models.LedgerEntry{{ID: "e1", Kind: models.EntryPurchase, Amount: usd("-500")}}, 21, nil)

	w := httptest.NewRecorder()
	handler.ListTransactions(w, newRequest(http.MethodGet, "/api/v1/wallet/transactions?type=purchase&limit=10&offset=20", "", "buyer-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Entries []map[string]any `json:"entries"`
		Total   int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 21, list.Total)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "-500.00", list.Entries[0]["amount"])

	t.Run("non-numeric limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ListTransactions(w, newRequest(http.MethodGet, "/api/v1/wallet/transactions?limit=ten", "", "buyer-1", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWalletHandler_Deposit(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		setup    func(*MockWalletService)
		wantCode int
	}{
		{
			name: "credited",
			body: `{"userId":"buyer-1","amount":"1000.00","provider":"stripe","reference":"pi_1"}`,
			setup: func(m *MockWalletService) {
				m.On("Deposit", mock.Anything, "buyer-1", amountOf("1000"), "stripe", "pi_1").
					Return(&services.DepositResult{NewBalance: usd("1000")}, nil)
			},
			wantCode: http.StatusCreated,
		},
		{
			name: "replayed",
			body: `{"userId":"buyer-1","amount":"1000.00","provider":"stripe","reference":"pi_1"}`,
			setup: func(m *MockWalletService) {
				m.On("Deposit", mock.Anything, "buyer-1", amountOf("1000"), "stripe", "pi_1").
					Return(&services.DepositResult{NewBalance: usd("1000"), Replayed: true}, nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "above maximum",
			body: `{"userId":"buyer-1","amount":"60000","provider":"stripe","reference":"pi_2"}`,
			setup: func(m *MockWalletService) {
				m.On("Deposit", mock.Anything, "buyer-1", amountOf("60000"), "stripe", "pi_2").
					Return(nil, &services.ValidationError{Field: "amount", Reason: "must not exceed 50,000.00 USD"})
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing reference",
			body:     `{"userId":"buyer-1","amount":"10","provider":"stripe"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed amount",
			body:     `{"userId":"buyer-1","amount":"ten","provider":"stripe","reference":"pi_3"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			body:     `{"userId":"buyer-1","amount":"10","provider":"stripe","reference":"pi_3","bonus":true}`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockWalletService)
			if tt.setup != nil {
				tt.setup(svc)
			}
			handler := NewWalletHandler(svc, "USD")

			w := httptest.NewRecorder()
			handler.Deposit(w, newRequest(http.MethodPost, "/api/v1/wallet/deposits", tt.body, "psp", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestWalletHandler_SettleBooking(t *testing.T) {
	svc := new(MockWalletService)
	handler := NewWalletHandler(svc, "USD")

	svc.On("SettleBooking", mock.Anything, "bk-9", "client-1", "worker-1", amountOf("120")).
		Return(&services.BookingResult{Commission: usd("12"), Earnings: usd("108")}, nil)

	w := httptest.NewRecorder()
	handler.SettleBooking(w, newRequest(http.MethodPost, "/api/v1/bookings/bk-9/settle",
		`{"clientId":"client-1","workerId":"worker-1","amount":"120"}`, "booking-svc", map[string]string{"bookingId": "bk-9"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "108.00", body["earnings"])
	assert.Equal(t, "12.00", body["commission"])
}

func TestPurchaseHandler_PurchaseAlbum(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", nil, http.StatusCreated},
		{"insufficient funds", fmt.Errorf("%w: balance 10.00 USD", services.ErrInsufficientFunds), http.StatusPaymentRequired},
		{"already purchased", services.ErrAlreadyPurchased, http.StatusConflict},
		{"own album", services.ErrSelfPurchaseForbidden, http.StatusForbidden},
		{"private album", services.ErrItemNotPurchasable, http.StatusUnprocessableEntity},
		{"missing album", fmt.Errorf("%w: album-x", services.ErrItemNotFound), http.StatusNotFound},
		{"conflict", services.ErrPersistenceConflict, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPurchaseService)
			handler := NewPurchaseHandler(svc)

			if tt.err != nil {
				svc.On("PurchaseItem", mock.Anything, "buyer-1", "album-1").Return(nil, tt.err)
			} else {
				svc.On("PurchaseItem", mock.Anything, "buyer-1", "album-1").Return(&services.PurchaseResult{
					Purchase:   &models.Purchase{ID: "p-1", PricePaid: usd("500"), SellerEarnings: usd("425"), PlatformCommission: usd("75")},
					NewBalance: usd("1500"),
				}, nil)
			}

			w := httptest.NewRecorder()
			handler.PurchaseAlbum(w, newRequest(http.MethodPost, "/api/v1/albums/album-1/purchase", "", "buyer-1",
				map[string]string{"albumId": "album-1"}))

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.err != nil {
				assert.Contains(t, decodeError(t, w).Error, tt.err.Error())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestPurchaseHandler_CheckAccess(t *testing.T) {
	svc := new(MockPurchaseService)
	handler := NewPurchaseHandler(svc)
	svc.On("HasAccess", mock.Anything, "buyer-1", "album-1").Return(true, nil)

	w := httptest.NewRecorder()
	handler.CheckAccess(w, newRequest(http.MethodGet, "/api/v1/albums/album-1/access", "", "buyer-1",
		map[string]string{"albumId": "album-1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"albumId":"album-1","hasAccess":true}`, w.Body.String())
}

func TestPurchaseHandler_RefundPurchase(t *testing.T) {
	svc := new(MockPurchaseService)
	handler := NewPurchaseHandler(svc)
	svc.On("RefundPurchase", mock.Anything, "p-1").Return(nil, services.ErrPurchaseNotActive)

	w := httptest.NewRecorder()
	handler.RefundPurchase(w, newRequest(http.MethodPost, "/api/v1/purchases/p-1/refund", "", "ops-1",
		map[string]string{"purchaseId": "p-1"}))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPayoutHandler_RequestPayout(t *testing.T) {
	t.Run("settled", func(t *testing.T) {
		svc := new(MockPayoutService)
		handler := NewPayoutHandler(svc, "USD")
		svc.On("RequestPayout", mock.Anything, "worker-1", amountOf("600")).
			Return(&services.PayoutResult{UserID: "worker-1", Amount: usd("600"), Status: models.PayoutSettled, RailReference: "RAIL-1"}, nil)

		w := httptest.NewRecorder()
		handler.RequestPayout(w, newRequest(http.MethodPost, "/api/v1/payouts", `{"amount":"600"}`, "worker-1", nil))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "RAIL-1")
	})

	t.Run("below minimum", func(t *testing.T) {
		svc := new(MockPayoutService)
		handler := NewPayoutHandler(svc, "USD")
		svc.On("RequestPayout", mock.Anything, "worker-1", amountOf("499")).
			Return(nil, fmt.Errorf("%w: minimum is 500.00 USD", services.ErrBelowMinimumPayout))

		w := httptest.NewRecorder()
		handler.RequestPayout(w, newRequest(http.MethodPost, "/api/v1/payouts", `{"amount":"499"}`, "worker-1", nil))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("rail down", func(t *testing.T) {
		svc := new(MockPayoutService)
		handler := NewPayoutHandler(svc, "USD")
		svc.On("RequestPayout", mock.Anything, "worker-1", amountOf("600")).
			Return(nil, fmt.Errorf("%w: rail returned 503", services.ErrExternalGateway))

		w := httptest.NewRecorder()
		handler.RequestPayout(w, newRequest(http.MethodPost, "/api/v1/payouts", `{"amount":"600"}`, "worker-1", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestPayoutHandler_RunPayoutCycle(t *testing.T) {
	t.Run("report", func(t *testing.T) {
		svc := new(MockPayoutService)
		handler := NewPayoutHandler(svc, "USD")
		svc.On("RunPayoutCycle", mock.Anything, mock.Anything).Return(&services.CycleReport{
			CycleDate:    "2024-05-06",
			PaidAccounts: []services.PayoutResult{{UserID: "worker-1", Amount: usd("600")}},
			Failures:     []services.PayoutFailure{{UserID: "worker-2", Amount: "750.00", Error: "gateway", Retryable: true}},
		}, nil)

		w := httptest.NewRecorder()
		handler.RunPayoutCycle(w, newRequest(http.MethodPost, "/api/v1/admin/payouts/run", "", "ops-1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var report struct {
			PaidAccounts []map[string]any `json:"paidAccounts"`
			Failures     []map[string]any `json:"failures"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Len(t, report.PaidAccounts, 1)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, true, report.Failures[0]["retryable"])
	})

	t.Run("already running", func(t *testing.T) {
		svc := new(MockPayoutService)
		handler := NewPayoutHandler(svc, "USD")
		svc.On("RunPayoutCycle", mock.Anything, mock.Anything).Return(&services.CycleReport{LockHeld: true}, nil)

		w := httptest.NewRecorder()
		handler.RunPayoutCycle(w, newRequest(http.MethodPost, "/api/v1/admin/payouts/run", "", "ops-1", nil))

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
