package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"raffle-backend/internal/common/middleware"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository/memory"
	"raffle-backend/internal/features/raffle/service"
	"raffle-backend/internal/utils/random"
)

const adminID int64 = 1

func newTestEngine(t *testing.T) *service.Engine {
	t.Helper()
	settings := models.DefaultSettings()
	settings.PoolSize = 10
	engine, err := service.NewEngine(memory.New(), settings, service.Options{
		Rand:     random.NewSeeded(1),
		AdminIDs: []int64{adminID},
		Payment:  models.PaymentInstructions{Bank: "Test Bank", AccountNumber: "0001"},
	})
	require.NoError(t, err)
	require.NoError(t, engine.Pool.InitializeAll(context.Background()))
	return engine
}

func newRouter(engine *service.Engine, userID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.HandleErrors())
	api := r.Group("/api/v1", middleware.SetUser(initdata.User{ID: userID, Username: "tester"}))
	NewRaffleHandler(engine).RegisterRoutes(api)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestGetDenominations(t *testing.T) {
	r := newRouter(newTestEngine(t), 42)

	w := do(t, r, http.MethodGet, "/api/v1/denominations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp DenominationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Denominations, 3)
	assert.Equal(t, 10, resp.Denominations[0].Available)
	assert.Equal(t, []int64{5000, 2000, 1000}, resp.Denominations[0].Prizes)
}

func TestGetAvailableTickets(t *testing.T) {
	r := newRouter(newTestEngine(t), 42)

	w := do(t, r, http.MethodGet, "/api/v1/denominations/100/tickets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp AvailableTicketsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Numbers, 10)

	w = do(t, r, http.MethodGet, "/api/v1/denominations/150/tickets", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DENOMINATION", errorCode(t, w))

	w = do(t, r, http.MethodGet, "/api/v1/denominations/abc/tickets", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseAndVerifyFlow(t *testing.T) {
	engine := newTestEngine(t)
	buyer := newRouter(engine, 42)
	admin := newRouter(engine, adminID)

	w := do(t, buyer, http.MethodPost, "/api/v1/me", RegisterRequest{})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, buyer, http.MethodPost, "/api/v1/purchases", SubmitPaymentRequest{Denomination: 100, TicketNumber: 7, ProofRef: "tx-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var payment models.PendingPayment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payment))

	w = do(t, buyer, http.MethodPost, "/api/v1/admin/payments/"+payment.ID+"/verify", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))

	w = do(t, admin, http.MethodGet, "/api/v1/admin/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending PendingPaymentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending.Payments, 1)

	w = do(t, admin, http.MethodPost, "/api/v1/admin/payments/"+payment.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, admin, http.MethodPost, "/api/v1/admin/payments/"+payment.ID+"/verify", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PAYMENT_NOT_PENDING", errorCode(t, w))

	w = do(t, buyer, http.MethodGet, "/api/v1/me/tickets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history service.UserHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Active, 1)
	assert.Equal(t, 7, history.Active[0].Number)

	w = do(t, buyer, http.MethodPost, "/api/v1/purchases", SubmitPaymentRequest{Denomination: 100, TicketNumber: 7, ProofRef: "tx-2"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRejectPayment(t *testing.T) {
	engine := newTestEngine(t)
	buyer := newRouter(engine, 42)
	admin := newRouter(engine, adminID)

	w := do(t, buyer, http.MethodPost, "/api/v1/purchases", SubmitPaymentRequest{Denomination: 200, TicketNumber: 1, ProofRef: "tx"})
	require.Equal(t, http.StatusCreated, w.Code)
	var payment models.PendingPayment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payment))

	w = do(t, admin, http.MethodPost, "/api/v1/admin/payments/"+payment.ID+"/reject", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, admin, http.MethodPost, "/api/v1/admin/payments/"+payment.ID+"/reject", RejectPaymentRequest{Reason: "no funds"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payment))
	assert.Equal(t, models.PaymentRejected, payment.Status)
}

func TestForceDrawInsufficientEntries(t *testing.T) {
	engine := newTestEngine(t)
	admin := newRouter(engine, adminID)

	w := do(t, admin, http.MethodPost, "/api/v1/admin/draws/100", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_ENTRIES", errorCode(t, w))
}

func TestClaimReferralNotEligible(t *testing.T) {
	r := newRouter(newTestEngine(t), 42)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/me", nil).Code)

	w := do(t, r, http.MethodPost, "/api/v1/me/referral/claim", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_ELIGIBLE", errorCode(t, w))
}

func TestPaymentInstructions(t *testing.T) {
	r := newRouter(newTestEngine(t), 42)

	w := do(t, r, http.MethodGet, "/api/v1/payment-instructions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.PaymentInstructions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Test Bank", resp.Bank)
}
