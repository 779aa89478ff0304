package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/models"
	"pos-ledger/internal/service"
	"pos-ledger/internal/store/memory"
)

var (
	adminHeaders   = map[string]string{HeaderActorID: "admin-1", HeaderActorRole: models.RoleAdmin}
	cashierHeaders = map[string]string{HeaderActorID: "op1", HeaderActorName: "Operator One", HeaderActorRole: models.RoleCashier}
)

func newTestRouter(t *testing.T, ready func(ctx context.Context) error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	runner := service.NewTxRunner(st, 10, 0)
	audit := service.NewAuditTrail(st)
	cashbox := service.NewCashboxService(st, runner, audit)
	notifier := service.NewNotifier(nil, "US")
	purchases := service.NewPurchaseService(st, runner, cashbox, audit, notifier, nil, nil, nil, service.DefaultPurchaseConfig())

	router := gin.New()
	NewHandler(purchases, cashbox, audit, ready).SetupRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func createTestProduct(t *testing.T, router *gin.Engine, id string, stock int) {
	t.Helper()
	w := doRequest(router, http.MethodPost, "/api/v1/products", gin.H{
		"id": id, "name": "Empanada", "price": "2.50", "stock": stock,
	}, adminHeaders)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	router := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/ready", nil, nil).Code)

	down := newTestRouter(t, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(down, http.MethodGet, "/ready", nil, nil).Code)
}

func TestMutationsRequireIdentity(t *testing.T) {
	router := newTestRouter(t, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/purchases", gin.H{"customer_identifier": "c1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePurchaseFlow(t *testing.T) {
	router := newTestRouter(t, nil)
	createTestProduct(t, router, "p1", 5)

	w := doRequest(router, http.MethodPost, "/api/v1/purchases", gin.H{
		"customer_identifier": "c1",
		"items":               []gin.H{{"product_id": "p1", "quantity": 2}},
	}, cashierHeaders)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Purchase
	decode(t, w, &created)
	assert.Equal(t, "CGE0001", created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "5", created.Total.String())

	w = doRequest(router, http.MethodGet, "/api/v1/purchases/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/purchases?customer=c1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Purchases []models.Purchase `json:"purchases"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Purchases, 1)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases/"+created.ID+"/cancel", nil, cashierHeaders)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases/"+created.ID+"/cancel", nil, cashierHeaders)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInsufficientStockResponse(t *testing.T) {
	router := newTestRouter(t, nil)
	createTestProduct(t, router, "p1", 1)

	w := doRequest(router, http.MethodPost, "/api/v1/purchases", gin.H{
		"customer_identifier": "c1",
		"items":               []gin.H{{"product_id": "p1", "quantity": 3}},
	}, cashierHeaders)
	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "Insufficient stock", body["error"])
	assert.Equal(t, "p1", body["product_id"])
	assert.EqualValues(t, 1, body["available"])
	assert.EqualValues(t, 3, body["requested"])
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"unknown purchase", http.MethodGet, "/api/v1/purchases/CGX9999", nil, http.StatusNotFound},
		{"empty cart", http.MethodPost, "/api/v1/purchases", gin.H{"customer_identifier": "c1"}, http.StatusUnprocessableEntity},
		{"missing customer", http.MethodGet, "/api/v1/purchases", nil, http.StatusUnprocessableEntity},
		{"bad channel", http.MethodGet, "/api/v1/purchases/recent?channel=mail", nil, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/cashbox/sessions", "not-an-object", http.StatusBadRequest},
		{"non admin product", http.MethodPost, "/api/v1/products", gin.H{"name": "x", "price": "1", "stock": 1}, http.StatusForbidden},
		{"non admin audit", http.MethodGet, "/api/v1/audit", nil, http.StatusForbidden},
		{"no active session", http.MethodGet, "/api/v1/cashbox/sessions/active", nil, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, tt.body, cashierHeaders)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestCashboxSessionFlow(t *testing.T) {
	router := newTestRouter(t, nil)
	createTestProduct(t, router, "p1", 5)

	w := doRequest(router, http.MethodPost, "/api/v1/cashbox/sessions", gin.H{"opening_balance": "100"}, cashierHeaders)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session models.CashboxSession
	decode(t, w, &session)

	w = doRequest(router, http.MethodPost, "/api/v1/cashbox/sessions", gin.H{"opening_balance": "100"}, cashierHeaders)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases", gin.H{
		"customer_identifier": "c1",
		"items":               []gin.H{{"product_id": "p1", "quantity": 4}},
	}, cashierHeaders)
	require.Equal(t, http.StatusCreated, w.Code)
	var purchase models.Purchase
	decode(t, w, &purchase)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases/"+purchase.ID+"/pay", nil, cashierHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/v1/cashbox/sessions/active", nil, cashierHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &session)
	assert.Equal(t, "10", session.TotalSales.String())

	other := map[string]string{HeaderActorID: "op2", HeaderActorRole: models.RoleCashier}
	w = doRequest(router, http.MethodPost, "/api/v1/cashbox/sessions/"+session.ID+"/close", gin.H{"closing_balance": "110"}, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/cashbox/sessions/"+session.ID+"/close", gin.H{"closing_balance": "110"}, cashierHeaders)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/audit", nil, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	var audit struct {
		Entries []models.AuditLogEntry `json:"entries"`
	}
	decode(t, w, &audit)
	assert.NotEmpty(t, audit.Entries)
}

func TestEditAndReturn(t *testing.T) {
	router := newTestRouter(t, nil)
	createTestProduct(t, router, "p1", 5)

	w := doRequest(router, http.MethodPost, "/api/v1/purchases", gin.H{
		"customer_identifier": "c1",
		"items":               []gin.H{{"product_id": "p1", "quantity": 2}},
	}, cashierHeaders)
	require.Equal(t, http.StatusCreated, w.Code)
	var purchase models.Purchase
	decode(t, w, &purchase)

	w = doRequest(router, http.MethodPut, "/api/v1/purchases/"+purchase.ID+"/items", gin.H{
		"items": []gin.H{{"product_id": "p1", "quantity": 1}},
	}, cashierHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &purchase)
	assert.Equal(t, 1, purchase.Items[0].Quantity)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases/"+purchase.ID+"/returns", gin.H{"product_id": "p1"}, cashierHeaders)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/purchases/"+purchase.ID+"/pay", nil, cashierHeaders).Code)
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/purchases/"+purchase.ID+"/deliver", nil, cashierHeaders).Code)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases/"+purchase.ID+"/returns", gin.H{"product_id": "p1"}, cashierHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/v1/products", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var catalog struct {
		Products []models.Product `json:"products"`
	}
	decode(t, w, &catalog)
	require.Len(t, catalog.Products, 1)
	assert.Equal(t, 5, catalog.Products[0].Stock)
}

func TestNotifyWithoutPhone(t *testing.T) {
	router := newTestRouter(t, nil)
	createTestProduct(t, router, "p1", 5)

	w := doRequest(router, http.MethodPost, "/api/v1/purchases", gin.H{
		"customer_identifier": "c1",
		"items":               []gin.H{{"product_id": "p1", "quantity": 1}},
	}, cashierHeaders)
	require.Equal(t, http.StatusCreated, w.Code)
	var purchase models.Purchase
	decode(t, w, &purchase)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases/"+purchase.ID+"/notify", nil, cashierHeaders)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/purchases/"+purchase.ID+"/notify", gin.H{"phone": "(650) 253-0000"}, cashierHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]bool
	decode(t, w, &body)
	assert.True(t, body["sent"])
}
