package receiptapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-server-go/internal/domain/auth"
	"receipt-server-go/internal/domain/auth/store"
	receiptservice "receipt-server-go/internal/domain/receipt/service"
	"receipt-server-go/internal/platform/storage"
	platformtesting "receipt-server-go/internal/platform/testing"
	httptransport "receipt-server-go/internal/transport/http"
	"receipt-server-go/internal/transport/http/authapi"
)

type receiptBody struct {
	ID       int64 `json:"id"`
	Products []struct {
		Name  string  `json:"name"`
		Total float64 `json:"total"`
	} `json:"products"`
	Payment struct {
		Type   string  `json:"type"`
		Amount float64 `json:"amount"`
	} `json:"payment"`
	Total float64 `json:"total"`
	Rest  float64 `json:"rest"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)

	db, err := storage.Open(storage.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })
	users := storage.NewUserRepository(db)

	codec, err := auth.NewTokenCodec(auth.CodecOptions{Secret: cfg.Auth.SecretKey, Algorithm: cfg.Auth.Algorithm, Issuer: cfg.Auth.Issuer})
	require.NoError(t, err)
	registry := auth.NewRegistry(store.NewMemory(store.Config{}), logger.Tagged("SESSION"))
	guard, err := auth.NewGuard(auth.GuardOptions{Codec: codec, Registry: registry, Identities: users, Logger: logger.Tagged("AUTH")})
	require.NoError(t, err)
	manager, err := auth.NewManager(auth.Options{
		Identities: users,
		Registry:   registry,
		Codec:      codec,
		Guard:      guard,
		Logger:     logger.Tagged("AUTH"),
		BcryptCost: cfg.Auth.BcryptCost,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	receipts, err := receiptservice.NewReceiptService(receiptservice.Options{
		Repository:       storage.NewReceiptRepository(db),
		Logger:           logger.Tagged("RECEIPT"),
		Merchant:         "Shop",
		DefaultLineWidth: cfg.Receipt.LineWidth,
		MinLineWidth:     cfg.Receipt.MinLineWidth,
		MaxLineWidth:     cfg.Receipt.MaxLineWidth,
	})
	require.NoError(t, err)

	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	require.NoError(t, err)

	authSvc, err := authapi.NewService(authapi.Options{Manager: manager, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, authSvc.Register(context.Background(), router.API))

	svc, err := NewService(receipts, authSvc.RequireSession(), logger)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router.API))

	return router.Engine
}

func do(engine *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func loginAs(t *testing.T, engine *gin.Engine, username string) string {
	t.Helper()
	creds := fmt.Sprintf(`{"username":%q,"password":"pw"}`, username)
	require.Equal(t, http.StatusOK, do(engine, http.MethodPost, "/api/register", "", creds).Code)
	w := do(engine, http.MethodPost, "/api/login", "", creds)
	require.Equal(t, http.StatusOK, w.Code)
	var resp authapi.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken
}

const createBody = `{
	"products": [
		{"name": "Milk", "price": 25.5, "quantity": 2},
		{"name": "Bread", "price": 12.333, "quantity": 3}
	],
	"payment": {"type": "cash", "amount": 100}
}`

func createReceipt(t *testing.T, engine *gin.Engine, token, body string) receiptBody {
	t.Helper()
	w := do(engine, http.MethodPost, "/api/create-receipt", token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp envelope[receiptBody]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestCreateAndGetReceipt(t *testing.T) {
	engine := newEngine(t)
	token := loginAs(t, engine, "alice")

	created := createReceipt(t, engine, token, createBody)
	assert.NotZero(t, created.ID)
	assert.Equal(t, 88.0, created.Total)
	assert.Equal(t, 12.0, created.Rest)
	require.Len(t, created.Products, 2)
	assert.Equal(t, 51.0, created.Products[0].Total)

	w := do(engine, http.MethodGet, fmt.Sprintf("/api/get-receipt/%d", created.ID), token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got envelope[receiptBody]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.Data.ID)
	assert.Equal(t, "cash", got.Data.Payment.Type)

	other := loginAs(t, engine, "bob")
	w = do(engine, http.MethodGet, fmt.Sprintf("/api/get-receipt/%d", created.ID), other, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(engine, http.MethodGet, "/api/get-receipt/abc", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateReceipt_Errors(t *testing.T) {
	engine := newEngine(t)
	token := loginAs(t, engine, "alice")

	w := do(engine, http.MethodPost, "/api/create-receipt", "", createBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(engine, http.MethodPost, "/api/create-receipt", token,
		`{"products":[{"name":"Milk","price":25.5,"quantity":2}],"payment":{"type":"cash","amount":10}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(engine, http.MethodPost, "/api/create-receipt", token,
		`{"products":[{"name":"Milk","price":-1,"quantity":2}],"payment":{"type":"cash","amount":10}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(engine, http.MethodPost, "/api/create-receipt", token,
		`{"products":[{"name":"Milk","price":1,"quantity":2}],"payment":{"type":"barter","amount":10}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(engine, http.MethodPost, "/api/create-receipt", token,
		`{"products":[{"name":"   ","price":1,"quantity":2}],"payment":{"type":"cash","amount":10}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListReceipts(t *testing.T) {
	engine := newEngine(t)
	token := loginAs(t, engine, "alice")
	for i := 0; i < 3; i++ {
		createReceipt(t, engine, token, createBody)
	}
	createReceipt(t, engine, token,
		`{"products":[{"name":"TV","price":500,"quantity":1}],"payment":{"type":"credit_card","amount":500}}`)

	list := func(query string) []receiptBody {
		t.Helper()
		w := do(engine, http.MethodGet, "/api/get-receipts"+query, token, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp envelope[[]receiptBody]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Data
	}

	assert.Len(t, list(""), 4)
	assert.Len(t, list("?limit=2"), 2)
	assert.Len(t, list("?offset=3"), 1)
	assert.Len(t, list("?payment_type=credit_card"), 1)
	assert.Len(t, list("?min_total=100"), 1)
	assert.Len(t, list("?date_from=2000-01-01&date_to=2999-01-01"), 4)

	for _, bad := range []string{"?limit=101", "?offset=-1", "?limit=x", "?date_from=yesterday", "?min_total=lots"} {
		w := do(engine, http.MethodGet, "/api/get-receipts"+bad, token, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, bad)
	}
}

func TestReceiptText(t *testing.T) {
	engine := newEngine(t)
	token := loginAs(t, engine, "alice")
	created := createReceipt(t, engine, token, createBody)

	// public route, no token
	w := do(engine, http.MethodGet, fmt.Sprintf("/api/get-receipt-text/%d", created.ID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	lines := strings.Split(w.Body.String(), "\n")
	assert.Equal(t, strings.Repeat("=", 32), lines[1])
	assert.Contains(t, w.Body.String(), "TOTAL")

	w = do(engine, http.MethodGet, fmt.Sprintf("/api/get-receipt-text/%d?line_width=50", created.ID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, strings.Repeat("=", 50), strings.Split(w.Body.String(), "\n")[1])

	w = do(engine, http.MethodGet, fmt.Sprintf("/api/get-receipt-text/%d?line_width=10", created.ID), "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(engine, http.MethodGet, "/api/get-receipt-text/999", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
