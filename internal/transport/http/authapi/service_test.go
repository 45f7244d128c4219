package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-server-go/internal/domain/auth"
	"receipt-server-go/internal/domain/auth/store"
	"receipt-server-go/internal/platform/storage"
	platformtesting "receipt-server-go/internal/platform/testing"
	httptransport "receipt-server-go/internal/transport/http"
)

type harness struct {
	engine  *gin.Engine
	manager *auth.Manager
}

type harnessOptions struct {
	sessions store.Store
	secure   bool
	limiter  *httptransport.RateLimiter
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)

	db, err := storage.Open(storage.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })
	users := storage.NewUserRepository(db)

	codec, err := auth.NewTokenCodec(auth.CodecOptions{
		Secret:    cfg.Auth.SecretKey,
		Algorithm: cfg.Auth.Algorithm,
		Issuer:    cfg.Auth.Issuer,
	})
	require.NoError(t, err)

	sessions := opts.sessions
	if sessions == nil {
		sessions = store.NewMemory(store.Config{})
	}
	registry := auth.NewRegistry(sessions, logger.Tagged("SESSION"))
	guard, err := auth.NewGuard(auth.GuardOptions{
		Codec:      codec,
		Registry:   registry,
		Identities: users,
		Logger:     logger.Tagged("AUTH"),
	})
	require.NoError(t, err)
	manager, err := auth.NewManager(auth.Options{
		Identities: users,
		Registry:   registry,
		Codec:      codec,
		Guard:      guard,
		Logger:     logger.Tagged("AUTH"),
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	require.NoError(t, err)

	svc, err := NewService(Options{
		Manager: manager,
		Logger:  logger,
		Cookie:  CookieConfig{Name: cfg.Auth.CookieName, Path: cfg.Auth.CookiePath, Secure: opts.secure},
		Limiter: opts.limiter,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router.API))

	router.API.GET("/me", svc.RequireSession(), func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, identity.Username)
	})

	return &harness{engine: router.Engine, manager: manager}
}

func (h *harness) do(t *testing.T, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (h *harness) register(t *testing.T, username, password string) {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/register", `{"name":"`+username+`","username":"`+username+`","password":"`+password+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (h *harness) login(t *testing.T, username, password string) (string, *http.Cookie) {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/login", `{"username":"`+username+`","password":"`+password+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken, refreshCookie(t, w)
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatal("refresh_token cookie not set")
	return nil
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) httptransport.APIResponse {
	t.Helper()
	var resp httptransport.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func requireUnauthorized(t *testing.T, w *httptest.ResponseRecorder, reason auth.Reason) {
	t.Helper()
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Equal(t, string(reason), decodeEnvelope(t, w).Reason)
}

func TestAliceScenario(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	w := h.do(t, http.MethodPost, "/api/register", `{"name":"Alice","username":"alice","password":"pw123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "New user has been registered", w.Body.String())

	w = h.do(t, http.MethodPost, "/api/login", `{"username":"alice","password":"pw123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body, 2)
	assert.Equal(t, "bearer", body["token_type"])
	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)

	cookie := refreshCookie(t, w)
	assert.NotEmpty(t, cookie.Value)
	assert.NotEqual(t, access, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int((5 * 24 * time.Hour).Seconds()), cookie.MaxAge)
	assert.WithinDuration(t, time.Now().Add(5*24*time.Hour), cookie.Expires, time.Minute)

	w = h.do(t, http.MethodGet, "/api/me", "", bearer(access))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	requireUnauthorized(t, h.do(t, http.MethodGet, "/api/me", "", bearer("garbage")), auth.ReasonTokenMalformed)
	requireUnauthorized(t, h.do(t, http.MethodGet, "/api/me", "", bearer("")), auth.ReasonTokenMalformed)
	requireUnauthorized(t, h.do(t, http.MethodGet, "/api/me", "", nil), auth.ReasonTokenMalformed)

	w = h.do(t, http.MethodPost, "/api/login", `{"username":"alice","password":"wrong"}`, nil)
	requireUnauthorized(t, w, auth.ReasonInvalidCredentials)
	assert.Equal(t, "Wrong username or password", decodeEnvelope(t, w).Message)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.register(t, "bob", "secret")
	oldAccess, oldCookie := h.login(t, "bob", "secret")

	w := h.do(t, http.MethodPost, "/api/refresh", "", withCookie(oldCookie))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bearer", resp.TokenType)
	newCookie := refreshCookie(t, w)
	assert.NotEqual(t, oldCookie.Value, newCookie.Value)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/me", "", bearer(resp.AccessToken)).Code)
	requireUnauthorized(t, h.do(t, http.MethodGet, "/api/me", "", bearer(oldAccess)), auth.ReasonInvalidOrRevokedToken)
	requireUnauthorized(t, h.do(t, http.MethodPost, "/api/refresh", "", withCookie(oldCookie)), auth.ReasonInvalidOrRevokedToken)

	// an access token is not a refresh token
	accessAsCookie := &http.Cookie{Name: "refresh_token", Value: resp.AccessToken}
	requireUnauthorized(t, h.do(t, http.MethodPost, "/api/refresh", "", withCookie(accessAsCookie)), auth.ReasonInvalidOrRevokedToken)

	requireUnauthorized(t, h.do(t, http.MethodPost, "/api/refresh", "", nil), auth.ReasonTokenMalformed)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.register(t, "carol", "pw")
	access, cookie := h.login(t, "carol", "pw")

	w := h.do(t, http.MethodPost, "/api/logout", "", bearer(access))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cleared := refreshCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	requireUnauthorized(t, h.do(t, http.MethodGet, "/api/me", "", bearer(access)), auth.ReasonInvalidOrRevokedToken)
	requireUnauthorized(t, h.do(t, http.MethodPost, "/api/refresh", "", withCookie(cookie)), auth.ReasonInvalidOrRevokedToken)
	requireUnauthorized(t, h.do(t, http.MethodPost, "/api/logout", "", bearer(access)), auth.ReasonInvalidOrRevokedToken)
}

func TestRegister_Errors(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.register(t, "dave", "pw")

	w := h.do(t, http.MethodPost, "/api/register", `{"username":"dave","password":"other"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/api/register", `{"username":"erin"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(t, http.MethodPost, "/api/login", `not json`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSecureCookie(t *testing.T) {
	h := newHarness(t, harnessOptions{secure: true})
	h.register(t, "frank", "pw")
	_, cookie := h.login(t, "frank", "pw")
	assert.True(t, cookie.Secure)
}

func TestSessionStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	sessions, err := store.NewRedis(store.Config{Driver: store.DriverRedis, Redis: &store.RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)

	h := newHarness(t, harnessOptions{sessions: sessions})
	h.register(t, "gina", "pw")
	access, _ := h.login(t, "gina", "pw")
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/me", "", bearer(access)).Code)

	mr.Close()

	w := h.do(t, http.MethodGet, "/api/me", "", bearer(access))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))

	w = h.do(t, http.MethodPost, "/api/login", `{"username":"gina","password":"pw"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimitedCredentials(t *testing.T) {
	logger := platformtesting.SetupTestLogger(t)
	limiter := httptransport.NewRateLimiter(httptransport.RateLimiterConfig{PerMinute: 1, Burst: 2}, logger, nil)
	t.Cleanup(limiter.Stop)

	h := newHarness(t, harnessOptions{limiter: limiter})
	body := `{"username":"nobody","password":"x"}`
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/login", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/login", body, nil).Code)

	w := h.do(t, http.MethodPost, "/api/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("abc"))
	assert.Empty(t, bearerToken(""))
}
