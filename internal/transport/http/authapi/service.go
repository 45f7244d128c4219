package authapi

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"receipt-server-go/internal/domain/auth"
	"receipt-server-go/internal/domain/auth/model"
	"receipt-server-go/internal/platform/errors"
	"receipt-server-go/internal/platform/logging"
	httptransport "receipt-server-go/internal/transport/http"
)

const (
	identityKey      = "auth.identity"
	tokenTypeBearer  = "bearer"
	registeredNotice = "New user has been registered"
)

// CookieConfig shapes the refresh token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
}

// Options wires the auth HTTP service.
type Options struct {
	Manager *auth.Manager
	Logger  *logging.Logger
	Cookie  CookieConfig
	// Limiter throttles the credential endpoints when set.
	Limiter *httptransport.RateLimiter
	Now     func() time.Time
}

// Service exposes registration, login, refresh and logout over HTTP and
// provides the session guard middleware for protected routes.
type Service struct {
	manager *auth.Manager
	guard   *auth.Guard
	logger  *logging.Logger
	cookie  CookieConfig
	limiter *httptransport.RateLimiter
	now     func() time.Time
}

type credentialsRequest struct {
	Name     string `json:"name" form:"name"`
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// TokenResponse is the login and refresh body. The refresh token travels in
// the cookie only.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// NewService creates the auth HTTP service.
func NewService(opts Options) (*Service, error) {
	if opts.Manager == nil {
		return nil, errors.New(errors.KindConfig, "authapi.new", "auth manager is required")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindConfig, "authapi.new", "logger is required")
	}
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = "refresh_token"
	}
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = "/"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		manager: opts.Manager,
		guard:   opts.Manager.Guard(),
		logger:  opts.Logger,
		cookie:  opts.Cookie,
		limiter: opts.Limiter,
		now:     opts.Now,
	}, nil
}

// Register mounts the auth routes on router.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	credentials := router.Group("")
	if s.limiter != nil {
		credentials.Use(s.limiter.Middleware())
	}
	{
		credentials.POST("/login", s.handleLogin)
		credentials.POST("/register", s.handleRegister)
		credentials.POST("/refresh", s.handleRefresh)
	}

	router.POST("/logout", s.RequireSession(), s.handleLogout)

	s.logger.InfoTag("AUTH", "auth routes registered")
	return nil
}

// RequireSession admits requests carrying a live access token and stores the
// resolved identity on the context. Rejections end with 401, storage failures
// with 500.
func (s *Service) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := s.guard.Authorize(c.Request.Context(), bearerToken(c.GetHeader("Authorization")))

		switch decision.Outcome {
		case auth.OutcomeAdmitted:
			c.Set(identityKey, decision.Identity)
			c.Next()
		case auth.OutcomeRejected:
			s.reject(c, decision.Err)
		default:
			s.logger.ErrorTag("AUTH", "session check failed: %v", decision.Err)
			httptransport.RespondError(c, http.StatusInternalServerError, "internal server error", nil)
			c.Abort()
		}
	}
}

// IdentityFrom returns the identity admitted by RequireSession.
func IdentityFrom(c *gin.Context) (*model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*model.Identity)
	return identity, ok && identity != nil
}

func (s *Service) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		httptransport.RespondError(c, http.StatusUnprocessableEntity, "username and password are required", nil)
		return
	}

	pair, err := s.manager.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTokens(c, pair)
}

func (s *Service) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		httptransport.RespondError(c, http.StatusUnprocessableEntity, "username and password are required", nil)
		return
	}

	_, err := s.manager.Register(c.Request.Context(), req.Name, req.Username, req.Password)
	switch {
	case err == nil:
		c.String(http.StatusOK, registeredNotice)
	case stderrors.Is(err, auth.ErrUsernameTaken):
		httptransport.RespondError(c, http.StatusBadRequest, "Username is already taken", nil)
	case stderrors.Is(err, auth.ErrInvalidRegistration):
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
	default:
		s.fail(c, err)
	}
}

func (s *Service) handleRefresh(c *gin.Context) {
	token, _ := c.Cookie(s.cookie.Name)
	if token == "" {
		s.reject(c, auth.ErrTokenMalformed)
		return
	}

	pair, err := s.manager.Refresh(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTokens(c, pair)
}

func (s *Service) handleLogout(c *gin.Context) {
	identity, _ := IdentityFrom(c)
	if err := s.manager.Logout(c.Request.Context(), identity); err != nil {
		s.fail(c, err)
		return
	}

	s.clearCookie(c)
	httptransport.RespondSuccess(c, http.StatusOK, nil, "logged out")
}

func (s *Service) respondTokens(c *gin.Context, pair model.TokenPair) {
	s.setCookie(c, pair.RefreshToken, s.manager.RefreshTTL())
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   tokenTypeBearer,
	})
}

func (s *Service) setCookie(c *gin.Context, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    value,
		Path:     s.cookie.Path,
		MaxAge:   int(ttl.Seconds()),
		Expires:  s.now().Add(ttl).UTC(),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Service) clearCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     s.cookie.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// fail maps rejections to 401 and everything else to 500.
func (s *Service) fail(c *gin.Context, err error) {
	if auth.IsRejection(err) {
		s.reject(c, err)
		return
	}
	s.logger.ErrorTag("AUTH", "%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	httptransport.RespondError(c, http.StatusInternalServerError, "internal server error", nil)
	c.Abort()
}

func (s *Service) reject(c *gin.Context, err error) {
	reason, _ := auth.ReasonOf(err)
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	httptransport.RespondRejection(c, http.StatusUnauthorized, string(reason), err.Error())
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
