package httptransport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"receipt-server-go/internal/platform/config"
	"receipt-server-go/internal/platform/logging"
	"receipt-server-go/internal/platform/observability"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// Options configures the HTTP router builder.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics observability.Recorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// Router bundles together the gin engine and the /api route group.
type Router struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
}

// Build constructs a gin engine pre-configured with request ids, logging,
// recovery, CORS and observability middlewares.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("http router requires config")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("http router requires logger")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.Nop{}
	}

	if strings.EqualFold(opts.Config.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(opts.Logger))
	engine.Use(observabilityMiddleware(metrics))

	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	origins := opts.Config.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			RequestIDHeader,
		},
		ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if opts.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	return &Router{
		Engine: engine,
		API:    engine.Group("/api"),
	}, nil
}

// RequestID returns the correlation id assigned to the request.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		if c.Request.URL.Path == "/metrics" {
			return
		}
		logger.InfoTag("HTTP",
			"%s %s -> %d (%s) rid=%s",
			c.Request.Method,
			c.Request.URL.Path,
			status,
			duration,
			RequestID(c),
		)
	}
}

func observabilityMiddleware(metrics observability.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		reqCtx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", route)
		var spanErr error
		c.Request = c.Request.WithContext(reqCtx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)

		metrics.RecordHTTPRequest(c.Request.Method, route, status, duration)
	}
}
