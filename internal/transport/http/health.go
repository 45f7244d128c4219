package httptransport

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"receipt-server-go/internal/platform/logging"
)

const healthTimeout = 3 * time.Second

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// RegisterHealth mounts GET /healthcheck on group. Every check must pass for
// a 200; otherwise the failing components are listed with a 503.
func RegisterHealth(group *gin.RouterGroup, checks map[string]HealthCheck, logger *logging.Logger) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	group.GET("/healthcheck", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		status := make(map[string]string, len(names))
		healthy := true
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				healthy = false
				status[name] = "unavailable"
				if logger != nil {
					logger.ErrorTag("HTTP", "health check %s failed: %v", name, err)
				}
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			RespondError(c, http.StatusServiceUnavailable, "unhealthy", status)
			return
		}
		RespondSuccess(c, http.StatusOK, status, "healthy")
	})
}
