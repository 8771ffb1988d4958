package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter creates a Gin middleware for rate limiting.
// requests is the number of requests allowed per period. Requests carrying
// an organization header share one budget per organization; all others are
// limited per client IP.
func NewRateLimiter(requests int64, period time.Duration) (gin.HandlerFunc, error) {
	if requests <= 0 {
		return nil, errors.New("rate limit requests must be positive")
	}
	if period <= 0 {
		return nil, errors.New("rate limit period must be positive")
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  requests,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	middleware := mgin.NewMiddleware(instance, mgin.WithKeyGetter(rateLimitKey))
	return middleware, nil
}

func rateLimitKey(c *gin.Context) string {
	if org := c.GetHeader(OrgIDHeader); org != "" {
		return "org:" + org
	}
	return "ip:" + c.ClientIP()
}
