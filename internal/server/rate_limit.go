package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/agencydesk/internal/observability/logger"
	"go.uber.org/zap"
)

const endpointRegistrationSubmit = "team_registrations.submit"

// SubmitRateLimit throttles public submissions per client IP. When redis is
// unreachable the request is let through.
func (s *Server) SubmitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.submitLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.submitLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("registration submit rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int64(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		s.obsMetrics.RecordRateLimitDenied(endpointRegistrationSubmit)
		logger.FromContext(ctx).Info("registration submit rate limited", zap.String("client_ip", c.ClientIP()))
		AbortWithError(c, ErrRateLimited)
	}
}
