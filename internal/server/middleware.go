package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"teed-waitlist/internal/common/auth"
	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/common/metrics"
)

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if id, ok := auth.IdentityFromContext(c.Request.Context()); ok {
			fields["user_id"] = id.UserID
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields)
		case status >= 400:
			log.Warn("HTTP request", fields)
		default:
			log.Debug("HTTP request", fields)
		}
	}
}

// requireOperator verifies the bearer credential and the operator privilege,
// then stores the identity on the request context.
func requireOperator(provider auth.IdentityProvider, checker auth.OperatorChecker, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if provider == nil {
			abortWithError(c, errors.NewAuthenticationError("no identity provider configured"))
			return
		}
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, errors.NewAuthenticationError("missing bearer token"))
			return
		}

		ctx := c.Request.Context()
		id, err := provider.Verify(ctx, token)
		if err != nil {
			if !errors.Is(err, errors.ErrCodeAuthentication) {
				log.Error("identity verification failed", map[string]interface{}{"error": err.Error()})
			}
			abortWithError(c, err)
			return
		}

		isOperator := id.HasRole(auth.OperatorRole)
		if !isOperator && checker != nil {
			isOperator, err = checker.IsOperator(ctx, id)
			if err != nil {
				log.Error("operator lookup failed", map[string]interface{}{
					"user_id": id.UserID,
					"error":   err.Error(),
				})
				abortWithError(c, err)
				return
			}
		}
		if !isOperator {
			log.Warn("non-operator denied", map[string]interface{}{"user_id": id.UserID})
			abortWithError(c, errors.NewAuthorizationError("operator role required"))
			return
		}

		c.Request = c.Request.WithContext(auth.WithIdentity(ctx, id))
		c.Next()
	}
}

type keyFunc func(c *gin.Context) string

func clientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

func operatorKey(c *gin.Context) string {
	if id, ok := auth.IdentityFromContext(c.Request.Context()); ok {
		return "operator:" + id.UserID
	}
	return clientIPKey(c)
}

func (s *Server) rateLimit(scope string, key keyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := s.deps.Limiter
		if limiter == nil {
			c.Next()
			return
		}
		k := scope + "|" + key(c)
		if limiter.Allow(k) {
			c.Next()
			return
		}

		metrics.RateLimitRejections.WithLabelValues(scope).Inc()
		retry := int(math.Ceil(limiter.RetryAfter(k).Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		abortWithError(c, errors.NewRateLimitedError(scope))
	}
}

func abortWithError(c *gin.Context, err error) {
	stdErr := errors.Normalize(err)
	c.AbortWithStatusJSON(errors.HTTPStatus(stdErr.Code), gin.H{"error": errors.PublicBody(stdErr)})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true
	for name, p := range s.deps.Checks {
		if err := p.Ping(c.Request.Context()); err != nil {
			s.logger.Warn("readiness check failed", map[string]interface{}{"check": name, "error": err.Error()})
			checks[name] = "down"
			healthy = false
			continue
		}
		checks[name] = "up"
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
