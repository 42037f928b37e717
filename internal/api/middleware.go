package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nubank/neura-chat/internal/ratelimit"
	"github.com/nubank/neura-chat/internal/relay"
)

const credentialKey = "credential"

// CORS allows the browser client at origin to call the API with credentials.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequireCredential rejects requests without a bearer credential. The
// credential is only checked for presence.
func RequireCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := bearerToken(c.GetHeader("Authorization"))
		if cred == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": relay.ErrUnauthorized.Error()})
			return
		}
		c.Set(credentialKey, cred)
		c.Next()
	}
}

func bearerToken(header string) string {
	_, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// RateLimit admits each request through limiter, keyed by client IP.
func RateLimit(limiter *ratelimit.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		res := limiter.Admit(ip)

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retry := int(time.Until(res.ResetAt).Seconds() + 0.999)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			log.Warn("rate limit exceeded", zap.String("ip", ip), zap.Int("limit", res.Limit))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": relay.ErrRateLimited.Error()})
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request once it has been served.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()))
	}
}
