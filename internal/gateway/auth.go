package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/polyagents/executor/pkg/metrics"
)

const callerKey = "caller"

// actionRateLimited is the journal tag for denied requests; like rejections,
// denials are resolved locally and still audited.
const actionRateLimited = "rate_limited"

// authenticate checks the static bearer token. The caller identity stored in
// the context is a digest of the presented credential, never the credential
// itself.
func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	sum := sha256.Sum256([]byte(token))
	c.Set(callerKey, hex.EncodeToString(sum[:8]))
	c.Next()
}

// rateLimit applies the per-caller sliding window after authentication.
func (s *Server) rateLimit(c *gin.Context) {
	caller := c.GetString(callerKey)
	if !s.limiter.Take(caller) {
		metrics.RateLimitDenials.Inc()
		remaining, reset := s.limiter.Peek(caller)
		details := gin.H{
			"caller":    caller,
			"path":      c.FullPath(),
			"remaining": remaining,
		}
		if err := s.journal.Append(actionRateLimited, details, false, "rate limit exceeded"); err != nil {
			s.logger.Error("journal append failed", zap.String("action", actionRateLimited), zap.Error(err))
		}
		c.Header("Retry-After", reset.UTC().Format(http.TimeFormat))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":     "rate limit exceeded",
			"remaining": remaining,
		})
		return
	}
	c.Next()
}
