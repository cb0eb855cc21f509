package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PollSecret guards the batch-poll endpoint with a shared secret, accepted
// from the X-Poll-Secret header or the secret query parameter. A missing or
// mismatched secret aborts with 401 before any dispatch work happens. An
// empty configured secret disables the endpoint entirely.
func PollSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "poll endpoint disabled"})
			return
		}

		provided := c.GetHeader("X-Poll-Secret")
		if provided == "" {
			provided = c.Query("secret")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			GetLogger(c).Warn("poll request rejected: bad secret")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
