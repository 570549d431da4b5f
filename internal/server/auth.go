package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// bearerAuth rejects requests missing a matching "Authorization: Bearer
// <token>" header. Comparison is constant-time to avoid leaking the token
// length/prefix through response timing.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, prefix) {
			writeJSON(c, http.StatusUnauthorized, errorResp{Error: "missing bearer token"})
			c.Abort()
			return
		}
		supplied := strings.TrimPrefix(h, prefix)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			writeJSON(c, http.StatusUnauthorized, errorResp{Error: "invalid bearer token"})
			c.Abort()
			return
		}
		c.Next()
	}
}
