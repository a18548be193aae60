package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/pkg/api"
)

// Auth requires "Authorization: Bearer <key>" with one of keys. With no keys
// configured every request passes.
func Auth(keys []string) gin.HandlerFunc {
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(api.UnauthorizedError("Missing Authorization header"))
			c.Abort()
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			_ = c.Error(api.UnauthorizedError("Invalid Authorization header format"))
			c.Abort()
			return
		}

		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(token), []byte(k)) == 1 {
				c.Next()
				return
			}
		}

		_ = c.Error(api.UnauthorizedError("Invalid API key"))
		c.Abort()
	}
}
