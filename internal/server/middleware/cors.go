package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultAllowHeaders = "Content-Type, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID, " +
	"X-OPENAI-API-KEY, X-ANTHROPIC-API-KEY, X-GOOGLE-API-KEY, X-DEEPSEEK-API-KEY, X-OPENROUTER-API-KEY, X-RUNPOD-API-KEY"

// CORS allows any origin. Preflights echo the requested headers so provider
// credential headers pass.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()

		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Add("Vary", "Origin")

		if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
		} else {
			h.Set("Access-Control-Allow-Headers", defaultAllowHeaders)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
