package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows every origin outside production. In production only the
// allowlist is served, and an empty allowlist disables cross-origin access.
func CORS(env string, allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if env == "production" {
		if len(allowedOrigins) == 0 {
			return func(c *gin.Context) { c.Next() }
		}
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "OPTIONS")
	corsConfig.AddAllowHeaders(HeaderActorID, HeaderActorName, HeaderActorRole, "Idempotency-Key")
	corsConfig.AddExposeHeaders("Content-Length")

	return cors.New(corsConfig)
}
