package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// New builds a CORS middleware from the configured origin allowlist. An
// empty allowlist permits every origin, which is the development default.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[normalizeOrigin(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		header := c.Writer.Header()

		switch {
		case origin != "" && (allowAll || originAllowed(allowed, origin)):
			header.Set("Access-Control-Allow-Origin", origin)
		case origin == "" && allowAll:
			header.Set("Access-Control-Allow-Origin", "*")
		}

		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, X-Request-ID")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		header.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowed map[string]struct{}, origin string) bool {
	_, ok := allowed[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(origin, "/")
}
