package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/auth"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/response"
)

// JWT returns a middleware that validates the operator token.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		if _, err := jwtService.Validate(parts[1]); err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Next()
	}
}
