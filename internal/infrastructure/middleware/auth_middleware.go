package middleware

import (
	"net/http"
	"strings"

	"roomcast/internal/core/services"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware guards the REST API with Bearer room tokens. Claims are
// stored in the gin context for handlers that need them.
func AuthMiddleware(tokens *services.RoomTokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("room", string(claims.Room))
		c.Set("display_name", claims.DisplayName)
		c.Next()
	}
}
