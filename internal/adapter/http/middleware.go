package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware returns a gin middleware that validates the authorization
// token from the request header. If the token is missing or invalid the
// request is aborted with 401; otherwise the handler chain continues.
func AuthMiddleware(validToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if token != validToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
