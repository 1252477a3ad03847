package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// Override verifies the site operator escape hatch: an X-Admin-Secret header
// checked against the configured bcrypt hash. Requests without the header
// pass through with no override; a wrong secret is rejected outright so
// operator typos surface instead of quietly downgrading to normal
// authorization.
func Override(adminSecretHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Admin-Secret")
		if secret == "" {
			c.Next()
			return
		}

		if adminSecretHash == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Operator override is not configured"})
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(adminSecretHash), []byte(secret)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin secret"})
			c.Abort()
			return
		}

		c.Set(overrideKey, true)
		c.Next()
	}
}
