package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/retroflect/backend/config"
	"github.com/retroflect/backend/internal/identity"
)

const (
	userHashKey    = "userHash"
	overrideKey    = "override"
	identityCookie = "retroflect_identity"
)

// Identity resolves the caller's anonymous identity and guarantees every
// request downstream carries a user hash. A valid Bearer token or identity
// cookie is honored; a first-time visitor gets a fresh identity minted and
// set as an http-only cookie. An explicitly presented Bearer token that fails
// verification is rejected rather than silently replaced.
func Identity(issuer *identity.Issuer, cfg *config.Config) gin.HandlerFunc {
	cookieMaxAge := int(cfg.IdentityTokenDuration.Seconds())
	secureCookies := cfg.Environment == "production"

	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
				c.Abort()
				return
			}
			userHash, err := issuer.Verify(parts[1])
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired identity token"})
				c.Abort()
				return
			}
			c.Set(userHashKey, userHash)
			c.Next()
			return
		}

		if cookie, err := c.Cookie(identityCookie); err == nil {
			if userHash, err := issuer.Verify(cookie); err == nil {
				c.Set(userHashKey, userHash)
				c.Next()
				return
			}
		}

		// No usable identity; mint one
		token, userHash, err := issuer.Issue()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to establish identity"})
			c.Abort()
			return
		}

		c.SetCookie(identityCookie, token, cookieMaxAge, "/", cfg.CookieDomain, secureCookies, true)
		c.Set(userHashKey, userHash)
		c.Next()
	}
}

// UserHash returns the caller's identity hash set by Identity
func UserHash(c *gin.Context) string {
	return c.GetString(userHashKey)
}

// HasOverride reports whether the caller passed operator override
// verification
func HasOverride(c *gin.Context) bool {
	return c.GetBool(overrideKey)
}
