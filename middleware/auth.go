// File: /middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chyrp-api/services"
	"chyrp-api/utils"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(raw string) (uint, error)
}

// bearerToken extracts the token. ok is false when the header is present
// but not of the form "Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthMiddleware rejects requests without a valid bearer token. A missing
// header or a rejected token is 401; a header or token that cannot be
// parsed at all is 422.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			utils.SendError(c, http.StatusUnauthorized, "Missing Authorization Header")
			return
		}
		raw, ok := bearerToken(header)
		if !ok {
			utils.SendError(c, http.StatusUnprocessableEntity, "Bad Authorization header. Expected 'Authorization: Bearer <JWT>'")
			return
		}

		userID, err := tokens.ParseToken(raw)
		if err != nil {
			if errors.Is(err, services.ErrMalformedToken) {
				utils.SendError(c, http.StatusUnprocessableEntity, "Malformed token")
				return
			}
			utils.SendError(c, http.StatusUnauthorized, "Token is invalid or expired")
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// OptionalAuth identifies the viewer when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if userID, err := tokens.ParseToken(raw); err == nil {
				c.Set("user_id", userID)
			}
		}
		c.Next()
	}
}
