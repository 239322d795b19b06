package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/aiva-app/notify/internal/auth"
	"github.com/aiva-app/notify/pkg/errors"
	"github.com/aiva-app/notify/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

// Auth enforces JWT authentication using the supplied JWT service. Tokens are
// issued by the upstream user service; this service only validates them.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)

		c.Next()
	}
}

// InternalAuth guards service-to-service endpoints with a shared static token
// carried in the X-Internal-Token header.
func InternalAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader("X-Internal-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
