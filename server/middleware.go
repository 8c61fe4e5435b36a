package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/openidx/scimcore/messages"
	"github.com/openidx/scimcore/scim"
)

// AuthConfig configures the bearer authentication middleware. A request is
// accepted when its token equals the static provisioning token or verifies
// as an HMAC-signed JWT. With neither configured, authentication is
// disabled (development mode).
type AuthConfig struct {
	BearerToken string
	JWTSecret   string
}

// AuthMiddleware authenticates SCIM requests with a bearer token
func AuthMiddleware(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.BearerToken == "" && cfg.JWTSecret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		if cfg.BearerToken != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(cfg.BearerToken)) == 1 {
			c.Next()
			return
		}

		if cfg.JWTSecret != "" {
			claims := jwt.MapClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err == nil && parsed.Valid {
				if sub, err := claims.GetSubject(); err == nil && sub != "" {
					c.Set("subject", sub)
				}
				c.Next()
				return
			}
			logger.Debug("JWT verification failed", zap.Error(err))
		}

		unauthorized(c, "invalid bearer token")
	}
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", `Bearer realm="scim"`)
	msg := messages.NewErrorMessage(scim.NewError(http.StatusUnauthorized, "", detail))
	c.AbortWithStatusJSON(http.StatusUnauthorized, msg)
}
