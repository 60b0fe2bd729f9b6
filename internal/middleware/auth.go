package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/domain"
)

// AnonymousUser is the caller identity when no authentication is configured
// and the request names no user.
const AnonymousUser = "anonymous"

// Auth resolves the caller identity. With a secret configured it requires an
// HS256 bearer token and uses its subject; otherwise it trusts the X-User-ID
// header.
func Auth(cfg domain.AuthConfig, logger *logrus.Logger) gin.HandlerFunc {
	if cfg.JWTSecret == "" {
		return func(c *gin.Context) {
			userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
			if userID == "" {
				userID = AnonymousUser
			}
			c.Set(UserIDKey, userID)
			c.Next()
		}
	}

	secret := []byte(cfg.JWTSecret)
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(options...)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			unauthorized(c, "Missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			logger.WithError(err).WithField("correlation_id", RequestID(c)).Debug("Rejected bearer token")
			unauthorized(c, "Invalid bearer token")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "Token has no subject")
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="cds"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		domain.NewAPIError(domain.ErrAuthentication, message, "", RequestID(c)))
}
