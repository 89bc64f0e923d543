package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/logger"
)

const (
	userIDKey = "userID"
	rolesKey  = "roles"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled bool
	// Secret verifies HS256 bearer tokens.
	Secret string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// DefaultUserID owns every request while auth is disabled.
	DefaultUserID string
}

// Auth resolves the calling user. With auth enabled it requires an HS256
// bearer token whose sub (or userId) claim names the user; otherwise every
// request acts as DefaultUserID. The user ID is stored in the gin context
// and on the request logger.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			setUser(c, cfg.DefaultUserID)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			abortUnauthorized(c, "Authorization header required.")
			return
		}

		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			msg := "Invalid token."
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token expired."
			}
			GetLogger(c).WithError(err).Debug("Rejected bearer token")
			abortUnauthorized(c, msg)
			return
		}

		userID := userIDFromClaims(claims)
		if userID == "" {
			abortUnauthorized(c, "Token has no subject.")
			return
		}

		setUser(c, userID)
		c.Set(rolesKey, rolesFromClaims(claims))
		c.Next()
	}
}

// UserID returns the user resolved by Auth.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func setUser(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
	c.Request = c.Request.WithContext(logger.SetUserID(c.Request.Context(), userID))
}

func userIDFromClaims(claims jwt.MapClaims) string {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if id, ok := claims["userId"].(string); ok {
		return id
	}
	return ""
}

// rolesFromClaims reads a "role" string and/or a "roles" list.
func rolesFromClaims(claims jwt.MapClaims) []string {
	var roles []string
	if role, ok := claims["role"].(string); ok && role != "" {
		roles = append(roles, role)
	}
	if list, ok := claims["roles"].([]interface{}); ok {
		for _, r := range list {
			if role, ok := r.(string); ok && role != "" {
				roles = append(roles, role)
			}
		}
	}
	return roles
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": domain.CodeUnauthorized, "message": message},
	})
}
