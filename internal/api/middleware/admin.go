package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/timmy/nutrilens/internal/domain"
)

// AdminTokenHeader carries the configured admin token.
const AdminTokenHeader = "X-Admin-Token"

// AdminConfig holds the admin check run after Auth.
type AdminConfig struct {
	// Role grants admin access when present in the token's role or roles claim.
	Role string
	// Token grants admin access when sent in AdminTokenHeader.
	Token string
}

// Configured reports whether any admin credential is set. Admin routes stay
// unregistered otherwise.
func (c AdminConfig) Configured() bool {
	return c.Role != "" || c.Token != ""
}

// RequireAdmin lets a request through only if it carries the admin token or
// Auth resolved a token holding the admin role. Everyone else gets 403.
func RequireAdmin(cfg AdminConfig) gin.HandlerFunc {
	token := []byte(cfg.Token)

	return func(c *gin.Context) {
		if len(token) > 0 {
			if sent := c.GetHeader(AdminTokenHeader); sent != "" && subtle.ConstantTimeCompare([]byte(sent), token) == 1 {
				c.Next()
				return
			}
		}
		if cfg.Role != "" && slices.Contains(c.GetStringSlice(rolesKey), cfg.Role) {
			c.Next()
			return
		}

		GetLogger(c).WithField("user_id", UserID(c)).Warn("Rejected admin request")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": gin.H{"code": domain.CodeForbidden, "message": "Admin access required."},
		})
	}
}
