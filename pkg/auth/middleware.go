package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Middleware provides JWT authentication for Gin routes. Unlike the
// teacher's AuthMiddleware, there is no per-user RBAC store behind it: this
// domain has no user accounts, only bearer tokens whose Claims already
// carry the caller's role and permission set (SPEC_FULL §6.5), so
// permission checks read directly off the validated token.
type Middleware struct {
	jwtService *JWTService
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(jwtService *JWTService) *Middleware {
	return &Middleware{jwtService: jwtService}
}

// RequireAuth requires a valid JWT bearer token and stores its Claims in
// the gin context.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization token required", "code": "AUTH_TOKEN_MISSING"})
			c.Abort()
			return
		}

		claims, err := m.jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "code": "AUTH_TOKEN_INVALID"})
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// RequirePermission requires authentication plus a specific permission in
// the token's claims. It reuses claims an earlier RequireAuth stored, or
// validates the bearer token itself; the next handler runs only after both
// checks pass.
func (m *Middleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetCurrentClaims(c)
		if !ok {
			validated, err := m.jwtService.ValidateToken(extractToken(c))
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "code": "AUTH_TOKEN_INVALID"})
				c.Abort()
				return
			}
			c.Set("claims", validated)
			claims = validated
		}
		if !claims.HasPermission(permission) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"code":     "AUTH_INSUFFICIENT_PERMISSIONS",
				"required": permission,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// GetCurrentClaims returns the authenticated request's Claims, set by
// RequireAuth.
func GetCurrentClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get("claims")
	if !exists {
		return nil, false
	}
	claimsData, ok := claims.(*Claims)
	return claimsData, ok
}
