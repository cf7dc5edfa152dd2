package auth

import (
	"net/http"
	"strings"

	"github.com/Wideyedwonderer/buscuit-maker/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	roleKey    = "role"
	subjectKey = "subject"
)

// Middleware authenticates requests with a Bearer token, or a token query
// parameter for browser websockets. With a nil issuer authentication is off
// and every caller is treated as an operator.
func Middleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if issuer == nil {
			c.Set(roleKey, RoleOperator)
			c.Next()
			return
		}

		token, ok := extractToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthorized,
				"missing or malformed authorization", nil))
			c.Abort()
			return
		}

		claims, err := issuer.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthorized,
				"invalid or expired token", err.Error()))
			c.Abort()
			return
		}

		c.Set(roleKey, claims.Role)
		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		// Extract token from "Bearer <token>"
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// RequireRole rejects callers whose role does not grant required
func RequireRole(required Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)
		if !ok {
			c.JSON(http.StatusForbidden, types.NewErrorResponse(types.CodeForbidden,
				"no role found", nil))
			c.Abort()
			return
		}

		if !role.Allows(required) {
			c.JSON(http.StatusForbidden, types.NewErrorResponse(types.CodeForbidden,
				"insufficient permissions", gin.H{"required": string(required)}))
			c.Abort()
			return
		}

		c.Next()
	}
}

func RoleFromContext(c *gin.Context) (Role, bool) {
	v, exists := c.Get(roleKey)
	if !exists {
		return "", false
	}
	role, ok := v.(Role)
	return role, ok
}

func SubjectFromContext(c *gin.Context) string {
	return c.GetString(subjectKey)
}
