package middleware

import (
	"context"
	"net/http"

	"edusync/internal/common"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// JWTCustomClaims carries the identity the handlers work with.
type JWTCustomClaims struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     string    `json:"role"`
	jwt.RegisteredClaims
}

// AttachClaims is the echo-jwt success handler: it copies the validated
// claims into the request context where services and handlers read them.
func AttachClaims(c echo.Context) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return
	}
	claims, ok := token.Claims.(*JWTCustomClaims)
	if !ok {
		return
	}

	ctx := context.WithValue(c.Request().Context(), common.UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, common.TenantIDKey, claims.TenantID)
	ctx = context.WithValue(ctx, common.RoleKey, claims.Role)
	c.SetRequest(c.Request().WithContext(ctx))
}

// RequireRole gates a route on the role claim.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			current, ok := common.GetRoleFromContext(c.Request().Context())
			if !ok || current != role {
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient role")
			}
			return next(c)
		}
	}
}
