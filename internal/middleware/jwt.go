package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/todo-backend/internal/model"
	"github.com/iliyamo/todo-backend/internal/utils"
)

const (
	msgNoToken      = "No authentication token provided"
	msgInvalidToken = "Invalid token"
)

// JWTAuth validates the Bearer access token and attaches the caller's
// identity to the context.  Requests without a valid token never reach the
// wrapped handler.
func JWTAuth(access *utils.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, found := strings.CutPrefix(auth, "Bearer ")
			raw = strings.TrimSpace(raw)
			if !found || raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": msgNoToken})
			}
			claims, err := access.Verify(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": msgInvalidToken})
			}
			SetIdentity(c, model.Identity{ID: claims.ID, Email: claims.Email})
			return next(c)
		}
	}
}
