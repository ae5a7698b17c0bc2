package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/todo-backend/internal/model"
)

const identityKey = "identity"

// SetIdentity attaches the authenticated caller to the request.
func SetIdentity(c echo.Context, id model.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the caller attached by JWTAuth.  ok is false on
// routes that are not behind the gate.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok && id.ID != 0
}
