package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/todo-backend/internal/handler"
	"github.com/iliyamo/todo-backend/internal/middleware"
	"github.com/iliyamo/todo-backend/internal/utils"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the session endpoints.  Register, login and
// refresh are public; logout requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, access *utils.TokenIssuer) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// The refresh token travels in the jwt cookie, not in a header.
	g.POST("/refresh-token", a.RefreshToken)
	g.POST("/logout", a.Logout, middleware.JWTAuth(access))
}

// RegisterTodos registers the owner-scoped todo endpoints.  Listing goes
// through the response cache; every mutation invalidates it for the caller.
func RegisterTodos(e *echo.Echo, t *handler.TodoHandler, access *utils.TokenIssuer, cache *middleware.TodoListCache) {
	g := e.Group("/todos", middleware.JWTAuth(access))
	g.GET("", t.List, cache.Serve())

	mut := cache.Invalidate()
	g.POST("", t.Create, mut)
	g.PATCH("/status/:id", t.ChangeStatus, mut)
	g.PATCH("/:id", t.Update, mut)
	g.DELETE("/:id", t.Delete, mut)
}

// Options configures New.
type Options struct {
	Log        zerolog.Logger
	Middleware []echo.MiddlewareFunc // applied with e.Use, in order
}

// New builds the echo instance with the shared validator, error handler and
// request middleware.  Routes are added by the Register* functions.
func New(cfg Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(cfg.Log)
	for _, mw := range cfg.Middleware {
		e.Use(mw)
	}
	return e
}
