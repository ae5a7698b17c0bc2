package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/todo-backend/internal/middleware"
	"github.com/iliyamo/todo-backend/internal/model"
	"github.com/iliyamo/todo-backend/internal/service"
)

// RefreshCookie is the cookie carrying the refresh token.
const RefreshCookie = "jwt"

// Sessions is the session manager the auth endpoints drive.
type Sessions interface {
	Register(ctx context.Context, in service.RegisterInput) (service.Session, error)
	Login(ctx context.Context, in service.LoginInput) (service.Session, error)
	Logout(ctx context.Context, id model.Identity) error
	RefreshAccessToken(ctx context.Context, raw string) (service.Session, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Sessions     Sessions
	CookieMaxAge time.Duration // refresh TTL
	SecureCookie bool
}

// NewAuthHandler returns the session endpoints.  refreshTTL sets the
// lifetime of the jwt cookie; secure marks it HTTPS-only.
func NewAuthHandler(s Sessions, refreshTTL time.Duration, secure bool) *AuthHandler {
	return &AuthHandler{Sessions: s, CookieMaxAge: refreshTTL, SecureCookie: secure}
}

// ----- DTOs -----

type registerReq struct {
	FullName string `json:"fullName" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register: create the account and return an access token; the refresh
// token goes into the cookie.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Sessions.Register(ctx, service.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, sess)
	return c.JSON(http.StatusCreated, echo.Map{
		"accessToken": sess.AccessToken.Token,
		"newUser":     sess.User,
	})
}

// Login: verify credentials and start a new session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindValid(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Sessions.Login(ctx, service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, sess)
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": sess.AccessToken.Token,
		"user":        sess.User,
	})
}

// Logout: drop the stored refresh token and clear the cookie.  Runs behind
// JWTAuth.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Logout(ctx, id); err != nil {
		return err
	}
	c.SetCookie(h.cookie("", -1, time.Unix(0, 0)))
	return c.JSON(http.StatusOK, echo.Map{"message": "Sign-out successful"})
}

// RefreshToken: exchange the cookie's refresh token for a new pair.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	raw := ""
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		raw = ck.Value
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Sessions.RefreshAccessToken(ctx, raw)
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, sess)
	return c.JSON(http.StatusOK, echo.Map{"accessToken": sess.AccessToken.Token})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, sess service.Session) {
	c.SetCookie(h.cookie(sess.RefreshToken.Token, int(h.CookieMaxAge/time.Second), sess.RefreshToken.Exp))
}

func (h *AuthHandler) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
