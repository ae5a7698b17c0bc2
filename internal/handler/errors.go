package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/todo-backend/internal/service"
)

// StatusOf maps a service error kind to its HTTP status.
func StatusOf(k service.Kind) int {
	switch k {
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler or middleware as
// {message} with the matching status.  Causes of internal errors are only
// logged.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := translate(err)
		if code >= http.StatusInternalServerError {
			log.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("request failed")
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, echo.Map{"message": msg})
		}
		if werr != nil {
			log.Error().Err(werr).Msg("write error response")
		}
	}
}

func translate(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		case nil:
		default:
			msg = fmt.Sprint(m)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = "Internal server error"
		}
		return he.Code, msg
	}
	return StatusOf(service.KindOf(err)), service.PublicMessage(err)
}
