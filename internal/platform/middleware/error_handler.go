package middleware

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorHandler wraps echo's default error rendering. Server errors are
// logged with their internal cause and reported to Sentry; the client only
// sees the public message.
func ErrorHandler(e *echo.Echo, logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}

		if code >= http.StatusInternalServerError {
			cause := err
			if he != nil && he.Internal != nil {
				cause = he.Internal
			}
			logger.Error().
				Err(cause).
				Str("request_id", RequestIDFrom(c)).
				Str("path", c.Path()).
				Int("status", code).
				Msg("request failed")

			hub := sentry.CurrentHub().Clone()
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("request_id", RequestIDFrom(c))
				scope.SetTag("route", c.Path())
				scope.SetRequest(c.Request())
				hub.CaptureException(cause)
			})

			if he == nil {
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}
		}

		e.DefaultHTTPErrorHandler(err, c)
	}
}
