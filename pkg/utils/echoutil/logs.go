package echoutil

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	apierr "github.com/opst/ripen/pkg/api/errors"
	"go.uber.org/zap"
)

// LogHandlerFunc returns a middleware writing a line per request to logger.
//
// Server errors (5xx) are logged in error level with their cause.
func LogHandlerFunc(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			begin := time.Now()

			err := next(c)

			status := c.Response().Status
			herr := new(echo.HTTPError)
			if errors.As(err, &herr) {
				status = herr.Code
			} else if err != nil {
				status = 500
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Duration("elapsed", time.Since(begin)),
			}
			if 500 <= status {
				var cause error = err
				if em := new(apierr.ErrorMessage); errors.As(err, em) && em.Cause != nil {
					cause = em.Cause
				}
				logger.Error("request failed", append(fields, zap.Error(cause))...)
			} else {
				logger.Info("request", fields...)
			}
			return err
		}
	}
}

// SetLevel sets level of echo's own logger.
func SetLevel(e *echo.Echo, loglevel string) {
	switch strings.ToLower(loglevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "warn", "":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
