package webhook

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestID tags every request with an id and puts a logger carrying it on
// the request context.
func RequestID(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(HeaderRequestID, requestID)

			reqLog := log.With().Str("request_id", requestID).Logger()
			ctx := logger.WithContext(c.Request().Context(), reqLog)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// Logger writes one structured line per request.
func Logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			// The secret path segment stays out of the log.
			log := logger.FromContext(req.Context())
			log.Info().
				Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Str("remote_addr", c.RealIP()).
				Msg("HTTP request")
			return nil
		}
	}
}

// Recovery turns a panic into a 500 response.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log := logger.FromContext(c.Request().Context())
					log.Error().
						Interface("error", r).
						Str("method", c.Request().Method).
						Str("route", c.Path()).
						Msg("Panic recovered")
					err = writeError(c, http.StatusInternalServerError, "Internal server error")
				}
			}()
			return next(c)
		}
	}
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}
