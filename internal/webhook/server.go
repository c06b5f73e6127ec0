// Package webhook receives Telegram updates over HTTPS.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/finance-bot/internal/bot"
	"github.com/dvloznov/finance-bot/internal/dispatch"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// PathPrefix is the route prefix of the update endpoint; the secret follows it.
const PathPrefix = "/telegram/webhook/"

// SubmitFunc queues an event for handling.
type SubmitFunc func(ctx context.Context, ev bot.Event) error

// Server serves the update endpoint and a health check.
type Server struct {
	echo   *echo.Echo
	secret string
	submit SubmitFunc
}

// NewServer creates a server. Requests must carry secret in the path.
func NewServer(secret string, submit SubmitFunc, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(RequestID(log))
	e.Use(Logger())
	e.Use(Recovery())
	e.Use(middleware.BodyLimit("1M"))

	s := &Server{echo: e, secret: secret, submit: submit}
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes registers the webhook routes with e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.POST(PathPrefix+":secret", s.ReceiveUpdate)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health handles GET /health.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ReceiveUpdate handles POST /telegram/webhook/:secret.
func (s *Server) ReceiveUpdate(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(s.secret)) != 1 {
		log.Warn().Msg("webhook secret mismatch")
		return writeError(c, http.StatusForbidden, "Forbidden")
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&update); err != nil {
		return writeError(c, http.StatusBadRequest, "Invalid update body")
	}

	ev, ok := telegram.ToEvent(update)
	if !ok {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	if err := s.submit(ctx, ev); err != nil {
		log.Error().Err(err).Int64(logger.FieldChatID, ev.ChatID).Msg("failed to queue update")
		if errors.Is(err, dispatch.ErrClosed) {
			return writeError(c, http.StatusServiceUnavailable, "Shutting down")
		}
		return writeError(c, http.StatusServiceUnavailable, "Busy")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "queued"})
}
