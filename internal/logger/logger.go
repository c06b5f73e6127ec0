package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Field names shared by every component that logs chat activity.
const (
	FieldChatID  = "chat_id"
	FieldKind    = "kind"
	FieldCommand = "command"
	FieldState   = "state"
	FieldRowRef  = "row_ref"
)

// New creates a console logger at info level
func New() zerolog.Logger {
	return NewWithLevel(false)
}

// NewWithLevel creates a console logger, at debug level when debug is set
func NewWithLevel(debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

// NewWithWriter creates a JSON logger writing to w
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// ForChat returns the context logger tagged with the chat id
func ForChat(ctx context.Context, chatID int64) zerolog.Logger {
	return FromContext(ctx).With().Int64(FieldChatID, chatID).Logger()
}
