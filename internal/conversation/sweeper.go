package conversation

import (
	"context"
	"time"

	"github.com/dvloznov/finance-bot/internal/logger"
)

// DefaultSweepInterval is how often RunExpirySweeper looks for expired sessions.
const DefaultSweepInterval = 30 * time.Second

// RunExpirySweeper periodically finds expired sessions and hands each chat
// id to submit, which is expected to queue an expire event for that chat.
// It returns when ctx is done.
func RunExpirySweeper(ctx context.Context, sessions *Manager, interval time.Duration, submit func(ctx context.Context, chatID int64) error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SweepExpired(ctx, sessions, submit)
		}
	}
}

// SweepExpired runs one sweep and returns the number of chats submitted.
func SweepExpired(ctx context.Context, sessions *Manager, submit func(ctx context.Context, chatID int64) error) int {
	log := logger.FromContext(ctx)
	submitted := 0
	for _, chatID := range sessions.Expired(sessions.Now()) {
		if err := submit(ctx, chatID); err != nil {
			log.Warn().Err(err).Int64(logger.FieldChatID, chatID).Msg("failed to queue session expiry")
			continue
		}
		submitted++
	}
	return submitted
}
