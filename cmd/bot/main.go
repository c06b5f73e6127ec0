package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-bot/internal/backend"
	"github.com/dvloznov/finance-bot/internal/bot"
	"github.com/dvloznov/finance-bot/internal/config"
	"github.com/dvloznov/finance-bot/internal/conversation"
	"github.com/dvloznov/finance-bot/internal/directory"
	"github.com/dvloznov/finance-bot/internal/dispatch"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/quickentry"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/dvloznov/finance-bot/internal/telegram"
	"github.com/dvloznov/finance-bot/internal/webhook"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	mode := flag.String("mode", config.ModePoll, "Update source: poll or webhook")
	dryRun := flag.Bool("dry-run", false, "Keep records and photos in memory instead of Google storage")
	flag.Parse()

	if err := run(*mode, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(mode string, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dryRun {
		cfg.UseMemory()
	}
	if err := cfg.Validate(mode); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewWithLevel(cfg.Debug)
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background(), log), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("mode", mode).Bool("dry_run", dryRun).Msg("Starting ledger bot")

	backends, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close storage clients")
		}
	}()
	if err := backends.Prepare(ctx, store.DefaultSheetKeys); err != nil {
		return err
	}

	tg, err := telegram.New(cfg.TelegramToken, cfg.Debug)
	if err != nil {
		return err
	}

	now := func() time.Time { return time.Now().In(cfg.Location) }
	sessions := conversation.NewManager(cfg.SessionTTL, now)
	dir := directory.NewService(backends.Directory, now)
	ledger := &store.Ledger{Records: backends.Records, Sheets: store.DefaultSheetKeys, Agents: dir}

	deps := bot.Deps{
		Machine:     conversation.NewMachine(sessions, ledger),
		Ledger:      ledger,
		Attachments: backends.Attachments,
		Folders:     backends.Folders,
		Messenger:   tg,
		Fetcher:     tg,
		Directory:   dir,
	}
	if cfg.GeminiAPIKey != "" {
		quick, err := quickentry.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return err
		}
		deps.Quick = quick
		log.Info().Msg("Quick entry enabled")
	}

	dispatcher := dispatch.NewDispatcher(cfg.Workers, cfg.QueueBuffer, bot.NewHandler(deps))
	// Workers outlive the signal so Stop can drain queued events.
	if err := dispatcher.Start(logger.WithContext(context.Background(), log)); err != nil {
		return err
	}
	go conversation.RunExpirySweeper(ctx, sessions, cfg.SweepInterval, dispatcher.SubmitExpire)

	switch mode {
	case config.ModeWebhook:
		err = serveWebhook(ctx, cfg, tg, dispatcher, log)
	default:
		err = poll(ctx, tg, dispatcher, log)
	}

	log.Info().Msg("Shutting down ledger bot...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := dispatcher.Stop(shutdownCtx); stopErr != nil {
		log.Error().Err(stopErr).Msg("Error during graceful shutdown")
	}
	stats := dispatcher.Stats()
	log.Info().
		Int("handled", stats.Handled).
		Int("failed", stats.Failed).
		Int("dropped", stats.Dropped).
		Msg("Ledger bot exited")
	return err
}

func poll(ctx context.Context, tg *telegram.Client, dispatcher *dispatch.Dispatcher, log zerolog.Logger) error {
	if err := tg.DeleteWebhook(); err != nil {
		return err
	}
	log.Info().Msg("Polling for updates")
	if err := tg.Poll(ctx, dispatcher.Submit); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveWebhook(ctx context.Context, cfg *config.Config, tg *telegram.Client, dispatcher *dispatch.Dispatcher, log zerolog.Logger) error {
	srv := webhook.NewServer(cfg.WebhookSecret, dispatcher.Submit, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.WebhookAddr).Msg("Webhook server listening")
		errCh <- srv.Start(cfg.WebhookAddr)
	}()

	if err := tg.SetWebhook(cfg.WebhookEndpoint()); err != nil {
		shutdownServer(srv, log)
		return err
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	shutdownServer(srv, log)
	return err
}

func shutdownServer(srv *webhook.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Webhook server forced to shutdown")
	}
}
