// Package telegram connects the bot to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/finance-bot/internal/bot"
	"github.com/dvloznov/finance-bot/internal/conversation"
	"github.com/dvloznov/finance-bot/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxAttachmentSize is the largest file the Bot API lets bots download.
const MaxAttachmentSize = 20 << 20

// MenuColumns is the number of inline buttons per keyboard row.
const MenuColumns = 2

// botAPI is the part of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client implements bot.Messenger and bot.AttachmentFetcher.
type Client struct {
	api          botAPI
	token        string
	fileEndpoint string
	httpClient   *http.Client
}

// New connects to the Bot API with token.
func New(token string, debug bool) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("New: token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("New: connecting to bot API: %w", err)
	}
	api.Debug = debug
	return NewWithAPI(api, token), nil
}

// NewWithAPI wraps an existing API handle.
func NewWithAPI(api botAPI, token string) *Client {
	return &Client{
		api:          api,
		token:        token,
		fileEndpoint: tgbotapi.FileEndpoint,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SendMessage sends plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("SendMessage: %w", err)
	}
	return nil
}

// SendMenu sends text with an inline keyboard built from options.
func (c *Client) SendMenu(ctx context.Context, chatID int64, text string, options []conversation.Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(options) > 0 {
		msg.ReplyMarkup = Keyboard(options, MenuColumns)
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("SendMenu: %w", err)
	}
	return nil
}

// Keyboard lays options out in rows of columns buttons.
func Keyboard(options []conversation.Option, columns int) tgbotapi.InlineKeyboardMarkup {
	if columns < 1 {
		columns = 1
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for start := 0; start < len(options); start += columns {
		end := min(start+columns, len(options))
		var row []tgbotapi.InlineKeyboardButton
		for _, opt := range options[start:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// SendDocument uploads data as a file named name.
func (c *Client) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	if _, err := c.api.Send(doc); err != nil {
		return fmt.Errorf("SendDocument: %w", err)
	}
	return nil
}

// AnswerCallback stops the button spinner of a callback query.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("AnswerCallback: %w", err)
	}
	return nil
}

// FetchAttachment downloads a file sent to the bot.
func (c *Client) FetchAttachment(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("FetchAttachment: resolving file: %w", err)
	}
	if file.FileSize > MaxAttachmentSize {
		return nil, fmt.Errorf("FetchAttachment: file is %d bytes, limit is %d", file.FileSize, MaxAttachmentSize)
	}

	url := fmt.Sprintf(c.fileEndpoint, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("FetchAttachment: building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchAttachment: downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FetchAttachment: download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("FetchAttachment: reading body: %w", err)
	}
	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("FetchAttachment: file exceeds %d bytes", MaxAttachmentSize)
	}
	return data, nil
}

// Poll receives updates by long polling and submits them until ctx is done.
func (c *Client) Poll(ctx context.Context, submit func(ctx context.Context, ev bot.Event) error) error {
	log := logger.FromContext(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.api.GetUpdatesChan(u)
	log.Info().Msg("polling for updates")

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("Poll: update channel closed")
			}
			ev, ok := ToEvent(update)
			if !ok {
				log.Debug().Int("update_id", update.UpdateID).Msg("ignoring update")
				continue
			}
			if err := submit(ctx, ev); err != nil {
				log.Error().Err(err).Int64(logger.FieldChatID, ev.ChatID).Msg("failed to queue update")
			}
		}
	}
}

// SetWebhook registers url as the update endpoint.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("SetWebhook: parsing url: %w", err)
	}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("SetWebhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to polling.
func (c *Client) DeleteWebhook() error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("DeleteWebhook: %w", err)
	}
	return nil
}

var (
	_ bot.Messenger         = (*Client)(nil)
	_ bot.AttachmentFetcher = (*Client)(nil)
)
