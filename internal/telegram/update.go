package telegram

import (
	"strings"

	"github.com/dvloznov/finance-bot/internal/bot"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ToEvent converts an update into a bot event. ok is false for updates the
// bot does not handle.
func ToEvent(update tgbotapi.Update) (bot.Event, bool) {
	if q := update.CallbackQuery; q != nil {
		return callbackEvent(q)
	}
	if msg := update.Message; msg != nil && msg.Chat != nil {
		return messageEvent(msg)
	}
	return bot.Event{}, false
}

func callbackEvent(q *tgbotapi.CallbackQuery) (bot.Event, bool) {
	ev := bot.Event{CallbackID: q.ID}
	switch {
	case q.Message != nil && q.Message.Chat != nil:
		ev.ChatID = q.Message.Chat.ID
	case q.From != nil:
		ev.ChatID = q.From.ID
	default:
		return bot.Event{}, false
	}
	setText(&ev, q.Data)
	return ev, true
}

func messageEvent(msg *tgbotapi.Message) (bot.Event, bool) {
	ev := bot.Event{ChatID: msg.Chat.ID}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	setText(&ev, text)

	if len(msg.Photo) > 0 {
		// Sizes are ordered smallest first.
		p := msg.Photo[len(msg.Photo)-1]
		ev.Attachments = append(ev.Attachments, bot.Attachment{
			FileID:   p.FileID,
			Filename: "photo_" + p.FileUniqueID + ".jpg",
			MimeType: "image/jpeg",
		})
	}
	if d := msg.Document; d != nil {
		name := d.FileName
		if name == "" {
			name = "document_" + d.FileUniqueID
		}
		mime := d.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		ev.Attachments = append(ev.Attachments, bot.Attachment{FileID: d.FileID, Filename: name, MimeType: mime})
	}

	if ev.Command == "" && strings.TrimSpace(ev.Text) == "" && len(ev.Attachments) == 0 {
		return bot.Event{}, false
	}
	return ev, true
}

func setText(ev *bot.Event, text string) {
	if cmd, args, ok := bot.ParseCommand(text); ok {
		ev.Command, ev.Args = cmd, args
		return
	}
	ev.Text = text
}
