// Package bot handles inbound chat events: it routes commands, feeds the
// conversation machine, talks to the stores and sends the reply.
package bot

import (
	"context"
	"strings"

	"github.com/dvloznov/finance-bot/internal/conversation"
)

// Event is one inbound chat event.
type Event struct {
	ChatID int64

	// Command is set when the message starts with a slash command; Args
	// holds the whitespace-separated words after it.
	Command string
	Args    []string

	// Text is the plain text of a non-command message, or a caption.
	Text string

	Attachments []Attachment

	// CallbackID is the id of the button press that produced the event.
	CallbackID string

	// Expire marks an internal event queued by the expiry sweeper.
	Expire bool
}

// Attachment is a file sent with a message.
type Attachment struct {
	FileID   string
	Filename string
	MimeType string
}

// ParseCommand splits text of the form "/cmd arg1 arg2" into the command
// and its arguments. ok is false for text without a leading slash.
func ParseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) < 2 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// Messenger sends outbound chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMenu(ctx context.Context, chatID int64, text string, options []conversation.Option) error
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// AttachmentFetcher downloads a file sent by a user.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, fileID string) ([]byte, error)
}
