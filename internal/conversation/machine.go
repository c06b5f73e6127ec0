package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/record"
	"github.com/dvloznov/finance-bot/internal/validation"
)

// State is the position of a chat in the collection flow.
type State int

const (
	StateIdle State = iota
	StateAwaitingField
	StateComplete
	StateCancelled
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingField:
		return "awaiting_field"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Reply is the single outbound message produced for one inbound event.
type Reply struct {
	Text    string
	Options []Option
	State   State

	// Field and FieldIndex point at the field being requested when State is
	// StateAwaitingField.
	Field      domain.Field
	FieldIndex int

	// Record and RowRef are set when a record was committed.
	Record *domain.TransactionRecord
	RowRef string

	// Err is the failure behind a commit error reply.
	Err error
}

// Committer persists a finished record and returns a reference to where it landed.
type Committer interface {
	AppendRecord(ctx context.Context, rec domain.TransactionRecord) (string, error)
}

var (
	cancelTokens = []string{"/cancel", "cancel", "取消"}
	skipTokens   = []string{"-", "/skip"}
)

// IsCancel reports whether text is a cancel token.
func IsCancel(text string) bool { return matchToken(text, cancelTokens) }

// IsSkip reports whether text skips an optional field.
func IsSkip(text string) bool { return matchToken(text, skipTokens) }

func matchToken(text string, tokens []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, tok := range tokens {
		if t == tok {
			return true
		}
	}
	return false
}

// Machine drives sessions held by a Manager. It is not safe to feed events
// for the same chat from several goroutines at once; callers serialize per chat.
type Machine struct {
	sessions  *Manager
	committer Committer
}

// NewMachine creates a Machine.
func NewMachine(sessions *Manager, committer Committer) *Machine {
	return &Machine{sessions: sessions, committer: committer}
}

// Sessions returns the underlying manager.
func (m *Machine) Sessions() *Manager { return m.sessions }

// Active reports whether chatID has a live, unexpired session.
func (m *Machine) Active(chatID int64) bool {
	s, ok := m.sessions.Get(chatID)
	return ok && !s.Expired(m.sessions.Now())
}

// Start opens a session from seed, replacing any session of the chat.
// A seed without a date gets today's date. When invalid is set, the reply
// explains the rejected value before prompting for the first unset field.
// A seed that is already complete is committed immediately.
func (m *Machine) Start(ctx context.Context, chatID int64, kind domain.Kind, seed record.Builder, invalid error) Reply {
	if seed.Kind() != kind {
		seed = record.Start(kind)
	}
	m.sessions.Destroy(chatID)

	if !seed.Has(domain.FieldDate) {
		today, err := validation.Validate(domain.FieldDate, "", kind, m.sessions.Now())
		if err != nil {
			return Reply{Text: MsgInternalError, State: StateComplete, Err: err}
		}
		seed = seed.Supply(domain.FieldDate, today)
	}

	if seed.IsComplete() {
		return m.commit(ctx, chatID, seed)
	}

	s := m.sessions.Create(chatID, seed)
	log := logger.ForChat(ctx, chatID)
	log.Debug().
		Str(logger.FieldKind, kind.String()).
		Int("field_index", s.FieldIndex).
		Msg("session started")

	reply := m.promptFor(s)
	if invalid != nil {
		reply.Text = validationMessage(kind, invalid) + "\n" + reply.Text
	}
	return reply
}

// Input feeds one text message into the chat's session. ok is false when
// the chat has no session.
func (m *Machine) Input(ctx context.Context, chatID int64, text string) (Reply, bool) {
	s, ok := m.sessions.Get(chatID)
	if !ok {
		return Reply{}, false
	}
	now := m.sessions.Now()
	log := logger.ForChat(ctx, chatID)

	if s.Expired(now) {
		m.sessions.Destroy(chatID)
		log.Info().Str(logger.FieldState, StateTimedOut.String()).Msg("session expired before input")
		return Reply{Text: MsgTimedOut, State: StateTimedOut}, true
	}
	if IsCancel(text) {
		m.sessions.Destroy(chatID)
		log.Info().Str(logger.FieldState, StateCancelled.String()).Msg("session cancelled")
		return Reply{Text: MsgCancelled, State: StateCancelled}, true
	}

	field, _, pending := s.Builder.NextField()
	if !pending {
		return m.commit(ctx, chatID, s.Builder), true
	}

	raw := text
	if field.IsFreeText() && IsSkip(text) {
		raw = ""
	}

	v, err := validation.Validate(field, raw, s.Kind, now)
	if err != nil {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			m.sessions.Destroy(chatID)
			log.Error().Err(err).Msg("unexpected validation failure")
			return Reply{Text: MsgInternalError, State: StateComplete, Err: err}, true
		}
		s = m.sessions.Save(s)
		log.Debug().Str("field", string(field)).Str("input", text).Msg("rejected input")

		reply := m.promptFor(s)
		reply.Text = validationMessage(s.Kind, err) + "\n" + reply.Text
		return reply, true
	}

	s.Builder = s.Builder.Supply(field, v)
	if s.Builder.IsComplete() {
		return m.commit(ctx, chatID, s.Builder), true
	}

	_, s.FieldIndex, _ = s.Builder.NextField()
	s = m.sessions.Save(s)

	reply := m.promptFor(s)
	if v.Warning != "" {
		reply.Text = "Note: " + v.Warning + ".\n" + reply.Text
	}
	return reply, true
}

// Attach stores a photo reference on the chat's session and re-prompts for
// the current field. ok is false when the chat has no session.
func (m *Machine) Attach(ctx context.Context, chatID int64, photoRef string) (Reply, bool) {
	s, ok := m.sessions.Get(chatID)
	if !ok {
		return Reply{}, false
	}
	if s.Expired(m.sessions.Now()) {
		m.sessions.Destroy(chatID)
		return Reply{Text: MsgTimedOut, State: StateTimedOut}, true
	}

	s.Builder = s.Builder.WithPhoto(photoRef)
	s = m.sessions.Save(s)
	log := logger.ForChat(ctx, chatID)
	log.Debug().Str("photo_ref", photoRef).Msg("photo attached to session")

	reply := m.promptFor(s)
	reply.Text = MsgPhotoAttached + "\n" + reply.Text
	return reply, true
}

// Cancel drops the chat's session. ok is false when there was none.
func (m *Machine) Cancel(ctx context.Context, chatID int64) (Reply, bool) {
	if _, ok := m.sessions.Get(chatID); !ok {
		return Reply{}, false
	}
	m.sessions.Destroy(chatID)
	log := logger.ForChat(ctx, chatID)
	log.Info().Str(logger.FieldState, StateCancelled.String()).Msg("session cancelled")
	return Reply{Text: MsgCancelled, State: StateCancelled}, true
}

// Expire times out the chat's session if it is still past expiry. It is
// called by the sweeper through the same per-chat queue as user input, so
// a session refreshed in the meantime is left alone.
func (m *Machine) Expire(ctx context.Context, chatID int64) (Reply, bool) {
	s, ok := m.sessions.Get(chatID)
	if !ok || !s.Expired(m.sessions.Now()) {
		return Reply{}, false
	}
	m.sessions.Destroy(chatID)
	log := logger.ForChat(ctx, chatID)
	log.Info().Str(logger.FieldState, StateTimedOut.String()).Msg("session expired")
	return Reply{Text: MsgTimedOut, State: StateTimedOut}, true
}

func (m *Machine) promptFor(s Session) Reply {
	field, idx, _ := s.Builder.NextField()
	reply := Reply{
		Text:       prompt(s.Kind, field),
		State:      StateAwaitingField,
		Field:      field,
		FieldIndex: idx,
	}
	if field == domain.FieldCategory {
		reply.Options = CategoryOptions(s.Kind)
	}
	return reply
}

// commit destroys the session and hands the finalized record to the committer.
func (m *Machine) commit(ctx context.Context, chatID int64, b record.Builder) Reply {
	m.sessions.Destroy(chatID)
	log := logger.ForChat(ctx, chatID).With().Str(logger.FieldKind, b.Kind().String()).Logger()

	rec, err := b.Finalize()
	if err != nil {
		log.Error().Err(err).Msg("finalize failed")
		return Reply{Text: MsgInternalError, State: StateComplete, Err: err}
	}

	rowRef, err := m.committer.AppendRecord(ctx, rec)
	if err != nil {
		log.Error().Err(err).Bool("gateway", domain.IsGatewayError(err)).Msg("commit failed")
		return Reply{Text: CommitFailureText(err), State: StateComplete, Err: err}
	}

	log.Info().Str(logger.FieldRowRef, rowRef).Msg("record committed")
	return Reply{
		Text:   Confirmation(rec, b.Warnings()),
		State:  StateComplete,
		Record: &rec,
		RowRef: rowRef,
	}
}

// CommitFailureText is the retryable reply for a failed commit.
func CommitFailureText(err error) string {
	return fmt.Sprintf(MsgCommitFailed, gatewayReason(err))
}
