package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-bot/internal/conversation"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/report"
	"github.com/dvloznov/finance-bot/internal/router"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/dvloznov/finance-bot/internal/validation"
)

// QuickEntry turns free text such as "午餐 50.5 公司餐厅" into the kind and
// positional arguments of a record command.
type QuickEntry interface {
	Extract(ctx context.Context, text string) (domain.Kind, []string, error)
}

// Directory registers and lists master data.
type Directory interface {
	Add(ctx context.Context, p domain.Party) (domain.Party, error)
	List(ctx context.Context, role domain.Role) ([]domain.Party, error)
}

// Deps are the collaborators of a Handler. Attachments, Fetcher, Quick and
// Directory may be nil.
type Deps struct {
	Machine     *conversation.Machine
	Ledger      *store.Ledger
	Attachments store.AttachmentStore
	Folders     store.FolderKeys
	Messenger   Messenger
	Fetcher     AttachmentFetcher
	Quick       QuickEntry
	Directory   Directory
}

// Handler processes events for all chats. Events of one chat must be
// handled one at a time.
type Handler struct {
	machine     *conversation.Machine
	ledger      *store.Ledger
	attachments store.AttachmentStore
	folders     store.FolderKeys
	messenger   Messenger
	fetcher     AttachmentFetcher
	quick       QuickEntry
	directory   Directory
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		machine:     d.Machine,
		ledger:      d.Ledger,
		attachments: d.Attachments,
		folders:     d.Folders,
		messenger:   d.Messenger,
		fetcher:     d.Fetcher,
		quick:       d.Quick,
		directory:   d.Directory,
	}
}

func (h *Handler) now() time.Time { return h.machine.Sessions().Now() }

// Handle processes one event and sends at most one chat message. The
// returned error is a failure to deliver that message.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	ctx = logger.WithContext(ctx, logger.ForChat(ctx, ev.ChatID))

	if ev.CallbackID != "" {
		if err := h.messenger.AnswerCallback(ctx, ev.CallbackID); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("failed to answer callback")
		}
	}

	switch {
	case ev.Expire:
		if reply, ok := h.machine.Expire(ctx, ev.ChatID); ok {
			return h.sendReply(ctx, ev.ChatID, reply)
		}
		return nil
	case len(ev.Attachments) > 0:
		return h.handleAttachment(ctx, ev)
	case ev.Command != "":
		return h.handleCommand(ctx, ev.ChatID, ev.Command, ev.Args, "")
	default:
		return h.handleText(ctx, ev)
	}
}

func (h *Handler) handleText(ctx context.Context, ev Event) error {
	if reply, ok := h.machine.Input(ctx, ev.ChatID, ev.Text); ok {
		return h.sendReply(ctx, ev.ChatID, reply)
	}
	if conversation.IsCancel(ev.Text) {
		return h.messenger.SendMessage(ctx, ev.ChatID, msgNothingToEnd)
	}

	if h.quick != nil {
		log := logger.FromContext(ctx)
		kind, args, err := h.quick.Extract(ctx, ev.Text)
		if err != nil {
			log.Debug().Err(err).Msg("quick entry failed")
			return h.messenger.SendMessage(ctx, ev.ChatID, msgIdleHint)
		}
		args = h.dropInvalidDate(args)
		log.Debug().Str(logger.FieldKind, kind.String()).Strs("args", args).Msg("quick entry extracted")
		return h.handleCommand(ctx, ev.ChatID, "/"+kind.String(), args, "")
	}
	return h.messenger.SendMessage(ctx, ev.ChatID, msgIdleHint)
}

// dropInvalidDate removes an extracted leading date that does not validate,
// so the record falls back to today instead of the command usage text.
func (h *Handler) dropInvalidDate(args []string) []string {
	if len(args) == 0 || !validation.LooksLikeDate(args[0]) {
		return args
	}
	if _, err := validation.ValidateDate(args[0], h.now()); err != nil {
		return args[1:]
	}
	return args
}

func (h *Handler) handleAttachment(ctx context.Context, ev Event) error {
	log := logger.FromContext(ctx)
	att := ev.Attachments[len(ev.Attachments)-1]

	kind := domain.KindExpense
	if ev.Command != "" {
		k, ok := router.RecordKind(ev.Command)
		if !ok {
			// The photo only belongs to record commands.
			return h.handleCommand(ctx, ev.ChatID, ev.Command, ev.Args, "")
		}
		kind = k
	} else if s, ok := h.machine.Sessions().Get(ev.ChatID); ok {
		kind = s.Kind
	}

	ref, err := h.upload(ctx, kind, att)
	if err != nil {
		log.Error().Err(err).Str("file_id", att.FileID).Msg("attachment upload failed")
		return h.messenger.SendMessage(ctx, ev.ChatID, gatewayText("upload the photo", err))
	}

	if ev.Command != "" {
		return h.handleCommand(ctx, ev.ChatID, ev.Command, ev.Args, string(ref))
	}
	if reply, ok := h.machine.Attach(ctx, ev.ChatID, string(ref)); ok {
		return h.sendReply(ctx, ev.ChatID, reply)
	}
	return h.messenger.SendMessage(ctx, ev.ChatID, photoSavedText(string(ref)))
}

func (h *Handler) upload(ctx context.Context, kind domain.Kind, att Attachment) (store.FileRef, error) {
	if h.attachments == nil || h.fetcher == nil {
		return "", &domain.GatewayError{Op: "UploadAttachment", Code: domain.ErrUnavailable, Err: fmt.Errorf("no attachment store configured")}
	}
	data, err := h.fetcher.FetchAttachment(ctx, att.FileID)
	if err != nil {
		return "", store.Classify("FetchAttachment", err)
	}
	return h.attachments.UploadAttachment(ctx, h.folders.For(kind), data, att.Filename, att.MimeType)
}

// handleCommand routes a command. photoRef, when set, is attached to the
// record the command produces.
func (h *Handler) handleCommand(ctx context.Context, chatID int64, command string, args []string, photoRef string) error {
	if len(args) == 0 && conversation.IsSkip("/"+router.NormalizeCommand(command)) {
		if reply, ok := h.machine.Input(ctx, chatID, "/skip"); ok {
			return h.sendReply(ctx, chatID, reply)
		}
	}
	action := router.Dispatch(ctx, command, args, chatID, h.now())
	log := logger.FromContext(ctx).With().Str(logger.FieldCommand, command).Logger()

	switch a := action.(type) {
	case router.ShowHelp:
		return h.messenger.SendMessage(ctx, chatID, helpText)
	case router.ShowCategories:
		return h.messenger.SendMessage(ctx, chatID, categoriesText())
	case router.Cancel:
		if reply, ok := h.machine.Cancel(ctx, chatID); ok {
			return h.sendReply(ctx, chatID, reply)
		}
		return h.messenger.SendMessage(ctx, chatID, msgNothingToEnd)
	case router.Unrecognized:
		return h.messenger.SendMessage(ctx, chatID, unrecognizedText(a.Command))
	case router.ShowSettings:
		return h.messenger.SendMenu(ctx, chatID, settingsText, settingsOptions)
	case router.ListParties:
		return h.listParties(ctx, chatID, a.Role)
	}

	// Every other command starts a new operation and ends the current entry.
	if h.machine.Active(chatID) {
		log.Info().Msg("abandoning session for new command")
	}
	h.machine.Sessions().Destroy(chatID)

	switch a := action.(type) {
	case router.ShowMenu:
		return h.messenger.SendMenu(ctx, chatID, msgWelcome, menuOptions)
	case router.BadArguments:
		return h.messenger.SendMessage(ctx, chatID, usageText(a))
	case router.StartSession:
		seed := a.Seed
		if photoRef != "" {
			seed = seed.WithPhoto(photoRef)
		}
		return h.sendReply(ctx, chatID, h.machine.Start(ctx, chatID, a.Kind, seed, a.Invalid))
	case router.InvokeDirect:
		rec := a.Record
		if photoRef != "" {
			rec.PhotoRef = photoRef
		}
		return h.commitDirect(ctx, chatID, rec, a.Warnings)
	case router.RunReport:
		return h.runReport(ctx, chatID, a.Period)
	case router.ExportReport:
		return h.exportReport(ctx, chatID, a.Period)
	case router.AddParty:
		return h.addParty(ctx, chatID, a.Party)
	}

	log.Error().Str("action", fmt.Sprintf("%T", action)).Msg("unhandled action")
	return h.messenger.SendMessage(ctx, chatID, conversation.MsgInternalError)
}

func (h *Handler) commitDirect(ctx context.Context, chatID int64, rec domain.TransactionRecord, warnings []string) error {
	log := logger.FromContext(ctx).With().Str(logger.FieldKind, rec.Kind.String()).Logger()

	rowRef, err := h.ledger.AppendRecord(ctx, rec)
	if err != nil {
		log.Error().Err(err).Bool("gateway", domain.IsGatewayError(err)).Msg("direct commit failed")
		return h.messenger.SendMessage(ctx, chatID, conversation.CommitFailureText(err))
	}
	log.Info().Str(logger.FieldRowRef, rowRef).Msg("record committed")
	return h.messenger.SendMessage(ctx, chatID, conversation.Confirmation(rec, warnings))
}

func (h *Handler) addParty(ctx context.Context, chatID int64, p domain.Party) error {
	if h.directory == nil {
		return h.messenger.SendMessage(ctx, chatID, msgNoDirectory)
	}
	added, err := h.directory.Add(ctx, p)
	switch {
	case errors.Is(err, domain.ErrDuplicateParty):
		return h.messenger.SendMessage(ctx, chatID, duplicatePartyText(p))
	case err != nil:
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("role", p.Role.String()).Msg("registering party failed")
		return h.messenger.SendMessage(ctx, chatID, gatewayText("save the entry", err))
	}
	return h.messenger.SendMessage(ctx, chatID, partyAddedText(added))
}

func (h *Handler) listParties(ctx context.Context, chatID int64, role domain.Role) error {
	if h.directory == nil {
		return h.messenger.SendMessage(ctx, chatID, msgNoDirectory)
	}
	parties, err := h.directory.List(ctx, role)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("role", role.String()).Msg("listing parties failed")
		return h.messenger.SendMessage(ctx, chatID, gatewayText("load the list", err))
	}
	return h.messenger.SendMessage(ctx, chatID, partiesText(role, parties))
}

func (h *Handler) summary(ctx context.Context, period domain.ReportPeriod) (report.Summary, []domain.TransactionRecord, error) {
	records, err := h.ledger.QueryAll(ctx, period)
	if err != nil {
		return report.Summary{}, nil, err
	}
	return report.Summarize(period, records), records, nil
}

func (h *Handler) runReport(ctx context.Context, chatID int64, period domain.ReportPeriod) error {
	s, _, err := h.summary(ctx, period)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("period", period.String()).Msg("report query failed")
		return h.messenger.SendMessage(ctx, chatID, gatewayText("load the report", err))
	}
	return h.messenger.SendMessage(ctx, chatID, report.Format(s))
}

func (h *Handler) exportReport(ctx context.Context, chatID int64, period domain.ReportPeriod) error {
	log := logger.FromContext(ctx).With().Str("period", period.String()).Logger()

	s, records, err := h.summary(ctx, period)
	if err != nil {
		log.Error().Err(err).Msg("export query failed")
		return h.messenger.SendMessage(ctx, chatID, gatewayText("load the records", err))
	}
	if s.Records == 0 {
		return h.messenger.SendMessage(ctx, chatID, report.Format(s))
	}

	data, err := report.ExportXLSX(s, records)
	if err != nil {
		log.Error().Err(err).Msg("export rendering failed")
		return h.messenger.SendMessage(ctx, chatID, conversation.MsgInternalError)
	}
	caption := fmt.Sprintf("Ledger %s: %d records, net %s", period, s.Records, s.Net.StringFixed(2))
	return h.messenger.SendDocument(ctx, chatID, report.ExportFilename(period), data, caption)
}

func (h *Handler) sendReply(ctx context.Context, chatID int64, reply conversation.Reply) error {
	log := logger.FromContext(ctx)
	log.Debug().Str(logger.FieldState, reply.State.String()).Msg("reply")
	if len(reply.Options) > 0 {
		return h.messenger.SendMenu(ctx, chatID, reply.Text, reply.Options)
	}
	return h.messenger.SendMessage(ctx, chatID, reply.Text)
}
