package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-bot/internal/conversation"
	"github.com/dvloznov/finance-bot/internal/directory"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/router"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/dvloznov/finance-bot/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	ChatID   int64
	Text     string
	Options  []conversation.Option
	Document string
	Data     []byte
}

// MockMessenger records outbound messages.
type MockMessenger struct {
	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
	Sent            []sent
	Callbacks       []string
}

func (m *MockMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	m.Sent = append(m.Sent, sent{ChatID: chatID, Text: text})
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chatID, text)
	}
	return nil
}

func (m *MockMessenger) SendMenu(ctx context.Context, chatID int64, text string, options []conversation.Option) error {
	m.Sent = append(m.Sent, sent{ChatID: chatID, Text: text, Options: options})
	return nil
}

func (m *MockMessenger) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	m.Sent = append(m.Sent, sent{ChatID: chatID, Text: caption, Document: name, Data: data})
	return nil
}

func (m *MockMessenger) AnswerCallback(ctx context.Context, callbackID string) error {
	m.Callbacks = append(m.Callbacks, callbackID)
	return nil
}

func (m *MockMessenger) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, m.Sent, "no message sent")
	return m.Sent[len(m.Sent)-1]
}

// MockFetcher serves attachment bytes.
type MockFetcher struct {
	FetchAttachmentFunc func(ctx context.Context, fileID string) ([]byte, error)
}

func (m *MockFetcher) FetchAttachment(ctx context.Context, fileID string) ([]byte, error) {
	if m.FetchAttachmentFunc != nil {
		return m.FetchAttachmentFunc(ctx, fileID)
	}
	return []byte("jpeg:" + fileID), nil
}

// MockRecordStore fails every call with Err.
type MockRecordStore struct {
	Err error
}

func (m *MockRecordStore) AppendRecord(ctx context.Context, sheetKey string, rec domain.TransactionRecord) (store.RowRef, error) {
	return "", m.Err
}

func (m *MockRecordStore) QueryRecords(ctx context.Context, sheetKey string, kind domain.Kind, period domain.ReportPeriod) ([]domain.TransactionRecord, error) {
	return nil, m.Err
}

// MockQuickEntry returns a fixed extraction.
type MockQuickEntry struct {
	ExtractFunc func(ctx context.Context, text string) (domain.Kind, []string, error)
}

func (m *MockQuickEntry) Extract(ctx context.Context, text string) (domain.Kind, []string, error) {
	return m.ExtractFunc(ctx, text)
}

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	handler   *Handler
	messenger *MockMessenger
	mem       *memory.Store
	machine   *conversation.Machine
}

func newHarness(t *testing.T, records store.RecordStore) *harness {
	t.Helper()
	mem := memory.NewStore()
	if records == nil {
		records = mem
	}
	dir := directory.NewService(mem, func() time.Time { return testNow })
	ledger := &store.Ledger{Records: records, Sheets: store.DefaultSheetKeys, Agents: dir}
	machine := conversation.NewMachine(conversation.NewManager(conversation.DefaultTTL, func() time.Time { return testNow }), ledger)
	messenger := &MockMessenger{}

	h := NewHandler(Deps{
		Machine:     machine,
		Ledger:      ledger,
		Attachments: mem,
		Folders:     store.FolderKeys{Fallback: "receipts"},
		Messenger:   messenger,
		Fetcher:     &MockFetcher{},
		Directory:   dir,
	})
	return &harness{handler: h, messenger: messenger, mem: mem, machine: machine}
}

func (h *harness) send(t *testing.T, ev Event) sent {
	t.Helper()
	before := len(h.messenger.Sent)
	require.NoError(t, h.handler.Handle(context.Background(), ev))
	require.Len(t, h.messenger.Sent, before+1, "expected exactly one reply")
	return h.messenger.last(t)
}

func command(chatID int64, text string) Event {
	cmd, args, _ := ParseCommand(text)
	return Event{ChatID: chatID, Command: cmd, Args: args}
}

func TestHandleDirectExpense(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, command(1, "/expense 食品 50.5 午餐 公司餐厅"))

	assert.True(t, strings.HasPrefix(reply.Text, "Saved 支出 record"), reply.Text)
	records := h.mem.Records(store.DefaultSheetKeys.For(domain.KindExpense))
	require.Len(t, records, 1)
	assert.Equal(t, domain.CategoryFood, records[0].Category)
	assert.True(t, records[0].Amount.Equal(decimal.RequireFromString("50.50")))
	assert.Equal(t, "公司餐厅", records[0].Counterparty)
	assert.Equal(t, 0, h.machine.Sessions().Len())
}

func TestHandleSessionFlow(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, command(7, "/income"))
	assert.NotEmpty(t, reply.Options, "category prompt should carry a menu")

	h.send(t, Event{ChatID: 7, Text: "薪资"})
	h.send(t, Event{ChatID: 7, Text: "8000"})
	reply = h.send(t, Event{ChatID: 7, Text: "June"})

	assert.True(t, strings.HasPrefix(reply.Text, "Saved 收入 record"), reply.Text)
	records := h.mem.Records(store.DefaultSheetKeys.For(domain.KindIncome))
	require.Len(t, records, 1)
	assert.Equal(t, domain.NoneProvided, records[0].Counterparty)
}

func TestHandleSkipCommandInSession(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, command(7, "/income"))
	h.send(t, Event{ChatID: 7, Text: "薪资"})
	h.send(t, Event{ChatID: 7, Text: "8000"})
	reply := h.send(t, command(7, "/skip"))

	assert.True(t, strings.HasPrefix(reply.Text, "Saved 收入 record"), reply.Text)
	records := h.mem.Records(store.DefaultSheetKeys.For(domain.KindIncome))
	require.Len(t, records, 1)
	assert.Equal(t, domain.NoneProvided, records[0].Note)
	assert.Equal(t, 0, h.machine.Sessions().Len())

	reply = h.send(t, command(7, "/skip"))
	assert.True(t, strings.HasPrefix(reply.Text, "Unknown command"), reply.Text)
}

func TestHandleReportEmptyPeriod(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, command(1, "/report 2023 12"))
	assert.Equal(t, "No data for 2023-12.", reply.Text)
}

func TestHandleReportAfterCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, command(1, "/expense 食品 20 lunch -"))
	h.send(t, command(1, "/sale 公司 100 ACME inv-1"))

	reply := h.send(t, command(1, "/report"))
	assert.Contains(t, reply.Text, "Report for 2024-06")
	assert.Contains(t, reply.Text, "Net: 80.00")
}

func TestHandleExport(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, command(1, "/expense 食品 20 lunch -"))

	reply := h.send(t, command(1, "/export 2024"))
	assert.Equal(t, "ledger_2024.xlsx", reply.Document)
	assert.NotEmpty(t, reply.Data)

	reply = h.send(t, command(1, "/export 2023"))
	assert.Equal(t, "No data for 2023.", reply.Text)
	assert.Empty(t, reply.Document)
}

func TestHandleUnrecognizedCommand(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, command(1, "/transfer 10"))
	assert.True(t, strings.HasPrefix(reply.Text, "Unknown command /transfer."), reply.Text)
	assert.Contains(t, reply.Text, "/categories")
}

func TestHandleBadArguments(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, command(1, "/report 1999"))
	assert.Contains(t, reply.Text, "Usage:")
}

func TestHandleCommitFailure(t *testing.T) {
	h := newHarness(t, &MockRecordStore{Err: &domain.GatewayError{Op: "AppendRecord", Code: domain.ErrPermissionDenied}})

	reply := h.send(t, command(1, "/expense 食品 50 lunch -"))
	assert.Contains(t, reply.Text, "storage access denied")
	assert.Equal(t, 0, h.machine.Sessions().Len())

	reply = h.send(t, command(1, "/report"))
	assert.Contains(t, reply.Text, "Could not load the report")
}

func TestHandleCommandsDuringSession(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, command(3, "/expense"))

	h.send(t, command(3, "/help"))
	assert.True(t, h.machine.Active(3), "help keeps the session")

	h.send(t, command(3, "/categories"))
	assert.True(t, h.machine.Active(3), "categories keeps the session")

	h.send(t, command(3, "/report"))
	assert.False(t, h.machine.Active(3), "a new operation ends the session")
}

func TestHandleCancel(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, command(1, "/cancel"))
	assert.Equal(t, msgNothingToEnd, reply.Text)

	h.send(t, command(1, "/sale"))
	reply = h.send(t, command(1, "/cancel"))
	assert.Equal(t, conversation.MsgCancelled, reply.Text)

	reply = h.send(t, Event{ChatID: 1, Text: "取消"})
	assert.Equal(t, msgNothingToEnd, reply.Text)
}

func TestHandleQuickEntryInvalidDate(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantDate time.Time
	}{
		{name: "impossible month", args: []string{"2024-13-01", "food", "12", "lunch", "cafe"}, wantDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)},
		{name: "valid date kept", args: []string{"2024-06-01", "food", "12", "lunch", "cafe"}, wantDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.handler.quick = &MockQuickEntry{ExtractFunc: func(ctx context.Context, text string) (domain.Kind, []string, error) {
				return domain.KindExpense, tt.args, nil
			}}

			reply := h.send(t, Event{ChatID: 1, Text: "lunch 12"})
			assert.True(t, strings.HasPrefix(reply.Text, "Saved 支出 record"), reply.Text)
			records := h.mem.Records(store.DefaultSheetKeys.For(domain.KindExpense))
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantDate.Format("2006-01-02"), records[0].Date.Format("2006-01-02"))
		})
	}
}

func TestHandleIdleText(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, Event{ChatID: 1, Text: "hello"})
	assert.Equal(t, msgIdleHint, reply.Text)
}

func TestHandleQuickEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.handler.quick = &MockQuickEntry{ExtractFunc: func(ctx context.Context, text string) (domain.Kind, []string, error) {
		if text == "noise" {
			return 0, nil, errors.New("no record found")
		}
		return domain.KindExpense, []string{"交通", "12", "taxi", "-"}, nil
	}}

	reply := h.send(t, Event{ChatID: 1, Text: "taxi 12"})
	assert.True(t, strings.HasPrefix(reply.Text, "Saved 支出 record"), reply.Text)

	reply = h.send(t, Event{ChatID: 1, Text: "noise"})
	assert.Equal(t, msgIdleHint, reply.Text)
}

func TestHandlePhotoInSession(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, command(5, "/expense 食品"))

	reply := h.send(t, Event{ChatID: 5, Attachments: []Attachment{{FileID: "f1", Filename: "photo_f1.jpg", MimeType: "image/jpeg"}}})
	assert.True(t, strings.HasPrefix(reply.Text, conversation.MsgPhotoAttached), reply.Text)

	h.send(t, Event{ChatID: 5, Text: "30"})
	h.send(t, Event{ChatID: 5, Text: "-"})
	reply = h.send(t, Event{ChatID: 5, Text: "-"})
	assert.Contains(t, reply.Text, "Receipt: memory://receipts/")

	records := h.mem.Records(store.DefaultSheetKeys.For(domain.KindExpense))
	require.Len(t, records, 1)
	data, ok := h.mem.Attachment(store.FileRef(records[0].PhotoRef))
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg:f1"), data)
}

func TestHandlePhotoIdle(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, Event{ChatID: 5, Attachments: []Attachment{{FileID: "f2", Filename: "r.jpg", MimeType: "image/jpeg"}}})
	assert.True(t, strings.HasPrefix(reply.Text, "Photo saved: memory://receipts/"), reply.Text)
}

func TestHandlePhotoWithCaptionCommand(t *testing.T) {
	h := newHarness(t, nil)

	ev := command(5, "/expense 食品 9.9 coffee -")
	ev.Attachments = []Attachment{{FileID: "f3", Filename: "r.jpg", MimeType: "image/jpeg"}}
	reply := h.send(t, ev)
	assert.Contains(t, reply.Text, "Receipt: memory://receipts/")
}

func TestHandlePhotoUploadFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.handler.fetcher = &MockFetcher{FetchAttachmentFunc: func(ctx context.Context, fileID string) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}}
	h.send(t, command(5, "/expense"))

	reply := h.send(t, Event{ChatID: 5, Attachments: []Attachment{{FileID: "f4"}}})
	assert.Contains(t, reply.Text, "storage timed out")
	assert.True(t, h.machine.Active(5), "upload failure keeps the session")
}

func TestHandleMenuAndCallback(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, command(1, "/start"))
	assert.Equal(t, msgWelcome, reply.Text)
	assert.Len(t, reply.Options, len(menuOptions))

	ev := command(1, "/expense")
	ev.CallbackID = "cb-1"
	h.send(t, ev)
	assert.Equal(t, []string{"cb-1"}, h.messenger.Callbacks)
}

func TestHandleExpireEvent(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.handler.Handle(context.Background(), Event{ChatID: 9, Expire: true}))
	assert.Empty(t, h.messenger.Sent, "no session means no reply")
}

func TestHandleSendError(t *testing.T) {
	h := newHarness(t, nil)
	h.messenger.SendMessageFunc = func(ctx context.Context, chatID int64, text string) error {
		return errors.New("chat blocked")
	}

	err := h.handler.Handle(context.Background(), Event{ChatID: 1, Text: "hi"})
	assert.EqualError(t, err, "chat blocked")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCmd  string
		wantArgs []string
		wantOK   bool
	}{
		{name: "with args", text: "/expense 食品 50", wantCmd: "/expense", wantArgs: []string{"食品", "50"}, wantOK: true},
		{name: "bare", text: " /help ", wantCmd: "/help", wantArgs: []string{}, wantOK: true},
		{name: "plain text", text: "50.5", wantOK: false},
		{name: "lone slash", text: "/", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCmd, cmd)
			if tt.wantOK {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestHandleSettings(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, command(2, "/expense"))

	reply := h.send(t, command(2, "/settings"))
	assert.Contains(t, reply.Text, router.UsageAddAgent)
	assert.NotEmpty(t, reply.Options)
	assert.True(t, h.machine.Active(2), "settings keeps the session")

	reply = h.send(t, command(2, "/agents"))
	assert.Equal(t, "No Agent registered yet.", reply.Text)
	assert.True(t, h.machine.Active(2), "listing keeps the session")
}

func TestHandleAddParty(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "person", text: "/addpic Tan Mei", want: "Registered 负责人: Tan Mei"},
		{name: "agent", text: "/addagent Ali A123 5%", want: "Registered Agent: Ali (IC A123, commission 5%)"},
		{name: "supplier", text: "/addsupplier 2 oven", want: "Registered Supplier: 设备: oven"},
		{name: "missing IC", text: "/addagent Ali", want: "Usage: " + router.UsageAddAgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			reply := h.send(t, command(1, tt.text))
			assert.Contains(t, reply.Text, tt.want)
		})
	}
}

func TestHandleAddPartyDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, command(1, "/addagent Ali A123"))

	reply := h.send(t, command(1, "/addagent Abu a123"))
	assert.Equal(t, "Agent Abu or IC a123 is already registered.", reply.Text)

	reply = h.send(t, command(1, "/agents"))
	assert.Equal(t, "Agent (1):\n1. Ali (IC A123, commission 0%)", reply.Text)
}

func TestHandleAgentSaleEarnsCommission(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, command(1, "/addagent Ali A123 5%"))

	reply := h.send(t, command(1, "/sale 代理 1200 Ali 六月"))
	assert.True(t, strings.HasPrefix(reply.Text, "Saved 销售 record"), reply.Text)

	records := h.mem.Records(store.DefaultSheetKeys.For(domain.KindSale))
	require.Len(t, records, 1)
	assert.Equal(t, "Ali", records[0].Commission.AgentName)
	assert.Equal(t, "60.00", records[0].Commission.Amount.StringFixed(2))

	reply = h.send(t, command(1, "/report 2024 6"))
	assert.Contains(t, reply.Text, "Commission: 60.00")
	assert.Contains(t, reply.Text, "Gross profit: 1140.00")
}

func TestHandleDirectoryUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.handler.directory = nil

	reply := h.send(t, command(1, "/agents"))
	assert.Equal(t, msgNoDirectory, reply.Text)
	reply = h.send(t, command(1, "/addpic Mei"))
	assert.Equal(t, msgNoDirectory, reply.Text)
}
