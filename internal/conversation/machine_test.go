package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/record"
	"github.com/dvloznov/finance-bot/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockCommitter records every committed record.
type MockCommitter struct {
	AppendRecordFunc func(ctx context.Context, rec domain.TransactionRecord) (string, error)
	Records          []domain.TransactionRecord
}

func (m *MockCommitter) AppendRecord(ctx context.Context, rec domain.TransactionRecord) (string, error) {
	m.Records = append(m.Records, rec)
	if m.AppendRecordFunc != nil {
		return m.AppendRecordFunc(ctx, rec)
	}
	return fmt.Sprintf("row-%d", len(m.Records)), nil
}

func newTestMachine(ttl time.Duration) (*Machine, *fakeClock, *MockCommitter) {
	clock := newFakeClock()
	committer := &MockCommitter{}
	return NewMachine(NewManager(ttl, clock.Now), committer), clock, committer
}

func TestMachineCollectsEveryKind(t *testing.T) {
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		kind   domain.Kind
		inputs []string
		want   domain.TransactionRecord
	}{
		{
			kind:   domain.KindExpense,
			inputs: []string{"食品", "50.5", "午餐", "公司餐厅"},
			want: domain.TransactionRecord{Kind: domain.KindExpense, Category: domain.CategoryFood,
				Amount: decimal.RequireFromString("50.50"), Date: today, Note: "午餐", Counterparty: "公司餐厅"},
		},
		{
			kind:   domain.KindIncome,
			inputs: []string{"薪资", "8000", "June salary"},
			want: domain.TransactionRecord{Kind: domain.KindIncome, Category: domain.CategorySalary,
				Amount: decimal.RequireFromString("8000"), Date: today, Note: "June salary", Counterparty: domain.NoneProvided},
		},
		{
			kind:   domain.KindSale,
			inputs: []string{"代理", "1,200.00", "ACME Ltd", "INV-7"},
			want: domain.TransactionRecord{Kind: domain.KindSale, Category: domain.CategoryAgent,
				Amount: decimal.RequireFromString("1200"), Date: today, Note: "INV-7", Counterparty: "ACME Ltd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			m, _, committer := newTestMachine(0)
			ctx := context.Background()

			reply := m.Start(ctx, 1, tt.kind, record.Start(tt.kind), nil)
			require.Equal(t, StateAwaitingField, reply.State)
			require.Equal(t, 0, reply.FieldIndex)
			assert.Equal(t, domain.FieldCategory, reply.Field)
			assert.Len(t, reply.Options, len(domain.CategorySet(tt.kind)))

			for i, in := range tt.inputs {
				reply, ok := m.Input(ctx, 1, in)
				require.True(t, ok)
				if i < len(tt.inputs)-1 {
					require.Equal(t, StateAwaitingField, reply.State, "after input %q: %s", in, reply.Text)
					assert.Equal(t, i+1, reply.FieldIndex)
					assert.Equal(t, domain.RequiredFields(tt.kind)[i+1], reply.Field)
					continue
				}
				require.Equal(t, StateComplete, reply.State)
				require.NotNil(t, reply.Record)
				assert.Equal(t, "row-1", reply.RowRef)
				assert.Contains(t, reply.Text, "Saved")
			}

			require.Len(t, committer.Records, 1)
			assert.True(t, committer.Records[0].Equal(tt.want), "got %+v", committer.Records[0])
			assert.False(t, m.Active(1))
			assert.Equal(t, 0, m.Sessions().Len())
		})
	}
}

func TestMachineInvalidAmountStaysOnField(t *testing.T) {
	for _, raw := range []string{"-5", "abc", "1.234", "", "12,34"} {
		t.Run(raw, func(t *testing.T) {
			m, _, committer := newTestMachine(0)
			ctx := context.Background()

			m.Start(ctx, 7, domain.KindExpense, record.Start(domain.KindExpense), nil)
			reply, _ := m.Input(ctx, 7, "食品")
			require.Equal(t, 1, reply.FieldIndex)

			reply, ok := m.Input(ctx, 7, raw)
			require.True(t, ok)
			assert.Equal(t, StateAwaitingField, reply.State)
			assert.Equal(t, 1, reply.FieldIndex)
			assert.Equal(t, domain.FieldAmount, reply.Field)
			assert.Contains(t, reply.Text, "Invalid amount")

			s, ok := m.Sessions().Get(7)
			require.True(t, ok)
			assert.Equal(t, 1, s.FieldIndex)
			assert.False(t, s.Builder.Has(domain.FieldAmount))
			assert.Empty(t, committer.Records)
		})
	}
}

func TestMachineInvalidCategoryRepromptsWithMenu(t *testing.T) {
	m, _, _ := newTestMachine(0)
	ctx := context.Background()

	m.Start(ctx, 3, domain.KindIncome, record.Start(domain.KindIncome), nil)
	reply, ok := m.Input(ctx, 3, "食品")

	require.True(t, ok)
	assert.Equal(t, StateAwaitingField, reply.State)
	assert.Equal(t, 0, reply.FieldIndex)
	assert.Contains(t, reply.Text, "Unknown category")
	assert.Equal(t, CategoryOptions(domain.KindIncome), reply.Options)
}

func TestMachineCancel(t *testing.T) {
	for _, token := range []string{"/cancel", "Cancel", " 取消 "} {
		t.Run(token, func(t *testing.T) {
			m, _, committer := newTestMachine(0)
			ctx := context.Background()

			m.Start(ctx, 9, domain.KindExpense, record.Start(domain.KindExpense), nil)
			m.Input(ctx, 9, "交通")

			reply, ok := m.Input(ctx, 9, token)
			require.True(t, ok)
			assert.Equal(t, StateCancelled, reply.State)
			assert.Equal(t, MsgCancelled, reply.Text)
			assert.Empty(t, committer.Records)
			assert.False(t, m.Active(9))
		})
	}
}

func TestMachineSkipFreeText(t *testing.T) {
	m, _, committer := newTestMachine(0)
	ctx := context.Background()

	m.Start(ctx, 5, domain.KindExpense, record.Start(domain.KindExpense), nil)
	for _, in := range []string{"其他", "12", "-", "/skip"} {
		m.Input(ctx, 5, in)
	}

	require.Len(t, committer.Records, 1)
	assert.Equal(t, domain.NoneProvided, committer.Records[0].Note)
	assert.Equal(t, domain.NoneProvided, committer.Records[0].Counterparty)
}

func TestMachineSkipTokenIsNotAnAmount(t *testing.T) {
	m, _, _ := newTestMachine(0)
	ctx := context.Background()

	m.Start(ctx, 5, domain.KindExpense, record.Start(domain.KindExpense), nil)
	m.Input(ctx, 5, "其他")
	reply, _ := m.Input(ctx, 5, "-")

	assert.Equal(t, domain.FieldAmount, reply.Field)
	assert.Contains(t, reply.Text, "Invalid amount")
}

func TestMachineZeroAmountWarns(t *testing.T) {
	m, _, _ := newTestMachine(0)
	ctx := context.Background()

	m.Start(ctx, 5, domain.KindExpense, record.Start(domain.KindExpense), nil)
	m.Input(ctx, 5, "其他")
	reply, _ := m.Input(ctx, 5, "0")

	assert.Equal(t, domain.FieldNote, reply.Field)
	assert.Contains(t, reply.Text, validation.WarnZeroAmount)
}

func TestMachineTimeoutStartsFresh(t *testing.T) {
	m, clock, committer := newTestMachine(10 * time.Minute)
	ctx := context.Background()

	m.Start(ctx, 11, domain.KindExpense, record.Start(domain.KindExpense), nil)
	m.Input(ctx, 11, "食品")
	m.Input(ctx, 11, "20")

	clock.Advance(10 * time.Minute)
	assert.False(t, m.Active(11))

	reply, ok := m.Input(ctx, 11, "lunch")
	require.True(t, ok)
	assert.Equal(t, StateTimedOut, reply.State)
	assert.Equal(t, MsgTimedOut, reply.Text)
	assert.Equal(t, 0, m.Sessions().Len())
	assert.Empty(t, committer.Records)

	_, ok = m.Input(ctx, 11, "lunch")
	assert.False(t, ok, "input after timeout must not resume a session")

	reply = m.Start(ctx, 11, domain.KindExpense, record.Start(domain.KindExpense), nil)
	assert.Equal(t, StateAwaitingField, reply.State)
	assert.Equal(t, 0, reply.FieldIndex)
	s, _ := m.Sessions().Get(11)
	assert.False(t, s.Builder.Has(domain.FieldCategory))
}

func TestMachineInputRefreshesExpiry(t *testing.T) {
	m, clock, _ := newTestMachine(10 * time.Minute)
	ctx := context.Background()

	m.Start(ctx, 12, domain.KindExpense, record.Start(domain.KindExpense), nil)
	clock.Advance(9 * time.Minute)
	m.Input(ctx, 12, "食品")
	clock.Advance(9 * time.Minute)

	assert.True(t, m.Active(12))
	reply, _ := m.Input(ctx, 12, "30")
	assert.Equal(t, StateAwaitingField, reply.State)
	assert.Equal(t, 2, reply.FieldIndex)
}

func TestMachineExpire(t *testing.T) {
	m, clock, _ := newTestMachine(time.Minute)
	ctx := context.Background()

	_, ok := m.Expire(ctx, 20)
	assert.False(t, ok, "no session")

	m.Start(ctx, 20, domain.KindIncome, record.Start(domain.KindIncome), nil)
	_, ok = m.Expire(ctx, 20)
	assert.False(t, ok, "session still live")

	clock.Advance(2 * time.Minute)
	reply, ok := m.Expire(ctx, 20)
	require.True(t, ok)
	assert.Equal(t, StateTimedOut, reply.State)
	assert.Equal(t, 0, m.Sessions().Len())

	_, ok = m.Expire(ctx, 20)
	assert.False(t, ok, "expiry notice is sent once")
}

func TestMachineAttachKeepsField(t *testing.T) {
	m, _, committer := newTestMachine(0)
	ctx := context.Background()

	m.Start(ctx, 4, domain.KindExpense, record.Start(domain.KindExpense), nil)
	m.Input(ctx, 4, "医疗")

	reply, ok := m.Attach(ctx, 4, "https://drive.example/file/1")
	require.True(t, ok)
	assert.Equal(t, StateAwaitingField, reply.State)
	assert.Equal(t, domain.FieldAmount, reply.Field)
	assert.Contains(t, reply.Text, MsgPhotoAttached)

	for _, in := range []string{"88", "checkup", "clinic"} {
		m.Input(ctx, 4, in)
	}
	require.Len(t, committer.Records, 1)
	assert.Equal(t, "https://drive.example/file/1", committer.Records[0].PhotoRef)

	_, ok = m.Attach(ctx, 4, "late")
	assert.False(t, ok)
}

func TestMachineCommitFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "unavailable",
			err:     &domain.GatewayError{Op: "AppendRecord", Code: domain.ErrUnavailable},
			wantMsg: "storage unavailable",
		},
		{
			name:    "permission",
			err:     &domain.GatewayError{Op: "AppendRecord", Code: domain.ErrPermissionDenied},
			wantMsg: "storage access denied",
		},
		{
			name:    "timeout",
			err:     &domain.GatewayError{Op: "AppendRecord", Code: domain.ErrTimeout},
			wantMsg: "storage timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, committer := newTestMachine(0)
			committer.AppendRecordFunc = func(ctx context.Context, rec domain.TransactionRecord) (string, error) {
				return "", tt.err
			}
			ctx := context.Background()

			m.Start(ctx, 8, domain.KindIncome, record.Start(domain.KindIncome), nil)
			m.Input(ctx, 8, "奖金")
			m.Input(ctx, 8, "100")
			reply, ok := m.Input(ctx, 8, "Q2")

			require.True(t, ok)
			assert.Equal(t, StateComplete, reply.State)
			assert.Nil(t, reply.Record)
			assert.Contains(t, reply.Text, tt.wantMsg)
			assert.Contains(t, reply.Text, "try again")
			assert.True(t, errors.Is(reply.Err, tt.err))
			assert.Len(t, committer.Records, 1, "exactly one commit attempt")
			assert.False(t, m.Active(8), "session is destroyed after a failed commit")
		})
	}
}

func TestMachineStartWithCompleteSeedCommits(t *testing.T) {
	m, _, committer := newTestMachine(0)
	ctx := context.Background()
	kind := domain.KindIncome
	now := m.Sessions().Now()

	seed := record.Start(kind)
	for field, raw := range map[domain.Field]string{
		domain.FieldCategory: "投资",
		domain.FieldAmount:   "42",
		domain.FieldNote:     "dividend",
	} {
		v, err := validation.Validate(field, raw, kind, now)
		require.NoError(t, err)
		seed = seed.Supply(field, v)
	}

	reply := m.Start(ctx, 2, kind, seed, nil)
	assert.Equal(t, StateComplete, reply.State)
	require.Len(t, committer.Records, 1)
	assert.Equal(t, domain.CategoryInvestment, committer.Records[0].Category)
	assert.Equal(t, 0, m.Sessions().Len())
}

func TestMachineStartWithInvalidSeed(t *testing.T) {
	m, _, _ := newTestMachine(0)
	ctx := context.Background()
	kind := domain.KindExpense

	cat, err := validation.Validate(domain.FieldCategory, "食品", kind, m.Sessions().Now())
	require.NoError(t, err)
	_, invalid := validation.Validate(domain.FieldAmount, "fifty", kind, m.Sessions().Now())
	require.Error(t, invalid)

	reply := m.Start(ctx, 6, kind, record.Start(kind).Supply(domain.FieldCategory, cat), invalid)

	assert.Equal(t, StateAwaitingField, reply.State)
	assert.Equal(t, 1, reply.FieldIndex)
	assert.Contains(t, reply.Text, "Invalid amount")
	assert.Contains(t, reply.Text, "Enter the amount")
}

func TestMachineStartReplacesSession(t *testing.T) {
	m, _, _ := newTestMachine(0)
	ctx := context.Background()

	m.Start(ctx, 1, domain.KindExpense, record.Start(domain.KindExpense), nil)
	m.Input(ctx, 1, "食品")
	m.Start(ctx, 1, domain.KindSale, record.Start(domain.KindSale), nil)

	assert.Equal(t, 1, m.Sessions().Len())
	s, ok := m.Sessions().Get(1)
	require.True(t, ok)
	assert.Equal(t, domain.KindSale, s.Kind)
	assert.Equal(t, 0, s.FieldIndex)
}

func TestMachineInputWithoutSession(t *testing.T) {
	m, _, _ := newTestMachine(0)
	_, ok := m.Input(context.Background(), 99, "hello")
	assert.False(t, ok)

	_, ok = m.Cancel(context.Background(), 99)
	assert.False(t, ok)
}

func TestSweepExpired(t *testing.T) {
	m, clock, _ := newTestMachine(time.Minute)
	ctx := context.Background()

	m.Start(ctx, 30, domain.KindExpense, record.Start(domain.KindExpense), nil)
	m.Start(ctx, 10, domain.KindIncome, record.Start(domain.KindIncome), nil)
	clock.Advance(30 * time.Second)
	m.Start(ctx, 20, domain.KindSale, record.Start(domain.KindSale), nil)
	clock.Advance(40 * time.Second)

	var got []int64
	n := SweepExpired(ctx, m.Sessions(), func(ctx context.Context, chatID int64) error {
		got = append(got, chatID)
		return nil
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{10, 30}, got)
	assert.Equal(t, 3, m.Sessions().Len(), "sweeping only queues expiry events")

	n = SweepExpired(ctx, m.Sessions(), func(ctx context.Context, chatID int64) error {
		return errors.New("queue is closed")
	})
	assert.Equal(t, 0, n)
}

func TestRunExpirySweeperStopsOnCancel(t *testing.T) {
	m, _, _ := newTestMachine(0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunExpirySweeper(ctx, m.Sessions(), time.Millisecond, func(ctx context.Context, chatID int64) error { return nil })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMachineLogsLifecycleWithChatID(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	m, _, _ := newTestMachine(10 * time.Minute)

	m.Start(ctx, 7, domain.KindExpense, record.Start(domain.KindExpense), nil)
	m.Attach(ctx, 7, "memory://receipts/a.jpg")
	m.Cancel(ctx, 7)

	out := buf.String()
	for _, want := range []string{"session started", "photo attached to session", "session cancelled", `"chat_id":7`} {
		assert.Contains(t, out, want)
	}
}
