package store

import (
	"context"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
)

// DefaultTimeout bounds a single gateway call.
const DefaultTimeout = 15 * time.Second

// TimeoutRecordStore bounds every call of the wrapped RecordStore and
// classifies its errors.
type TimeoutRecordStore struct {
	next    RecordStore
	timeout time.Duration
}

// WithTimeout wraps next so each call runs under its own deadline.
func WithTimeout(next RecordStore, timeout time.Duration) *TimeoutRecordStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TimeoutRecordStore{next: next, timeout: timeout}
}

func (s *TimeoutRecordStore) AppendRecord(ctx context.Context, sheetKey string, rec domain.TransactionRecord) (RowRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ref, err := s.next.AppendRecord(ctx, sheetKey, rec)
	return ref, Classify("AppendRecord", err)
}

func (s *TimeoutRecordStore) QueryRecords(ctx context.Context, sheetKey string, kind domain.Kind, period domain.ReportPeriod) ([]domain.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	recs, err := s.next.QueryRecords(ctx, sheetKey, kind, period)
	return recs, Classify("QueryRecords", err)
}

// TimeoutAttachmentStore is the AttachmentStore counterpart of TimeoutRecordStore.
type TimeoutAttachmentStore struct {
	next    AttachmentStore
	timeout time.Duration
}

// AttachmentsWithTimeout wraps next so each upload runs under its own deadline.
func AttachmentsWithTimeout(next AttachmentStore, timeout time.Duration) *TimeoutAttachmentStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TimeoutAttachmentStore{next: next, timeout: timeout}
}

func (s *TimeoutAttachmentStore) UploadAttachment(ctx context.Context, folderKey string, data []byte, filename, mimeType string) (FileRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ref, err := s.next.UploadAttachment(ctx, folderKey, data, filename, mimeType)
	return ref, Classify("UploadAttachment", err)
}

// TimeoutDirectoryStore is the DirectoryStore counterpart of TimeoutRecordStore.
type TimeoutDirectoryStore struct {
	next    DirectoryStore
	timeout time.Duration
}

// DirectoryWithTimeout wraps next so each call runs under its own deadline.
func DirectoryWithTimeout(next DirectoryStore, timeout time.Duration) *TimeoutDirectoryStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TimeoutDirectoryStore{next: next, timeout: timeout}
}

func (s *TimeoutDirectoryStore) AppendParty(ctx context.Context, p domain.Party) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return Classify("AppendParty", s.next.AppendParty(ctx, p))
}

func (s *TimeoutDirectoryStore) ListParties(ctx context.Context, role domain.Role) ([]domain.Party, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	parties, err := s.next.ListParties(ctx, role)
	return parties, Classify("ListParties", err)
}

// AgentFinder looks up a registered agent by name or IC.
type AgentFinder interface {
	FindAgent(ctx context.Context, nameOrIC string) (domain.Party, bool, error)
}

// Ledger commits records of any kind to the sheet configured for that kind.
// When Agents is set, sales in the agent category earn the commission of
// the agent named by their bill-to or remark.
type Ledger struct {
	Records RecordStore
	Sheets  SheetKeys
	Agents  AgentFinder
}

// AppendRecord appends rec to its kind's sheet and returns the row reference.
func (l *Ledger) AppendRecord(ctx context.Context, rec domain.TransactionRecord) (string, error) {
	rec = l.withCommission(ctx, rec)
	ref, err := l.Records.AppendRecord(ctx, l.Sheets.For(rec.Kind), rec)
	if err != nil {
		return "", err
	}
	return string(ref), nil
}

// withCommission fills rec.Commission. A failed lookup commits the sale
// without commission.
func (l *Ledger) withCommission(ctx context.Context, rec domain.TransactionRecord) domain.TransactionRecord {
	if l.Agents == nil || rec.Kind != domain.KindSale || rec.Category != domain.CategoryAgent || !rec.Commission.IsZero() {
		return rec
	}
	log := logger.FromContext(ctx)
	for _, name := range []string{rec.Counterparty, rec.Note} {
		if name == "" || name == domain.NoneProvided {
			continue
		}
		agent, ok, err := l.Agents.FindAgent(ctx, name)
		if err != nil {
			log.Warn().Err(err).Msg("agent lookup failed, committing without commission")
			return rec
		}
		if ok {
			rec.Commission = domain.CommissionFor(rec.Amount, agent)
			log.Debug().Str("agent", agent.Name).Str("commission", rec.Commission.Amount.StringFixed(2)).Msg("commission applied")
			return rec
		}
	}
	return rec
}

// QueryAll returns the records of every kind within period.
func (l *Ledger) QueryAll(ctx context.Context, period domain.ReportPeriod) ([]domain.TransactionRecord, error) {
	var all []domain.TransactionRecord
	for _, kind := range domain.Kinds {
		recs, err := l.Records.QueryRecords(ctx, l.Sheets.For(kind), kind, period)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}
