// Package memory keeps ledger records, master data and attachments in process memory.
// Data is lost on restart; it backs tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/google/uuid"
)

// Store is an in-memory RecordStore, DirectoryStore and AttachmentStore,
// safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	sheets      map[string][]domain.TransactionRecord
	parties     map[domain.Role][]domain.Party
	attachments map[string][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sheets:      make(map[string][]domain.TransactionRecord),
		parties:     make(map[domain.Role][]domain.Party),
		attachments: make(map[string][]byte),
	}
}

// AppendRecord implements store.RecordStore.
func (s *Store) AppendRecord(ctx context.Context, sheetKey string, rec domain.TransactionRecord) (store.RowRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sheetKey == "" {
		return "", fmt.Errorf("sheet key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sheets[sheetKey] = append(s.sheets[sheetKey], rec)
	row := len(s.sheets[sheetKey]) + 1 // row 1 holds headers
	return store.RowRef(fmt.Sprintf("'%s'!A%d:L%d", sheetKey, row, row)), nil
}

// QueryRecords implements store.RecordStore.
func (s *Store) QueryRecords(ctx context.Context, sheetKey string, kind domain.Kind, period domain.ReportPeriod) ([]domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TransactionRecord
	for _, rec := range s.sheets[sheetKey] {
		if rec.Kind == kind && period.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AppendParty implements store.DirectoryStore.
func (s *Store) AppendParty(ctx context.Context, p domain.Party) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[p.Role] = append(s.parties[p.Role], p)
	return nil
}

// ListParties implements store.DirectoryStore. Entries come back in the
// order they were added.
func (s *Store) ListParties(ctx context.Context, role domain.Role) ([]domain.Party, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Party, len(s.parties[role]))
	copy(out, s.parties[role])
	return out, nil
}

// UploadAttachment implements store.AttachmentStore.
func (s *Store) UploadAttachment(ctx context.Context, folderKey string, data []byte, filename, mimeType string) (store.FileRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := fmt.Sprintf("memory://%s/%s-%s", folderKey, uuid.New().String(), filename)
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[ref] = dataCopy
	return store.FileRef(ref), nil
}

// Records returns a copy of everything appended to sheetKey.
func (s *Store) Records(sheetKey string) []domain.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TransactionRecord, len(s.sheets[sheetKey]))
	copy(out, s.sheets[sheetKey])
	return out
}

// Attachment returns the bytes uploaded under ref.
func (s *Store) Attachment(ref store.FileRef) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.attachments[string(ref)]
	return data, ok
}

var (
	_ store.RecordStore     = (*Store)(nil)
	_ store.DirectoryStore  = (*Store)(nil)
	_ store.AttachmentStore = (*Store)(nil)
)
