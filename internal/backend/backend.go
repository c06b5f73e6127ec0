// Package backend opens the record, master-data and attachment stores
// selected by the configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-bot/internal/config"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/gcsuploader"
	"github.com/dvloznov/finance-bot/internal/infra/bigquery"
	"github.com/dvloznov/finance-bot/internal/infra/drive"
	"github.com/dvloznov/finance-bot/internal/infra/sheets"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/dvloznov/finance-bot/internal/store/memory"
	"google.golang.org/api/option"
)

// Backends are the opened stores. Records, Directory and Attachments are
// wrapped with the configured gateway timeout. Master data lives next to
// the records.
type Backends struct {
	Records     store.RecordStore
	Directory   store.DirectoryStore
	Attachments store.AttachmentStore
	Folders     store.FolderKeys

	// Set only for the matching backend.
	Sheets   *sheets.Client
	BigQuery *bigquery.RecordRepository
	GCS      *gcsuploader.Uploader
	Memory   *memory.Store

	closers []func() error
}

// Open connects to the configured backends.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}
	log := logger.FromContext(ctx)

	records, directory, err := b.openRecords(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	attachments, err := b.openAttachments(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Records = store.WithTimeout(records, cfg.GatewayTimeout)
	b.Directory = store.DirectoryWithTimeout(directory, cfg.GatewayTimeout)
	b.Attachments = store.AttachmentsWithTimeout(attachments, cfg.GatewayTimeout)
	log.Info().
		Str("records", cfg.StoreBackend).
		Str("attachments", cfg.AttachmentBackend).
		Msg("storage backends opened")
	return b, nil
}

func (b *Backends) memory() *memory.Store {
	if b.Memory == nil {
		b.Memory = memory.NewStore()
	}
	return b.Memory
}

// recordBackend is what every record backend also offers.
type recordBackend interface {
	store.RecordStore
	store.DirectoryStore
}

func (b *Backends) openRecords(ctx context.Context, cfg *config.Config) (store.RecordStore, store.DirectoryStore, error) {
	var rb recordBackend
	switch cfg.StoreBackend {
	case config.BackendSheets:
		c, err := sheets.NewClient(ctx, cfg.SheetID, cfg.CredentialsJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("Open: sheets: %w", err)
		}
		b.Sheets = c.WithLocation(cfg.Location)
		rb = b.Sheets
	case config.BackendBigQuery:
		var opts []option.ClientOption
		if len(cfg.CredentialsJSON) > 0 {
			opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
		}
		repo, err := bigquery.NewRecordRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("Open: bigquery: %w", err)
		}
		b.BigQuery = repo.WithLocation(cfg.Location)
		b.closers = append(b.closers, repo.Close)
		rb = b.BigQuery
	case config.BackendMemory:
		rb = b.memory()
	default:
		return nil, nil, fmt.Errorf("Open: unknown record backend %q", cfg.StoreBackend)
	}
	return rb, rb, nil
}

func (b *Backends) openAttachments(ctx context.Context, cfg *config.Config) (store.AttachmentStore, error) {
	switch cfg.AttachmentBackend {
	case config.BackendDrive:
		u, err := drive.NewUploader(ctx, cfg.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("Open: drive: %w", err)
		}
		u.Public = cfg.DrivePublic
		b.Folders = store.FolderKeys{
			ByKind:   map[domain.Kind]string{},
			Fallback: cfg.DriveFolderID,
		}
		for _, kind := range domain.Kinds {
			b.Folders.ByKind[kind] = cfg.FolderFor(kind)
		}
		return u, nil
	case config.BackendGCS:
		u, err := gcsuploader.NewUploader(ctx, cfg.GCSBucket, cfg.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("Open: gcs: %w", err)
		}
		b.GCS = u
		b.closers = append(b.closers, u.Close)
		b.Folders = kindFolders()
		return u, nil
	case config.BackendMemory:
		b.Folders = kindFolders()
		return b.memory(), nil
	}
	return nil, fmt.Errorf("Open: unknown attachment backend %q", cfg.AttachmentBackend)
}

// kindFolders names folders after the record kinds.
func kindFolders() store.FolderKeys {
	keys := store.FolderKeys{ByKind: map[domain.Kind]string{}, Fallback: "misc"}
	for _, kind := range domain.Kinds {
		keys.ByKind[kind] = kind.String()
	}
	return keys
}

// Prepare creates missing sheet tabs with header rows, or the BigQuery
// tables. It does nothing for the memory backend.
func (b *Backends) Prepare(ctx context.Context, sheetKeys store.SheetKeys) error {
	if b.BigQuery != nil {
		if err := b.BigQuery.EnsureTable(ctx); err != nil {
			return fmt.Errorf("Prepare: %w", err)
		}
	}
	if b.Sheets == nil {
		return nil
	}
	tabs := make([]string, 0, len(domain.Kinds))
	for _, kind := range domain.Kinds {
		tabs = append(tabs, sheetKeys.For(kind))
	}
	if err := b.Sheets.EnsureHeaders(ctx, tabs); err != nil {
		return fmt.Errorf("Prepare: %w", err)
	}
	if err := b.Sheets.EnsureDirectoryHeaders(ctx); err != nil {
		return fmt.Errorf("Prepare: %w", err)
	}
	return nil
}

// Close releases every opened client.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
