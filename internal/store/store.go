// Package store defines the persistence gateway used by the bot: a record
// store for finished ledger rows and an attachment store for photos.
package store

import (
	"context"

	"github.com/dvloznov/finance-bot/internal/domain"
)

// RowRef identifies an appended row, e.g. "'Expense Records'!A12:H12".
type RowRef string

// FileRef is a link or URI to an uploaded attachment.
type FileRef string

// RecordStore appends and reads ledger records.
type RecordStore interface {
	AppendRecord(ctx context.Context, sheetKey string, rec domain.TransactionRecord) (RowRef, error)
	QueryRecords(ctx context.Context, sheetKey string, kind domain.Kind, period domain.ReportPeriod) ([]domain.TransactionRecord, error)
}

// AttachmentStore uploads files such as receipt photos.
type AttachmentStore interface {
	UploadAttachment(ctx context.Context, folderKey string, data []byte, filename, mimeType string) (FileRef, error)
}

// DirectoryStore keeps the master data: persons in charge, agents and
// suppliers. Duplicate checks belong to the caller.
type DirectoryStore interface {
	AppendParty(ctx context.Context, p domain.Party) error
	ListParties(ctx context.Context, role domain.Role) ([]domain.Party, error)
}

// DirectoryTabs maps each role to the tab or table partition holding it.
var DirectoryTabs = map[domain.Role]string{
	domain.RolePIC:      "PIC",
	domain.RoleAgent:    "Agents",
	domain.RoleSupplier: "Suppliers",
}

// SheetKeys maps a record kind to the sheet (tab or table partition) holding it.
type SheetKeys map[domain.Kind]string

// DefaultSheetKeys are the tab names of the ledger spreadsheet.
var DefaultSheetKeys = SheetKeys{
	domain.KindExpense: "Expense Records",
	domain.KindIncome:  "Income Records",
	domain.KindSale:    "Sales Records",
}

// For returns the sheet key of kind, falling back to the default tab name.
func (k SheetKeys) For(kind domain.Kind) string {
	if key, ok := k[kind]; ok && key != "" {
		return key
	}
	return DefaultSheetKeys[kind]
}

// FolderKeys maps a record kind to the folder receiving its attachments.
// Fallback is used for kinds without a folder of their own.
type FolderKeys struct {
	ByKind   map[domain.Kind]string
	Fallback string
}

// For returns the folder key of kind.
func (k FolderKeys) For(kind domain.Kind) string {
	if key, ok := k.ByKind[kind]; ok && key != "" {
		return key
	}
	return k.Fallback
}
