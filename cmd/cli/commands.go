package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/finance-bot/internal/conversation"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/gcsuploader"
	"github.com/dvloznov/finance-bot/internal/report"
	"github.com/dvloznov/finance-bot/internal/router"
	"github.com/dvloznov/finance-bot/internal/store"
)

// summarize reads the period named by args and aggregates its records.
func summarize(ctx context.Context, ledger *store.Ledger, args []string, now time.Time, wholeYear bool) (report.Summary, []domain.TransactionRecord, error) {
	period, err := router.ParsePeriod(args, now, wholeYear)
	if err != nil {
		return report.Summary{}, nil, fmt.Errorf("summarize: %w", err)
	}
	records, err := ledger.QueryAll(ctx, period)
	if err != nil {
		return report.Summary{}, nil, fmt.Errorf("summarize: %w", err)
	}
	return report.Summarize(period, records), records, nil
}

// appendRecord validates args the way a direct chat command does and
// commits the record. Anything short of a complete record is an error.
func appendRecord(ctx context.Context, ledger *store.Ledger, kindName string, args []string, now time.Time) (string, error) {
	kind, err := domain.ParseKind(kindName)
	if err != nil {
		return "", fmt.Errorf("appendRecord: %w", err)
	}

	switch a := router.Dispatch(ctx, "/"+kind.String(), args, 0, now).(type) {
	case router.InvokeDirect:
		if _, err := ledger.AppendRecord(ctx, a.Record); err != nil {
			return "", fmt.Errorf("appendRecord: %w", err)
		}
		return conversation.Confirmation(a.Record, a.Warnings), nil
	case router.StartSession:
		if a.Invalid != nil {
			return "", fmt.Errorf("appendRecord: %w", a.Invalid)
		}
		field, _, _ := a.Seed.NextField()
		return "", fmt.Errorf("appendRecord: missing %s", field)
	case router.BadArguments:
		return "", fmt.Errorf("appendRecord: usage: %s", a.Usage)
	default:
		return "", fmt.Errorf("appendRecord: unexpected action %T", a)
	}
}

// uploadFile stores data in the folder of the named kind.
func uploadFile(ctx context.Context, attachments store.AttachmentStore, folders store.FolderKeys, kindName, filename string, data []byte) (store.FileRef, error) {
	kind, err := domain.ParseKind(kindName)
	if err != nil {
		return "", fmt.Errorf("uploadFile: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	ref, err := attachments.UploadAttachment(ctx, folders.For(kind), data, filename, mimeType)
	if err != nil {
		return "", fmt.Errorf("uploadFile: %w", err)
	}
	return ref, nil
}

type gcsFetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// fetchReceipt downloads gcsURI to out, or to the object's file name when
// out is empty. It returns the written path.
func fetchReceipt(ctx context.Context, gcs gcsFetcher, gcsURI, out string) (string, error) {
	if out == "" {
		out = gcsuploader.ExtractFilenameFromGCSURI(gcsURI)
	}
	if out == "" {
		return "", fmt.Errorf("fetchReceipt: no file name in %q", gcsURI)
	}
	data, err := gcs.FetchFromGCS(ctx, gcsURI)
	if err != nil {
		return "", fmt.Errorf("fetchReceipt: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("fetchReceipt: %w", err)
	}
	return out, nil
}
