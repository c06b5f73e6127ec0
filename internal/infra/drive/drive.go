// Package drive uploads attachments to Google Drive folders.
package drive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Uploader is a store.AttachmentStore that creates one Drive file per upload.
type Uploader struct {
	svc *gdrive.Service

	// Public makes every uploaded file readable by anyone with the link.
	Public bool
}

// NewUploader creates a Drive service authenticated with a service account key.
func NewUploader(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*Uploader, error) {
	if len(credentialsJSON) > 0 {
		opts = append([]option.ClientOption{
			option.WithCredentialsJSON(credentialsJSON),
			option.WithScopes(gdrive.DriveFileScope),
		}, opts...)
	}
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewUploader: creating drive service: %w", err)
	}
	return &Uploader{svc: svc, Public: true}, nil
}

// UploadAttachment implements store.AttachmentStore. The returned reference
// is the file's web view link.
func (u *Uploader) UploadAttachment(ctx context.Context, folderKey string, data []byte, filename, mimeType string) (store.FileRef, error) {
	meta := &gdrive.File{Name: filename, MimeType: mimeType}
	if folderKey != "" {
		meta.Parents = []string{folderKey}
	}

	created, err := u.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", store.Classify("UploadAttachment", fmt.Errorf("creating %s: %w", filename, err))
	}

	if u.Public {
		perm := &gdrive.Permission{Type: "anyone", Role: "reader"}
		if _, err := u.svc.Permissions.Create(created.Id, perm).Context(ctx).Do(); err != nil {
			return "", store.Classify("UploadAttachment", fmt.Errorf("sharing %s: %w", created.Id, err))
		}
	}

	log := logger.FromContext(ctx)

	log.Debug().
		Str("file_id", created.Id).
		Str("folder", folderKey).
		Int("bytes", len(data)).
		Msg("attachment uploaded to drive")

	if created.WebViewLink != "" {
		return store.FileRef(created.WebViewLink), nil
	}
	return store.FileRef(fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id)), nil
}

var _ store.AttachmentStore = (*Uploader)(nil)
