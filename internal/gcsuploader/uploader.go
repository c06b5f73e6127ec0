package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/store"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Uploader stores attachments as objects in one Cloud Storage bucket.
type Uploader struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewUploader creates a storage client. Without credentials it relies on
// Application Default Credentials.
func NewUploader(ctx context.Context, bucket string, credentialsJSON []byte, opts ...option.ClientOption) (*Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewUploader: bucket is required")
	}
	if len(credentialsJSON) > 0 {
		opts = append([]option.ClientOption{option.WithCredentialsJSON(credentialsJSON)}, opts...)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewUploader: create storage client: %w", err)
	}
	return &Uploader{client: client, bucket: bucket, now: time.Now}, nil
}

// Close releases the storage client.
func (u *Uploader) Close() error {
	return u.client.Close()
}

// UploadAttachment implements store.AttachmentStore. folderKey becomes the
// object prefix below receipts/ and the gs:// URI of the object is returned.
func (u *Uploader) UploadAttachment(ctx context.Context, folderKey string, data []byte, filename, mimeType string) (store.FileRef, error) {
	objectName := ObjectName(folderKey, u.now(), uuid.New().String(), filename)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = mimeType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", store.Classify("UploadAttachment", fmt.Errorf("copy attachment to GCS writer: %w", err))
	}
	if err := w.Close(); err != nil {
		return "", store.Classify("UploadAttachment", fmt.Errorf("finalize upload: %w", err))
	}

	uri := BuildGCSURI(u.bucket, objectName)
	log := logger.FromContext(ctx)
	log.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("attachment uploaded to GCS")
	return store.FileRef(uri), nil
}

// FetchFromGCS downloads the object bytes behind a gs:// URI.
func (u *Uploader) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := u.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, store.Classify("FetchFromGCS", fmt.Errorf("reading object %s/%s: %w", bucketName, objectPath, err))
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, store.Classify("FetchFromGCS", fmt.Errorf("reading bytes: %w", err))
	}
	return data, nil
}

var _ store.AttachmentStore = (*Uploader)(nil)
