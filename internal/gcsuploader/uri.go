package gcsuploader

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ObjectName returns receipts/<folder>/<YYYY-MM-DD>/<id>-<filename>.
func ObjectName(folder string, at time.Time, id, filename string) string {
	if folder == "" {
		folder = "misc"
	}
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}
	return path.Join("receipts", folder, at.Format("2006-01-02"), id+"-"+name)
}

// BuildGCSURI returns gs://bucket/object.
func BuildGCSURI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object path.
func ParseGCSURI(gcsURI string) (string, string, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/receipts/expense/2024-06-10/id-photo.jpg" → "id-photo.jpg"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
