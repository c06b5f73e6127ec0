package gcsuploader

import (
	"testing"
	"time"
)

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		folder   string
		filename string
		want     string
	}{
		{name: "plain", folder: "expense", filename: "photo.jpg", want: "receipts/expense/2024-06-10/id-photo.jpg"},
		{name: "path in name", folder: "sale", filename: "../../etc/passwd", want: "receipts/sale/2024-06-10/id-passwd"},
		{name: "windows path", folder: "income", filename: `C:\tmp\scan.pdf`, want: "receipts/income/2024-06-10/id-scan.pdf"},
		{name: "no folder", folder: "", filename: "a.png", want: "receipts/misc/2024-06-10/id-a.png"},
		{name: "empty name", folder: "expense", filename: "", want: "receipts/expense/2024-06-10/id-attachment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectName(tt.folder, at, "id", tt.filename); got != tt.want {
				t.Errorf("ObjectName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://ledger/receipts/expense/x.jpg", wantBucket: "ledger", wantObject: "receipts/expense/x.jpg"},
		{uri: "https://ledger/x.jpg", wantErr: true},
		{uri: "gs://ledger", wantErr: true},
		{uri: "gs://ledger/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI() = (%q, %q), want (%q, %q)", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestBuildAndExtract(t *testing.T) {
	uri := BuildGCSURI("ledger", "receipts/expense/2024-06-10/id-photo.jpg")
	if uri != "gs://ledger/receipts/expense/2024-06-10/id-photo.jpg" {
		t.Errorf("BuildGCSURI() = %q", uri)
	}
	if got := ExtractFilenameFromGCSURI(uri); got != "id-photo.jpg" {
		t.Errorf("ExtractFilenameFromGCSURI() = %q", got)
	}
	if got := ExtractFilenameFromGCSURI("gs://ledger"); got != "ledger" {
		t.Errorf("ExtractFilenameFromGCSURI(no object) = %q", got)
	}
}
