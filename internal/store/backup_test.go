package store

import (
	"context"
	"testing"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := openTestStore(t)
	ctx := context.Background()
	if _, err := src.PutObject(ctx, "b", "k", []byte("payload"), "text/plain"); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := src.CreateMultipartUpload(ctx, "b", "upload.bin", "application/octet-stream"); err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}

	snapshot, err := src.Backup()
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	dst := openTestStore(t)
	result, err := dst.Restore(snapshot, false)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Counts["objects"] != 1 {
		t.Errorf("restored objects = %d, want 1", result.Counts["objects"])
	}
	if result.Counts["multipart_uploads"] != 1 {
		t.Errorf("restored multipart_uploads = %d, want 1", result.Counts["multipart_uploads"])
	}

	_, body, err := dst.GetObject(ctx, "b", "k")
	if err != nil {
		t.Fatalf("GetObject after restore: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("restored body = %q, want %q", body, "payload")
	}
}
