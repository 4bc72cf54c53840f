package store

import (
	"context"
	"testing"
)

func TestMultipartUploadLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	upload, err := s.CreateMultipartUpload(ctx, "b", "big.bin", "application/octet-stream")
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}
	if upload.UploadID == "" {
		t.Fatal("expected non-empty upload id")
	}

	if _, err := s.UploadPart(ctx, "b", "big.bin", upload.UploadID, 1, []byte("aaaa")); err != nil {
		t.Fatalf("UploadPart 1: %v", err)
	}
	if _, err := s.UploadPart(ctx, "b", "big.bin", upload.UploadID, 2, []byte("bbbb")); err != nil {
		t.Fatalf("UploadPart 2: %v", err)
	}

	meta, err := s.CompleteMultipartUpload(ctx, "b", "big.bin", upload.UploadID)
	if err != nil {
		t.Fatalf("CompleteMultipartUpload: %v", err)
	}
	if meta.Size != 8 {
		t.Errorf("assembled size = %d, want 8", meta.Size)
	}
	wantSuffix := "-2"
	if len(meta.ETag) < 2 || meta.ETag[len(meta.ETag)-2:] != wantSuffix {
		t.Errorf("etag = %q, want suffix %q", meta.ETag, wantSuffix)
	}

	_, body, err := s.GetObject(ctx, "b", "big.bin")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if string(body) != "aaaabbbb" {
		t.Errorf("assembled body = %q, want %q", body, "aaaabbbb")
	}

	exists, err := s.UploadExists(ctx, "b", "big.bin", upload.UploadID)
	if err != nil {
		t.Fatalf("UploadExists: %v", err)
	}
	if exists {
		t.Error("UploadExists = true after completion, want false (session torn down)")
	}
}

func TestCompleteMultipartUploadNoParts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	upload, err := s.CreateMultipartUpload(ctx, "b", "empty.bin", "application/octet-stream")
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}
	if _, err := s.CompleteMultipartUpload(ctx, "b", "empty.bin", upload.UploadID); err != ErrNoParts {
		t.Errorf("err = %v, want ErrNoParts", err)
	}
}

func TestAbortMultipartUploadIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	upload, err := s.CreateMultipartUpload(ctx, "b", "k", "text/plain")
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}
	if _, err := s.UploadPart(ctx, "b", "k", upload.UploadID, 1, []byte("x")); err != nil {
		t.Fatalf("UploadPart: %v", err)
	}
	if err := s.AbortMultipartUpload(ctx, upload.UploadID); err != nil {
		t.Fatalf("AbortMultipartUpload: %v", err)
	}
	exists, err := s.UploadExists(ctx, "b", "k", upload.UploadID)
	if err != nil {
		t.Fatalf("UploadExists: %v", err)
	}
	if exists {
		t.Error("UploadExists = true after abort, want false")
	}
	if err := s.AbortMultipartUpload(ctx, upload.UploadID); err != nil {
		t.Errorf("AbortMultipartUpload on already-gone session returned error: %v", err)
	}
}

func TestUploadPartReplacesPriorAttempt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	upload, err := s.CreateMultipartUpload(ctx, "b", "k", "text/plain")
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}
	if _, err := s.UploadPart(ctx, "b", "k", upload.UploadID, 1, []byte("first-attempt")); err != nil {
		t.Fatalf("UploadPart (first): %v", err)
	}
	part, err := s.UploadPart(ctx, "b", "k", upload.UploadID, 1, []byte("retry"))
	if err != nil {
		t.Fatalf("UploadPart (retry): %v", err)
	}
	if part.Size != 5 {
		t.Errorf("retried part size = %d, want 5", part.Size)
	}

	meta, err := s.CompleteMultipartUpload(ctx, "b", "k", upload.UploadID)
	if err != nil {
		t.Fatalf("CompleteMultipartUpload: %v", err)
	}
	if meta.Size != 5 {
		t.Errorf("assembled size = %d, want 5 (retried part only)", meta.Size)
	}
}

func TestListMultipartUploads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateMultipartUpload(ctx, "b", "a.bin", "text/plain"); err != nil {
		t.Fatalf("CreateMultipartUpload a: %v", err)
	}
	if _, err := s.CreateMultipartUpload(ctx, "b", "b.bin", "text/plain"); err != nil {
		t.Fatalf("CreateMultipartUpload b: %v", err)
	}

	result, err := s.ListMultipartUploads(ctx, "b", ListUploadsOptions{})
	if err != nil {
		t.Fatalf("ListMultipartUploads: %v", err)
	}
	if len(result.Uploads) != 2 {
		t.Fatalf("got %d uploads, want 2", len(result.Uploads))
	}
	if result.Uploads[0].Key != "a.bin" || result.Uploads[1].Key != "b.bin" {
		t.Errorf("uploads not ordered by key: %+v", result.Uploads)
	}
}
