package store

import (
	"context"
	"testing"
)

func TestCopyObjectPreservesETagAndSize(t *testing.T) {
	s := openTestStore(t)
	s.chunkSize = 4
	ctx := context.Background()

	src, err := s.PutObject(ctx, "b", "src.txt", []byte("0123456789"), "text/plain")
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	result, err := s.CopyObject(ctx, "b", "src.txt", "b", "dst.txt")
	if err != nil {
		t.Fatalf("CopyObject: %v", err)
	}
	if result.ETag != src.ETag {
		t.Errorf("copy ETag = %q, want %q", result.ETag, src.ETag)
	}

	meta, body, err := s.GetObject(ctx, "b", "dst.txt")
	if err != nil {
		t.Fatalf("GetObject dst: %v", err)
	}
	if string(body) != "0123456789" {
		t.Errorf("copied body = %q, want original bytes", body)
	}
	if meta.Size != src.Size {
		t.Errorf("copied size = %d, want %d", meta.Size, src.Size)
	}
}

func TestCopyObjectOverwritesDestination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.PutObject(ctx, "b", "src.txt", []byte("new"), "text/plain"); err != nil {
		t.Fatalf("PutObject src: %v", err)
	}
	if _, err := s.PutObject(ctx, "b", "dst.txt", []byte("stale-existing-content"), "text/plain"); err != nil {
		t.Fatalf("PutObject dst: %v", err)
	}

	if _, err := s.CopyObject(ctx, "b", "src.txt", "b", "dst.txt"); err != nil {
		t.Fatalf("CopyObject: %v", err)
	}

	_, body, err := s.GetObject(ctx, "b", "dst.txt")
	if err != nil {
		t.Fatalf("GetObject dst: %v", err)
	}
	if string(body) != "new" {
		t.Errorf("dst body = %q, want %q", body, "new")
	}
}

func TestCopyObjectSourceNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CopyObject(context.Background(), "b", "missing", "b", "dst"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCopyObjectSameKeyTouchPreservesBody(t *testing.T) {
	s := openTestStore(t)
	s.chunkSize = 4
	ctx := context.Background()

	orig, err := s.PutObject(ctx, "b", "k.txt", []byte("0123456789"), "text/plain")
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	result, err := s.CopyObject(ctx, "b", "k.txt", "b", "k.txt")
	if err != nil {
		t.Fatalf("CopyObject: %v", err)
	}
	if result.ETag != orig.ETag {
		t.Errorf("copy ETag = %q, want %q", result.ETag, orig.ETag)
	}

	meta, body, err := s.GetObject(ctx, "b", "k.txt")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if string(body) != "0123456789" {
		t.Errorf("body after self-copy = %q, want %q", body, "0123456789")
	}
	if meta.Size != orig.Size {
		t.Errorf("size after self-copy = %d, want %d", meta.Size, orig.Size)
	}
}
