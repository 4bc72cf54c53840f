package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maxmcd/do-s3/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenant.db")
	s, err := store.Open(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetObjectRoundTrip(t *testing.T) {
	h := NewObjectHandler(newTestStore(t))

	putReq := httptest.NewRequest(http.MethodPut, "/bucket/key.txt", strings.NewReader("hello"))
	putReq.Header.Set("Content-Type", "text/plain")
	putW := httptest.NewRecorder()
	h.PutObject(putW, putReq, "bucket", "key.txt")
	if putW.Code != http.StatusOK {
		t.Fatalf("PutObject status = %d, want 200", putW.Code)
	}
	etag := putW.Header().Get("ETag")
	if etag == "" {
		t.Fatal("PutObject did not set ETag header")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/bucket/key.txt", nil)
	getW := httptest.NewRecorder()
	h.GetObject(getW, getReq, "bucket", "key.txt")
	if getW.Code != http.StatusOK {
		t.Fatalf("GetObject status = %d, want 200", getW.Code)
	}
	if getW.Body.String() != "hello" {
		t.Errorf("GetObject body = %q, want %q", getW.Body.String(), "hello")
	}
	if getW.Header().Get("ETag") != etag {
		t.Errorf("GetObject ETag = %q, want %q", getW.Header().Get("ETag"), etag)
	}
}

func TestGetObjectNotFound(t *testing.T) {
	h := NewObjectHandler(newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/bucket/missing.txt", nil)
	w := httptest.NewRecorder()
	h.GetObject(w, req, "bucket", "missing.txt")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "NoSuchKey") {
		t.Errorf("body = %q, want NoSuchKey error code", w.Body.String())
	}
}

func TestDeleteObjectAlwaysNoContent(t *testing.T) {
	h := NewObjectHandler(newTestStore(t))

	req := httptest.NewRequest(http.MethodDelete, "/bucket/never-existed.txt", nil)
	w := httptest.NewRecorder()
	h.DeleteObject(w, req, "bucket", "never-existed.txt")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestHeadObject(t *testing.T) {
	s := newTestStore(t)
	h := NewObjectHandler(s)
	if _, err := s.PutObject(context.Background(), "bucket", "key.txt", []byte("hi"), "text/plain"); err != nil {
		t.Fatalf("seeding object: %v", err)
	}

	req := httptest.NewRequest(http.MethodHead, "/bucket/key.txt", nil)
	w := httptest.NewRecorder()
	h.HeadObject(w, req, "bucket", "key.txt")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Content-Length") != "2" {
		t.Errorf("Content-Length = %q, want 2", w.Header().Get("Content-Length"))
	}
	if w.Body.Len() != 0 {
		t.Errorf("HeadObject wrote a body: %q", w.Body.String())
	}
}

func TestCopyObjectRejectsCrossBucket(t *testing.T) {
	s := newTestStore(t)
	h := NewObjectHandler(s)
	if _, err := s.PutObject(context.Background(), "bucket-a", "src.txt", []byte("data"), "text/plain"); err != nil {
		t.Fatalf("seeding object: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/bucket-b/dst.txt", nil)
	req.Header.Set("X-Amz-Copy-Source", "/bucket-a/src.txt")
	w := httptest.NewRecorder()
	h.CopyObject(w, req, "bucket-b", "dst.txt")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for cross-bucket copy", w.Code)
	}
	if !strings.Contains(w.Body.String(), "InvalidArgument") {
		t.Errorf("body = %q, want InvalidArgument error code", w.Body.String())
	}
}

func TestCopyObjectSameBucket(t *testing.T) {
	s := newTestStore(t)
	h := NewObjectHandler(s)
	if _, err := s.PutObject(context.Background(), "bucket", "src.txt", []byte("data"), "text/plain"); err != nil {
		t.Fatalf("seeding object: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/bucket/dst.txt", nil)
	req.Header.Set("X-Amz-Copy-Source", "/bucket/src.txt")
	w := httptest.NewRecorder()
	h.CopyObject(w, req, "bucket", "dst.txt")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestListObjectsV2(t *testing.T) {
	s := newTestStore(t)
	h := NewObjectHandler(s)
	ctx := context.Background()
	for _, k := range []string{"a.txt", "dir/b.txt"} {
		if _, err := s.PutObject(ctx, "bucket", k, []byte(k), "text/plain"); err != nil {
			t.Fatalf("seeding %q: %v", k, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/bucket?delimiter=/", nil)
	w := httptest.NewRecorder()
	h.ListObjectsV2(w, req, "bucket")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "a.txt") || !strings.Contains(body, "dir/") {
		t.Errorf("body = %q, want a.txt content entry and dir/ common prefix", body)
	}
}
