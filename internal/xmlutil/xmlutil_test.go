package xmlutil

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	s3err "github.com/maxmcd/do-s3/internal/errors"
)

func TestRenderError(t *testing.T) {
	w := httptest.NewRecorder()
	RenderError(w, s3err.ErrNoSuchKey, "req-123")
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Code>NoSuchKey</Code>") {
		t.Errorf("body = %q, want NoSuchKey code element", body)
	}
	if !strings.Contains(body, "<RequestId>req-123</RequestId>") {
		t.Errorf("body = %q, want request id element", body)
	}
}

func TestRenderListObjectsV2EscapesSpecialChars(t *testing.T) {
	w := httptest.NewRecorder()
	RenderListObjectsV2(w, &ListBucketV2Result{
		Name:     "bucket",
		Contents: []Object{{Key: "a&b<c>.txt", ETag: `"x"`, Size: 1}},
	})
	body := w.Body.String()
	if strings.Contains(body, "a&b<c>.txt") {
		t.Errorf("body contains unescaped special characters: %q", body)
	}
	if !strings.Contains(body, "a&amp;b&lt;c&gt;.txt") {
		t.Errorf("body = %q, want escaped key", body)
	}
	if !strings.Contains(body, "http://s3.amazonaws.com/doc/2006-03-01/") {
		t.Errorf("body missing expected XML namespace: %q", body)
	}
}

func TestFormatTimeS3(t *testing.T) {
	tm := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if got := FormatTimeS3(tm); got != "2026-01-02T15:04:05.000Z" {
		t.Errorf("FormatTimeS3 = %q", got)
	}
}

func TestFormatTimeHTTP(t *testing.T) {
	tm := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if got := FormatTimeHTTP(tm); got != "Fri, 02 Jan 2026 15:04:05 GMT" {
		t.Errorf("FormatTimeHTTP = %q", got)
	}
}
