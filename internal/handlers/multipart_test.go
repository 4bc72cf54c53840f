package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMultipartUploadFullLifecycle(t *testing.T) {
	s := newTestStore(t)
	h := NewMultipartHandler(s)

	createReq := httptest.NewRequest(http.MethodPost, "/bucket/big.bin?uploads", nil)
	createW := httptest.NewRecorder()
	h.CreateMultipartUpload(createW, createReq, "bucket", "big.bin")
	if createW.Code != http.StatusOK {
		t.Fatalf("CreateMultipartUpload status = %d, want 200", createW.Code)
	}
	if !strings.Contains(createW.Body.String(), "<UploadId>") {
		t.Fatalf("create response missing UploadId: %s", createW.Body.String())
	}
	uploadID := extractBetween(t, createW.Body.String(), "<UploadId>", "</UploadId>")

	partReq := httptest.NewRequest(http.MethodPut, "/bucket/big.bin?uploadId="+uploadID+"&partNumber=1", strings.NewReader("part-one-data"))
	partW := httptest.NewRecorder()
	h.UploadPart(partW, partReq, "bucket", "big.bin")
	if partW.Code != http.StatusOK {
		t.Fatalf("UploadPart status = %d, want 200", partW.Code)
	}

	completeBody := `<CompleteMultipartUpload><Part><PartNumber>1</PartNumber><ETag>"x"</ETag></Part></CompleteMultipartUpload>`
	completeReq := httptest.NewRequest(http.MethodPost, "/bucket/big.bin?uploadId="+uploadID, strings.NewReader(completeBody))
	completeW := httptest.NewRecorder()
	h.CompleteMultipartUpload(completeW, completeReq, "bucket", "big.bin")
	if completeW.Code != http.StatusOK {
		t.Fatalf("CompleteMultipartUpload status = %d, want 200, body=%s", completeW.Code, completeW.Body.String())
	}
}

func TestAbortMultipartUploadUnknownIDIsNoContent(t *testing.T) {
	h := NewMultipartHandler(newTestStore(t))

	req := httptest.NewRequest(http.MethodDelete, "/bucket/key?uploadId=does-not-exist", nil)
	w := httptest.NewRecorder()
	h.AbortMultipartUpload(w, req, "bucket", "key")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if strings.Contains(w.Body.String(), "NoSuchUpload") {
		t.Errorf("body = %q, want no NoSuchUpload error for an idempotent abort", w.Body.String())
	}
}

func TestCompleteMultipartUploadEmptyBodyIsInvalidPart(t *testing.T) {
	s := newTestStore(t)
	h := NewMultipartHandler(s)

	createReq := httptest.NewRequest(http.MethodPost, "/bucket/k?uploads", nil)
	createW := httptest.NewRecorder()
	h.CreateMultipartUpload(createW, createReq, "bucket", "k")
	uploadID := extractBetween(t, createW.Body.String(), "<UploadId>", "</UploadId>")

	req := httptest.NewRequest(http.MethodPost, "/bucket/k?uploadId="+uploadID, strings.NewReader(""))
	w := httptest.NewRecorder()
	h.CompleteMultipartUpload(w, req, "bucket", "k")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "InvalidPart") {
		t.Errorf("body = %q, want InvalidPart error code", w.Body.String())
	}
}

func extractBetween(t *testing.T, s, start, end string) string {
	t.Helper()
	i := strings.Index(s, start)
	if i < 0 {
		t.Fatalf("marker %q not found in %q", start, s)
	}
	i += len(start)
	j := strings.Index(s[i:], end)
	if j < 0 {
		t.Fatalf("end marker %q not found in %q", end, s)
	}
	return s[i : i+j]
}
