package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	s3err "github.com/maxmcd/do-s3/internal/errors"
	"github.com/maxmcd/do-s3/internal/store"
	"github.com/maxmcd/do-s3/internal/xmlutil"
)

// MultipartHandler implements the multipart upload session lifecycle:
// create, upload part, complete, abort, and list.
type MultipartHandler struct {
	store *store.Store
}

// NewMultipartHandler builds a MultipartHandler backed by s.
func NewMultipartHandler(s *store.Store) *MultipartHandler {
	return &MultipartHandler{store: s}
}

// CreateMultipartUpload starts a new upload session for bucket/key.
func (h *MultipartHandler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	contentType := r.Header.Get("Content-Type")
	upload, err := h.store.CreateMultipartUpload(r.Context(), bucket, key, contentType)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	xmlutil.RenderInitiateMultipartUpload(w, &xmlutil.InitiateMultipartUploadResult{
		Bucket:   bucket,
		Key:      key,
		UploadID: upload.UploadID,
	})
}

// UploadPart stores one part's bytes for an existing upload session.
func (h *MultipartHandler) UploadPart(w http.ResponseWriter, r *http.Request, bucket, key string) {
	q := r.URL.Query()
	uploadID := q.Get("uploadId")
	partNumber, err := strconv.Atoi(q.Get("partNumber"))
	if err != nil || partNumber < 1 {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	part, err := h.store.UploadPart(r.Context(), bucket, key, uploadID, partNumber, body)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchUpload)
			return
		}
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	w.Header().Set("ETag", `"`+part.ETag+`"`)
	w.WriteHeader(http.StatusOK)
}

// CompleteMultipartUpload assembles the accumulated parts into a single
// object at bucket/key and tears down the session.
func (h *MultipartHandler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	uploadID := r.URL.Query().Get("uploadId")

	parts, err := parseCompleteMultipartXML(r.Body)
	if err != nil || len(parts) == 0 {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidPart)
		return
	}

	meta, err := h.store.CompleteMultipartUpload(r.Context(), bucket, key, uploadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchUpload)
			return
		}
		if errors.Is(err, store.ErrNoParts) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidPart)
			return
		}
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	xmlutil.RenderCompleteMultipartUpload(w, &xmlutil.CompleteMultipartUploadResult{
		Bucket: bucket,
		Key:    key,
		ETag:   `"` + meta.ETag + `"`,
	})
}

// AbortMultipartUpload discards an in-progress session and its parts. It is
// idempotent: an unknown or already-aborted upload id also gets 204.
func (h *MultipartHandler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	uploadID := r.URL.Query().Get("uploadId")

	if err := h.store.AbortMultipartUpload(r.Context(), uploadID); err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMultipartUploads lists in-progress upload sessions for bucket.
func (h *MultipartHandler) ListMultipartUploads(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	opts := store.ListUploadsOptions{
		Prefix:         q.Get("prefix"),
		KeyMarker:      q.Get("key-marker"),
		UploadIDMarker: q.Get("upload-id-marker"),
	}
	maxUploads := 1000
	if v := q.Get("max-uploads"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxUploads = n
			maxUploads = n
		}
	}

	result, err := h.store.ListMultipartUploads(r.Context(), bucket, opts)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	out := &xmlutil.ListMultipartUploadsResult{
		Bucket:             bucket,
		KeyMarker:          opts.KeyMarker,
		UploadIDMarker:     opts.UploadIDMarker,
		NextKeyMarker:      result.NextKeyMarker,
		NextUploadIDMarker: result.NextUploadIDMarker,
		MaxUploads:         maxUploads,
		IsTruncated:        result.IsTruncated,
	}
	for _, u := range result.Uploads {
		out.Uploads = append(out.Uploads, xmlutil.Upload{
			Key:       u.Key,
			UploadID:  u.UploadID,
			Initiated: xmlutil.FormatTimeS3(u.CreatedAt),
		})
	}

	xmlutil.RenderListMultipartUploads(w, out)
}
