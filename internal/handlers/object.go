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

// ObjectHandler implements PutObject, GetObject, HeadObject, DeleteObject,
// and CopyObject against the embedded object store.
type ObjectHandler struct {
	store *store.Store
}

// NewObjectHandler builds an ObjectHandler backed by s.
func NewObjectHandler(s *store.Store) *ObjectHandler {
	return &ObjectHandler{store: s}
}

// PutObject stores the request body as bucket/key, replacing any prior
// object at that key.
func (h *ObjectHandler) PutObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	contentType := r.Header.Get("Content-Type")
	meta, err := h.store.PutObject(r.Context(), bucket, key, body, contentType)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	w.Header().Set("ETag", `"`+meta.ETag+`"`)
	w.WriteHeader(http.StatusOK)
}

// GetObject streams the full body of bucket/key.
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	meta, body, err := h.store.GetObject(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchKey)
			return
		}
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	setObjectResponseHeaders(w, meta)
	w.Header().Set("ETag", `"`+meta.ETag+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// HeadObject returns bucket/key's metadata as headers, with no body.
func (h *ObjectHandler) HeadObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	meta, err := h.store.HeadObject(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchKey)
			return
		}
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	setObjectResponseHeaders(w, meta)
	w.Header().Set("ETag", `"`+meta.ETag+`"`)
	w.WriteHeader(http.StatusOK)
}

// DeleteObject removes bucket/key. Per S3 semantics this always succeeds
// with 204, whether or not the key previously existed.
func (h *ObjectHandler) DeleteObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if err := h.store.DeleteObject(r.Context(), bucket, key); err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CopyObject performs a server-side copy from the X-Amz-Copy-Source header
// onto bucket/key. Cross-bucket copies are rejected with InvalidArgument.
func (h *ObjectHandler) CopyObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	srcBucket, srcKey, ok := parseCopySource(r.Header.Get("X-Amz-Copy-Source"))
	if !ok {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}
	if srcBucket != bucket {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	result, err := h.store.CopyObject(r.Context(), srcBucket, srcKey, bucket, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchKey)
			return
		}
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	xmlutil.RenderCopyObject(w, &xmlutil.CopyObjectResult{
		LastModified: xmlutil.FormatTimeS3(result.LastModified),
		ETag:         `"` + result.ETag + `"`,
	})
}

// ListObjectsV2 lists objects in bucket per the prefix/delimiter/
// continuation-token/max-keys parameters of the request query string.
func (h *ObjectHandler) ListObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()

	opts := store.ListObjectsOptions{
		Prefix:            q.Get("prefix"),
		Delimiter:         q.Get("delimiter"),
		StartAfter:        q.Get("start-after"),
		ContinuationToken: q.Get("continuation-token"),
	}
	maxKeys := 1000
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxKeys = n
			maxKeys = n
		}
	}

	result, err := h.store.ListObjects(r.Context(), bucket, opts)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	out := &xmlutil.ListBucketV2Result{
		Name:                  bucket,
		Prefix:                opts.Prefix,
		Delimiter:             opts.Delimiter,
		MaxKeys:               maxKeys,
		KeyCount:              len(result.Contents) + len(result.CommonPrefixes),
		IsTruncated:           result.IsTruncated,
		NextContinuationToken: result.NextContinuationToken,
	}
	for _, e := range result.Contents {
		out.Contents = append(out.Contents, xmlutil.Object{
			Key:          e.Key,
			LastModified: xmlutil.FormatTimeS3(e.LastModified),
			ETag:         `"` + e.ETag + `"`,
			Size:         e.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, p := range result.CommonPrefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, xmlutil.CommonPrefix{Prefix: p})
	}

	xmlutil.RenderListObjectsV2(w, out)
}
