package handlers

import "net/http"

// BucketHandler implements the bucket-level surface this engine exposes.
// Buckets are not modeled as first-class rows: a bucket exists implicitly
// as soon as it holds at least one object, so HeadBucket always succeeds.
type BucketHandler struct{}

// NewBucketHandler builds a BucketHandler.
func NewBucketHandler() *BucketHandler {
	return &BucketHandler{}
}

// HeadBucket always returns 200; bucket existence is not tracked separately
// from the objects stored under it.
func (h *BucketHandler) HeadBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	w.WriteHeader(http.StatusOK)
}
