// Package handlers implements the S3-compatible operation handlers: path
// parsing, request/response shaping, and translation between HTTP and the
// object store.
package handlers

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/maxmcd/do-s3/internal/store"
	"github.com/maxmcd/do-s3/internal/xmlutil"
)

// parsePath splits a request path into bucket and key. "/" yields ("", "").
// "/bucket" yields ("bucket", ""). "/bucket/a/b" yields ("bucket", "a/b").
// The key is percent-decoded once; a malformed escape is left as-is.
func parsePath(path string) (bucket, key string) {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", ""
	}
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return path, ""
	}
	bucket = path[:idx]
	key = path[idx+1:]
	if decoded, err := url.PathUnescape(key); err == nil {
		key = decoded
	}
	return bucket, key
}

// parseCopySource parses the X-Amz-Copy-Source header into a source bucket
// and key. The header is URL-decoded once, a leading slash is stripped, and
// the remainder is split on the first slash.
func parseCopySource(header string) (bucket, key string, ok bool) {
	decoded, err := url.PathUnescape(header)
	if err != nil {
		decoded = header
	}
	decoded = strings.TrimPrefix(decoded, "/")
	if decoded == "" {
		return "", "", false
	}
	idx := strings.IndexByte(decoded, '/')
	if idx < 0 || idx == len(decoded)-1 {
		return "", "", false
	}
	return decoded[:idx], decoded[idx+1:], true
}

// CompletePart is a single part entry in a CompleteMultipartUpload request body.
type CompletePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

type completeMultipartUploadRequest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []CompletePart `xml:"Part"`
}

// parseCompleteMultipartXML decodes a CompleteMultipartUpload request body
// into its ordered list of part numbers and ETags.
func parseCompleteMultipartXML(body io.Reader) ([]CompletePart, error) {
	var req completeMultipartUploadRequest
	if err := xml.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decoding CompleteMultipartUpload XML: %w", err)
	}
	return req.Parts, nil
}

// setObjectResponseHeaders sets the standard S3 object response headers
// from a chunk-0 metadata record. Used by GetObject and HeadObject.
func setObjectResponseHeaders(w http.ResponseWriter, meta store.ObjectMeta) {
	h := w.Header()
	h.Set("Content-Type", meta.ContentType)
	h.Set("ETag", meta.ETag)
	h.Set("Last-Modified", xmlutil.FormatTimeHTTP(meta.LastModified))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(meta.Size, 10))
}
