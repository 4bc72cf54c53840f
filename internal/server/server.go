// Package server implements the HTTP server and S3-compatible route
// multiplexer.
package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxmcd/do-s3/internal/auth"
	"github.com/maxmcd/do-s3/internal/broadcast"
	"github.com/maxmcd/do-s3/internal/config"
	s3err "github.com/maxmcd/do-s3/internal/errors"
	"github.com/maxmcd/do-s3/internal/handlers"
	"github.com/maxmcd/do-s3/internal/store"
	"github.com/maxmcd/do-s3/internal/xmlutil"
)

// Server routes incoming requests to the appropriate S3-compatible
// operation based on method, query string, and headers.
type Server struct {
	cfg         *config.Config
	router      chi.Router
	api         huma.API
	store       *store.Store
	verifier    *auth.Verifier
	broadcaster *broadcast.Broadcaster
	bucket      *handlers.BucketHandler
	object      *handlers.ObjectHandler
	multi       *handlers.MultipartHandler
	httpServer  *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New constructs a Server over st, authenticating requests with verifier
// and publishing activity events to b.
func New(cfg *config.Config, st *store.Store, verifier *auth.Verifier, b *broadcast.Broadcaster) *Server {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("do-s3", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:         cfg,
		router:      router,
		api:         api,
		store:       st,
		verifier:    verifier,
		broadcaster: b,
		bucket:      handlers.NewBucketHandler(),
		object:      handlers.NewObjectHandler(st),
		multi:       handlers.NewMultipartHandler(st),
	}

	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on addr. The returned error is
// whatever http.Server.ListenAndServe returns, including
// http.ErrServerClosed after a graceful Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	var handler http.Handler = s.router
	handler = s.authMiddleware(handler)
	handler = broadcastMiddleware(s.broadcaster, handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)

	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures the ambient surface (health, metrics, docs,
// openapi, the activity feed) plus the S3 catch-all.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the engine.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Handle("/activity", s.broadcaster)

	// S3 catch-all: chi matches the fixed ambient routes above first, then
	// falls through to the manual method×query dispatch table below, since
	// S3 verbs are disambiguated by query string and headers in ways a
	// static router cannot express.
	s.router.HandleFunc("/*", s.dispatch)
}

// authMiddleware enforces bearer-token authentication on every request except the WebSocket feed
// and the ambient surface. Since auth wraps the whole router, it must
// itself exempt those fixed paths. WebSocket upgrade requests on any path
// are handed straight to the activity feed and never reach dispatch.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/metrics", "/docs", "/openapi", "/openapi.json", "/openapi.yaml", "/activity":
			next.ServeHTTP(w, r)
			return
		}
		if broadcast.IsUpgradeRequest(r) {
			s.broadcaster.ServeHTTP(w, r)
			return
		}

		bucket, _ := parsePath(r.URL.Path)
		if bucket == "" {
			next.ServeHTTP(w, r)
			return
		}

		if err := s.verifier.Verify(r.Header.Get("Authorization"), bucket); err != nil {
			switch err {
			case auth.ErrBucketMismatch:
				xmlutil.WriteErrorResponse(w, r, s3err.ErrForbidden)
			default:
				xmlutil.WriteErrorResponse(w, r, s3err.ErrUnauthorized)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

// parsePath splits a request path into bucket and key. Unlike
// internal/handlers' parsePath it does not percent-decode the key: it is
// called with r.URL.Path, which net/http has already decoded once.
func parsePath(path string) (bucket, key string) {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", ""
	}
	idx := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// dispatch is the main request dispatcher. It parses the path to extract
// bucket and object key, then routes by HTTP method, query parameters, and
// headers per the dispatch table.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	bucket, key := parsePath(r.URL.Path)
	q := r.URL.Query()

	if bucket == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
		return
	}

	if key == "" {
		switch r.Method {
		case http.MethodHead:
			s.bucket.HeadBucket(w, r, bucket)
		case http.MethodGet:
			if q.Has("uploads") {
				s.multi.ListMultipartUploads(w, r, bucket)
			} else {
				s.object.ListObjectsV2(w, r, bucket)
			}
		default:
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
		}
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if r.Method == http.MethodHead {
			s.object.HeadObject(w, r, bucket, key)
		} else {
			s.object.GetObject(w, r, bucket, key)
		}
	case http.MethodPost:
		switch {
		case q.Has("uploads"):
			s.multi.CreateMultipartUpload(w, r, bucket, key)
		case q.Has("uploadId"):
			s.multi.CompleteMultipartUpload(w, r, bucket, key)
		default:
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
		}
	case http.MethodPut:
		switch {
		case q.Has("uploadId") && q.Has("partNumber"):
			s.multi.UploadPart(w, r, bucket, key)
		case r.Header.Get("X-Amz-Copy-Source") != "":
			s.object.CopyObject(w, r, bucket, key)
		default:
			s.object.PutObject(w, r, bucket, key)
		}
	case http.MethodDelete:
		if q.Has("uploadId") {
			s.multi.AbortMultipartUpload(w, r, bucket, key)
		} else {
			s.object.DeleteObject(w, r, bucket, key)
		}
	default:
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
	}
}
