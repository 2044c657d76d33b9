// Package server provides the HTTP API for image intake.
//
// Endpoints:
//
//	GET  /                health check
//	POST /upload-image    multipart upload proxied through the server
//	POST /get-upload-url  pre-signed URL for a direct upload to storage
//	GET  /metrics         prometheus metrics, when enabled
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fundood999/agentic-ai-backend/internal/intake"
	"github.com/fundood999/agentic-ai-backend/internal/metrics"
	"github.com/fundood999/agentic-ai-backend/internal/upload"
)

const (
	// maxFormBytes bounds the whole multipart body: the image plus room for
	// the metadata field and part headers.
	maxFormBytes = intake.MaxImageBytes + 1<<20

	maxMetadataBytes = 64 << 10
	maxJSONBodyBytes = 64 << 10

	shutdownTimeout = 30 * time.Second
)

// Options are the dependencies of a Server. Proxied and Presigned are
// required.
type Options struct {
	Proxied   upload.Strategy
	Presigned upload.Strategy
	Logger    *slog.Logger

	// Metrics and Gatherer are optional. /metrics is served only when
	// Gatherer is set.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Now is used for the health check timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	proxied   upload.Strategy
	presigned upload.Strategy
	log       *slog.Logger
	now       func() time.Time
	router    chi.Router
}

// New creates a Server with its routes and middleware installed.
func New(opts Options) *Server {
	s := &Server{
		proxied:   opts.Proxied,
		presigned: opts.Presigned,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.log))
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
	}
	r.Use(recoverer(s.log))
	// Mobile clients have no fixed origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", s.handleHealth)
	r.Post("/upload-image", s.handleUploadImage)
	r.Post("/get-upload-url", s.handleGetUploadURL)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
// There are deliberately no read or write timeouts: a proxied upload may
// take as long as the client needs.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "Server is running",
		Timestamp: timestamp(s.now()),
	})
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	req, err := readImageForm(r)
	if err != nil {
		s.fail(w, r, rejectParsed(r.Context(), s.proxied, err))
		return
	}

	res, err := s.proxied.Execute(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadImageResponse{
		Message:  "Upload successful",
		FileName: res.Key,
		Size:     res.Size,
		Metadata: res.Metadata,
	})
}

func (s *Server) handleGetUploadURL(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body getUploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, s.presigned.Reject(r.Context(), nil, intake.Validation(intake.MsgBadRequestBody)))
		return
	}

	res, err := s.presigned.Execute(r.Context(), &intake.Request{
		FileName:    body.FileName,
		ContentType: body.ContentType,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, getUploadURLResponse{
		UploadURL: res.UploadURL,
		FileName:  res.Key,
		PublicURL: res.PublicURL,
	})
}

// rejectParsed hands validation errors raised while reading the request to
// the strategy so they are counted like any other rejection.
func rejectParsed(ctx context.Context, strategy upload.Strategy, err error) error {
	var ie *intake.Error
	if errors.As(err, &ie) && ie.Kind == intake.KindValidation {
		return strategy.Reject(ctx, nil, err)
	}
	return err
}

// fail reports err with its public message. Failures the strategies did not
// already log (those raised while reading the request) are logged here.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ie *intake.Error
	if !errors.As(err, &ie) || ie.Kind == intake.KindUnhandled {
		s.log.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	}
	writeError(w, intake.StatusOf(err), intake.MessageOf(err))
}
