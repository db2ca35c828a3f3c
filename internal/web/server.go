// Package web serves the HTTP API and the embedded single-page UI.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvcoi/ytdl-web/internal/db"
	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/jobs"
)

//go:embed assets
var embeddedAssets embed.FS

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// FormatLister is satisfied by *formats.Lister.
type FormatLister interface {
	List(ctx context.Context, url string) ([]formats.Descriptor, error)
}

// JobService is satisfied by *jobs.Manager.
type JobService interface {
	Submit(url, formatID string) (string, error)
	Query(id string) (jobs.Record, error)
	ActiveCount() int
	TrackedCount() int
}

// MediaCatalog is satisfied by *db.Catalog.
type MediaCatalog interface {
	List(ctx context.Context, limit, offset int) ([]db.MediaRecord, error)
}

// Options wires a Server. Catalog, Live and Metrics are optional.
type Options struct {
	Formats FormatLister
	Jobs    JobService
	Catalog MediaCatalog
	// Live serves the WebSocket upgrade on /ws.
	Live    http.Handler
	Metrics http.Handler

	OutputDir      string
	StrictNotFound bool
	SessionSecret  string
	Logger         logrus.FieldLogger
}

type Server struct {
	formats        FormatLister
	jobs           JobService
	catalog        MediaCatalog
	live           http.Handler
	metrics        http.Handler
	mediaDir       string
	strictNotFound bool
	sessions       *sessionSigner
	assets         fs.FS
	startedAt      time.Time
	log            logrus.FieldLogger
}

func New(opts Options) (*Server, error) {
	if opts.Formats == nil || opts.Jobs == nil {
		return nil, errors.New("web: formats and jobs are required")
	}
	if opts.SessionSecret == "" {
		return nil, errors.New("web: session secret is required")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	mediaDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving media directory: %w", err)
	}
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		return nil, err
	}
	return &Server{
		formats:        opts.Formats,
		jobs:           opts.Jobs,
		catalog:        opts.Catalog,
		live:           opts.Live,
		metrics:        opts.Metrics,
		mediaDir:       mediaDir,
		strictNotFound: opts.StrictNotFound,
		sessions:       newSessionSigner(opts.SessionSecret),
		assets:         assets,
		startedAt:      time.Now(),
		log:            log.WithField("component", "web"),
	}, nil
}

// Handler returns the routed handler with security headers applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /get-formats", s.handleGetFormats)
	mux.HandleFunc("POST /download", s.handleDownload)
	mux.HandleFunc("GET /progress/{id}", s.handleProgress)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/media", s.handleMediaList)
	mux.HandleFunc("GET /api/media/{filename...}", s.handleMediaFile)

	if s.live != nil {
		mux.Handle("GET /ws", s.requireSession(s.live))
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.Handle("GET /static/", http.FileServer(http.FS(s.assets)))
	mux.HandleFunc("GET /{$}", s.handleIndex)

	return withSecurityHeaders(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.log.WithFields(logrus.Fields{"addr": addr, "media_dir": s.mediaDir}).Info("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.sessions.ensure(w, r)
	data, err := fs.ReadFile(s.assets, "index.html")
	if err != nil {
		http.Error(w, "missing index", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func withSecurityHeaders(next http.Handler) http.Handler {
	const cspValue = "default-src 'self'; base-uri 'self'; frame-ancestors 'none'; object-src 'none'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'; media-src 'self'"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", cspValue)
		next.ServeHTTP(w, r)
	})
}
