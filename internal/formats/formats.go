// Package formats lists the downloadable encodings of a media URL.
package formats

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvcoi/ytdl-web/internal/apperr"
	"github.com/lvcoi/ytdl-web/internal/downloader"
)

// ErrExtraction is returned for every engine failure. The cause is logged,
// never returned to the caller.
var ErrExtraction = apperr.Wrap(apperr.CategoryExtraction, errors.New("Failed to get video formats"))

// ErrURLRequired is returned for a blank URL.
var ErrURLRequired = apperr.Validation("URL is required")

// allowed is the set of container extensions offered to users.
var allowed = map[string]bool{
	"mp4":  true,
	"webm": true,
	"m4a":  true,
	"mp3":  true,
}

const unknown = "unknown"

// Descriptor is one offered format, as serialized by POST /get-formats.
type Descriptor struct {
	FormatID    string `json:"format_id"`
	Ext         string `json:"ext"`
	Quality     string `json:"quality"`
	Description string `json:"description"`
}

// ProbeRecorder receives the outcome of every probe.
type ProbeRecorder interface {
	ObserveProbe(ok bool, elapsed time.Duration)
}

// Lister probes URLs through an engine and filters the result.
type Lister struct {
	prober   downloader.Prober
	timeout  time.Duration
	recorder ProbeRecorder
	log      logrus.FieldLogger
}

// Option customizes a Lister.
type Option func(*Lister)

// WithTimeout bounds each probe; zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(l *Lister) { l.timeout = d }
}

func WithRecorder(r ProbeRecorder) Option {
	return func(l *Lister) { l.recorder = r }
}

func NewLister(prober downloader.Prober, log logrus.FieldLogger, opts ...Option) *Lister {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Lister{prober: prober, log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List returns the allow-listed formats of url in engine order. Results are
// never cached.
func (l *Lister) List(ctx context.Context, url string) ([]Descriptor, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrURLRequired
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	info, err := l.prober.Probe(ctx, url)
	if l.recorder != nil {
		l.recorder.ObserveProbe(err == nil, time.Since(start))
	}
	if err != nil {
		l.log.WithError(err).WithField("url", url).Warn("format probe failed")
		return nil, ErrExtraction
	}

	out := make([]Descriptor, 0, len(info.Formats))
	for _, f := range info.Formats {
		if !allowed[strings.ToLower(f.Ext)] {
			continue
		}
		out = append(out, Descriptor{
			FormatID:    f.ID,
			Ext:         f.Ext,
			Quality:     orUnknown(f.Quality),
			Description: orUnknown(f.Note),
		})
	}
	return out, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
