// Package downloader adapts external extraction engines (yt-dlp and the
// native YouTube client) to a single probe/download contract.
package downloader

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Info is what an engine reports about a URL without downloading it.
type Info struct {
	ID      string
	Title   string
	Formats []Format
}

// Format is one encoding offered by the source, as the engine names it.
type Format struct {
	ID      string
	Ext     string
	Quality string
	Note    string
}

// ProgressStatus is the phase reported with a Progress event.
type ProgressStatus string

const (
	ProgressDownloading ProgressStatus = "downloading"
	ProgressFinished    ProgressStatus = "finished"
)

// Progress is a single transfer event. Engines emit ProgressFinished exactly
// once, after the whole transfer succeeded.
type Progress struct {
	Status             ProgressStatus
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	Filename           string
}

// Total returns the exact size when known, else the estimate, else 0.
func (p Progress) Total() int64 {
	if p.TotalBytes > 0 {
		return p.TotalBytes
	}
	if p.TotalBytesEstimate > 0 {
		return p.TotalBytesEstimate
	}
	return 0
}

// Request describes one download.
type Request struct {
	URL       string
	FormatID  string
	OutputDir string
	// JobID is embedded in the output file name so concurrent jobs never
	// write to the same path.
	JobID string
}

// Result describes the artifact a successful download produced.
type Result struct {
	Path  string
	Title string
	Ext   string
	Bytes int64
}

// Prober lists the formats available for a URL.
type Prober interface {
	Probe(ctx context.Context, url string) (*Info, error)
}

// Downloader performs a transfer, reporting progress through onProgress.
// onProgress is called sequentially, in emission order.
type Downloader interface {
	Download(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error)
}

// Engine is a complete extraction backend.
type Engine interface {
	Prober
	Downloader
}

const (
	KindYtdlp   = "ytdlp"
	KindYouTube = "youtube"
)

// Options selects and configures an engine backend.
type Options struct {
	Kind        string
	YtdlpPath   string
	Install     bool
	HTTPTimeout time.Duration
	Logger      logrus.FieldLogger
}

// NewEngine builds the backend named by opts.Kind.
func NewEngine(ctx context.Context, opts Options) (Engine, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	switch opts.Kind {
	case KindYtdlp, "":
		return NewYtdlpEngine(ctx, YtdlpOptions{
			Executable: opts.YtdlpPath,
			Install:    opts.Install,
			Logger:     log,
		})
	case KindYouTube:
		return NewYouTubeEngine(newHTTPClient(opts.HTTPTimeout), log), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", opts.Kind)
	}
}
