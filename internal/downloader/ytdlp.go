package downloader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sirupsen/logrus"
)

const ytdlpProgressInterval = 250 * time.Millisecond

// YtdlpOptions configures the yt-dlp backend.
type YtdlpOptions struct {
	// Executable overrides the yt-dlp binary; empty means PATH or the
	// cached copy fetched by Install.
	Executable string
	Install    bool
	Logger     logrus.FieldLogger
}

// YtdlpEngine drives the yt-dlp executable through go-ytdlp.
type YtdlpEngine struct {
	executable string
	log        logrus.FieldLogger
}

func NewYtdlpEngine(ctx context.Context, opts YtdlpOptions) (*YtdlpEngine, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Install && opts.Executable == "" {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			return nil, fmt.Errorf("installing yt-dlp: %w", err)
		}
		log.Info("yt-dlp is available")
	}
	return &YtdlpEngine{executable: opts.Executable, log: log}, nil
}

func (e *YtdlpEngine) command() *ytdlp.Command {
	cmd := ytdlp.New().NoWarnings().NoPlaylist()
	if e.executable != "" {
		cmd = cmd.SetExecutable(e.executable)
	}
	return cmd
}

// Probe runs yt-dlp in JSON dump mode; nothing is downloaded.
func (e *YtdlpEngine) Probe(ctx context.Context, url string) (*Info, error) {
	res, err := e.command().DumpJSON().Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe: %w", err)
	}
	return parseProbeOutput(res.Stdout)
}

type probeFormat struct {
	FormatID   string   `json:"format_id"`
	Ext        string   `json:"ext"`
	Quality    *float64 `json:"quality"`
	FormatNote string   `json:"format_note"`
}

type probeInfo struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Formats []probeFormat `json:"formats"`
}

func parseProbeOutput(stdout string) (*Info, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var raw probeInfo
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("parsing yt-dlp output: %w", err)
		}
		info := &Info{ID: raw.ID, Title: raw.Title, Formats: make([]Format, 0, len(raw.Formats))}
		for _, f := range raw.Formats {
			info.Formats = append(info.Formats, Format{
				ID:      f.FormatID,
				Ext:     f.Ext,
				Quality: qualityLabel(f.Quality),
				Note:    f.FormatNote,
			})
		}
		return info, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading yt-dlp output: %w", err)
	}
	return nil, errors.New("yt-dlp returned no metadata")
}

func qualityLabel(q *float64) string {
	if q == nil {
		return ""
	}
	return strconv.FormatFloat(*q, 'f', -1, 64)
}

// Download fetches req.FormatID into req.OutputDir. Per-stream "finished"
// updates from yt-dlp are relayed as downloading at 100%; the single
// ProgressFinished is sent once yt-dlp exits cleanly, after any merge.
func (e *YtdlpEngine) Download(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error) {
	tmpl := filepath.Join(req.OutputDir, "%(title)s "+jobTag(req.JobID)+".%(ext)s")

	var mu sync.Mutex
	var title string

	cmd := e.command().
		Format(req.FormatID).
		Output(tmpl).
		ProgressFunc(ytdlpProgressInterval, func(update ytdlp.ProgressUpdate) {
			if update.Info != nil && update.Info.Title != nil {
				mu.Lock()
				title = *update.Info.Title
				mu.Unlock()
			}
			if p, ok := translateProgress(update); ok {
				onProgress(p)
			}
		})

	if _, err := cmd.Run(ctx, req.URL); err != nil {
		return nil, fmt.Errorf("yt-dlp download: %w", err)
	}

	path, size, err := findArtifact(req.OutputDir, req.JobID)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	resTitle := title
	mu.Unlock()
	if resTitle == "" {
		resTitle = titleFromArtifact(filepath.Base(path), req.JobID)
	}

	onProgress(Progress{
		Status:          ProgressFinished,
		DownloadedBytes: size,
		TotalBytes:      size,
		Filename:        path,
	})
	e.log.WithFields(logrus.Fields{"job_id": req.JobID, "path": path}).Debug("yt-dlp download complete")

	return &Result{
		Path:  path,
		Title: resTitle,
		Ext:   strings.TrimPrefix(filepath.Ext(path), "."),
		Bytes: size,
	}, nil
}

func translateProgress(update ytdlp.ProgressUpdate) (Progress, bool) {
	switch update.Status {
	case ytdlp.ProgressStatusDownloading:
		return Progress{
			Status:          ProgressDownloading,
			DownloadedBytes: int64(update.DownloadedBytes),
			TotalBytes:      int64(update.TotalBytes),
			Filename:        update.Filename,
		}, true
	case ytdlp.ProgressStatusFinished:
		total := int64(update.TotalBytes)
		if done := int64(update.DownloadedBytes); done > total {
			total = done
		}
		return Progress{
			Status:          ProgressDownloading,
			DownloadedBytes: total,
			TotalBytes:      total,
			Filename:        update.Filename,
		}, true
	default:
		return Progress{}, false
	}
}

// intermediateStream matches yt-dlp's per-format files ("name.f137.mp4")
// that are merged and removed after a multi-stream download.
var intermediateStream = regexp.MustCompile(`\.f[0-9A-Za-z-]+\.[A-Za-z0-9]+$`)

// findArtifact locates the final file yt-dlp wrote for jobID.
func findArtifact(dir, jobID string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("reading output directory: %w", err)
	}
	tag := jobTag(jobID)

	var best os.FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.Contains(name, tag) {
			continue
		}
		if isPartialFile(name) || intermediateStream.MatchString(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == nil || info.ModTime().After(best.ModTime()) {
			best = info
		}
	}
	if best == nil {
		return "", 0, fmt.Errorf("no output file found for job %s", jobID)
	}
	return filepath.Join(dir, best.Name()), best.Size(), nil
}

func isPartialFile(name string) bool {
	for _, suffix := range []string{".part", ".ytdl", ".temp", ".tmp"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
