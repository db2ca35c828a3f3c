package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/sirupsen/logrus"
)

const (
	minChunkSize     int64 = 256 * 1024      // 256KB keeps progress responsive on small files
	maxChunkSize     int64 = 2 * 1024 * 1024 // cap to avoid excessive requests on large files
	targetChunkCount int64 = 64
)

// YouTubeEngine downloads single streams in-process with the kkdai client.
// Format ids are itag numbers.
type YouTubeEngine struct {
	client YouTubeClient
	log    logrus.FieldLogger
}

func NewYouTubeEngine(httpClient *http.Client, log logrus.FieldLogger) *YouTubeEngine {
	return newYouTubeEngine(&youtubeClientAdapter{httpClient: httpClient}, log)
}

func newYouTubeEngine(client YouTubeClient, log logrus.FieldLogger) *YouTubeEngine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &YouTubeEngine{client: client, log: log}
}

func (e *YouTubeEngine) Probe(ctx context.Context, url string) (*Info, error) {
	video, err := e.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching video metadata: %w", err)
	}
	info := &Info{ID: video.ID, Title: video.Title, Formats: make([]Format, 0, len(video.Formats))}
	for i := range video.Formats {
		f := &video.Formats[i]
		info.Formats = append(info.Formats, Format{
			ID:      strconv.Itoa(f.ItagNo),
			Ext:     mimeToExt(f.MimeType),
			Quality: youtubeQuality(f),
			Note:    youtubeNote(f),
		})
	}
	return info, nil
}

func youtubeQuality(f *youtube.Format) string {
	if f.QualityLabel != "" {
		return f.QualityLabel
	}
	return f.Quality
}

func youtubeNote(f *youtube.Format) string {
	var parts []string
	if f.Width == 0 && f.Height == 0 && f.AudioChannels > 0 {
		parts = append(parts, "audio only")
	} else if f.AudioChannels == 0 {
		parts = append(parts, "video only")
	}
	if f.AudioQuality != "" {
		parts = append(parts, strings.ToLower(strings.TrimPrefix(f.AudioQuality, "AUDIO_QUALITY_")))
	}
	if f.Bitrate > 0 {
		parts = append(parts, fmt.Sprintf("%dk", f.Bitrate/1000))
	}
	return strings.Join(parts, ", ")
}

// chunkSizeFor picks a smaller chunk size to keep progress updates
// frequent without spawning thousands of requests. Zero leaves the
// client default.
func chunkSizeFor(contentLength int64) int64 {
	if contentLength <= 0 {
		return 0
	}
	chunk := contentLength / targetChunkCount
	if chunk < minChunkSize {
		chunk = minChunkSize
	} else if chunk > maxChunkSize {
		chunk = maxChunkSize
	}
	return chunk
}

// Download streams one itag into "<title> [<jobID>].<ext>". The file is
// written under a .part name and renamed once complete.
func (e *YouTubeEngine) Download(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error) {
	itag, err := strconv.Atoi(req.FormatID)
	if err != nil {
		return nil, fmt.Errorf("format %q is not an itag", req.FormatID)
	}
	video, err := e.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching video metadata: %w", err)
	}
	formats := video.Formats.Itag(itag)
	if len(formats) == 0 {
		return nil, fmt.Errorf("format %d is not offered for %s", itag, video.ID)
	}
	format := &formats[0]

	ext := mimeToExt(format.MimeType)
	path := filepath.Join(req.OutputDir, outputName(video.Title, req.JobID, ext))
	partPath := path + ".part"

	stream, size, err := e.client.GetStreamContext(ctx, video, format, chunkSizeFor(format.ContentLength))
	if err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Close()
	if size <= 0 && format.ContentLength > 0 {
		size = format.ContentLength
	}

	file, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}

	progress := newProgressWriter(size, path, onProgress)
	written, copyErr := copyWithContext(ctx, io.MultiWriter(file, progress), stream)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if size > 0 && written != size {
		os.Remove(partPath)
		return nil, fmt.Errorf("incomplete download: got %d of %d bytes", written, size)
	}
	if err := os.Rename(partPath, path); err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("finalizing output file: %w", err)
	}

	onProgress(Progress{
		Status:          ProgressFinished,
		DownloadedBytes: written,
		TotalBytes:      written,
		Filename:        path,
	})
	e.log.WithFields(logrus.Fields{"job_id": req.JobID, "itag": itag, "bytes": written}).Debug("stream download complete")

	return &Result{Path: path, Title: video.Title, Ext: ext, Bytes: written}, nil
}
