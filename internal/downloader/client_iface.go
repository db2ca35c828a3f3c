package downloader

import (
	"context"
	"io"
	"net/http"

	"github.com/kkdai/youtube/v2"
)

// YouTubeClient is the subset of the kkdai client the native engine uses.
// Tests substitute a fake. Implementations must be safe for concurrent
// downloads; the chunk size applies to one stream only.
type YouTubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format, chunkSize int64) (io.ReadCloser, int64, error)
}

// youtubeClientAdapter builds a kkdai client per call. The kkdai client
// caches player state and chunk size without locking, so instances are
// never shared between jobs; the transport is.
type youtubeClientAdapter struct {
	httpClient *http.Client
}

func (a *youtubeClientAdapter) GetVideoContext(ctx context.Context, url string) (*youtube.Video, error) {
	client := &youtube.Client{HTTPClient: a.httpClient}
	return client.GetVideoContext(ctx, url)
}

func (a *youtubeClientAdapter) GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format, chunkSize int64) (io.ReadCloser, int64, error) {
	client := &youtube.Client{HTTPClient: a.httpClient, ChunkSize: chunkSize}
	return client.GetStreamContext(ctx, video, format)
}

var _ YouTubeClient = (*youtubeClientAdapter)(nil)
