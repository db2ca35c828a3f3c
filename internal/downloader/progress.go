package downloader

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

const progressInterval = 100 * time.Millisecond

// progressWriter counts bytes written through it and reports at most one
// downloading event per progressInterval.
type progressWriter struct {
	size       int64
	total      atomic.Int64
	lastUpdate atomic.Int64 // Unix nanoseconds
	filename   string
	emit       func(Progress)
}

func newProgressWriter(size int64, filename string, emit func(Progress)) *progressWriter {
	pw := &progressWriter{size: size, filename: filename, emit: emit}
	pw.lastUpdate.Store(time.Now().UnixNano())
	return pw
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n := len(b)
	p.total.Add(int64(n))

	now := time.Now().UnixNano()
	last := p.lastUpdate.Load()
	if now-last >= progressInterval.Nanoseconds() && p.lastUpdate.CompareAndSwap(last, now) {
		p.report()
	}
	return n, nil
}

func (p *progressWriter) report() {
	if p.emit == nil {
		return
	}
	p.emit(Progress{
		Status:          ProgressDownloading,
		DownloadedBytes: p.total.Load(),
		TotalBytes:      p.size,
		Filename:        p.filename,
	})
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
		return r.r.Read(p)
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, &contextReader{ctx: ctx, r: src})
}
