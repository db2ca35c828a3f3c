package jobs

import (
	"errors"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/lvcoi/ytdl-web/internal/apperr"
	"github.com/lvcoi/ytdl-web/internal/downloader"
)

func (m *Manager) run(rec Record) {
	defer m.wg.Done()
	log := m.log.WithField("job_id", rec.ID)

	if m.sem != nil {
		if err := m.sem.Acquire(m.ctx, 1); err != nil {
			m.admitted.Add(-1)
			m.fail(log, rec.ID, err)
			return
		}
		defer func() {
			m.sem.Release(1)
			m.admitted.Add(-1)
		}()
	}

	req := downloader.Request{
		URL:       rec.URL,
		FormatID:  rec.FormatID,
		OutputDir: m.outputDir,
		JobID:     rec.ID,
	}
	res, err := m.engine.Download(m.ctx, req, func(p downloader.Progress) {
		m.onProgress(log, rec.ID, p)
	})
	if err != nil {
		m.fail(log, rec.ID, apperr.Wrap(apperr.CategoryDownload, err))
		return
	}

	finished, err := m.store.Update(rec.ID, func(r *Record) {
		r.Status = StatusFinished
		r.Progress = 100
		r.Filename = filepath.Base(res.Path)
	})
	switch {
	case err == nil:
		m.notify(finished)
	case errors.Is(err, ErrTerminal):
		// the engine's finished event already completed the record
	default:
		log.WithError(err).Warn("job vanished before completion")
		return
	}
	log.WithFields(logrus.Fields{"path": res.Path, "bytes": res.Bytes}).Info("download finished")

	m.finalize(log, Artifact{
		JobID:      rec.ID,
		URL:        rec.URL,
		FormatID:   rec.FormatID,
		Path:       res.Path,
		Title:      res.Title,
		Ext:        res.Ext,
		Bytes:      res.Bytes,
		FinishedAt: finished.CompletedAt,
	})
}

// onProgress applies one engine event. Events arrive in emission order on
// the worker goroutine.
func (m *Manager) onProgress(log logrus.FieldLogger, id string, p downloader.Progress) {
	var fn func(*Record)
	switch p.Status {
	case downloader.ProgressDownloading:
		fn = func(r *Record) {
			r.Status = StatusDownloading
			if total := p.Total(); total > 0 {
				r.Progress = float64(p.DownloadedBytes) / float64(total) * 100
			}
		}
	case downloader.ProgressFinished:
		fn = func(r *Record) {
			r.Status = StatusFinished
			r.Progress = 100
			if p.Filename != "" {
				r.Filename = filepath.Base(p.Filename)
			}
		}
	default:
		return
	}

	rec, err := m.store.Update(id, fn)
	if err != nil {
		log.WithError(err).WithField("event", p.Status).Debug("progress event ignored")
		return
	}
	m.notify(rec)
}

func (m *Manager) fail(log logrus.FieldLogger, id string, cause error) {
	log.WithError(cause).WithField("category", apperr.CategoryOf(cause)).Error("download failed")
	rec, err := m.store.Update(id, func(r *Record) {
		r.Status = StatusError
		r.Error = cause.Error()
	})
	if err != nil {
		log.WithError(err).Debug("error state not recorded")
		return
	}
	m.notify(rec)
}

func (m *Manager) finalize(log logrus.FieldLogger, a Artifact) {
	for _, f := range m.finalizers {
		if err := f.Finalize(m.ctx, a); err != nil {
			log.WithError(err).Warn("post-processing failed")
		}
	}
}
