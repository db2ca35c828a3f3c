package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/lvcoi/ytdl-web/internal/apperr"
	"github.com/lvcoi/ytdl-web/internal/downloader"
)

var (
	ErrMissingFields = apperr.Validation("URL and format are required")
	ErrBusy          = apperr.Wrap(apperr.CategoryBusy, errors.New("Too many downloads in progress, try again later"))
)

// Observer is told about every applied change to a record, including its
// creation. Calls happen outside the store lock, in per-job order.
type Observer interface {
	JobChanged(rec Record)
}

// Artifact describes the file a finished job produced.
type Artifact struct {
	JobID      string
	URL        string
	FormatID   string
	Path       string
	Title      string
	Ext        string
	Bytes      int64
	FinishedAt time.Time
}

// Finalizer post-processes a finished artifact. Errors are logged by the
// manager and never change the job record.
type Finalizer interface {
	Finalize(ctx context.Context, a Artifact) error
}

// Options configures a Manager.
type Options struct {
	OutputDir string
	// MaxWorkers bounds concurrent transfers; zero means unbounded.
	MaxWorkers int
	// MaxQueued is how many admitted jobs may wait for a free worker.
	MaxQueued  int
	Observers  []Observer
	Finalizers []Finalizer
	Logger     logrus.FieldLogger
}

// Manager admits download submissions and runs one worker per job.
type Manager struct {
	ctx        context.Context
	store      *Store
	engine     downloader.Downloader
	outputDir  string
	sem        *semaphore.Weighted
	admitLimit int64
	admitted   atomic.Int64
	observers  []Observer
	finalizers []Finalizer
	log        logrus.FieldLogger
	wg         sync.WaitGroup
	newID      func() string
}

// NewManager builds a manager whose workers run under ctx; cancelling ctx
// ends every running transfer.
func NewManager(ctx context.Context, store *Store, engine downloader.Downloader, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		ctx:        ctx,
		store:      store,
		engine:     engine,
		outputDir:  opts.OutputDir,
		observers:  opts.Observers,
		finalizers: opts.Finalizers,
		log:        log,
		newID:      uuid.NewString,
	}
	if opts.MaxWorkers > 0 {
		m.sem = semaphore.NewWeighted(int64(opts.MaxWorkers))
		m.admitLimit = int64(opts.MaxWorkers + max(opts.MaxQueued, 0))
	}
	return m
}

// Submit validates the request, records a starting job and spawns its worker.
// It never waits for the transfer.
func (m *Manager) Submit(url, formatID string) (string, error) {
	url = strings.TrimSpace(url)
	formatID = strings.TrimSpace(formatID)
	if url == "" || formatID == "" {
		return "", ErrMissingFields
	}

	if m.sem != nil {
		if m.admitted.Add(1) > m.admitLimit {
			m.admitted.Add(-1)
			return "", ErrBusy
		}
	}

	id := m.newID()
	rec, err := m.store.Create(id, url, formatID)
	if err != nil {
		if m.sem != nil {
			m.admitted.Add(-1)
		}
		return "", apperr.Wrap(apperr.CategoryInternal, err)
	}
	m.log.WithFields(logrus.Fields{"job_id": id, "url": url, "format": formatID}).Info("download submitted")
	m.notify(rec)

	m.wg.Add(1)
	go m.run(rec)
	return id, nil
}

// Query returns the current record of id.
func (m *Manager) Query(id string) (Record, error) {
	return m.store.Get(id)
}

func (m *Manager) ActiveCount() int {
	return m.store.ActiveCount()
}

func (m *Manager) TrackedCount() int {
	return m.store.Len()
}

// Wait blocks until every spawned worker has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) notify(rec Record) {
	for _, o := range m.observers {
		o.JobChanged(rec)
	}
}
