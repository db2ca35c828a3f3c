// Package jobs tracks download jobs: an in-memory store, the manager that
// admits submissions and the worker that drives each transfer.
package jobs

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/lvcoi/ytdl-web/internal/apperr"
)

var (
	ErrNotFound     = apperr.Wrap(apperr.CategoryNotFound, errors.New("Download not found"))
	ErrDuplicateJob = errors.New("job id already exists")
	ErrTerminal     = errors.New("job already reached a terminal state")
)

// Record is the observable state of one job.
type Record struct {
	ID       string
	Status   Status
	Progress float64
	Error    string

	URL         string
	FormatID    string
	Filename    string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Store is a mutex-guarded map of records. Callers always receive copies.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Record
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Record), now: time.Now}
}

// Create inserts a new record in the starting state.
func (s *Store) Create(id, url, formatID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return Record{}, ErrDuplicateJob
	}
	rec := &Record{
		ID:        id,
		Status:    StatusStarting,
		URL:       url,
		FormatID:  formatID,
		CreatedAt: s.now(),
	}
	s.jobs[id] = rec
	return *rec, nil
}

// Update applies fn to the record under the write lock. Terminal records are
// left untouched and ErrTerminal is returned.
func (s *Store) Update(id string, fn func(*Record)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return *rec, ErrTerminal
	}

	next := *rec
	fn(&next)
	next.ID = rec.ID
	next.Progress = clampProgress(next.Progress)
	if next.Status.IsTerminal() && next.CompletedAt.IsZero() {
		next.CompletedAt = s.now()
	}
	*rec = next
	return next, nil
}

func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// ActiveCount returns the number of records not yet terminal.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.jobs {
		if !rec.Status.IsTerminal() {
			count++
		}
	}
	return count
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// RemoveExpired evicts terminal records older than their TTL. A TTL of zero
// or less keeps records of that kind forever.
func (s *Store) RemoveExpired(now time.Time, completedTTL, erroredTTL time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.jobs {
		if isExpired(rec, now, completedTTL, erroredTTL) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs RemoveExpired every interval until ctx is done.
func (s *Store) StartCleanup(ctx context.Context, interval, completedTTL, erroredTTL time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.RemoveExpired(now, completedTTL, erroredTTL)
			}
		}
	}()
}

func isExpired(rec *Record, now time.Time, completedTTL, erroredTTL time.Duration) bool {
	if rec.CompletedAt.IsZero() {
		return false
	}
	var ttl time.Duration
	switch rec.Status {
	case StatusFinished:
		ttl = completedTTL
	case StatusError:
		ttl = erroredTTL
	default:
		return false
	}
	if ttl <= 0 {
		return false
	}
	return now.Sub(rec.CompletedAt) > ttl
}

func clampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
