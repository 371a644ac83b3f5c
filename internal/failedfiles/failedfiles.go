// Package failedfiles is the durable registry of artifacts the pipeline
// gave up on after finalization: a classification error, an extraction
// error, or a failed spool enqueue. It is deliberately separate
// from the spool, which only ever holds serialized payloads — this
// tracks raw artifact paths that never made it that far, so an operator
// can inspect and retry them.
package failedfiles

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/metrics"
)

// MaxEntries bounds the registry; the oldest failures are evicted first.
const MaxEntries = 100

// Entry records a single artifact's failure.
type Entry struct {
	Path         string    `json:"path"`
	InstrumentID string    `json:"instrument_id"`
	Reason       string    `json:"reason"`
	FailedAt     time.Time `json:"failed_at"`
	RetryCount   int       `json:"retry_count"`
}

type store struct {
	Files map[string]Entry `json:"files"`
}

// Store is a thread-safe, disk-backed registry of failed artifacts.
type Store struct {
	mu   sync.Mutex
	path string
	data store
}

// Open loads the registry from path, creating an empty one if it does
// not yet exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: store{Files: make(map[string]Entry)}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, err
	}
	if s.data.Files == nil {
		s.data.Files = make(map[string]Entry)
	}
	metrics.FailedFilesCount.Set(float64(len(s.data.Files)))
	return s, nil
}

// RecordFailure adds or replaces a failed-artifact entry, trims the
// registry to MaxEntries (oldest evicted first), and persists.
func (s *Store) RecordFailure(ctx context.Context, path, instrumentID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Files[path] = Entry{
		Path:         path,
		InstrumentID: instrumentID,
		Reason:       reason,
		FailedAt:     time.Now().UTC(),
		RetryCount:   0,
	}

	s.trimLocked()

	if err := s.saveLocked(); err != nil {
		log.FromContext(ctx).Error().Err(err).Msg("failed to persist failed-files registry")
	}
}

// MarkSuccess removes path from the registry, e.g. after a manual retry
// succeeds.
func (s *Store) MarkSuccess(ctx context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Files[path]; !ok {
		return
	}
	delete(s.data.Files, path)
	if err := s.saveLocked(); err != nil {
		log.FromContext(ctx).Error().Err(err).Msg("failed to persist failed-files registry")
	}
}

// GetForRetry increments an entry's retry count and returns it.
func (s *Store) GetForRetry(ctx context.Context, path string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data.Files[path]
	if !ok {
		return Entry{}, false
	}
	e.RetryCount++
	s.data.Files[path] = e
	if err := s.saveLocked(); err != nil {
		log.FromContext(ctx).Error().Err(err).Msg("failed to persist failed-files registry")
	}
	return e, true
}

// All returns every entry, most recently failed first.
func (s *Store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.data.Files))
	for _, e := range s.data.Files {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	return out
}

// Count returns the number of tracked failures.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.Files)
}

// Clear empties the registry and persists the change.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Files = make(map[string]Entry)
	if err := s.saveLocked(); err != nil {
		log.FromContext(ctx).Error().Err(err).Msg("failed to persist failed-files registry")
	}
}

func (s *Store) trimLocked() {
	if len(s.data.Files) <= MaxEntries {
		return
	}

	type kv struct {
		path string
		at   time.Time
	}
	entries := make([]kv, 0, len(s.data.Files))
	for p, e := range s.data.Files {
		entries = append(entries, kv{p, e.FailedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })

	excess := len(entries) - MaxEntries
	for _, e := range entries[:excess] {
		delete(s.data.Files, e.path)
	}
}

func (s *Store) saveLocked() error {
	metrics.FailedFilesCount.Set(float64(len(s.data.Files)))

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(raw); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
