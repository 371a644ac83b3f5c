// Package spool is the durable local queue that sits between extraction
// and upload. Every payload is written to disk before the uploader ever
// sees it, and moves between four directories (pending, uploading,
// failed, completed) by atomic rename so a crash mid-upload can never
// lose or duplicate a payload.
package spool

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

// ErrFull is returned by Enqueue when the pending directory has already
// reached its configured size cap.
var ErrFull = errors.New("spool: pending directory full")

// Config holds the spool's capacity and retention knobs.
type Config struct {
	RootDir               string
	MaxPendingBytes       int64
	MaxAge                time.Duration
	CompletedRetainCount  int
}

// DefaultConfig matches the spec's stated defaults: a 1000 MiB pending
// cap, a 30 day age cap, and 10 retained completed payloads.
func DefaultConfig(rootDir string) Config {
	return Config{
		RootDir:              rootDir,
		MaxPendingBytes:      1000 * 1024 * 1024,
		MaxAge:               30 * 24 * time.Hour,
		CompletedRetainCount: 10,
	}
}

// Spool manages the four-directory durable queue for one agent.
type Spool struct {
	cfg Config

	pendingDir   string
	uploadingDir string
	failedDir    string
	completedDir string

	agentID string
}

// New creates the spool's directory tree and returns a Spool handle.
func New(cfg Config, agentID string) (*Spool, error) {
	s := &Spool{
		cfg:          cfg,
		pendingDir:   filepath.Join(cfg.RootDir, "pending"),
		uploadingDir: filepath.Join(cfg.RootDir, "uploading"),
		failedDir:    filepath.Join(cfg.RootDir, "failed"),
		completedDir: filepath.Join(cfg.RootDir, "completed"),
		agentID:      agentID,
	}

	for _, dir := range []string{s.pendingDir, s.uploadingDir, s.failedDir, s.completedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("spool: create %s: %w", dir, err)
		}
	}

	return s, nil
}

// PendingDir, UploadingDir, FailedDir, CompletedDir expose the queue's
// directory paths, for status reporting.
func (s *Spool) PendingDir() string   { return s.pendingDir }
func (s *Spool) UploadingDir() string { return s.uploadingDir }
func (s *Spool) FailedDir() string    { return s.failedDir }
func (s *Spool) CompletedDir() string { return s.completedDir }

// Depths reports the current entry count of each of the four queue
// directories, keyed by directory name, for gauge reporting.
func (s *Spool) Depths() map[string]int {
	return map[string]int{
		"pending":   dirCount(s.pendingDir),
		"uploading": dirCount(s.uploadingDir),
		"failed":    dirCount(s.failedDir),
		"completed": dirCount(s.completedDir),
	}
}

func dirCount(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

// Enqueue serializes payload to the pending directory as
// "{run_id}_payload.json", written atomically via a temp file + fsync +
// rename so a crash mid-write never leaves a torn payload on disk.
func (s *Spool) Enqueue(ctx context.Context, payload *types.Payload) (string, error) {
	if err := s.reap(); err != nil {
		log.FromContext(ctx).Warn().Err(err).Msg("spool reap failed")
	}

	if full, size := s.isFull(); full {
		return "", fmt.Errorf("%w: %d bytes pending", ErrFull, size)
	}

	payload.CorrelationID = s.correlationID()

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("spool: marshal payload: %w", err)
	}

	filename := fmt.Sprintf("%s_payload.json", payload.Run.RunID)
	finalPath := filepath.Join(s.pendingDir, filename)

	pending, err := renameio.NewPendingFile(finalPath)
	if err != nil {
		return "", fmt.Errorf("spool: create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return "", fmt.Errorf("spool: write payload: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("spool: commit payload: %w", err)
	}

	log.FromContext(ctx).Info().
		Str("run_id", payload.Run.RunID.String()).
		Str("correlation_id", payload.CorrelationID).
		Str("path", finalPath).
		Msg("payload spooled")

	return finalPath, nil
}

// correlationID matches the original agent's scheme:
// "{agent_id}-{YYYYMMDDHHMMSS}-{8 hex chars}".
func (s *Spool) correlationID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s-%s-%x", s.agentID, time.Now().UTC().Format("20060102150405"), b[:])
}

// isFull reports whether the pending directory has reached its byte cap.
func (s *Spool) isFull() (bool, int64) {
	size := dirSize(s.pendingDir)
	return size >= s.cfg.MaxPendingBytes, size
}

func dirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total
}

// reap removes payloads older than Config.MaxAge from the pending and
// failed directories. Uploading and completed are left alone: uploading
// is actively in flight, completed has its own retention trim.
func (s *Spool) reap() error {
	cutoff := time.Now().Add(-s.cfg.MaxAge)
	for _, dir := range []string{s.pendingDir, s.failedDir} {
		if err := reapOlderThan(dir, cutoff); err != nil {
			return err
		}
	}
	return nil
}

func reapOlderThan(dir string, cutoff time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

// Pending lists queued payload paths, oldest first.
func (s *Spool) Pending() ([]string, error) {
	return listByModTime(s.pendingDir, ".json")
}

// MarkUploading moves a pending payload into the uploading directory and
// returns its new path.
func (s *Spool) MarkUploading(path string) (string, error) {
	return s.move(path, s.uploadingDir)
}

// MarkCompleted moves a payload into the completed directory, then trims
// the directory down to Config.CompletedRetainCount, oldest first.
func (s *Spool) MarkCompleted(path string) error {
	if _, err := s.move(path, s.completedDir); err != nil {
		return err
	}
	return s.trimCompleted()
}

// MarkFailed moves a payload into the failed directory.
func (s *Spool) MarkFailed(path string) (string, error) {
	return s.move(path, s.failedDir)
}

// MarkPending moves a payload back into the pending directory, for
// retry after a transient upload failure or a crash recovery sweep.
func (s *Spool) MarkPending(path string) (string, error) {
	return s.move(path, s.pendingDir)
}

func (s *Spool) move(path, destDir string) (string, error) {
	dest := filepath.Join(destDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("spool: move %s: %w", path, err)
	}
	return dest, nil
}

func (s *Spool) trimCompleted() error {
	entries, err := listByModTime(s.completedDir, "")
	if err != nil {
		return err
	}
	if len(entries) <= s.cfg.CompletedRetainCount {
		return nil
	}
	excess := entries[:len(entries)-s.cfg.CompletedRetainCount]
	for _, p := range excess {
		_ = os.Remove(p)
	}
	return nil
}

// Recover moves every payload left in the uploading directory back to
// pending. Call this once at startup: an agent that crashed mid-upload
// leaves payloads stranded in uploading, and they must not be lost.
func (s *Spool) Recover(ctx context.Context) error {
	entries, err := os.ReadDir(s.uploadingDir)
	if err != nil {
		return err
	}
	logger := log.FromContext(ctx)
	for _, e := range entries {
		path := filepath.Join(s.uploadingDir, e.Name())
		if _, err := s.MarkPending(path); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to recover stranded payload")
		}
	}
	return nil
}

// listByModTime lists entries in dir (optionally filtered to a suffix),
// sorted oldest-modified first.
func listByModTime(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type item struct {
		path    string
		modTime time.Time
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if suffix != "" && filepath.Ext(e.Name()) != suffix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].modTime.Before(items[j].modTime) })

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out, nil
}
