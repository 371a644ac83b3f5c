// Package finalizer runs the per-artifact finalization state machine:
// Detected -> Stabilizing -> Ready -> Processing -> Done/Failed. A Tracker
// owns the set of in-flight artifacts and advances them on a fixed tick.
package finalizer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/metrics"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/platform"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

// Config holds the timing knobs for the finalization loop.
type Config struct {
	TickInterval         time.Duration
	StabilityWindow      time.Duration
	StabilizationTimeout time.Duration
	ProcessingTimeout    time.Duration
}

// DefaultConfig matches the spec's stated defaults: a 5 second tick, a
// 60 second stability window, a 10 minute (600 second) stabilization
// timeout, and the fixed 30 minute processing timeout spec.md §4.1 names
// directly (not a configurable default in the spec's table).
func DefaultConfig() Config {
	return Config{
		TickInterval:         5 * time.Second,
		StabilityWindow:      60 * time.Second,
		StabilizationTimeout: 10 * time.Minute,
		ProcessingTimeout:    30 * time.Minute,
	}
}

// exclusiveOpen is swapped out in tests; production callers get the real
// platform check.
var exclusiveOpen = platform.TryExclusiveOpen

// Tracker owns every in-flight artifact for one instrument and advances
// them each tick. Ready() yields artifacts the moment they cross into
// Processing so the orchestrator can hand them to the extractor.
type Tracker struct {
	cfg          Config
	instrumentID string

	mu    sync.Mutex
	files map[string]*types.TrackedFile

	ready chan *types.TrackedFile
}

func New(instrumentID string, cfg Config) *Tracker {
	return &Tracker{
		cfg:          cfg,
		instrumentID: instrumentID,
		files:        make(map[string]*types.TrackedFile),
		ready:        make(chan *types.TrackedFile, 64),
	}
}

// Ready returns the channel of artifacts that have just entered the
// Processing state and are awaiting extraction.
func (t *Tracker) Ready() <-chan *types.TrackedFile {
	return t.ready
}

// Track begins following a newly detected artifact. Re-tracking an
// already-tracked path is a no-op. Reports whether the artifact was newly
// admitted, so callers can count distinct detections rather than repeat
// scan/event hits on the same path.
func (t *Tracker) Track(path string, vendor types.Vendor, size int64, modified time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[path]; exists {
		return false
	}

	t.files[path] = &types.TrackedFile{
		Path:         path,
		Vendor:       vendor,
		State:        types.StateDetected,
		FirstSeen:    time.Now(),
		LastSize:     size,
		LastModified: modified,
	}
	return true
}

// MarkDone and MarkFailed report the outcome of extraction for an
// artifact currently in Processing. Calls from any other state are
// ignored, mirroring the watcher's no-op contract.
func (t *Tracker) MarkDone(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.files[path]; ok && f.State == types.StateProcessing {
		f.State = types.StateDone
	}
}

func (t *Tracker) MarkFailed(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.files[path]; ok && f.State == types.StateProcessing {
		f.State = types.StateFailed
	}
}

// tickSnapshot is the per-file state Tick needs to decide its next step,
// copied out from under the lock so the I/O that decision requires
// (stat, isComplete, exclusiveOpen) never runs while t.mu is held.
type tickSnapshot struct {
	path        string
	state       types.FinalizationState
	vendor      types.Vendor
	firstSeen   time.Time
	lastSize    int64
	lastMod     time.Time
	stableSince *time.Time
	procSince   *time.Time
}

// Tick advances every tracked artifact by one state-machine step. It
// should be called on a fixed interval (Config.TickInterval) for the
// duration of the watch. Lock scope never spans an I/O call: Tick takes
// a snapshot of each artifact under lock, performs every filesystem
// check unlocked, then re-acquires the lock once per artifact to apply
// the resulting transition. An artifact that reached Done or Failed is
// removed at the start of the next tick, so its terminal state stays
// visible until then.
func (t *Tracker) Tick(ctx context.Context) {
	logger := log.FromContext(ctx)

	t.mu.Lock()
	snapshots := make([]tickSnapshot, 0, len(t.files))
	for path, f := range t.files {
		if f.State == types.StateDone || f.State == types.StateFailed {
			delete(t.files, path)
			continue
		}
		snapshots = append(snapshots, tickSnapshot{
			path:        path,
			state:       f.State,
			vendor:      f.Vendor,
			firstSeen:   f.FirstSeen,
			lastSize:    f.LastSize,
			lastMod:     f.LastModified,
			stableSince: f.StableSince,
			procSince:   f.ProcessingSince,
		})
	}
	t.mu.Unlock()

	for _, s := range snapshots {
		t.tickOne(logger, s)
	}
}

// tickOne evaluates one artifact's snapshot against the filesystem,
// unlocked, then re-acquires the lock just long enough to apply the
// resulting transition to the live entry. A live entry that changed
// state concurrently (e.g. MarkDone/MarkFailed raced ahead of this
// tick) is left alone: the snapshot it was read from is already stale.
func (t *Tracker) tickOne(logger zerolog.Logger, s tickSnapshot) {
	switch s.state {
	case types.StateDetected:
		t.transition(s.path, types.StateDetected, func(f *types.TrackedFile) {
			f.State = types.StateStabilizing
		})

	case types.StateStabilizing:
		if time.Since(s.firstSeen) > t.cfg.StabilizationTimeout {
			logger.Warn().Str("path", s.path).Msg("stabilization timeout")
			t.transition(s.path, types.StateStabilizing, func(f *types.TrackedFile) {
				f.State = types.StateFailed
			})
			return
		}

		size, mtimeNS, ok := stat(s.path, s.vendor)
		if !ok {
			return
		}

		if size == s.lastSize && mtimeNS == s.lastMod.UnixNano() {
			stableSince := s.stableSince
			if stableSince == nil {
				now := time.Now()
				stableSince = &now
			}
			ready := time.Since(*stableSince) >= t.cfg.StabilityWindow && isComplete(s.path, s.vendor)
			t.transition(s.path, types.StateStabilizing, func(f *types.TrackedFile) {
				f.StableSince = stableSince
				if ready {
					f.State = types.StateReady
				}
			})
		} else {
			t.transition(s.path, types.StateStabilizing, func(f *types.TrackedFile) {
				f.LastSize = size
				f.LastModified = time.Unix(0, mtimeNS)
				f.StableSince = nil
			})
		}

	case types.StateReady:
		if exclusiveOpen(s.path) {
			t.transition(s.path, types.StateReady, func(f *types.TrackedFile) {
				now := time.Now()
				f.ProcessingSince = &now
				f.State = types.StateProcessing
				metrics.ArtifactsFinalizedTotal.WithLabelValues(t.instrumentID, string(f.Vendor)).Inc()
				select {
				case t.ready <- f:
				default:
					logger.Warn().Str("path", s.path).Msg("ready channel full, dropping tick")
				}
			})
		}

	case types.StateProcessing:
		if s.procSince != nil && time.Since(*s.procSince) > t.cfg.ProcessingTimeout {
			logger.Warn().Str("path", s.path).Msg("processing timeout")
			t.transition(s.path, types.StateProcessing, func(f *types.TrackedFile) {
				f.State = types.StateFailed
			})
		}
	}
}

// transition applies fn to path's live entry under lock, but only if
// its state still matches expect: the entry may have moved on (or been
// removed) between the snapshot and this call.
func (t *Tracker) transition(path string, expect types.FinalizationState, fn func(f *types.TrackedFile)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.files[path]; ok && f.State == expect {
		fn(f)
	}
}

// Snapshot returns a point-in-time copy of every tracked artifact, for
// status reporting.
func (t *Tracker) Snapshot() []types.TrackedFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.TrackedFile, 0, len(t.files))
	for _, f := range t.files {
		out = append(out, *f)
	}
	return out
}
