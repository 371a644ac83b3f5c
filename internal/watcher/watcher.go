// Package watcher detects new acquisition artifacts for a single
// instrument and hands them to a finalizer.Tracker. Events are treated as
// hints, never as ground truth: every artifact is independently
// discovered by a periodic directory scan too, and it is the finalizer's
// stability window that decides when a file is actually done writing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/finalizer"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/metrics"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/platform"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

// Config describes one instrument's watch target.
type Config struct {
	InstrumentID string
	WatchPath    string
	Vendor       types.Vendor
	// FilePattern is the shell glob (filepath.Match syntax) each scan
	// tick matches watch-root entries against before the vendor-shape
	// admission filter runs. Empty matches everything.
	FilePattern     string
	ScanInterval    time.Duration
	FinalizerConfig finalizer.Config
	ForcePollOnly   bool
}

// DefaultScanInterval is used when Config.ScanInterval is zero.
const DefaultScanInterval = 10 * time.Second

// Watcher follows one instrument's watch directory, admitting artifacts
// into the finalizer the moment a vendor-shaped entry appears.
type Watcher struct {
	cfg       Config
	tracker   *finalizer.Tracker
	eventMode bool
}

// New builds a Watcher. It decides event-vs-poll mode up front by
// inspecting whether the watch path is network-attached; this mirrors the
// rule that SMB/CIFS mounts get unreliable notifications and so always
// fall back to pure polling.
func New(cfg Config) *Watcher {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}

	eventMode := !cfg.ForcePollOnly && !platform.IsNetworkPath(cfg.WatchPath)

	return &Watcher{
		cfg:       cfg,
		tracker:   finalizer.New(cfg.InstrumentID, cfg.FinalizerConfig),
		eventMode: eventMode,
	}
}

// Tracker exposes the underlying finalizer so the orchestrator can read
// Ready() and report MarkDone/MarkFailed.
func (w *Watcher) Tracker() *finalizer.Tracker {
	return w.tracker
}

// Run blocks until ctx is cancelled, driving the scan loop, the
// finalization tick, and (when eventMode is true) an fsnotify watch of
// the instrument's directory.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.FromContext(ctx).With().Str("instrument", w.cfg.InstrumentID).Logger()

	if _, err := os.Stat(w.cfg.WatchPath); err != nil {
		return err
	}

	var fsWatcher *fsnotify.Watcher
	if w.eventMode {
		var err error
		fsWatcher, err = fsnotify.NewWatcher()
		if err != nil {
			logger.Warn().Err(err).Msg("fsnotify unavailable, falling back to poll-only")
			w.eventMode = false
		} else {
			defer func() { _ = fsWatcher.Close() }()
			if err := fsWatcher.Add(w.cfg.WatchPath); err != nil {
				logger.Warn().Err(err).Msg("failed to watch directory, falling back to poll-only")
				w.eventMode = false
			}
		}
	}

	logger.Info().Bool("event_mode", w.eventMode).Str("path", w.cfg.WatchPath).Msg("watcher starting")

	scanTicker := time.NewTicker(w.cfg.ScanInterval)
	defer scanTicker.Stop()

	finalizeTicker := time.NewTicker(w.cfg.FinalizerConfig.TickInterval)
	defer finalizeTicker.Stop()

	w.scan(logger)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-scanTicker.C:
			w.scan(logger)

		case <-finalizeTicker.C:
			w.tracker.Tick(ctx)

		case event, ok := <-fsEvents(fsWatcher):
			if !ok {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.admit(event.Name, logger)
			}

		case err, ok := <-fsErrors(fsWatcher):
			if !ok {
				continue
			}
			logger.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

// fsEvents and fsErrors guard against a nil *fsnotify.Watcher (poll-only
// mode) by returning a nil channel instead of branching the select
// statement itself; a nil channel blocks forever and is never selected.
func fsEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func fsErrors(w *fsnotify.Watcher) chan error {
	if w == nil {
		return nil
	}
	return w.Errors
}

// scan lists the watch directory directly (non-recursive; vendor
// directory-kind artifacts are one level deep), globs each entry's name
// against the configured file pattern, and admits any match whose shape
// matches the instrument's vendor.
func (w *Watcher) scan(logger zerolog.Logger) {
	entries, err := os.ReadDir(w.cfg.WatchPath)
	if err != nil {
		logger.Warn().Err(err).Msg("scan failed")
		return
	}
	for _, entry := range entries {
		if !w.matchesPattern(entry.Name()) {
			continue
		}
		path := filepath.Join(w.cfg.WatchPath, entry.Name())
		w.admit(path, logger)
	}
}

// matchesPattern reports whether name satisfies the instrument's
// configured glob. An empty pattern (the default) matches everything; a
// malformed pattern is treated the same way rather than silently admitting
// nothing.
func (w *Watcher) matchesPattern(name string) bool {
	if w.cfg.FilePattern == "" {
		return true
	}
	ok, err := filepath.Match(w.cfg.FilePattern, name)
	if err != nil {
		return true
	}
	return ok
}

// admit tracks path if it matches this instrument's vendor shape and
// isn't already tracked.
func (w *Watcher) admit(path string, logger zerolog.Logger) {
	if !finalizer.MatchesVendorShape(path, w.cfg.Vendor) {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if w.tracker.Track(path, w.cfg.Vendor, info.Size(), info.ModTime()) {
		metrics.ArtifactsDetectedTotal.WithLabelValues(w.cfg.InstrumentID, string(w.cfg.Vendor)).Inc()
		logger.Debug().Str("path", path).Msg("artifact admitted")
	}
}
