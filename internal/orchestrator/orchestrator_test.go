package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/baseline"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/extractor"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/failedfiles"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/finalizer"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/spool"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/watcher"
)

const fakeBackend = `#!/bin/sh
while [ "$1" != "" ]; do
  if [ "$1" = "--report-file" ]; then
    shift
    out="$1"
  fi
  shift
done
cat > "$out" <<'EOF'
Target ID,Retention Time,Peak Area
PEP1,12.0,100000
EOF
`

func setupOrchestrator(t *testing.T) (*Orchestrator, Instrument, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake backend script targets unix shells")
	}

	watchDir := t.TempDir()
	dataDir := t.TempDir()

	backendPath := filepath.Join(t.TempDir(), "fake-backend.sh")
	require.NoError(t, os.WriteFile(backendPath, []byte(fakeBackend), 0o755))

	templatePath := filepath.Join(t.TempDir(), "template.sky")
	require.NoError(t, os.WriteFile(templatePath, []byte("template"), 0o644))

	ex := extractor.New(extractor.Config{
		BinaryPath:   backendPath,
		TemplatePath: templatePath,
		WorkDir:      t.TempDir(),
	})

	sp, err := spool.New(spool.DefaultConfig(filepath.Join(dataDir, "spool")), "agent-1")
	require.NoError(t, err)

	ff, err := failedfiles.Open(filepath.Join(dataDir, "failed_files.json"))
	require.NoError(t, err)

	w := watcher.New(watcher.Config{
		InstrumentID:  "inst-1",
		WatchPath:     watchDir,
		Vendor:        types.VendorThermo,
		ForcePollOnly: true,
		FinalizerConfig: finalizer.Config{
			TickInterval:         time.Hour,
			StabilityWindow:      0,
			StabilizationTimeout: time.Hour,
			ProcessingTimeout:    time.Hour,
		},
	})

	inst := Instrument{ID: "inst-1", WatchPath: watchDir, Watcher: w}

	o := New(Config{
		AgentID:      "agent-1",
		AgentVersion: "test",
		Instruments:  []Instrument{inst},
		Extractor:    ex,
		Spool:        sp,
		FailedFiles:  ff,
		Baselines:    baseline.NewManager(),
	})

	return o, inst, watchDir
}

func TestOrchestrator_HandleEnqueuesQCRun(t *testing.T) {
	o, inst, watchDir := setupOrchestrator(t)

	rawPath := filepath.Join(watchDir, "sample_QCA_A1.raw")
	require.NoError(t, os.WriteFile(rawPath, []byte("raw data"), 0o644))

	ev := readyEvent{
		instrument: inst,
		file: &types.TrackedFile{
			Path:      rawPath,
			Vendor:    types.VendorThermo,
			State:     types.StateProcessing,
			FirstSeen: time.Now().Add(-time.Second),
		},
	}
	inst.Watcher.Tracker().Track(rawPath, types.VendorThermo, 8, time.Now())
	// advance the tracked file into Processing so MarkDone/MarkFailed apply;
	// stat resync plus the zero-width stability window takes a handful of
	// ticks before the exclusive-open check lands it in Processing.
	for i := 0; i < 10 && inst.Watcher.Tracker().Snapshot()[0].State != types.StateProcessing; i++ {
		inst.Watcher.Tracker().Tick(context.Background())
	}
	require.Equal(t, types.StateProcessing, inst.Watcher.Tracker().Snapshot()[0].State)

	o.handle(context.Background(), ev)

	pending, err := o.cfg.Spool.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, 0, o.cfg.FailedFiles.Count())
}

func TestOrchestrator_HandleSkipsNonQCRun(t *testing.T) {
	o, inst, watchDir := setupOrchestrator(t)

	rawPath := filepath.Join(watchDir, "sample_001.raw")
	require.NoError(t, os.WriteFile(rawPath, []byte("raw data"), 0o644))

	ev := readyEvent{
		instrument: inst,
		file: &types.TrackedFile{
			Path:      rawPath,
			Vendor:    types.VendorThermo,
			FirstSeen: time.Now(),
		},
	}

	o.handle(context.Background(), ev)

	pending, err := o.cfg.Spool.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "non-QC runs must never reach the spool")
}

func TestOrchestrator_HandleSkipsBlankRun(t *testing.T) {
	o, inst, watchDir := setupOrchestrator(t)

	rawPath := filepath.Join(watchDir, "TIMSTOF01_BLANK_2026-01-27.raw")
	require.NoError(t, os.WriteFile(rawPath, []byte("raw data"), 0o644))

	ev := readyEvent{
		instrument: inst,
		file: &types.TrackedFile{
			Path:      rawPath,
			Vendor:    types.VendorThermo,
			FirstSeen: time.Now(),
		},
	}

	o.handle(context.Background(), ev)

	pending, err := o.cfg.Spool.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "blank runs must never reach the spool")
	assert.Equal(t, 0, o.cfg.FailedFiles.Count())
}

func TestOrchestrator_HandleRecordsExtractionFailure(t *testing.T) {
	o, inst, watchDir := setupOrchestrator(t)

	// Point the extractor at a binary path that does not exist, forcing
	// an extraction-stage failure for a QC-classified run.
	o.cfg.Extractor = extractor.New(extractor.Config{
		BinaryPath:   filepath.Join(watchDir, "does-not-exist"),
		TemplatePath: filepath.Join(watchDir, "also-missing"),
		WorkDir:      t.TempDir(),
	})

	rawPath := filepath.Join(watchDir, "sample_QCA_A1.raw")
	require.NoError(t, os.WriteFile(rawPath, []byte("raw data"), 0o644))

	ev := readyEvent{
		instrument: inst,
		file: &types.TrackedFile{
			Path:      rawPath,
			Vendor:    types.VendorThermo,
			FirstSeen: time.Now(),
		},
	}

	o.handle(context.Background(), ev)

	assert.Equal(t, 1, o.cfg.FailedFiles.Count())
	entry, ok := o.cfg.FailedFiles.GetForRetry(context.Background(), rawPath)
	require.True(t, ok)
	assert.Equal(t, "extraction", entry.Reason)
}
