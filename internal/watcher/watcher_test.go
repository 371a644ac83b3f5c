package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/finalizer"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

func TestWatcher_AdmitsMatchingVendorShapeOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.raw"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.d"), 0o755))

	w := New(Config{
		InstrumentID:    "inst-1",
		WatchPath:       dir,
		Vendor:          types.VendorThermo,
		FinalizerConfig: finalizer.DefaultConfig(),
	})

	w.scan(zerolog.Nop())

	snap := w.Tracker().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, filepath.Join(dir, "a.raw"), snap[0].Path)
}

func TestWatcher_PollOnlyOnNetworkPath(t *testing.T) {
	w := New(Config{
		InstrumentID:    "inst-1",
		WatchPath:       `\\server\share\data`,
		Vendor:          types.VendorThermo,
		FinalizerConfig: finalizer.DefaultConfig(),
	})
	assert.False(t, w.eventMode)
}

func TestWatcher_RunExitsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		InstrumentID:    "inst-1",
		WatchPath:       dir,
		Vendor:          types.VendorThermo,
		ScanInterval:    time.Millisecond,
		ForcePollOnly:   true,
		FinalizerConfig: finalizer.DefaultConfig(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.NoError(t, err)
}
