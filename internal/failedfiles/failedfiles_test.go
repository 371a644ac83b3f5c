package failedfiles

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordAndRetrieve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed_files.json")
	s, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	s.RecordFailure(ctx, "/data/a.raw", "inst-1", "stabilization timeout")

	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, "/data/a.raw", all[0].Path)
	assert.Equal(t, 0, all[0].RetryCount)

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Count())
}

func TestStore_MarkSuccessRemoves(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "failed_files.json"))
	require.NoError(t, err)

	ctx := context.Background()
	s.RecordFailure(ctx, "/data/a.raw", "inst-1", "timeout")
	s.MarkSuccess(ctx, "/data/a.raw")
	assert.Equal(t, 0, s.Count())
}

func TestStore_GetForRetryIncrementsCount(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "failed_files.json"))
	require.NoError(t, err)

	ctx := context.Background()
	s.RecordFailure(ctx, "/data/a.raw", "inst-1", "timeout")

	e, ok := s.GetForRetry(ctx, "/data/a.raw")
	require.True(t, ok)
	assert.Equal(t, 1, e.RetryCount)
}

func TestStore_TrimsToMaxEntries(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "failed_files.json"))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < MaxEntries+10; i++ {
		s.RecordFailure(ctx, filepath.Join("/data", fmt.Sprintf("run-%03d.raw", i)), "inst-1", "timeout")
	}
	assert.LessOrEqual(t, s.Count(), MaxEntries)
}

func TestStore_ClearEmpties(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "failed_files.json"))
	require.NoError(t, err)

	ctx := context.Background()
	s.RecordFailure(ctx, "/data/a.raw", "inst-1", "timeout")
	s.Clear(ctx)
	assert.Equal(t, 0, s.Count())
}
