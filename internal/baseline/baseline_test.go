package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

func TestManager_UpdateAndGetActive(t *testing.T) {
	m := NewManager()
	b := types.Baseline{BaselineID: "b1", InstrumentID: "inst-1", State: types.BaselineCandidate, Established: time.Now()}
	require.NoError(t, m.Update(b))

	got, ok := m.GetActive("inst-1")
	require.True(t, ok)
	assert.Equal(t, "b1", got.BaselineID)
}

func TestManager_AdvanceWalksLifecycle(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Update(types.Baseline{InstrumentID: "inst-1", State: types.BaselineCandidate}))

	ctx := context.Background()
	state, err := m.Advance(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, types.BaselineValidating, state)

	state, err = m.Advance(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, types.BaselineActive, state)

	_, err = m.Advance(ctx, "inst-1")
	assert.Error(t, err, "Active has no further advance transition")
}

func TestManager_ClearRemovesBaseline(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Update(types.Baseline{InstrumentID: "inst-1", State: types.BaselineCandidate}))
	m.Clear("inst-1")

	_, ok := m.GetActive("inst-1")
	assert.False(t, ok)
}

func TestComparison_FlagsOutliersPastThreshold(t *testing.T) {
	baseline := types.Baseline{
		TargetMetrics: []types.TargetMetrics{
			{TargetID: "PEP1", RetentionTime: 12.0, PeakArea: 100000},
			{TargetID: "PEP2", RetentionTime: 8.0, PeakArea: 50000},
		},
	}

	targets := []types.TargetMetrics{
		{TargetID: "PEP1", RetentionTime: 12.1, PeakArea: 98000},  // ratio ~0.98, not an outlier
		{TargetID: "PEP2", RetentionTime: 8.3, PeakArea: 20000},   // ratio 0.4, an outlier
	}

	cmp := Comparison(targets, baseline)
	assert.Equal(t, []string{"PEP2"}, cmp.OutlierTargets)
	assert.InDelta(t, 0.2, cmp.RTShiftMean, 0.001)
}

func TestComparison_IgnoresTargetsMissingFromBaseline(t *testing.T) {
	baseline := types.Baseline{TargetMetrics: []types.TargetMetrics{{TargetID: "PEP1", PeakArea: 100}}}
	targets := []types.TargetMetrics{{TargetID: "UNKNOWN", PeakArea: 50}}

	cmp := Comparison(targets, baseline)
	assert.Empty(t, cmp.OutlierTargets)
	assert.Equal(t, 0.0, cmp.RTShiftMean)
}
