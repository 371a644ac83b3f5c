package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

func TestClassify_SSC0Variants(t *testing.T) {
	names := []string{
		"TIMSTOF01_SSC0_A1_2026-01-27.d",
		"TIMSTOF01_SSC_0_A1_2026-01-27.d",
		"TIMSTOF01_ssc-0_A1_2026-01-27.d",
	}
	for _, name := range names {
		c, err := Classify(name, "TIMSTOF01")
		require.NoError(t, err)
		assert.Equal(t, types.ControlSSC0, c.ControlType, name)
		assert.Equal(t, types.SourceFilename, c.Source, name)
		require.NotNil(t, c.WellPosition, name)
		assert.Equal(t, "A1", c.WellPosition.String(), name)
		assert.Equal(t, types.ConfidenceHigh, c.Confidence, name)
	}
}

func TestClassify_WellOnlyInference(t *testing.T) {
	c, err := Classify("TIMSTOF01_A3_2026-01-27.d", "TIMSTOF01")
	require.NoError(t, err)
	assert.Equal(t, types.ControlQCB, c.ControlType)
	assert.Equal(t, types.SourcePosition, c.Source)
	assert.Equal(t, types.ConfidenceMedium, c.Confidence)
}

func TestClassify_DefaultSample(t *testing.T) {
	c, err := Classify("random_file_name.d", "TIMSTOF01")
	require.NoError(t, err)
	assert.Equal(t, types.ControlSample, c.ControlType)
	assert.Equal(t, types.SourceDefault, c.Source)
	assert.Equal(t, types.ConfidenceLow, c.Confidence)
}

func TestClassify_Blank(t *testing.T) {
	c, err := Classify("TIMSTOF01_BLANK_2026-01-27.d", "TIMSTOF01")
	require.NoError(t, err)
	assert.Equal(t, types.ControlBlank, c.ControlType)
	assert.Equal(t, types.SourceFilename, c.Source)
	assert.Equal(t, types.ConfidenceMedium, c.Confidence)
}

func TestClassify_BorderlineSSCANotSSC0(t *testing.T) {
	c, err := Classify("TIMSTOF01_SSCA_A1_2026-01-27.d", "TIMSTOF01")
	require.NoError(t, err)
	assert.NotEqual(t, types.ControlSSC0, c.ControlType)
}

func TestClassify_Deterministic(t *testing.T) {
	name := "TIMSTOF01_QCB_A3_2026-01-27.d"
	first, err := Classify(name, "TIMSTOF01")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Classify(name, "TIMSTOF01")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestClassify_UnparseablePath(t *testing.T) {
	_, err := Classify("/", "TIMSTOF01")
	assert.ErrorIs(t, err, ErrFilenameUnparseable)
}

func TestClassify_PlateID(t *testing.T) {
	c, err := Classify("TIMSTOF01_QCA_A1_plate7_2026-01-27.d", "TIMSTOF01")
	require.NoError(t, err)
	assert.Equal(t, "plate7", c.PlateID)
}
