package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout_DerivesChildPaths(t *testing.T) {
	l := NewLayout("/var/lib/qc-agent")

	assert.Equal(t, "/var/lib/qc-agent", l.Root())
	assert.Equal(t, filepath.Join("/var/lib/qc-agent", "spool"), l.SpoolDir())
	assert.Equal(t, filepath.Join("/var/lib/qc-agent", "failed_files.json"), l.FailedFilesPath())
	assert.Equal(t, filepath.Join("/var/lib/qc-agent", "extract_work"), l.ExtractorWorkDir())
	assert.Equal(t, filepath.Join("/var/lib/qc-agent", "agent.log"), l.LogPath())
}
