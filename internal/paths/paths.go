// Package paths resolves the agent's on-disk layout from a single data
// directory root: the spool tree, the failed-files registry, and the
// extractor's scratch work directory all live underneath it so a single
// backup of data_dir captures everything the agent cannot afford to lose.
package paths

import "path/filepath"

// Layout is the set of paths derived from one data directory.
type Layout struct {
	root string
}

// NewLayout builds a Layout rooted at dataDir.
func NewLayout(dataDir string) Layout {
	return Layout{root: dataDir}
}

// Root returns the data directory itself.
func (l Layout) Root() string { return l.root }

// SpoolDir is the root of the four-directory durable upload queue.
func (l Layout) SpoolDir() string { return filepath.Join(l.root, "spool") }

// FailedFilesPath is the JSON registry of artifacts that failed before
// producing a payload.
func (l Layout) FailedFilesPath() string { return filepath.Join(l.root, "failed_files.json") }

// ExtractorWorkDir is the scratch directory the extractor writes its
// intermediate CSV reports into.
func (l Layout) ExtractorWorkDir() string { return filepath.Join(l.root, "extract_work") }

// LogPath is the agent's own log file, for deployments that don't run
// under a service manager capturing stdout.
func (l Layout) LogPath() string { return filepath.Join(l.root, "agent.log") }
