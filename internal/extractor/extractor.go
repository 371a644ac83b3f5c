// Package extractor invokes the configured Skyline-compatible
// command-line backend against a finalized artifact and parses its CSV
// report into TargetMetrics. Columns are located by normalized header
// name rather than position, so the report format can gain or reorder
// columns without breaking the parser.
package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

// Config locates the extraction backend binary, its quantitation
// template, and the work directory used for intermediate report files.
type Config struct {
	BinaryPath   string
	TemplatePath string
	WorkDir      string
	Timeout      time.Duration
}

// Extractor runs the configured backend and parses its report.
type Extractor struct {
	cfg Config
}

func New(cfg Config) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &Extractor{cfg: cfg}
}

// Extract runs the backend against rawPath and returns the parsed
// result. The report CSV is removed once parsed, win or lose.
func (e *Extractor) Extract(ctx context.Context, rawPath string) (*types.ExtractionResult, error) {
	logger := log.FromContext(ctx)

	if _, err := os.Stat(e.cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("extractor: backend not found at %s: %w", e.cfg.BinaryPath, err)
	}
	if _, err := os.Stat(e.cfg.TemplatePath); err != nil {
		return nil, fmt.Errorf("extractor: template not found at %s: %w", e.cfg.TemplatePath, err)
	}

	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("extractor: create work dir: %w", err)
	}

	runID := uuid.New()
	reportPath := filepath.Join(e.cfg.WorkDir, fmt.Sprintf("%s_report.csv", runID))
	defer func() { _ = os.Remove(reportPath) }()

	templateHash, err := hashPath(e.cfg.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("extractor: hash template: %w", err)
	}

	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.BinaryPath,
		"--in", e.cfg.TemplatePath,
		"--import-file", rawPath,
		"--report-name", "MD_QC_Report",
		"--report-file", reportPath,
		"--report-format", "csv",
	)

	out, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if runCtx.Err() != nil {
		return nil, fmt.Errorf("extractor: backend timed out after %s", e.cfg.Timeout)
	}
	if runErr != nil {
		return nil, fmt.Errorf("extractor: backend execution failed: %w: %s", runErr, string(out))
	}

	targets, err := parseReport(reportPath)
	if err != nil {
		return nil, fmt.Errorf("extractor: parse report: %w", err)
	}

	rawHash, err := hashPath(rawPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", rawPath).Msg("failed to hash raw artifact")
		rawHash = ""
	}

	logger.Info().
		Str("raw_file", rawPath).
		Int("targets_found", countDetected(targets)).
		Dur("extraction_time", elapsed).
		Msg("extraction complete")

	return &types.ExtractionResult{
		RunID:            runID,
		RawFilePath:      rawPath,
		RawFileName:      filepath.Base(rawPath),
		RawFileHash:      rawHash,
		ExtractionTime:   elapsed,
		ExtractorName:    "skyline",
		ExtractorVersion: backendVersion(ctx, e.cfg.BinaryPath),
		TemplateName:     filepath.Base(e.cfg.TemplatePath),
		TemplateHash:     templateHash,
		TargetMetrics:    targets,
		RunMetrics:       computeRunMetrics(targets),
	}, nil
}

func countDetected(targets []types.TargetMetrics) int {
	n := 0
	for _, t := range targets {
		if t.Detected {
			n++
		}
	}
	return n
}

func backendVersion(ctx context.Context, binaryPath string) string {
	out, err := exec.CommandContext(ctx, binaryPath, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// canonicalColumns maps a normalized header fragment to the field it
// identifies. Matching is substring-based against the normalized header,
// so "Retention Time (min)" and "RT" both resolve to retentionTime.
var canonicalColumns = []struct {
	field   string
	matches []string
}{
	{"targetID", []string{"targetid", "target_id", "peptide"}},
	{"peptideSequence", []string{"peptidesequence", "sequence"}},
	{"precursorMZ", []string{"precursormz", "precursor m/z", "precursor"}},
	{"retentionTime", []string{"retentiontime", "rt"}},
	{"rtExpected", []string{"rtexpected", "expectedrt", "expected rt"}},
	{"rtDelta", []string{"rtdelta", "rt delta", "rt shift"}},
	{"peakArea", []string{"peakarea", "area"}},
	{"peakHeight", []string{"peakheight", "height"}},
	{"peakWidthFWHM", []string{"fwhm", "peakwidth"}},
	{"peakSymmetry", []string{"symmetry"}},
	{"massErrorPPM", []string{"masserror", "ppm"}},
	{"isotopeDotProduct", []string{"idotp", "isotopedotproduct", "dotproduct"}},
}

// normalizeHeader lowercases a header and strips everything but letters,
// digits and spaces, so "Mass Error (ppm)" becomes "mass error ppm".
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// columnIndex maps a report's header row to field->column index, by
// normalized substring match against the header both with and without
// its spaces. Each canonical field keeps the first matching column found,
// scanning headers left to right.
func columnIndex(headers []string) map[string]int {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	idx := make(map[string]int, len(canonicalColumns))
	for _, col := range canonicalColumns {
	columns:
		for i, h := range normalized {
			compact := strings.ReplaceAll(h, " ", "")
			for _, candidate := range col.matches {
				if strings.Contains(h, candidate) || strings.Contains(compact, candidate) {
					idx[col.field] = i
					break columns
				}
			}
		}
	}
	return idx
}

func parseReport(path string) ([]types.TargetMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	idx := columnIndex(header)

	var out []types.TargetMetrics
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rowToMetrics(record, idx))
	}
	return out, nil
}

func rowToMetrics(record []string, idx map[string]int) types.TargetMetrics {
	get := func(field string) (string, bool) {
		i, ok := idx[field]
		if !ok || i >= len(record) {
			return "", false
		}
		return record[i], true
	}
	getFloat := func(field string) (float64, bool) {
		s, ok := get(field)
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	optFloat := func(field string) *float64 {
		v, ok := getFloat(field)
		if !ok {
			return nil
		}
		return &v
	}

	targetID, _ := get("targetID")
	peptide, _ := get("peptideSequence")
	mz, _ := getFloat("precursorMZ")
	rt, _ := getFloat("retentionTime")
	area, _ := getFloat("peakArea")
	height, _ := getFloat("peakHeight")

	return types.TargetMetrics{
		TargetID:          targetID,
		PeptideSequence:   peptide,
		PrecursorMZ:       mz,
		RetentionTime:     rt,
		RTExpected:        optFloat("rtExpected"),
		RTDelta:           optFloat("rtDelta"),
		PeakArea:          area,
		PeakHeight:        height,
		PeakWidthFWHM:     optFloat("peakWidthFWHM"),
		PeakSymmetry:      optFloat("peakSymmetry"),
		MassErrorPPM:      optFloat("massErrorPPM"),
		IsotopeDotProduct: optFloat("isotopeDotProduct"),
		Detected:          area > 0,
	}
}

func computeRunMetrics(targets []types.TargetMetrics) types.RunMetrics {
	found := countDetected(targets)

	var rtDeltas, massErrors []float64
	for _, t := range targets {
		if t.RTDelta != nil {
			rtDeltas = append(rtDeltas, *t.RTDelta)
		}
		if t.MassErrorPPM != nil {
			massErrors = append(massErrors, *t.MassErrorPPM)
		}
	}

	recovery := 0.0
	if len(targets) > 0 {
		recovery = float64(found) / float64(len(targets)) * 100.0
	}

	return types.RunMetrics{
		TargetsFound:       found,
		TargetsExpected:    len(targets),
		TargetRecoveryPct:  recovery,
		MedianRTShift:      median(rtDeltas),
		MedianMassErrorPPM: median(massErrors),
	}
}

// median returns the midpoint of a sorted copy of values, or nil if
// values is empty.
func median(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	var m float64
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		m = sorted[mid]
	}
	return &m
}

// hashPath SHA-256 hashes a single file, or, for a directory-kind
// artifact, a deterministic concatenation of its entries' names and
// sizes (sorted by name) — directory contents can't be streamed through
// a single hash the way a file can.
func hashPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	h := sha256.New()

	if !info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer func() { _ = f.Close() }()
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		h.Write([]byte(e.Name()))
		var sizeBuf [8]byte
		for i := 0; i < 8; i++ {
			sizeBuf[i] = byte(info.Size() >> (8 * i))
		}
		h.Write(sizeBuf[:])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
