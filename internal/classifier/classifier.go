// Package classifier maps an artifact filename and well position to a
// control-role classification. It is a pure, deterministic function of its
// inputs: the same filename and instrument id always yield byte-identical
// output.
package classifier

import (
	"errors"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

// ErrFilenameUnparseable is returned when a path has no representable
// file-name component.
var ErrFilenameUnparseable = errors.New("classifier: path has no filename component")

// Classify classifies a raw artifact path for the given instrument id.
// It always succeeds with a (possibly Sample/Default) classification unless
// the path carries no filename at all.
func Classify(path, instrumentID string) (types.Classification, error) {
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return types.Classification{}, ErrFilenameUnparseable
	}

	stem := name
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		stem = name[:idx]
	}
	tokens := tokenize(name)

	controlType, source := extractControlType(stem)
	well := extractWellPosition(tokens)

	if controlType == types.ControlSample && source == types.SourceDefault {
		if well != nil {
			if inferred := inferFromWell(*well); inferred != types.ControlSample {
				controlType = inferred
				source = types.SourcePosition
			}
		}
	}

	confidence := confidenceFor(controlType, well, source)

	return types.Classification{
		ControlType:  controlType,
		WellPosition: well,
		InstrumentID: instrumentID,
		PlateID:      extractPlateID(tokens),
		Confidence:   confidence,
		Source:       source,
	}, nil
}

func confidenceFor(ct types.ControlType, well *types.WellPosition, source types.ClassificationSource) types.ClassificationConfidence {
	switch {
	case source == types.SourceFilename && ct.IsQC() && well != nil:
		return types.ConfidenceHigh
	case source == types.SourceFilename && ct.IsQC() && well == nil:
		return types.ConfidenceMedium
	case source == types.SourcePosition && well != nil:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// tokenize splits a filename (extension discarded) on '_', '-', '.', and
// whitespace.
func tokenize(filename string) []string {
	stem := filename
	if idx := strings.LastIndexByte(filename, '.'); idx >= 0 {
		stem = filename[:idx]
	}
	return strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' ' || r == '\t'
	})
}

// Control-role tokens are matched case-insensitively against the filename
// stem, bounded by a delimiter (one of "_-. " or whitespace) or string
// edge, and allow a single optional '_'/'-' between the letters and the
// digit (so "SSC0", "SSC_0" and "SSC-0" are equivalent). This is the
// "regex-bounded" behavior named authoritative for borderline tokens such
// as "SSCA", which matches none of these and falls through to Sample.
const boundary = `(?:^|[_\-.\s])`
const boundaryEnd = `(?:$|[_\-.\s])`

var (
	ssc0Re  = regexp.MustCompile(`(?i)` + boundary + `SSC[_-]?0` + boundaryEnd)
	qcaRe   = regexp.MustCompile(`(?i)` + boundary + `QC[_-]?A` + boundaryEnd)
	qcbRe   = regexp.MustCompile(`(?i)` + boundary + `QC[_-]?B` + boundaryEnd)
	blankRe = regexp.MustCompile(`(?i)` + boundary + `(?:BLANK|BLK)` + boundaryEnd)
)

// extractControlType returns the first filename-role match in the
// authoritative priority order SSC0 > QC_A > QC_B > Blank.
func extractControlType(stem string) (types.ControlType, types.ClassificationSource) {
	switch {
	case ssc0Re.MatchString(stem):
		return types.ControlSSC0, types.SourceFilename
	case qcaRe.MatchString(stem):
		return types.ControlQCA, types.SourceFilename
	case qcbRe.MatchString(stem):
		return types.ControlQCB, types.SourceFilename
	case blankRe.MatchString(stem):
		return types.ControlBlank, types.SourceFilename
	default:
		return types.ControlSample, types.SourceDefault
	}
}

// extractWellPosition finds the first standalone token matching a plate well
// (row A-H, column 1-12).
func extractWellPosition(tokens []string) *types.WellPosition {
	for _, t := range tokens {
		if w, ok := parseWell(t); ok {
			return &w
		}
	}
	return nil
}

func parseWell(token string) (types.WellPosition, bool) {
	if len(token) < 2 || len(token) > 3 {
		return types.WellPosition{}, false
	}
	row := token[0]
	if row >= 'a' && row <= 'z' {
		row -= 'a' - 'A'
	}
	if row < 'A' || row > 'H' {
		return types.WellPosition{}, false
	}
	col, err := strconv.Atoi(token[1:])
	if err != nil {
		return types.WellPosition{}, false
	}
	return types.NewWellPosition(row, col)
}

// inferFromWell applies the plate-default mapping when no filename role
// matched: A1-A2 => QC_A, A3-A4 => QC_B, otherwise Sample.
func inferFromWell(w types.WellPosition) types.ControlType {
	if w.Row != 'A' {
		return types.ControlSample
	}
	switch w.Column {
	case 1, 2:
		return types.ControlQCA
	case 3, 4:
		return types.ControlQCB
	default:
		return types.ControlSample
	}
}

// extractPlateID looks for a token that looks like a plate identifier
// ("plate1", "plt-A", ...).
func extractPlateID(tokens []string) string {
	for _, t := range tokens {
		lower := strings.ToLower(t)
		if strings.HasPrefix(lower, "plate") || strings.HasPrefix(lower, "plt") {
			return t
		}
	}
	return ""
}
