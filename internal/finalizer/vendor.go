package finalizer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
)

// MatchesVendorShape is the Watcher's admission filter: the path extension
// and kind (file vs. directory) must match what the vendor declares.
func MatchesVendorShape(path string, vendor types.Vendor) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch vendor {
	case types.VendorThermo:
		return !info.IsDir() && ext == "raw"
	case types.VendorBruker:
		return info.IsDir() && ext == "d"
	case types.VendorSciex:
		return !info.IsDir() && (ext == "wiff" || ext == "wiff2")
	case types.VendorWaters:
		return info.IsDir() && ext == "raw"
	case types.VendorAgilent:
		return info.IsDir() && ext == "d"
	default:
		return false
	}
}

// primaryMember is the file whose (size, mtime) snapshot drives the
// stability check, relative to the artifact path.
func primaryMember(path string, vendor types.Vendor) string {
	switch vendor {
	case types.VendorBruker:
		return filepath.Join(path, "analysis.tdf")
	case types.VendorWaters:
		return filepath.Join(path, "_FUNC001.DAT")
	case types.VendorAgilent:
		return filepath.Join(path, "AcqData", "MSScan.bin")
	default:
		// Thermo and Sciex are single files: the artifact path itself.
		return path
	}
}

// stat returns the (size, mtime) snapshot used for the stability check.
// Sciex additionally folds in the companion .wiff.scan file, aggregating
// its size and taking the later of the two mtimes. Agilent falls back to
// stat'ing the AcqData directory itself when MSScan.bin is absent.
func stat(path string, vendor types.Vendor) (size int64, mtime int64, ok bool) {
	primary := primaryMember(path, vendor)
	info, err := os.Stat(primary)
	if err != nil && vendor == types.VendorAgilent {
		info, err = os.Stat(filepath.Join(path, "AcqData"))
	}
	if err != nil {
		return 0, 0, false
	}
	size = info.Size()
	mtime = info.ModTime().UnixNano()

	if vendor == types.VendorSciex {
		scanPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".wiff.scan"
		if scanInfo, err := os.Stat(scanPath); err == nil {
			size += scanInfo.Size()
			if scanInfo.ModTime().UnixNano() > mtime {
				mtime = scanInfo.ModTime().UnixNano()
			}
		}
	}

	return size, mtime, true
}

// lockSentinels lists the vendor's lock-file siblings whose mere presence
// forces the completeness predicate false.
func lockSentinels(path string, vendor types.Vendor) []string {
	switch vendor {
	case types.VendorBruker:
		return []string{
			filepath.Join(path, "analysis.tdf-journal"),
			filepath.Join(path, "analysis.tdf-lock"),
		}
	case types.VendorWaters:
		return []string{filepath.Join(path, "_LOCK_")}
	default:
		return nil
	}
}

func anyExists(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// isComplete evaluates the vendor-specific completeness predicate: the
// primary member must exist (checked by the caller via stat) and no lock
// sentinel may be present, plus any vendor-specific extra condition.
func isComplete(path string, vendor types.Vendor) bool {
	if anyExists(lockSentinels(path, vendor)) {
		return false
	}

	switch vendor {
	case types.VendorThermo:
		return true
	case types.VendorBruker:
		_, err := os.Stat(filepath.Join(path, "analysis.tdf"))
		return err == nil
	case types.VendorSciex:
		return true
	case types.VendorWaters:
		if _, err := os.Stat(filepath.Join(path, "_FUNC001.DAT")); err != nil {
			return false
		}
		_, err := os.Stat(filepath.Join(path, "_extern.inf"))
		return err == nil
	case types.VendorAgilent:
		info, err := os.Stat(filepath.Join(path, "AcqData"))
		return err == nil && info.IsDir()
	default:
		return false
	}
}
