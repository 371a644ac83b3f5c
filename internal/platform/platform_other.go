//go:build !windows

package platform

import "os"

func tryExclusiveOpenFile(path string) bool {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// isNetworkDrive has no non-Windows analogue: UNC-prefix detection in
// IsNetworkPath is the only signal available.
func isNetworkDrive(_ string) bool {
	return false
}
