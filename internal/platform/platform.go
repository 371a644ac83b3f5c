// Package platform narrows the OS-specific capabilities the finalizer and
// watcher need — exclusive-open testing and network-path detection — behind
// a small interface. On non-Windows targets exclusive-open is a plain
// read-open and network detection recognises UNC paths only.
package platform

import (
	"os"
	"strings"
)

// TryExclusiveOpen reports whether path can be opened without any other
// process holding a conflicting handle. Directories always succeed here
// (exclusive-open has no meaning for them); the vendor completeness
// predicate is what actually gates directory-kind artifacts. On platforms
// without a native exclusive-open primitive this degrades to a normal
// read-open, which is still a reasonable "not obviously in use" signal.
func TryExclusiveOpen(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return true
	}
	return tryExclusiveOpenFile(path)
}

// IsNetworkPath reports whether path resides on a network-attached volume:
// a UNC path, or (on platforms that can tell) a drive whose type is remote.
// Network paths disable event-mode watching because change notifications
// are unreliable across SMB/CIFS.
func IsNetworkPath(path string) bool {
	if strings.HasPrefix(path, `\\`) {
		return true
	}
	return isNetworkDrive(path)
}
