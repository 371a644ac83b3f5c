//go:build windows

package platform

import (
	"golang.org/x/sys/windows"
)

func tryExclusiveOpenFile(path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	handle, err := windows.CreateFile(
		p,
		windows.GENERIC_READ,
		0, // no sharing: exclusive access required
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return false
	}
	_ = windows.CloseHandle(handle)
	return true
}

func isNetworkDrive(path string) bool {
	if len(path) < 3 || path[1] != ':' {
		return false
	}
	root := path[:3] + `\`
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return false
	}
	return windows.GetDriveType(p) == windows.DRIVE_REMOTE
}
