//go:build windows

package lockmgr

import "golang.org/x/sys/windows"

func isProcessAlive(pid int) bool {
	const processQueryLimitedInformation = 0x1000

	handle, err := windows.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	const stillActive = 259
	return exitCode == stillActive
}
