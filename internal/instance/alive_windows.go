//go:build windows

package instance

import "golang.org/x/sys/windows"

// processAlive on windows opens a handle with SYNCHRONIZE and polls it
// with a zero timeout, since unlike unix there is no kill(pid, 0) and
// os.Process.Wait only works for the calling process's own children.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	ev, err := windows.WaitForSingleObject(h, 0)
	if err != nil {
		return false
	}
	return ev == uint32(windows.WAIT_TIMEOUT)
}
