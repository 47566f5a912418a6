//go:build !linux && !darwin

package status

import "golang.org/x/sys/unix"

// probeProcess falls back to kill(pid, 0) on platforms without /proc or
// ps-based uptime support; uptime is left unknown.
func probeProcess(pid int) (ProcessState, *int64, error) {
	if err := unix.Kill(pid, 0); err != nil {
		if err == unix.ESRCH {
			return ProcessMissing, nil, nil
		}
	}
	return ProcessRunning, nil, nil
}
