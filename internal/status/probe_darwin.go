//go:build darwin

package status

import (
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// probeProcess uses kill(pid, 0) for liveness (macOS has no /proc) and
// `ps -o etime=` for uptime, per spec.md §4.8 steps 4/6.
func probeProcess(pid int) (ProcessState, *int64, error) {
	if err := unix.Kill(pid, 0); err != nil {
		if err == unix.ESRCH {
			return ProcessMissing, nil, nil
		}
		// EPERM still means the process exists.
	}

	uptime := readEtimeSeconds(pid)
	return ProcessRunning, uptime, nil
}

func readEtimeSeconds(pid int) *int64 {
	out, err := exec.Command("ps", "-o", "etime=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}
	secs := parseEtime(strings.TrimSpace(string(out)))
	if secs < 0 {
		return nil
	}
	return &secs
}

// parseEtime parses ps's etime format: [[DD-]HH:]MM:SS.
func parseEtime(s string) int64 {
	var days int64
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		d, err := strconv.ParseInt(s[:idx], 10, 64)
		if err != nil {
			return -1
		}
		days = d
		s = s[idx+1:]
	}
	parts := strings.Split(s, ":")
	var h, m, sec int64
	var err error
	switch len(parts) {
	case 3:
		h, err = strconv.ParseInt(parts[0], 10, 64)
		if err == nil {
			m, err = strconv.ParseInt(parts[1], 10, 64)
		}
		if err == nil {
			sec, err = strconv.ParseInt(parts[2], 10, 64)
		}
	case 2:
		m, err = strconv.ParseInt(parts[0], 10, 64)
		if err == nil {
			sec, err = strconv.ParseInt(parts[1], 10, 64)
		}
	default:
		return -1
	}
	if err != nil {
		return -1
	}
	return days*86400 + h*3600 + m*60 + sec
}
