//go:build linux

package status

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// probeProcess reads /proc/{pid}/stat for the process state character and
// the directory's mtime for uptime, per spec.md §4.8 step 4/6.
func probeProcess(pid int) (ProcessState, *int64, error) {
	path := fmt.Sprintf("/proc/%d", pid)
	info, err := os.Stat(path)
	if err != nil {
		return ProcessMissing, nil, nil
	}

	state := readStatChar(pid)
	var procState ProcessState
	switch state {
	case 'Z', 'X':
		procState = ProcessZombie
	case 0:
		return ProcessMissing, nil, nil
	default:
		procState = ProcessRunning
	}

	uptime := int64(time.Since(info.ModTime()).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	return procState, &uptime, nil
}

// readStatChar extracts the third whitespace-delimited field of
// /proc/{pid}/stat, which is the single-character process state. The
// comm field can itself contain spaces/parens, so split on the last ')'
// rather than naive whitespace splitting.
func readStatChar(pid int) byte {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0
	}
	s := string(b)
	idx := strings.LastIndexByte(s, ')')
	if idx < 0 || idx+2 >= len(s) {
		return 0
	}
	rest := strings.TrimSpace(s[idx+1:])
	if rest == "" {
		return 0
	}
	return rest[0]
}
