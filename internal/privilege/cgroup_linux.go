//go:build linux

package privilege

import (
	"fmt"
	"strconv"
	"strings"

	cgroup2 "github.com/containerd/cgroups/v3/cgroup2"
)

// AttachCgroup implements spec.md §4.4's "after spawn" parent-side step:
// create /sys/fs/cgroup/systemg/<sanitized hash>/, put pid in it, and
// write the configured limits. Callers invoke it whenever a cgroup is
// configured, whether or not the supervisor is root; it does not check
// privileges itself, so a non-root supervisor gets the cgroup manager's
// permission error back, which the callers log as a warning before
// carrying on.
func AttachCgroup(hash string, pid int, spec *CgroupSpec) error {
	if spec == nil {
		return nil
	}
	path := "/systemg/" + sanitizeHash(hash)

	res := &cgroup2.Resources{}
	if spec.MemoryMax != "" {
		if v, ok := parseByteSize(spec.MemoryMax); ok {
			res.Memory = &cgroup2.Memory{Max: &v}
		}
	}
	if spec.CPUWeight > 0 {
		w := uint64(spec.CPUWeight)
		res.CPU = &cgroup2.CPU{Weight: &w}
	}
	if spec.CPUMax != "" {
		if quota, period, ok := parseCPUMax(spec.CPUMax); ok {
			if res.CPU == nil {
				res.CPU = &cgroup2.CPU{}
			}
			res.CPU.Max = cgroup2.NewCPUMax(quota, &period)
		}
	}

	manager, err := cgroup2.NewManager("/sys/fs/cgroup", path, res)
	if err != nil {
		return fmt.Errorf("create cgroup %s: %w", path, err)
	}
	if err := manager.AddProc(uint64(pid)); err != nil {
		return fmt.Errorf("attach pid %d to cgroup %s: %w", pid, path, err)
	}
	return nil
}

// parseCPUMax parses cpu.max's two-field wire format ("$quota $period",
// quota may be the literal "max") into the (quota, period) pair
// cgroup2.NewCPUMax expects. A nil quota means "max" (no limit).
func parseCPUMax(s string) (quota *int64, period uint64, ok bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, 0, false
	}
	period, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, 0, false
	}
	if fields[0] == "max" {
		return nil, period, true
	}
	q, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, 0, false
	}
	return &q, period, true
}

func sanitizeHash(hash string) string {
	out := make([]byte, 0, len(hash))
	for _, r := range hash {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, byte(r))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func parseByteSize(s string) (int64, bool) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, false
	}
	return v, true
}
