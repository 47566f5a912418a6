// Package unitid computes the stable config hash that identifies a unit
// across renames and across map/key iteration order differences, per
// spec.md §6 ("Config hash").
package unitid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Hook mirrors the hash-relevant fields of a single hook definition.
type Hook struct {
	Command string
	Timeout string
}

// Hooks mirrors the hash-relevant fields of a unit's hook set.
type Hooks struct {
	OnStartSuccess   *Hook
	OnStartError     *Hook
	OnStopSuccess    *Hook
	OnStopError      *Hook
	OnRestartSuccess *Hook
	OnRestartError   *Hook
}

// Limits mirrors the hash-relevant resource limit fields.
type Limits struct {
	NoFile      int64
	NProc       int64
	MemLock     int64
	Nice        int
	CPUAffinity []int
	CgroupMem   int64
	CgroupCPU   string
	CgroupWeigh int64
}

// Isolation mirrors the hash-relevant isolation fields.
type Isolation struct {
	NetworkNS  bool
	MountNS    bool
	PidNS      bool
	UserNS     bool
	PrivateTmp bool
	Seccomp    string
	AppArmor   string
	SELinux    string
}

// Spawn mirrors the hash-relevant dynamic spawn quota fields.
type Spawn struct {
	Mode     string
	MaxTotal int
}

// Cron mirrors the hash-relevant cron scheduling fields.
type Cron struct {
	Expression string
	Timezone   string
}

// Spec is the canonical, hash-relevant projection of a unit's effective
// configuration. Field order here mirrors spec.md §6 exactly: command, env
// map (sorted keys), restart policy, backoff, max_restarts, depends_on
// (declared order), hooks, cron, user/group/supplementary, capabilities
// (sorted), limits, isolation, spawn, skip. The service's display name is
// deliberately excluded so renames do not change the hash.
type Spec struct {
	Command             string
	Env                 map[string]string
	RestartPolicy        string
	Backoff              string
	MaxRestarts          int
	DependsOn            []string
	Hooks                *Hooks
	Cron                 *Cron
	User                 string
	Group                string
	SupplementaryGroups  []string
	Capabilities         []string
	Limits               *Limits
	Isolation            *Isolation
	Spawn                *Spawn
	Skip                 bool
}

// Hash returns the deterministic hex digest for spec. Two Specs built from
// configs that differ only in unit key order or map iteration order
// produce identical output, because every collection is sorted before
// being folded into the digest (spec.md §8 invariant 11).
func Hash(s Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "command=%s\n", s.Command)

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "env.%s=%s\n", k, s.Env[k])
	}

	fmt.Fprintf(&b, "restart_policy=%s\n", s.RestartPolicy)
	fmt.Fprintf(&b, "backoff=%s\n", s.Backoff)
	fmt.Fprintf(&b, "max_restarts=%d\n", s.MaxRestarts)
	for i, d := range s.DependsOn {
		fmt.Fprintf(&b, "depends_on[%d]=%s\n", i, d)
	}

	writeHook := func(name string, h *Hook) {
		if h == nil {
			return
		}
		fmt.Fprintf(&b, "hook.%s.command=%s\n", name, h.Command)
		fmt.Fprintf(&b, "hook.%s.timeout=%s\n", name, h.Timeout)
	}
	if s.Hooks != nil {
		writeHook("on_start.success", s.Hooks.OnStartSuccess)
		writeHook("on_start.error", s.Hooks.OnStartError)
		writeHook("on_stop.success", s.Hooks.OnStopSuccess)
		writeHook("on_stop.error", s.Hooks.OnStopError)
		writeHook("on_restart.success", s.Hooks.OnRestartSuccess)
		writeHook("on_restart.error", s.Hooks.OnRestartError)
	}

	if s.Cron != nil {
		fmt.Fprintf(&b, "cron.expression=%s\n", s.Cron.Expression)
		fmt.Fprintf(&b, "cron.timezone=%s\n", s.Cron.Timezone)
	}

	fmt.Fprintf(&b, "user=%s\n", s.User)
	fmt.Fprintf(&b, "group=%s\n", s.Group)
	sg := append([]string(nil), s.SupplementaryGroups...)
	sort.Strings(sg)
	for _, g := range sg {
		fmt.Fprintf(&b, "supplementary_group=%s\n", g)
	}

	caps := append([]string(nil), s.Capabilities...)
	sort.Strings(caps)
	for _, c := range caps {
		fmt.Fprintf(&b, "capability=%s\n", c)
	}

	if s.Limits != nil {
		fmt.Fprintf(&b, "limits.nofile=%d\n", s.Limits.NoFile)
		fmt.Fprintf(&b, "limits.nproc=%d\n", s.Limits.NProc)
		fmt.Fprintf(&b, "limits.memlock=%d\n", s.Limits.MemLock)
		fmt.Fprintf(&b, "limits.nice=%d\n", s.Limits.Nice)
		aff := append([]int(nil), s.Limits.CPUAffinity...)
		sort.Ints(aff)
		for _, a := range aff {
			fmt.Fprintf(&b, "limits.cpu_affinity=%s\n", strconv.Itoa(a))
		}
		fmt.Fprintf(&b, "limits.cgroup.mem=%d\n", s.Limits.CgroupMem)
		fmt.Fprintf(&b, "limits.cgroup.cpu=%s\n", s.Limits.CgroupCPU)
		fmt.Fprintf(&b, "limits.cgroup.weight=%d\n", s.Limits.CgroupWeigh)
	}

	if s.Isolation != nil {
		fmt.Fprintf(&b, "isolation.network_ns=%t\n", s.Isolation.NetworkNS)
		fmt.Fprintf(&b, "isolation.mount_ns=%t\n", s.Isolation.MountNS)
		fmt.Fprintf(&b, "isolation.pid_ns=%t\n", s.Isolation.PidNS)
		fmt.Fprintf(&b, "isolation.user_ns=%t\n", s.Isolation.UserNS)
		fmt.Fprintf(&b, "isolation.private_tmp=%t\n", s.Isolation.PrivateTmp)
		fmt.Fprintf(&b, "isolation.seccomp=%s\n", s.Isolation.Seccomp)
		fmt.Fprintf(&b, "isolation.apparmor=%s\n", s.Isolation.AppArmor)
		fmt.Fprintf(&b, "isolation.selinux=%s\n", s.Isolation.SELinux)
	}

	if s.Spawn != nil {
		fmt.Fprintf(&b, "spawn.mode=%s\n", s.Spawn.Mode)
		fmt.Fprintf(&b, "spawn.max_total=%d\n", s.Spawn.MaxTotal)
	}

	fmt.Fprintf(&b, "skip=%t\n", s.Skip)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}
