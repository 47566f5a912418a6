//go:build linux

package privilege

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/syndtr/gocapability/capability"
	"golang.org/x/sys/unix"
)

// applyPlatformSysProcAttr sets the parts of the pipeline the kernel
// applies atomically across clone+execve: a new session, whose leader also
// heads a new process group (so the supervisor can signal the whole tree
// by pgid), and PR_SET_PDEATHSIG (so the child dies if the supervisor
// crashes). Namespaces are not set here; applyPipeline unshares them.
func applyPlatformSysProcAttr(cmd *exec.Cmd, plan *Plan) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:    true,
		Pdeathsig: syscall.SIGTERM,
	}
}

// applyPipeline runs, in the reexec'd child, every step of spec.md §4.4
// in the order it specifies: namespace unshare, resource limits, nice,
// CPU affinity, capabilities pre-user-switch, the user switch itself,
// and capabilities post-user-switch. Namespace unshare is done here via
// unix.Unshare (rather than SysProcAttr.Cloneflags at clone() time) so
// that EPERM/EINVAL can degrade to a warning instead of failing the
// whole spawn, matching step 1's disposition.
func applyPipeline(plan *Plan) error {
	if err := applyNamespaces(plan); err != nil {
		return err
	}
	if err := applyRlimits(plan); err != nil {
		return err
	}
	if plan.Nice != nil {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, *plan.Nice); err != nil {
			// platform/permission-gated: warn-equivalent, not fatal.
			_ = err
		}
	}
	if len(plan.CPUSet) > 0 {
		var set unix.CPUSet
		for _, cpu := range plan.CPUSet {
			set.Set(cpu)
		}
		// Best effort: unsupported or invalid CPU indices degrade to a
		// warning rather than aborting the spawn.
		_ = unix.SchedSetaffinity(0, &set)
	}

	if err := applyCapabilitiesPreSwitch(plan); err != nil {
		return err
	}

	if plan.User != nil {
		if err := unix.Setgroups(plan.User.SupplementaryGIDs); err != nil {
			return fmt.Errorf("setgroups: %w", err)
		}
		if err := unix.Setgid(plan.User.GID); err != nil {
			return fmt.Errorf("setgid: %w", err)
		}
		if err := unix.Setuid(plan.User.UID); err != nil {
			return fmt.Errorf("setuid: %w", err)
		}
	}

	return applyCapabilitiesPostSwitch(plan)
}

// applyNamespaces unshares the requested namespaces. Per spec.md §4.4
// step 1, EPERM and EINVAL (unprivileged or unsupported kernel) degrade
// to a no-op; any other error is fatal to the spawn.
func applyNamespaces(plan *Plan) error {
	var flags uintptr
	if plan.NetworkNS {
		flags |= unix.CLONE_NEWNET
	}
	if plan.MountNS {
		flags |= unix.CLONE_NEWNS
	}
	if plan.PidNS {
		flags |= unix.CLONE_NEWPID
	}
	if plan.UserNS {
		flags |= unix.CLONE_NEWUSER
	}
	if flags == 0 {
		return nil
	}
	if err := unix.Unshare(int(flags)); err != nil {
		if err == unix.EPERM || err == unix.EINVAL {
			return nil
		}
		return fmt.Errorf("unshare: %w", err)
	}
	return nil
}

func applyRlimits(plan *Plan) error {
	set := func(resource int, v int64) error {
		if v == RLimInfinity {
			return nil
		}
		lim := unix.Rlimit{Cur: uint64(v), Max: uint64(v)}
		return unix.Setrlimit(resource, &lim)
	}
	if err := set(unix.RLIMIT_NOFILE, plan.NoFile); err != nil {
		return fmt.Errorf("setrlimit nofile: %w", err)
	}
	if err := set(rlimitNproc, plan.NProc); err != nil {
		return fmt.Errorf("setrlimit nproc: %w", err)
	}
	if err := set(unix.RLIMIT_MEMLOCK, plan.MemLock); err != nil {
		return fmt.Errorf("setrlimit memlock: %w", err)
	}
	return nil
}

func applyCapabilitiesPreSwitch(plan *Plan) error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		// Non-root or unsupported kernel: warn-equivalent, continue
		// uncapped rather than fail the whole spawn.
		return nil
	}
	if err := caps.Load(); err != nil {
		return nil
	}
	if len(plan.Capabilities) == 0 {
		caps.Clear(capability.CAPS)
		caps.Clear(capability.BOUNDS)
		caps.Clear(capability.AMBS)
		return caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS)
	}

	parsed := parseCapabilities(plan.Capabilities)
	caps.Set(capability.EFFECTIVE|capability.PERMITTED|capability.INHERITABLE|capability.BOUNDING, parsed...)
	caps.Set(capability.AMBIENT) // cleared now, re-asserted post-switch
	if err := unix.Prctl(unix.PR_SET_KEEPCAPS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_KEEPCAPS): %w", err)
	}
	return caps.Apply(capability.CAPS | capability.BOUNDS)
}

func applyCapabilitiesPostSwitch(plan *Plan) error {
	if len(plan.Capabilities) == 0 {
		return nil
	}
	caps, err := capability.NewPid2(0)
	if err != nil {
		return nil
	}
	if err := caps.Load(); err != nil {
		return nil
	}
	parsed := parseCapabilities(plan.Capabilities)
	caps.Set(capability.AMBIENT, parsed...)
	return caps.Apply(capability.AMBS)
}

func parseCapabilities(names []string) []capability.Cap {
	out := make([]capability.Cap, 0, len(names))
	for _, n := range names {
		if c, ok := capabilityByName[n]; ok {
			out = append(out, c)
		}
	}
	return out
}

// rlimitNproc is the RLIMIT_NPROC resource id used by applyRlimits; it is
// declared in this Linux-only file.
const rlimitNproc = unix.RLIMIT_NPROC

func execveSelf(path string, argv []string, env []string) error {
	return unix.Exec(path, argv, env)
}

var capabilityByName = map[string]capability.Cap{
	"CAP_CHOWN":              capability.CAP_CHOWN,
	"CAP_DAC_OVERRIDE":       capability.CAP_DAC_OVERRIDE,
	"CAP_DAC_READ_SEARCH":    capability.CAP_DAC_READ_SEARCH,
	"CAP_FOWNER":             capability.CAP_FOWNER,
	"CAP_FSETID":             capability.CAP_FSETID,
	"CAP_KILL":               capability.CAP_KILL,
	"CAP_SETGID":             capability.CAP_SETGID,
	"CAP_SETUID":             capability.CAP_SETUID,
	"CAP_SETPCAP":            capability.CAP_SETPCAP,
	"CAP_NET_BIND_SERVICE":   capability.CAP_NET_BIND_SERVICE,
	"CAP_NET_ADMIN":          capability.CAP_NET_ADMIN,
	"CAP_NET_RAW":            capability.CAP_NET_RAW,
	"CAP_SYS_CHROOT":         capability.CAP_SYS_CHROOT,
	"CAP_SYS_PTRACE":         capability.CAP_SYS_PTRACE,
	"CAP_SYS_ADMIN":          capability.CAP_SYS_ADMIN,
	"CAP_SYS_NICE":           capability.CAP_SYS_NICE,
	"CAP_SYS_RESOURCE":       capability.CAP_SYS_RESOURCE,
	"CAP_SYS_TIME":           capability.CAP_SYS_TIME,
	"CAP_IPC_LOCK":           capability.CAP_IPC_LOCK,
	"CAP_AUDIT_WRITE":        capability.CAP_AUDIT_WRITE,
}
