//go:build !linux

package privilege

import (
	"fmt"
	"os/exec"
	"syscall"
)

// applyPlatformSysProcAttr sets only what non-Linux Unixes support
// uniformly: a new session, whose leader also heads a new process group,
// so the whole tree can be signaled together. PR_SET_PDEATHSIG has no
// equivalent outside Linux.
func applyPlatformSysProcAttr(cmd *exec.Cmd, plan *Plan) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

// applyPipeline on non-Linux platforms only performs the user switch, via
// setuidGeneric in the reexec'd child; namespaces, capabilities, rlimits beyond the
// OS default, nice, and CPU affinity are Linux-only per spec.md §9 and
// degrade to a warning (surfaced by the caller, not here, since this
// package has no logger reference in the reexec'd child).
func applyPipeline(plan *Plan) error {
	if plan.User != nil {
		if err := setuidGeneric(plan.User.UID, plan.User.GID, plan.User.SupplementaryGIDs); err != nil {
			return fmt.Errorf("user switch: %w", err)
		}
	}
	return nil
}

func execveSelf(path string, argv []string, env []string) error {
	return syscall.Exec(path, argv, env)
}
