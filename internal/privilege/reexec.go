package privilege

import (
	"fmt"
	"os"
	"os/exec"
)

// ReexecEnvVar carries the JSON-encoded Plan across the fork boundary.
// ReexecMarker is argv[1] the supervisor recognizes as "apply the
// pipeline, then become the real command" rather than "run normally".
//
// Go's os/exec has no equivalent of Unix fork()'s pre-exec closure: the
// kernel clones and execve()s in one step, so there is no window in
// which arbitrary Go code runs as the child before the target binary
// replaces it. Every step of spec.md §4.4 that the kernel doesn't expose
// through syscall.SysProcAttr directly (rlimits, nice, affinity, the
// capability sets beyond Ambient, namespace unshare beyond what
// Cloneflags covers) is therefore applied by re-executing this same
// binary as the child, running the ordered pipeline in §4.4 as ordinary
// Go code, and only then calling syscall.Exec to become the configured
// command. This is the same technique containerized-process supervisors
// in the wider Go ecosystem use in place of a native pre-exec hook.
const (
	ReexecEnvVar = "_SYSG_PRIVILEGE_PLAN"
	ReexecMarker = "__sysg_privilege_reexec__"
)

// CommandFor builds an *exec.Cmd that re-execs the current binary to
// apply plan before becoming argv via "sh -c". env is the effective
// environment for the final command (already merged by the Daemon).
func CommandFor(plan *Plan, shellCommand string, env []string) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve self executable: %w", err)
	}
	encoded, err := plan.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode privilege plan: %w", err)
	}

	cmd := exec.Command(self, ReexecMarker, "sh", "-c", shellCommand)
	cmd.Env = append(append([]string(nil), env...), ReexecEnvVar+"="+encoded)
	applyPlatformSysProcAttr(cmd, plan)
	return cmd, nil
}

// IsReexecInvocation reports whether the process was launched via
// CommandFor and should run RunReexec instead of the normal CLI/daemon
// entrypoint.
func IsReexecInvocation(argv []string) bool {
	return len(argv) >= 2 && argv[1] == ReexecMarker
}

// RunReexec applies the pipeline described by the plan in ReexecEnvVar
// and then replaces this process image with argv[2:] via execve. It
// never returns on success.
func RunReexec(argv []string) error {
	encoded := os.Getenv(ReexecEnvVar)
	if encoded == "" {
		return fmt.Errorf("privilege reexec invoked without %s", ReexecEnvVar)
	}
	plan, err := DecodePlan(encoded)
	if err != nil {
		return fmt.Errorf("decode privilege plan: %w", err)
	}
	os.Unsetenv(ReexecEnvVar)

	if err := applyPipeline(plan); err != nil {
		return err
	}

	target := argv[2:]
	if len(target) == 0 {
		return fmt.Errorf("privilege reexec invoked without a target command")
	}
	path, err := exec.LookPath(target[0])
	if err != nil {
		path = target[0]
	}
	return execveSelf(path, target, os.Environ())
}
