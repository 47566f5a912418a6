// Package hooks runs the on_start/on_stop/on_restart success/error hooks
// described in spec.md §4.5: each is a scoped shell invocation with a
// timeout; failures are logged at warn and never fail the parent
// operation, per spec.md §7's HookExecutionError disposition.
package hooks

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/sysgio/sysg/internal/logging"
	"github.com/sysgio/sysg/internal/sysgerr"
)

// Spec is one hook definition.
type Spec struct {
	Command string
	Timeout time.Duration
}

const DefaultTimeout = 10 * time.Second

// Run executes spec under the given environment and working directory,
// sending SIGTERM to the hook's process group on timeout, then SIGKILL
// after a short grace period. The returned error is always a
// *sysgerr.HookExecutionError; callers log it and move on.
func Run(ctx context.Context, service, name string, spec Spec, env []string, dir string, lg *logging.Logger) error {
	if spec.Command == "" {
		return nil
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command("sh", "-c", spec.Command)
	cmd.Env = env
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		err = &sysgerr.HookExecutionError{Service: service, Hook: name, Err: err}
		if lg != nil {
			lg.Warnf("hook %s/%s failed to start: %v", service, name, err)
		}
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			err = &sysgerr.HookExecutionError{Service: service, Hook: name, Err: err}
			if lg != nil {
				lg.Warnf("hook %s/%s exited with error: %v", service, name, err)
			}
			return err
		}
		return nil
	case <-runCtx.Done():
		killGroup(cmd, syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			killGroup(cmd, syscall.SIGKILL)
			<-done
		}
		err := &sysgerr.HookExecutionError{Service: service, Hook: name, Err: context.DeadlineExceeded}
		if lg != nil {
			lg.Warnf("hook %s/%s timed out after %s", service, name, timeout)
		}
		return err
	}
}

func killGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		cmd.Process.Signal(sig)
		return
	}
	syscall.Kill(-pgid, sig)
}
