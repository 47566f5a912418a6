package daemon

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/sysgio/sysg/internal/privilege"
	"github.com/sysgio/sysg/internal/statefile"
	"github.com/sysgio/sysg/internal/sysgerr"
)

// SpawnCronDispatch runs hash's command exactly once, the way a cron
// tick dispatches a job: it reuses the same privilege/logging/state path
// as SpawnUnit but never enters the restart-policy monitor, since the
// Cron Manager — not the Daemon's restarter — owns re-invocation timing.
// onComplete receives the exit code (or -1 on signal/spawn failure) once
// the process has exited.
func (d *Daemon) SpawnCronDispatch(ctx context.Context, hash string, onComplete func(exitCode int, err error)) (int, error) {
	u, ok := d.unit(hash)
	if !ok {
		err := fmt.Errorf("unknown unit %s", hash)
		onComplete(-1, err)
		return 0, err
	}

	env := buildEnv(u.Spec)
	generation := d.generation(hash)

	plan, err := privilege.BuildPlan(hash, u.Spec, d.isRoot, d.dropPrivileges)
	if err != nil {
		onComplete(-1, err)
		return 0, &sysgerr.ServiceStartError{Service: u.Name, Err: err}
	}

	cmd, stdout, stderr, err := d.buildCommand(plan, u, env)
	if err != nil {
		onComplete(-1, err)
		return 0, &sysgerr.ServiceStartError{Service: u.Name, Err: err}
	}

	if err := cmd.Start(); err != nil {
		closeAll(stdout, stderr)
		onComplete(-1, err)
		return 0, &sysgerr.ServiceStartError{Service: u.Name, Err: err}
	}

	pid := cmd.Process.Pid
	now := time.Now()

	d.mtx.Lock()
	d.children[hash] = &childHandle{cmd: cmd, hash: hash, service: u.Name, generation: generation, stdout: stdout, stderr: stderr, done: make(chan struct{})}
	d.mtx.Unlock()

	d.setState(hash, statefile.Entry{Lifecycle: statefile.Running, Pid: pid, StartedAt: &now})
	d.setPid(u.Name, pid)

	if plan.Cgroup != nil {
		if err := privilege.AttachCgroup(hash, pid, plan.Cgroup); err != nil {
			d.lg.Warnf("cgroup attach for %s: %v", u.Name, err)
		}
	}

	go d.waitForCronExit(hash, u.Name, generation, cmd, onComplete)

	return pid, nil
}

func (d *Daemon) waitForCronExit(hash, service string, generation uint64, cmd *exec.Cmd, onComplete func(int, error)) {
	err := cmd.Wait()

	d.mtx.Lock()
	var done chan struct{}
	if ch, ok := d.children[hash]; ok && ch.generation == generation {
		done = ch.done
		if ch.stdout != nil {
			ch.stdout.Close()
		}
		if ch.stderr != nil {
			ch.stderr.Close()
		}
		delete(d.children, hash)
	}
	d.mtx.Unlock()
	if done != nil {
		close(done)
	}

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				code = -1
			}
		} else {
			code = -1
		}
	}

	lifecycle := statefile.ExitedSuccessfully
	if code != 0 {
		lifecycle = statefile.ExitedWithError
	}
	exitCode := code
	d.setState(hash, statefile.Entry{Lifecycle: lifecycle, ExitCode: &exitCode})
	d.removePid(service)

	onComplete(code, err)
}
