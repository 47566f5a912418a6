package daemon

import (
	"context"
	"syscall"
	"time"

	"github.com/sysgio/sysg/internal/statefile"
	"github.com/sysgio/sysg/internal/sysgerr"
)

// StopGrace is the window between SIGTERM and SIGKILL for every unit,
// per spec.md §4.5's escalation rule.
const StopGrace = 5 * time.Second

// StopUnit bumps the unit's generation (suppressing any restart the
// monitor might otherwise schedule for the spawn being killed), then
// sends SIGTERM to the process group, escalating to SIGKILL after
// StopGrace if the group hasn't exited.
func (d *Daemon) StopUnit(ctx context.Context, hash string) error {
	d.bumpGeneration(hash)

	u, ok := d.unit(hash)
	if !ok {
		return nil
	}

	d.mtx.Lock()
	ch, running := d.children[hash]
	d.mtx.Unlock()
	if !running {
		d.setState(hash, statefile.Entry{Lifecycle: statefile.Stopped})
		d.removePid(u.Name)
		return nil
	}

	pid := ch.cmd.Process.Pid
	if err := killGroupPid(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return &sysgerr.ServiceStopError{Service: u.Name, Err: err}
	}

	// Wait for waitForExit to reap the child rather than calling
	// cmd.Wait() here ourselves: os/exec allows only one Wait() caller
	// per Cmd, and that goroutine already owns the call.
	select {
	case <-ch.done:
	case <-time.After(StopGrace):
		killGroupPid(pid, syscall.SIGKILL)
		<-ch.done
	}

	env := buildEnv(u.Spec)
	d.fireHook(ctx, u, "on_stop.success", hookOfPair(u.Spec.Hooks, "on_stop", true), env)

	d.setState(hash, statefile.Entry{Lifecycle: statefile.Stopped})
	d.removePid(u.Name)
	return nil
}

// StopAll stops every currently-tracked child, one at a time in map
// order; depends_on is not consulted, so dependents are not guaranteed
// to stop before their dependencies. Used by Shutdown and by a bulk
// Stop command.
func (d *Daemon) StopAll() {
	d.mtx.Lock()
	hashes := make([]string, 0, len(d.children))
	for h := range d.children {
		hashes = append(hashes, h)
	}
	d.mtx.Unlock()

	ctx := context.Background()
	for _, h := range hashes {
		d.StopUnit(ctx, h)
	}
}

// killGroupPid sends sig to pid's process group, falling back to the
// bare pid if the group lookup fails (e.g. the child never reached
// setpgid before exiting).
func killGroupPid(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return syscall.Kill(pid, sig)
	}
	return syscall.Kill(-pgid, sig)
}
