package daemon

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/sysgio/sysg/internal/statefile"
)

// waitForExit blocks on the child's Wait() and pushes an exitEvent for
// planLoop to consume. It runs once per spawn as its own goroutine,
// matching the teacher's one-monitor-goroutine-per-child shape.
func (d *Daemon) waitForExit(hash, service string, generation uint64, cmd *exec.Cmd) {
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
		if d.activeSpawns[hash] > 0 {
			d.activeSpawns[hash]--
		}
	}
	d.mtx.Unlock()

	// Signal StopUnit (if it's waiting on this exact spawn) that the
	// child has been reaped. StopUnit must never call cmd.Wait() itself:
	// only one goroutine may reap a given *exec.Cmd.
	if done != nil {
		close(done)
	}

	code := 0
	signalled := false
	sig := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				signalled = true
				sig = int(status.Signal())
			}
		} else {
			code = -1
		}
	}

	select {
	case d.exitCh <- exitEvent{hash: hash, service: service, generation: generation, code: code, signalled: signalled, signal: sig}:
	default:
		// exitCh is sized generously; a full channel means planLoop is
		// stuck or the daemon is shutting down, either way dropping
		// here is safer than blocking a process-reaping goroutine.
	}
}

// planLoop is the Daemon's single restart-policy brain: it serializes
// every exit event through one goroutine so restart decisions never
// race each other, per spec.md §5's single-writer rule for restart
// state.
func (d *Daemon) planLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.exitCh:
			if d.stopping() {
				continue
			}
			d.handleExit(ctx, ev)
		}
	}
}

func (d *Daemon) handleExit(ctx context.Context, ev exitEvent) {
	d.mtx.Lock()
	u, ok := d.units[ev.hash]
	currentGen := d.gens[ev.hash]
	d.mtx.Unlock()
	if !ok {
		return
	}

	// Manual-stop suppression: if the generation has already moved on (a
	// Stop call bumped it for this spawn) the exit we're looking at
	// belongs to a spawn StopUnit already owns. StopUnit writes its own
	// Lifecycle: Stopped entry and fires on_stop itself, so handleExit
	// must not touch state or hooks for it at all, per spec.md §4.5.
	if ev.generation != currentGen {
		return
	}

	success := !ev.signalled && ev.code == 0
	lifecycle := statefile.ExitedWithError
	if success {
		lifecycle = statefile.ExitedSuccessfully
	}

	code := ev.code
	entry := statefile.Entry{Lifecycle: lifecycle, ExitCode: &code}
	if ev.signalled {
		sig := ev.signal
		entry.Signal = &sig
	}
	d.setState(ev.hash, entry)
	d.removePid(ev.service)

	env := buildEnv(u.Spec)
	if success {
		d.fireHook(ctx, u, "on_stop.success", hookOfPair(u.Spec.Hooks, "on_stop", true), env)
	} else {
		d.fireHook(ctx, u, "on_stop.error", hookOfPair(u.Spec.Hooks, "on_stop", false), env)
	}

	if !d.shouldRestart(u, success) {
		return
	}

	d.mtx.Lock()
	r, ok := d.restarters[ev.hash]
	if !ok {
		backoff, window := parseRestartDurations(u.Spec.EffectiveBackoff())
		r = newRestarter(backoff, window, u.Spec.EffectiveMaxRestarts())
		d.restarters[ev.hash] = r
	}
	r.recordAttempt(time.Now())
	exceeded := r.exceeded()
	backoff := r.backoff
	d.mtx.Unlock()

	if exceeded {
		d.lg.Warnf("unit %s exceeded max_restarts, leaving stopped", u.Name)
		return
	}

	d.sleepInterruptible(backoff)
	if d.stopping() {
		return
	}

	d.mtx.Lock()
	stillCurrent := d.gens[ev.hash] == currentGen
	d.mtx.Unlock()
	if !stillCurrent {
		return
	}

	if _, err := d.SpawnUnit(ctx, ev.hash); err != nil {
		d.fireHook(ctx, u, "on_restart.error", hookOfPair(u.Spec.Hooks, "on_restart", false), env)
		d.lg.Warnf("restart of %s failed: %v", u.Name, err)
		return
	}
	d.fireHook(ctx, u, "on_restart.success", hookOfPair(u.Spec.Hooks, "on_restart", true), env)
}

// shouldRestart applies the restart_policy enum from spec.md §3: always
// restarts, never never restarts, on_failure restarts only non-clean
// exits.
func (d *Daemon) shouldRestart(u Unit, success bool) bool {
	switch u.Spec.EffectiveRestartPolicy() {
	case "always":
		return true
	case "never":
		return false
	default: // on_failure
		return !success
	}
}

func parseRestartDurations(backoff string) (time.Duration, time.Duration) {
	d, err := time.ParseDuration(backoff)
	if err != nil || d <= 0 {
		d = 5 * time.Second
	}
	window := d * 10
	if window < 10*time.Minute {
		window = 10 * time.Minute
	}
	return d, window
}
