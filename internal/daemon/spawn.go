package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/sysgio/sysg/internal/config"
	"github.com/sysgio/sysg/internal/hooks"
	"github.com/sysgio/sysg/internal/privilege"
	"github.com/sysgio/sysg/internal/statefile"
	"github.com/sysgio/sysg/internal/sysgerr"
	"github.com/sysgio/sysg/ingest/log/rotate"
)

// buildEnv merges the process environment with the unit's declared vars,
// the unit's own entries winning on conflict.
func buildEnv(svc config.ServiceConfig) []string {
	env := os.Environ()
	if svc.Env == nil {
		return env
	}
	for k, v := range svc.Env.Vars {
		env = append(env, k+"="+v)
	}
	return env
}

func hookSpec(h *config.Hook) hooks.Spec {
	if h == nil {
		return hooks.Spec{}
	}
	d := hooks.DefaultTimeout
	if h.Timeout != "" {
		if parsed, err := time.ParseDuration(h.Timeout); err == nil {
			d = parsed
		}
	}
	return hooks.Spec{Command: h.Command, Timeout: d}
}

// StartAll topologically sorts every non-cron unit by depends_on and
// spawns each in order, skipping units whose skip flag is set. It
// returns the first DependencyError encountered, if any; per-unit spawn
// failures are reported per-unit and do not abort the bulk start
// (spec.md §4.7's reconfiguration-atomicity note).
func (d *Daemon) StartAll(ctx context.Context) map[string]error {
	d.mtx.Lock()
	units := make([]Unit, 0, len(d.units))
	for _, u := range d.units {
		if !u.Spec.IsCron() {
			units = append(units, u)
		}
	}
	d.mtx.Unlock()

	ordered, err := topoSort(units)
	if err != nil {
		return map[string]error{"": err}
	}

	results := make(map[string]error, len(ordered))
	for _, u := range ordered {
		_, err := d.SpawnUnit(ctx, u.Hash)
		results[u.Name] = err
	}
	return results
}

// SpawnUnit runs the full spawn path from spec.md §4.5 for the unit
// identified by hash: skip check, pre_start deployment hook, fork+exec
// through the privilege pipeline, state/pid registration, post-spawn
// cgroup attach, and the on_start hook.
func (d *Daemon) SpawnUnit(ctx context.Context, hash string) (int, error) {
	u, ok := d.unit(hash)
	if !ok {
		return 0, fmt.Errorf("unknown unit %s", hash)
	}

	if u.Spec.Skip {
		d.setState(hash, statefile.Entry{Lifecycle: statefile.Skipped})
		return 0, nil
	}

	env := buildEnv(u.Spec)

	if u.Spec.Deployment != nil && u.Spec.Deployment.PreStart != "" {
		cmd := exec.CommandContext(ctx, "sh", "-c", u.Spec.Deployment.PreStart)
		cmd.Env = env
		if err := cmd.Run(); err != nil {
			code := exitCodeOf(err)
			d.setState(hash, statefile.Entry{Lifecycle: statefile.ExitedWithError, ExitCode: &code})
			return 0, &sysgerr.ServiceStartError{Service: u.Name, Err: fmt.Errorf("pre_start: %w", err)}
		}
	}

	if u.Spec.Spawn != nil && u.Spec.Spawn.MaxTotal > 0 {
		d.mtx.Lock()
		active := d.activeSpawns[hash]
		d.mtx.Unlock()
		if active >= u.Spec.Spawn.MaxTotal {
			return 0, &sysgerr.SpawnLimitExceeded{Service: u.Name, Limit: u.Spec.Spawn.MaxTotal}
		}
	}

	generation := d.generation(hash)

	plan, err := privilege.BuildPlan(hash, u.Spec, d.isRoot, d.dropPrivileges)
	if err != nil {
		return 0, &sysgerr.ServiceStartError{Service: u.Name, Err: err}
	}

	cmd, stdout, stderr, err := d.buildCommand(plan, u, env)
	if err != nil {
		return 0, &sysgerr.ServiceStartError{Service: u.Name, Err: err}
	}

	if err := cmd.Start(); err != nil {
		closeAll(stdout, stderr)
		d.setState(hash, statefile.Entry{Lifecycle: statefile.ExitedWithError})
		return 0, &sysgerr.ServiceStartError{Service: u.Name, Err: err}
	}

	pid := cmd.Process.Pid
	now := time.Now()

	d.mtx.Lock()
	d.children[hash] = &childHandle{cmd: cmd, hash: hash, service: u.Name, generation: generation, stdout: stdout, stderr: stderr, done: make(chan struct{})}
	d.activeSpawns[hash]++
	d.mtx.Unlock()

	d.setState(hash, statefile.Entry{Lifecycle: statefile.Running, Pid: pid, StartedAt: &now})
	d.setPid(u.Name, pid)

	if plan.Cgroup != nil {
		if err := privilege.AttachCgroup(hash, pid, plan.Cgroup); err != nil {
			d.lg.Warnf("cgroup attach for %s: %v", u.Name, err)
		}
	}

	d.fireHook(ctx, u, "on_start.success", hookOfPair(u.Spec.Hooks, "on_start", true), env)

	go d.waitForExit(hash, u.Name, generation, cmd)

	return pid, nil
}

// serviceLogMaxSize and serviceLogMaxHistory bound each unit's stdout/stderr
// log file the way rotate.FileRotator bounds Gravwell's own ingest logs:
// roll at 8MB, keep 5 compressed generations.
const (
	serviceLogMaxSize    = 8 * 1024 * 1024
	serviceLogMaxHistory = 5
)

// buildCommand constructs the exec.Cmd for the unit's command, routed
// through the privilege reexec pipeline, with stdin from /dev/null and
// stdout/stderr routed through a rotating log file under the runtime log
// dir, per spec.md §4.5 step 3.
func (d *Daemon) buildCommand(plan *privilege.Plan, u Unit, env []string) (*exec.Cmd, io.WriteCloser, io.WriteCloser, error) {
	cmd, err := privilege.CommandFor(plan, u.Spec.Command, env)
	if err != nil {
		return nil, nil, nil, err
	}

	devnull, err := os.Open(os.DevNull)
	if err == nil {
		cmd.Stdin = devnull
	}

	stdout, err := rotate.OpenEx(d.rt.ServiceStdoutLog(u.Name), 0o640, serviceLogMaxSize, serviceLogMaxHistory, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open stdout log: %w", err)
	}
	stderr, err := rotate.OpenEx(d.rt.ServiceStderrLog(u.Name), 0o640, serviceLogMaxSize, serviceLogMaxHistory, true)
	if err != nil {
		stdout.Close()
		return nil, nil, nil, fmt.Errorf("open stderr log: %w", err)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd, stdout, stderr, nil
}

func closeAll(writers ...io.WriteCloser) {
	for _, w := range writers {
		if w != nil {
			w.Close()
		}
	}
}

func hookOfPair(h *config.HooksConfig, which string, success bool) *config.Hook {
	if h == nil {
		return nil
	}
	var pair *config.HookPair
	switch which {
	case "on_start":
		pair = h.OnStart
	case "on_stop":
		pair = h.OnStop
	case "on_restart":
		pair = h.OnRestart
	}
	if pair == nil {
		return nil
	}
	if success {
		return pair.Success
	}
	return pair.Error
}

func (d *Daemon) fireHook(ctx context.Context, u Unit, name string, h *config.Hook, env []string) {
	if h == nil {
		return
	}
	go hooks.Run(ctx, u.Name, name, hookSpec(h), env, "", d.lg)
}

func exitCodeOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
