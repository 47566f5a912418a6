// Package runtimectx holds the process-wide, write-once-per-phase context
// described in spec.md §4.1: runtime mode, the directory layout that
// follows from it, and the socket-activation file descriptors captured at
// startup before any child is spawned.
package runtimectx

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sysgio/sysg/internal/sysgerr"
)

// Mode selects the directory layout: a per-user tree under $HOME, or the
// system-wide tree under /var and /etc.
type Mode int

const (
	User Mode = iota
	System
)

func (m Mode) String() string {
	if m == System {
		return "system"
	}
	return "user"
}

// Context is the opaque handle spec.md §9 calls for: a single value
// threaded through the Supervisor rather than ambient globals. The one
// deliberate exception is socket-activation FD capture, which by
// construction must happen exactly once, before any child spawn.
type Context struct {
	Mode       Mode
	StateDir   string
	LogDir     string
	ConfigDir  string
	ConfigFile string

	activationFDs []int
}

// New derives directory paths for mode. System mode requires effective UID
// 0; violating that is a PermissionDenied, not a silent downgrade.
func New(mode Mode, configOverride string) (*Context, error) {
	c := &Context{Mode: mode}
	switch mode {
	case System:
		if os.Geteuid() != 0 {
			return nil, &sysgerr.PermissionDenied{Reason: "system mode requires effective UID 0"}
		}
		c.StateDir = "/var/lib/systemg"
		c.LogDir = "/var/log/systemg"
		c.ConfigDir = "/etc/systemg"
	case User:
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		c.StateDir = filepath.Join(home, ".local", "share", "systemg")
		c.LogDir = filepath.Join(c.StateDir, "logs")
		c.ConfigDir = filepath.Join(home, ".config", "systemg")
	default:
		return nil, fmt.Errorf("unknown runtime mode %v", mode)
	}

	if configOverride != "" {
		c.ConfigFile = configOverride
	} else {
		c.ConfigFile = filepath.Join(c.ConfigDir, "systemg.yaml")
	}

	for _, dir := range []string{c.StateDir, c.LogDir, c.ConfigDir, filepath.Join(c.StateDir, "metrics")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return c, nil
}

func (c *Context) SocketPath() string       { return filepath.Join(c.StateDir, "control.sock") }
func (c *Context) PidFilePath() string      { return filepath.Join(c.StateDir, "sysg.pid") }
func (c *Context) PidMapPath() string       { return filepath.Join(c.StateDir, "pid.json") }
func (c *Context) ServiceStatePath() string { return filepath.Join(c.StateDir, "state.json") }
func (c *Context) CronStatePath() string    { return filepath.Join(c.StateDir, "cron_state.json") }
func (c *Context) MetricsDir() string       { return filepath.Join(c.StateDir, "metrics") }
func (c *Context) SupervisorLogPath() string {
	return filepath.Join(c.LogDir, "supervisor.log")
}

func (c *Context) ServiceStdoutLog(service string) string {
	return filepath.Join(c.LogDir, service+"_stdout.log")
}

func (c *Context) ServiceStderrLog(service string) string {
	return filepath.Join(c.LogDir, service+"_stderr.log")
}

// ActivationFDs returns the file descriptors adopted via socket
// activation, if any.
func (c *Context) ActivationFDs() []int { return c.activationFDs }

// CaptureSocketActivation implements the sd_listen_fds(3)-style protocol
// from spec.md §6: if LISTEN_PID matches our PID and LISTEN_FDS=N>0,
// adopt FDs [3, 3+N). All three LISTEN_* variables are unset afterward
// (LISTEN_FDNAMES included, matching the original implementation) so that
// no grandchild re-inherits them.
func (c *Context) CaptureSocketActivation() {
	defer func() {
		os.Unsetenv("LISTEN_PID")
		os.Unsetenv("LISTEN_FDS")
		os.Unsetenv("LISTEN_FDNAMES")
	}()

	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return
	}
	nStr := os.Getenv("LISTEN_FDS")
	n, err := strconv.Atoi(strings.TrimSpace(nStr))
	if err != nil || n <= 0 {
		return
	}
	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, 3+i)
	}
	c.activationFDs = fds
}

// CleanStaleRuntimeArtifacts removes a leftover socket and pid file from a
// prior crash. It is intentionally permissive: ENOENT is not an error.
func (c *Context) CleanStaleRuntimeArtifacts() error {
	for _, p := range []string{c.SocketPath(), c.PidFilePath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale %s: %w", p, err)
		}
	}
	return nil
}
