package main

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sysgio/sysg/internal/ipc"
	"github.com/sysgio/sysg/internal/runtimectx"
)

// dial connects to rt's control socket. If the socket is absent or
// refuses connections, it checks for a stale pid file left by a crashed
// supervisor, cleans it up, and returns ipc.ErrNotAvailable either way so
// the caller never sees a raw "connection refused".
func dial(rt *runtimectx.Context) (*ipc.Client, error) {
	c, err := ipc.Dial(rt.SocketPath(), callTimeout)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ipc.ErrNotAvailable) {
		return nil, err
	}
	recoverStaleArtifacts(rt)
	return nil, ipc.ErrNotAvailable
}

// recoverStaleArtifacts implements the scenario from spec.md §8: a pid
// file left behind by a supervisor that crashed without cleaning up.
// When the recorded pid is no longer alive, the socket and pid file are
// removed so the next `sysg daemon` invocation starts cleanly instead of
// failing to bind an already-claimed path.
func recoverStaleArtifacts(rt *runtimectx.Context) {
	raw, err := os.ReadFile(rt.PidFilePath())
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return
	}
	if unix.Kill(pid, 0) == nil {
		// Still alive; the socket refusal was transient, leave it alone.
		return
	}
	os.Remove(rt.SocketPath())
	os.Remove(rt.PidFilePath())
}
