// Package daemon implements the service lifecycle and monitor described
// in spec.md §4.5: spawn, monitor, restart policy, dependency ordering,
// hooks, and the manual-stop generation mechanism.
package daemon

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sysgio/sysg/internal/config"
	"github.com/sysgio/sysg/internal/logging"
	"github.com/sysgio/sysg/internal/pidfile"
	"github.com/sysgio/sysg/internal/runtimectx"
	"github.com/sysgio/sysg/internal/statefile"
)

// Unit is a resolved, hash-identified service ready to be driven by the
// Daemon. The Supervisor builds these from config.Config once per load.
type Unit struct {
	Name string
	Hash string
	Spec config.ServiceConfig
}

// childHandle is the Daemon's record of one running (or stopping)
// process. The map it lives in has a single writer (the monitor) and a
// single mutator for spawn/stop, serialized by Daemon.mtx, matching
// spec.md §5's shared-resource policy.
type childHandle struct {
	cmd        *exec.Cmd
	hash       string
	service    string
	generation uint64
	stdout     io.WriteCloser
	stderr     io.WriteCloser

	// done is closed exactly once, by waitForExit (or waitForCronExit for
	// a cron dispatch) after it reaps the child via cmd.Wait(). StopUnit waits on it instead of calling
	// Wait() itself: os/exec supports only one Wait() caller per Cmd.
	done chan struct{}
}

type exitEvent struct {
	hash       string
	service    string
	generation uint64
	code       int
	signalled  bool
	signal     int
}

// Daemon owns every tracked child process for one supervisor session.
type Daemon struct {
	rt   *runtimectx.Context
	lg   *logging.Logger
	pids *pidfile.File
	svcs *statefile.File

	isRoot         bool
	dropPrivileges bool

	mtx      sync.Mutex
	units    map[string]Unit // by hash
	children map[string]*childHandle
	gens     map[string]uint64 // per-hash generation counter

	restarters   map[string]*restarter
	activeSpawns map[string]int // by hash, for spec's spawn.max_total quota

	exitCh chan exitEvent
	stop   int32 // atomic

	wg sync.WaitGroup
}

func New(rt *runtimectx.Context, lg *logging.Logger, pids *pidfile.File, svcs *statefile.File, isRoot, dropPrivileges bool) *Daemon {
	if lg == nil {
		lg = logging.NewDiscardLogger()
	}
	return &Daemon{
		rt:             rt,
		lg:             lg,
		pids:           pids,
		svcs:           svcs,
		isRoot:         isRoot,
		dropPrivileges: dropPrivileges,
		units:          make(map[string]Unit),
		children:       make(map[string]*childHandle),
		gens:           make(map[string]uint64),
		restarters:     make(map[string]*restarter),
		activeSpawns:   make(map[string]int),
		exitCh:         make(chan exitEvent, 64),
	}
}

// LoadUnits replaces the Daemon's unit table, used at bootstrap and on a
// config-reload Restart.
func (d *Daemon) LoadUnits(units []Unit) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.units = make(map[string]Unit, len(units))
	for _, u := range units {
		d.units[u.Hash] = u
	}
}

func (d *Daemon) unit(hash string) (Unit, bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	u, ok := d.units[hash]
	return u, ok
}

func (d *Daemon) generation(hash string) uint64 {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.gens[hash]
}

func (d *Daemon) bumpGeneration(hash string) uint64 {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.gens[hash]++
	return d.gens[hash]
}

// StartMonitor launches the background planner that consumes exit events
// and applies restart policy. Call once per Daemon lifetime.
func (d *Daemon) StartMonitor(ctx context.Context) {
	d.wg.Add(1)
	go d.planLoop(ctx)
}

// Shutdown stops the monitor loop and every tracked process group,
// SIGTERM then, after a grace window, SIGKILL, per spec.md §3's
// ownership rule.
func (d *Daemon) Shutdown() {
	atomic.StoreInt32(&d.stop, 1)
	d.StopAll()
	d.wg.Wait()
}

func (d *Daemon) stopping() bool { return atomic.LoadInt32(&d.stop) != 0 }

// sleepInterruptible sleeps up to d, waking early if the daemon is told
// to stop, matching the teacher's restarter.interruptSleep and spec.md
// §5's <=100ms cancellation polling.
func (d *Daemon) sleepInterruptible(dur time.Duration) {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	deadline := time.Now().Add(dur)
	for time.Now().Before(deadline) {
		if d.stopping() {
			return
		}
		<-tick.C
	}
}
