// Package supervisor implements the IPC reactor described in spec.md
// §4.7: bootstrap, the control-socket accept loop, command dispatch, and
// graceful shutdown, wiring together the Daemon, Cron Manager, Metrics
// Collector, and Status Builder for one reactor session.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sysgio/sysg/internal/config"
	"github.com/sysgio/sysg/internal/cronmgr"
	"github.com/sysgio/sysg/internal/cronstate"
	"github.com/sysgio/sysg/internal/daemon"
	"github.com/sysgio/sysg/internal/ipc"
	"github.com/sysgio/sysg/internal/logging"
	"github.com/sysgio/sysg/internal/metrics"
	"github.com/sysgio/sysg/internal/pidfile"
	"github.com/sysgio/sysg/internal/runtimectx"
	"github.com/sysgio/sysg/internal/statefile"
	"github.com/sysgio/sysg/internal/status"
	"github.com/sysgio/sysg/internal/sysgerr"
)

// Supervisor owns the Daemon, Cron Manager, Metrics Collector, and
// Status Builder for the lifetime of one reactor session, per spec.md
// §3's ownership rule.
type Supervisor struct {
	rt *runtimectx.Context
	lg *logging.Logger

	mtx       sync.RWMutex
	cfg       *config.Config
	cfgPath   string
	d         *daemon.Daemon
	cron      *cronmgr.Manager
	metrics   *metrics.Store
	collector *metrics.Collector
	statusB   *status.Builder

	pids   *pidfile.File
	states *statefile.File
	crons  *cronstate.File

	server *ipc.Server

	cronStop chan struct{}
	cronDone chan struct{}

	bgCtx context.Context

	isRoot         bool
	dropPrivileges bool
}

// New constructs a Supervisor for rt, ready for Bootstrap.
func New(rt *runtimectx.Context, lg *logging.Logger, dropPrivileges bool) *Supervisor {
	if lg == nil {
		lg = logging.NewDiscardLogger()
	}
	return &Supervisor{
		rt:             rt,
		lg:             lg,
		isRoot:         os.Geteuid() == 0,
		dropPrivileges: dropPrivileges,
		pids:           pidfile.Open(rt.PidMapPath()),
		states:         statefile.Open(rt.ServiceStatePath()),
		crons:          cronstate.Open(rt.CronStatePath()),
	}
}

// Bootstrap implements spec.md §4.7's bootstrap sequence up to (but not
// including) the accept loop: clean stale artifacts, bind the socket,
// write the pid file, load config, construct the Daemon and Cron
// Manager, start eligible services, and spawn the background workers.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	s.bgCtx = ctx
	if err := s.rt.CleanStaleRuntimeArtifacts(); err != nil {
		return err
	}

	if err := s.loadConfigLocked(s.rt.ConfigFile); err != nil {
		return err
	}

	s.metrics = metrics.NewStore(
		metrics.WithLogger(s.lg),
		metrics.WithSpillover(mustSpillover(s.rt, s.lg)),
	)
	s.statusB = status.New(s.pids, s.states, s.crons, s.metrics, s.lg)

	server, err := ipc.Listen(s.rt.SocketPath(), s.handle, s.lg)
	if err != nil {
		return fmt.Errorf("bootstrap: bind control socket: %w", err)
	}
	s.server = server

	if err := os.WriteFile(s.rt.PidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0o640); err != nil {
		return &sysgerr.PidFileError{Op: "write supervisor pid", Err: err}
	}

	s.d.StartMonitor(ctx)
	results := s.d.StartAll(ctx)
	for name, err := range results {
		if err != nil {
			s.lg.Warnf("start %s: %v", name, err)
		}
	}

	s.collector = metrics.NewCollector(s.metrics, s, 2*time.Second, s.lg)
	go s.collector.Run(ctx)

	s.cronStop = make(chan struct{})
	s.cronDone = make(chan struct{})
	go s.cronLoop(ctx)

	return nil
}

// Serve blocks in the control-socket accept loop until Shutdown is
// called or the handler processes a Shutdown command.
func (s *Supervisor) Serve() { s.server.Serve() }

// Shutdown implements spec.md §4.7's Shutdown semantics: stop all
// services, release the monitor, close the control socket, and remove
// the supervisor pid file and socket path.
func (s *Supervisor) Shutdown() {
	close(s.cronStop)
	<-s.cronDone

	s.mtx.RLock()
	d := s.d
	s.mtx.RUnlock()
	d.Shutdown()

	s.server.Close()
	os.Remove(s.rt.PidFilePath())
	os.Remove(s.rt.SocketPath())
}

func mustSpillover(rt *runtimectx.Context, lg *logging.Logger) *metrics.Spillover {
	sp, err := metrics.NewSpillover(rt.MetricsDir(), 1<<20, 64<<20)
	if err != nil {
		lg.Warnf("metrics spillover disabled: %v", err)
		return nil
	}
	return sp
}
