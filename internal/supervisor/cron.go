package supervisor

import (
	"context"
	"time"

	"github.com/sysgio/sysg/internal/cronstate"
)

// cronTickInterval is the fixed cadence spec.md §4.6 calls for; a cron
// expression's finest grain is one second, so ticking faster buys
// nothing.
const cronTickInterval = time.Second

// cronLoop evaluates due jobs every tick and dispatches each through the
// current Daemon, reporting completion back to the Cron Manager.
func (s *Supervisor) cronLoop(ctx context.Context) {
	defer close(s.cronDone)
	tick := time.NewTicker(cronTickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.cronStop:
			return
		case <-tick.C:
			s.tickCronOnce(ctx)
		}
	}
}

func (s *Supervisor) tickCronOnce(ctx context.Context) {
	s.mtx.RLock()
	cm := s.cron
	d := s.d
	s.mtx.RUnlock()
	if cm == nil || d == nil {
		return
	}

	due, err := cm.Tick()
	if err != nil {
		s.lg.Warnf("cron tick: %v", err)
		return
	}
	for _, job := range due {
		hash := job.Hash
		if _, err := d.SpawnCronDispatch(ctx, hash, func(exitCode int, spawnErr error) {
			status := cronstate.Success
			reason := ""
			if spawnErr != nil {
				status = cronstate.Failed
				reason = "Failed to get PID: " + spawnErr.Error()
			} else if exitCode != 0 {
				status = cronstate.Failed
			}
			code := exitCode
			if markErr := cm.MarkJobCompleted(hash, status, &code, reason); markErr != nil {
				s.lg.Warnf("mark cron job %s completed: %v", job.Service, markErr)
			}
		}); err != nil {
			s.lg.Warnf("cron dispatch %s: %v", job.Service, err)
		}
	}
}
