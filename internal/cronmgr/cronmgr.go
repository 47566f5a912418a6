// Package cronmgr implements the Cron Manager described in spec.md §4.6:
// schedule evaluation, due-job selection, overlap detection, and durable
// execution history, backed by robfig/cron/v3 for expression parsing and
// timezone-aware next-fire computation.
package cronmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sysgio/sysg/internal/cronstate"
	"github.com/sysgio/sysg/internal/logging"
)

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// job is the in-memory registration for one cron unit.
type job struct {
	hash     string
	service  string
	schedule cron.Schedule
	loc      *time.Location
}

// Manager holds the in-memory job table and the durable state file it
// mirrors into.
type Manager struct {
	mtx   sync.Mutex
	jobs  map[string]*job
	state *cronstate.File
	lg    *logging.Logger
	now   func() time.Time
}

func New(state *cronstate.File, lg *logging.Logger) *Manager {
	if lg == nil {
		lg = logging.NewDiscardLogger()
	}
	return &Manager{
		jobs:  make(map[string]*job),
		state: state,
		lg:    lg,
		now:   time.Now,
	}
}

// Register parses expr in tz and adds (or replaces) hash's job. A 5-field
// expression is normalized to 6-field by prepending "0" for seconds,
// matching spec.md §4.6.
func (m *Manager) Register(hash, service, expr, tz string) error {
	loc, err := resolveTimezone(tz)
	if err != nil {
		return fmt.Errorf("service %s: %w", service, err)
	}

	normalized := normalizeExpression(expr)
	schedule, err := parser.Parse(normalized)
	if err != nil {
		return fmt.Errorf("service %s: invalid cron expression %q: %w", service, expr, err)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.jobs[hash] = &job{hash: hash, service: service, schedule: schedule, loc: loc}

	entry, ok, err := m.state.Get(hash)
	if err != nil {
		return err
	}
	if !ok {
		entry = cronstate.Entry{Timezone: tz}
	}
	next := schedule.Next(m.now().In(loc))
	entry.NextExecution = &next
	entry.Timezone = tz
	return m.state.Set(hash, entry)
}

// normalizeExpression prepends a "0" seconds field to a 5-field
// expression, left untouched otherwise (6-field, or a @descriptor).
func normalizeExpression(expr string) string {
	fields := splitFields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}

func splitFields(expr string) []string {
	var fields []string
	cur := ""
	for _, r := range expr {
		if r == ' ' || r == '\t' {
			if cur != "" {
				fields = append(fields, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		fields = append(fields, cur)
	}
	return fields
}

func resolveTimezone(tz string) (*time.Location, error) {
	switch tz {
	case "", "local", "Local":
		return time.Local, nil
	case "UTC", "Utc", "utc":
		return time.UTC, nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		return loc, nil
	}
}

// DueJob is returned by Tick for every job the Daemon should dispatch.
type DueJob struct {
	Hash    string
	Service string
}

// Tick evaluates every registered job against now and returns the set
// that should be dispatched this tick, per spec.md §4.6:
//   - overlapping (currently_running) jobs get an OverlapError record and
//     their next_execution recomputed, but are NOT dispatched again;
//   - otherwise-due jobs are marked running, given an in-flight record,
//     and returned to the caller to spawn.
func (m *Manager) Tick() ([]DueJob, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	now := m.now()
	var due []DueJob

	for hash, j := range m.jobs {
		entry, ok, err := m.state.Get(hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			entry = cronstate.Entry{}
		}
		if entry.NextExecution == nil {
			next := j.schedule.Next(now.In(j.loc))
			entry.NextExecution = &next
			if err := m.state.Set(hash, entry); err != nil {
				return nil, err
			}
			continue
		}
		if now.Before(*entry.NextExecution) {
			continue
		}

		nowInLoc := now.In(j.loc)
		next := j.schedule.Next(nowInLoc)

		if entry.CurrentlyRunning {
			overlap := cronstate.OverlapErr
			entry.AppendHistory(cronstate.ExecutionRecord{
				StartedAt:   nowInLoc,
				CompletedAt: &now,
				Status:      &overlap,
			})
			entry.NextExecution = &next
			if err := m.state.Set(hash, entry); err != nil {
				return nil, err
			}
			m.lg.Warnf("cron %s: overlap, previous run still in flight", j.service)
			continue
		}

		entry.CurrentlyRunning = true
		entry.AppendHistory(cronstate.ExecutionRecord{StartedAt: nowInLoc})
		entry.LastExecution = &nowInLoc
		entry.NextExecution = &next
		if err := m.state.Set(hash, entry); err != nil {
			return nil, err
		}
		due = append(due, DueJob{Hash: hash, Service: j.service})
	}
	return due, nil
}

// MarkJobCompleted fills in the in-flight record for hash: completed_at,
// status, exit code; clears currently_running; persists.
func (m *Manager) MarkJobCompleted(hash string, status cronstate.ExecutionStatus, exitCode *int, failReason string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	entry, ok, err := m.state.Get(hash)
	if err != nil {
		return err
	}
	if !ok || len(entry.History) == 0 {
		return nil
	}
	now := m.now()
	last := &entry.History[len(entry.History)-1]
	if last.CompletedAt == nil {
		last.CompletedAt = &now
		last.Status = &status
		last.ExitCode = exitCode
		last.FailReason = failReason
	}
	entry.CurrentlyRunning = false
	return m.state.Set(hash, entry)
}

// Unit is the minimal cron registration input SyncFromConfig needs,
// keyed by config hash in the map passed to it.
type Unit struct {
	Service string
	Expr    string
	TZ      string
}

// SyncFromConfig rebuilds the in-memory job table from the current
// config's cron units and prunes persisted entries not present in it,
// per spec.md §4.6 and §8 invariant 7.
func (m *Manager) SyncFromConfig(units map[string]Unit) error {
	m.mtx.Lock()
	m.jobs = make(map[string]*job)
	m.mtx.Unlock()

	keep := make(map[string]bool, len(units))
	for hash, u := range units {
		if err := m.Register(hash, u.Service, u.Expr, u.TZ); err != nil {
			return err
		}
		keep[hash] = true
	}
	return m.state.PruneExcept(keep)
}
