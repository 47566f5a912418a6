// Package status implements the Status Builder from spec.md §4.8: it
// fuses the PID File, Service State File, Cron State File, and an
// optional live Metrics Store into one StatusSnapshot, self-healing the
// State File when the OS disagrees with the persisted lifecycle.
package status

import (
	"sort"
	"time"

	"github.com/sysgio/sysg/internal/config"
	"github.com/sysgio/sysg/internal/cronstate"
	"github.com/sysgio/sysg/internal/logging"
	"github.com/sysgio/sysg/internal/metrics"
	"github.com/sysgio/sysg/internal/pidfile"
	"github.com/sysgio/sysg/internal/statefile"
)

type ProcessState string

const (
	ProcessRunning ProcessState = "Running"
	ProcessZombie  ProcessState = "Zombie"
	ProcessMissing ProcessState = "Missing"
)

type UnitKind string

const (
	KindService  UnitKind = "Service"
	KindCron     UnitKind = "Cron"
	KindOrphaned UnitKind = "Orphaned"
)

type UnitHealth string

const (
	Healthy  UnitHealth = "Healthy"
	Degraded UnitHealth = "Degraded"
	Failing  UnitHealth = "Failing"
	Inactive UnitHealth = "Inactive"
)

type ProcessInfo struct {
	PID   int          `json:"pid"`
	State ProcessState `json:"state"`
}

type LastExit struct {
	ExitCode *int `json:"exit_code,omitempty"`
	Signal   *int `json:"signal,omitempty"`
}

type CronInfo struct {
	Timezone      string                      `json:"timezone"`
	LastExecution *time.Time                  `json:"last_execution,omitempty"`
	NextExecution *time.Time                  `json:"next_execution,omitempty"`
	History       []cronstate.ExecutionRecord `json:"history,omitempty"`
}

type UnitStatus struct {
	Name      string              `json:"name"`
	Hash      string              `json:"hash"`
	Kind      UnitKind            `json:"kind"`
	Lifecycle *statefile.Lifecycle `json:"lifecycle,omitempty"`
	Health    UnitHealth          `json:"health"`
	Process   *ProcessInfo        `json:"process,omitempty"`
	Uptime    *int64              `json:"uptime_seconds,omitempty"`
	LastExit  *LastExit           `json:"last_exit,omitempty"`
	Cron      *CronInfo           `json:"cron,omitempty"`
	Metrics   *metrics.Summary    `json:"metrics,omitempty"`
}

type StatusSnapshot struct {
	SchemaVersion int          `json:"schema_version"`
	CapturedAt    time.Time    `json:"captured_at"`
	OverallHealth UnitHealth   `json:"overall_health"`
	Units         []UnitStatus `json:"units"`
}

const SchemaVersion = 1

// Builder fuses the four sources described in spec.md §4.8.
type Builder struct {
	Pids    *pidfile.File
	States  *statefile.File
	Crons   *cronstate.File
	Metrics *metrics.Store
	Lg      *logging.Logger

	// Probe resolves PID liveness; overridable in tests. Defaults to
	// the platform probe in probe_linux.go/probe_other.go.
	Probe func(pid int) (ProcessState, *int64, error)
}

func New(pids *pidfile.File, states *statefile.File, crons *cronstate.File, store *metrics.Store, lg *logging.Logger) *Builder {
	if lg == nil {
		lg = logging.NewDiscardLogger()
	}
	return &Builder{Pids: pids, States: states, Crons: crons, Metrics: store, Lg: lg, Probe: probeProcess}
}

// Build assembles one StatusSnapshot from cfg (the current config, for
// name/kind resolution) and the four persisted/live sources.
func (b *Builder) Build(cfg *config.Config) (*StatusSnapshot, error) {
	pidMap, err := b.Pids.All()
	if err != nil {
		return nil, err
	}
	stateMap, err := b.States.All()
	if err != nil {
		return nil, err
	}
	cronMap, err := b.Crons.All()
	if err != nil {
		return nil, err
	}

	hashToName := make(map[string]string)
	hashToKind := make(map[string]UnitKind)
	if cfg != nil {
		for name, svc := range cfg.Services {
			h := svc.Hash()
			hashToName[h] = name
			if svc.IsCron() {
				hashToKind[h] = KindCron
			} else {
				hashToKind[h] = KindService
			}
		}
	}

	nameToPid := pidMap

	hashes := make(map[string]struct{})
	for h := range stateMap {
		hashes[h] = struct{}{}
	}
	for h := range cronMap {
		hashes[h] = struct{}{}
	}
	for h := range hashToName {
		hashes[h] = struct{}{}
	}

	units := make([]UnitStatus, 0, len(hashes))
	for h := range hashes {
		units = append(units, b.buildUnit(h, hashToName, hashToKind, stateMap, cronMap, nameToPid))
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Hash < units[j].Hash })

	return &StatusSnapshot{
		SchemaVersion: SchemaVersion,
		CapturedAt:    time.Now().UTC(),
		OverallHealth: overallHealth(units),
		Units:         units,
	}, nil
}

func (b *Builder) buildUnit(
	hash string,
	hashToName map[string]string,
	hashToKind map[string]UnitKind,
	stateMap map[string]statefile.Entry,
	cronMap map[string]cronstate.Entry,
	nameToPid map[string]int,
) UnitStatus {
	name, known := hashToName[hash]
	if !known {
		name = "[orphaned] " + shortHash(hash)
	}
	kind, known := hashToKind[hash]
	if !known {
		kind = KindOrphaned
	}

	u := UnitStatus{Name: name, Hash: hash, Kind: kind}

	entry, hasEntry := stateMap[hash]
	var pid int
	if hasEntry {
		lc := entry.Lifecycle
		u.Lifecycle = &lc
		pid = entry.Pid
		if entry.ExitCode != nil || entry.Signal != nil {
			u.LastExit = &LastExit{ExitCode: entry.ExitCode, Signal: entry.Signal}
		}
	}
	if pid == 0 && known {
		if p, ok := nameToPid[name]; ok {
			pid = p
		}
	}

	var procState ProcessState = ProcessMissing
	var uptime *int64
	if pid > 0 {
		state, up, err := b.Probe(pid)
		if err == nil {
			procState = state
			uptime = up
		}
		u.Process = &ProcessInfo{PID: pid, State: procState}
		u.Uptime = uptime

		if procState == ProcessRunning && hasEntry && entry.Lifecycle != statefile.Running {
			entry.Lifecycle = statefile.Running
			entry.Pid = pid
			if err := b.States.Set(hash, entry); err != nil {
				b.Lg.Warnf("self-heal state for %s: %v", name, err)
			}
			lc := statefile.Running
			u.Lifecycle = &lc
		}
	}

	var cronEntry *cronstate.Entry
	if ce, ok := cronMap[hash]; ok {
		cronEntry = &ce
		u.Cron = &CronInfo{
			Timezone:      ce.Timezone,
			LastExecution: ce.LastExecution,
			NextExecution: ce.NextExecution,
			History:       ce.History,
		}
	}

	if b.Metrics != nil {
		if summary := b.Metrics.SummarizeUnit(hash); summary.Samples > 0 {
			u.Metrics = &summary
		}
	}

	u.Health = deriveHealth(procState, pid > 0, u.Lifecycle, cronEntry)
	return u
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// deriveHealth implements the table in spec.md §4.8.
func deriveHealth(proc ProcessState, hasPid bool, lifecycle *statefile.Lifecycle, cron *cronstate.Entry) UnitHealth {
	if hasPid {
		switch proc {
		case ProcessRunning:
			return Healthy
		case ProcessZombie:
			return Failing
		case ProcessMissing:
			return Degraded
		}
	}

	// Cron units are consulted before the fallback lifecycle: a cron
	// dispatch always writes a terminal lifecycle entry (Running then
	// ExitedSuccessfully/ExitedWithError) for the process it ran, which
	// would otherwise mask overlap/failure states recorded only in the
	// cron history (matching the original's derive_unit_health
	// precedence).
	if cron != nil {
		if len(cron.History) == 0 {
			return Degraded
		}
		last := cron.History[len(cron.History)-1]
		if last.Status == nil {
			return Failing // in-flight with no terminal process observed
		}
		switch *last.Status {
		case cronstate.Success:
			return Healthy
		case cronstate.OverlapErr:
			return Failing
		case cronstate.Failed:
			if last.FailReason != "" && hasPrefix(last.FailReason, "Failed to get PID") {
				return Healthy
			}
			if last.ExitCode != nil && *last.ExitCode == 0 {
				return Healthy
			}
			if last.ExitCode == nil {
				return Failing
			}
			return Degraded
		}
	}

	if lifecycle != nil {
		switch *lifecycle {
		case statefile.ExitedWithError:
			return Failing
		case statefile.Running:
			return Healthy
		case statefile.Stopped, statefile.Skipped:
			return Inactive
		case statefile.ExitedSuccessfully:
			return Healthy
		}
	}

	return Degraded
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// overallHealth implements spec.md §4.8's monotonicity rule: Inactive
// units never move the aggregate above Healthy.
func overallHealth(units []UnitStatus) UnitHealth {
	degraded := false
	for _, u := range units {
		if u.Health == Failing {
			return Failing
		}
		if u.Health == Degraded {
			degraded = true
		}
	}
	if degraded {
		return Degraded
	}
	return Healthy
}
