package status

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sysgio/sysg/internal/config"
	"github.com/sysgio/sysg/internal/cronstate"
	"github.com/sysgio/sysg/internal/metrics"
	"github.com/sysgio/sysg/internal/pidfile"
	"github.com/sysgio/sysg/internal/statefile"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	dir := t.TempDir()
	b := New(
		pidfile.Open(filepath.Join(dir, "pid.json")),
		statefile.Open(filepath.Join(dir, "state.json")),
		cronstate.Open(filepath.Join(dir, "cron_state.json")),
		metrics.NewStore(),
		nil,
	)
	b.Probe = func(pid int) (ProcessState, *int64, error) {
		return ProcessRunning, nil, nil
	}
	return b
}

func testConfig() *config.Config {
	return &config.Config{
		Services: map[string]config.ServiceConfig{
			"web": {Command: "true"},
		},
	}
}

func TestBuildHealthyRunningUnit(t *testing.T) {
	b := newTestBuilder(t)
	cfg := testConfig()
	hash := cfg.Services["web"].Hash()

	require.NoError(t, b.States.Set(hash, statefile.Entry{Lifecycle: statefile.Running, Pid: 123}))

	snap, err := b.Build(cfg)
	require.NoError(t, err)
	require.Len(t, snap.Units, 1)
	require.Equal(t, "web", snap.Units[0].Name)
	require.Equal(t, Healthy, snap.Units[0].Health)
	require.Equal(t, Healthy, snap.OverallHealth)
}

func TestBuildMissingProcessIsDegraded(t *testing.T) {
	b := newTestBuilder(t)
	b.Probe = func(pid int) (ProcessState, *int64, error) {
		return ProcessMissing, nil, nil
	}
	cfg := testConfig()
	hash := cfg.Services["web"].Hash()
	require.NoError(t, b.States.Set(hash, statefile.Entry{Lifecycle: statefile.Running, Pid: 123}))

	snap, err := b.Build(cfg)
	require.NoError(t, err)
	require.Equal(t, Degraded, snap.Units[0].Health)
	require.Equal(t, Degraded, snap.OverallHealth)
}

func TestBuildSelfHealsStateOnLiveMismatch(t *testing.T) {
	b := newTestBuilder(t)
	cfg := testConfig()
	hash := cfg.Services["web"].Hash()
	require.NoError(t, b.States.Set(hash, statefile.Entry{Lifecycle: statefile.ExitedWithError, Pid: 123}))

	_, err := b.Build(cfg)
	require.NoError(t, err)

	entry, ok, err := b.States.Get(hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, statefile.Running, entry.Lifecycle)
}

func TestBuildFailingUnitDominatesOverall(t *testing.T) {
	b := newTestBuilder(t)
	b.Probe = func(pid int) (ProcessState, *int64, error) {
		if pid == 1 {
			return ProcessRunning, nil, nil
		}
		return ProcessZombie, nil, nil
	}
	cfg := &config.Config{
		Services: map[string]config.ServiceConfig{
			"web":    {Command: "true"},
			"worker": {Command: "false"},
		},
	}
	webHash := cfg.Services["web"].Hash()
	workerHash := cfg.Services["worker"].Hash()
	require.NoError(t, b.States.Set(webHash, statefile.Entry{Lifecycle: statefile.Running, Pid: 1}))
	require.NoError(t, b.States.Set(workerHash, statefile.Entry{Lifecycle: statefile.Running, Pid: 2}))

	snap, err := b.Build(cfg)
	require.NoError(t, err)
	require.Equal(t, Failing, snap.OverallHealth)
}

func TestBuildOrphanedUnit(t *testing.T) {
	b := newTestBuilder(t)
	cfg := &config.Config{Services: map[string]config.ServiceConfig{}}
	require.NoError(t, b.States.Set("stale-hash", statefile.Entry{Lifecycle: statefile.Stopped}))

	snap, err := b.Build(cfg)
	require.NoError(t, err)
	require.Len(t, snap.Units, 1)
	require.Equal(t, KindOrphaned, snap.Units[0].Kind)
	require.Equal(t, Inactive, snap.Units[0].Health)
}

func TestBuildCronUnitFromHistory(t *testing.T) {
	b := newTestBuilder(t)
	cfg := &config.Config{
		Services: map[string]config.ServiceConfig{
			"nightly": {Command: "true", Cron: &config.CronConfig{Expression: "0 0 * * *"}},
		},
	}
	hash := cfg.Services["nightly"].Hash()
	success := cronstate.Success
	entry := cronstate.Entry{Timezone: "UTC"}
	entry.AppendHistory(cronstate.ExecutionRecord{Status: &success})
	require.NoError(t, b.Crons.Set(hash, entry))

	snap, err := b.Build(cfg)
	require.NoError(t, err)
	require.Len(t, snap.Units, 1)
	require.Equal(t, KindCron, snap.Units[0].Kind)
	require.Equal(t, Healthy, snap.Units[0].Health)
	require.NotNil(t, snap.Units[0].Cron)
}

// TestBuildCronOverlapDominatesTerminalLifecycle reproduces spec.md §8
// scenario (c): a cron dispatch overlaps, and by the time the in-flight
// process exits cleanly the Service State File carries a terminal
// ExitedSuccessfully lifecycle. The cron history's OverlapError must
// still win the health derivation.
func TestBuildCronOverlapDominatesTerminalLifecycle(t *testing.T) {
	b := newTestBuilder(t)
	b.Probe = func(pid int) (ProcessState, *int64, error) {
		return ProcessMissing, nil, nil
	}
	cfg := &config.Config{
		Services: map[string]config.ServiceConfig{
			"slow_cron": {Command: "true", Cron: &config.CronConfig{Expression: "* * * * *"}},
		},
	}
	hash := cfg.Services["slow_cron"].Hash()

	overlap := cronstate.OverlapErr
	entry := cronstate.Entry{Timezone: "UTC"}
	entry.AppendHistory(cronstate.ExecutionRecord{Status: &overlap})
	require.NoError(t, b.Crons.Set(hash, entry))

	exitCode := 0
	require.NoError(t, b.States.Set(hash, statefile.Entry{Lifecycle: statefile.ExitedSuccessfully, ExitCode: &exitCode}))

	snap, err := b.Build(cfg)
	require.NoError(t, err)
	require.Len(t, snap.Units, 1)
	require.Equal(t, Failing, snap.Units[0].Health)
	require.Equal(t, Failing, snap.OverallHealth)
}
