package cronmgr

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sysgio/sysg/internal/cronstate"
)

func newTestManager(t *testing.T) (*Manager, *cronstate.File) {
	t.Helper()
	state := cronstate.Open(filepath.Join(t.TempDir(), "cron_state.json"))
	return New(state, nil), state
}

func TestFiveFieldExpressionNormalizes(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Register("h1", "job", "* * * * *", "UTC"))
}

func TestInvalidCronExpression(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Register("h1", "job", "not a cron expr", "UTC")
	require.Error(t, err)
}

func TestOverlapRecordedWhenStillRunning(t *testing.T) {
	m, state := newTestManager(t)
	require.NoError(t, m.Register("h1", "job", "* * * * * *", "UTC"))

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	entry, _, err := state.Get("h1")
	require.NoError(t, err)
	entry.NextExecution = &fixed
	require.NoError(t, state.Set("h1", entry))

	due, err := m.Tick()
	require.NoError(t, err)
	require.Len(t, due, 1)

	// Still running: next tick at the same instant should record an
	// overlap rather than dispatch again.
	entry, _, err = state.Get("h1")
	require.NoError(t, err)
	entry.NextExecution = &fixed
	require.NoError(t, state.Set("h1", entry))

	due, err = m.Tick()
	require.NoError(t, err)
	require.Empty(t, due)

	entry, _, err = state.Get("h1")
	require.NoError(t, err)
	require.NotEmpty(t, entry.History)
	last := entry.History[len(entry.History)-1]
	require.NotNil(t, last.Status)
	require.Equal(t, cronstate.OverlapErr, *last.Status)
}

func TestSyncFromConfigPrunesRemovedJobs(t *testing.T) {
	m, state := newTestManager(t)
	require.NoError(t, m.SyncFromConfig(map[string]Unit{
		"job_a": {Service: "job_a", Expr: "* * * * *", TZ: "UTC"},
		"job_b": {Service: "job_b", Expr: "* * * * *", TZ: "UTC"},
	}))

	require.NoError(t, m.SyncFromConfig(map[string]Unit{
		"job_b": {Service: "job_b", Expr: "* * * * *", TZ: "UTC"},
		"job_c": {Service: "job_c", Expr: "* * * * *", TZ: "UTC"},
	}))

	all, err := state.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	_, ok := all["job_a"]
	require.False(t, ok)
}
