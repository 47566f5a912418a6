package cronstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPruneExcept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron_state.json")
	f := Open(path)

	require.NoError(t, f.Set("job_a", Entry{Timezone: "UTC"}))
	require.NoError(t, f.Set("job_b", Entry{Timezone: "UTC"}))

	require.NoError(t, f.PruneExcept(map[string]bool{"job_b": true}))

	all, err := f.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	_, ok := all["job_b"]
	require.True(t, ok)
}

func TestAppendHistoryBounded(t *testing.T) {
	e := Entry{}
	for i := 0; i < MaxHistory+5; i++ {
		e.AppendHistory(ExecutionRecord{StartedAt: time.Unix(int64(i), 0)})
	}
	require.Len(t, e.History, MaxHistory)
	require.Equal(t, time.Unix(5, 0), e.History[0].StartedAt)
}
