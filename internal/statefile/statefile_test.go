package statefile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f := Open(path)

	code := 0
	require.NoError(t, f.Set("abc123", Entry{Lifecycle: ExitedSuccessfully, ExitCode: &code}))

	e, ok, err := f.Get("abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ExitedSuccessfully, e.Lifecycle)
	require.NotNil(t, e.ExitCode)
	require.Equal(t, 0, *e.ExitCode)

	require.NoError(t, f.Remove("abc123"))
	_, ok, err = f.Get("abc123")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	f := Open(path)
	m, err := f.All()
	require.NoError(t, err)
	require.Empty(t, m)
}
