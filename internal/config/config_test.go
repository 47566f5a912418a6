package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadExpandsEnvAndValidates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "9090")
	p := writeFile(t, dir, "systemg.yaml", `
version: "1"
services:
  web:
    command: "/bin/sh -c 'listen --port=${PORT}'"
    restart_policy: always
    backoff: 250ms
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Contains(t, cfg.Services["web"].Command, "9090")
}

func TestLoadRejectsEmptyCommand(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "systemg.yaml", `
services:
  broken:
    command: ""
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadRejectsUnknownDependency(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "systemg.yaml", `
services:
  web:
    command: "/bin/true"
    depends_on: ["db"]
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestDisabledServiceIsPruned(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISABLE_WEB", "true")
	p := writeFile(t, dir, "systemg.yaml", `
services:
  web:
    command: "/bin/true"
  db:
    command: "/bin/true"
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	_, ok := cfg.Services["web"]
	require.False(t, ok)
	_, ok = cfg.Services["db"]
	require.True(t, ok)
}

func TestHashStableAcrossFieldOrder(t *testing.T) {
	a := ServiceConfig{Command: "/bin/true", DependsOn: []string{"x"}}
	b := ServiceConfig{DependsOn: []string{"x"}, Command: "/bin/true"}
	require.Equal(t, a.Hash(), b.Hash())
}

func TestEnvFileMerge(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, "web.env", "FOO=bar\n# comment\nBAZ=\"quoted\"\n")
	p := writeFile(t, dir, "systemg.yaml", `
services:
  web:
    command: "/bin/sh -c 'echo ${FOO} ${BAZ}'"
    env:
      file: `+envPath+`
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Contains(t, cfg.Services["web"].Command, "bar quoted")
}
