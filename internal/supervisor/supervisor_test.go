package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sysgio/sysg/internal/ipc"
	"github.com/sysgio/sysg/internal/logging"
	"github.com/sysgio/sysg/internal/runtimectx"
)

func newTestRuntime(t *testing.T, yamlBody string) *runtimectx.Context {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "systemg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlBody), 0o644))
	return &runtimectx.Context{
		Mode:       runtimectx.User,
		StateDir:   dir,
		LogDir:     dir,
		ConfigDir:  dir,
		ConfigFile: cfgPath,
	}
}

func TestBootstrapServeStatusShutdown(t *testing.T) {
	rt := newTestRuntime(t, `
services:
  web:
    command: "sleep 30"
    restart_policy: never
`)

	sup := New(rt, logging.NewDiscardLogger(), false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sup.Bootstrap(ctx))
	go sup.Serve()
	defer sup.Shutdown()

	require.Eventually(t, func() bool {
		c, err := ipc.Dial(rt.SocketPath(), time.Second)
		if err != nil {
			return false
		}
		defer c.Close()
		resp, err := c.Call(ipc.Request{Tag: ipc.ReqStatus}, time.Second)
		if err != nil || resp.Tag != ipc.RespStatus || resp.Status == nil {
			return false
		}
		return len(resp.Status.Units) == 1 && resp.Status.Units[0].Process != nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestHandleStopUnknownService(t *testing.T) {
	rt := newTestRuntime(t, `
services:
  web:
    command: "sleep 30"
`)
	sup := New(rt, logging.NewDiscardLogger(), false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Bootstrap(ctx))
	defer sup.Shutdown()

	resp := sup.handleStop(ipc.Request{Tag: ipc.ReqStop, Service: "nonexistent"})
	require.Equal(t, ipc.RespError, resp.Tag)
}
