package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sysgio/sysg/internal/logging"
	"github.com/sysgio/sysg/internal/supervisor"
	"github.com/sysgio/sysg/utils"
)

// newDaemonCmd runs the supervisor reactor attached to the controlling
// terminal; sysg never self-daemonizes, so backgrounding it is the
// caller's init system's job (systemd unit, runit service, etc).
func newDaemonCmd() *cobra.Command {
	var dropPrivileges bool
	c := &cobra.Command{
		Use:   "daemon",
		Short: "run the supervisor reactor in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(dropPrivileges)
		},
	}
	c.Flags().BoolVar(&dropPrivileges, "drop-privileges", true, "when running as root, run services that configure no user as nobody")
	return c
}

func runDaemon(dropPrivileges bool) error {
	rt, err := resolveRuntime()
	if err != nil {
		return err
	}
	rt.CaptureSocketActivation()

	lg, err := logging.NewFile(rt.SupervisorLogPath())
	if err != nil {
		lg = logging.NewDiscardLogger()
	}

	sup := supervisor.New(rt, lg, dropPrivileges)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	lg.Infof("sysg daemon started, mode=%s socket=%s", rt.Mode, rt.SocketPath())

	shutdownCh := make(chan os.Signal, 1)
	reloadCh := make(chan os.Signal, 1)
	utils.NotifyShutdown(shutdownCh)
	utils.NotifyReload(reloadCh)

	go func() {
		for {
			select {
			case sig := <-shutdownCh:
				lg.Infof("received %v, shutting down", sig)
				cancel()
				sup.Shutdown()
				return
			case <-reloadCh:
				lg.Infof("received SIGHUP, reloading config")
				if err := sup.Reload(); err != nil {
					lg.Warnf("reload failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	sup.Serve()
	return nil
}
