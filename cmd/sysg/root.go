package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sysgio/sysg/internal/runtimectx"
)

// callTimeout bounds every control-socket round trip the CLI makes.
const callTimeout = 5 * time.Second

var (
	flagSystem bool
	flagConfig string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sysg",
		Short:         "systemg process supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flagSystem, "system", false, "use the system-wide runtime directory (/var/lib/systemg) instead of the per-user one")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "override the config file path")

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStatusCmd(),
		newInspectCmd(),
		newDaemonCmd(),
		newVersionCmd(),
	)
	return root
}

// resolveRuntime constructs the runtime context for the selected mode,
// honoring --system/--config.
func resolveRuntime() (*runtimectx.Context, error) {
	mode := runtimectx.User
	if flagSystem {
		mode = runtimectx.System
	}
	rt, err := runtimectx.New(mode, flagConfig)
	if err != nil {
		return nil, fmt.Errorf("resolve runtime context: %w", err)
	}
	return rt, nil
}
