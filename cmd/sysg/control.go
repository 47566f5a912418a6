package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sysgio/sysg/internal/ipc"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [service]",
		Short: "start one service, or every service declared in config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(ipc.Request{Tag: ipc.ReqStart, Service: argOrEmpty(args)})
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [service]",
		Short: "stop one service, or every running service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(ipc.Request{Tag: ipc.ReqStop, Service: argOrEmpty(args)})
		},
	}
}

func newRestartCmd() *cobra.Command {
	var configPath string
	c := &cobra.Command{
		Use:   "restart [service]",
		Short: "restart one service, or reload config and restart everything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(ipc.Request{Tag: ipc.ReqRestart, Service: argOrEmpty(args), Config: configPath})
		},
	}
	c.Flags().StringVar(&configPath, "config-file", "", "config file to reload from (only valid with no service argument)")
	return c
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// runControl sends req to the running supervisor and reports the result.
// Start/Stop/Restart require a live supervisor; there is no disk
// fallback for them, since there is nothing to manage without one.
func runControl(req ipc.Request) error {
	rt, err := resolveRuntime()
	if err != nil {
		return err
	}
	c, err := dial(rt)
	if err != nil {
		return fmt.Errorf("sysg: no running supervisor at %s (start one with `sysg daemon`)", rt.SocketPath())
	}
	defer c.Close()

	resp, err := c.Call(req, callTimeout)
	if err != nil {
		return err
	}
	switch resp.Tag {
	case ipc.RespOk:
		return nil
	case ipc.RespMessage:
		fmt.Println(resp.Message)
		return nil
	case ipc.RespError:
		return fmt.Errorf("%s", resp.Error)
	default:
		return fmt.Errorf("unexpected response tag %q", resp.Tag)
	}
}
