package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sysgio/sysg/internal/config"
	"github.com/sysgio/sysg/internal/cronstate"
	"github.com/sysgio/sysg/internal/ipc"
	"github.com/sysgio/sysg/internal/metrics"
	"github.com/sysgio/sysg/internal/pidfile"
	"github.com/sysgio/sysg/internal/runtimectx"
	"github.com/sysgio/sysg/internal/statefile"
	"github.com/sysgio/sysg/internal/status"
)

// exitCodeFor maps spec.md §6's health-to-exit-code table.
func exitCodeFor(h status.UnitHealth) int {
	switch h {
	case status.Healthy:
		return 0
	case status.Degraded:
		return 1
	default: // Failing, Inactive
		return 2
	}
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "status",
		Short: "report the health of every declared unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := fetchStatus()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(snap); err != nil {
					return err
				}
			} else {
				printStatusTable(snap)
			}
			os.Exit(exitCodeFor(snap.OverallHealth))
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print the raw status snapshot as JSON")
	return c
}

func newInspectCmd() *cobra.Command {
	var asJSON bool
	var samples int
	c := &cobra.Command{
		Use:   "inspect <unit>",
		Short: "show one unit's status and recent metric samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unit := args[0]
			rt, err := resolveRuntime()
			if err != nil {
				return err
			}
			payload, err := fetchInspect(rt, unit, samples)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}
			printInspect(payload)
			os.Exit(exitCodeFor(payload.Unit.Health))
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print the raw inspect payload as JSON")
	c.Flags().IntVar(&samples, "samples", 20, "number of recent metric samples to include")
	return c
}

// fetchStatus asks the running supervisor for a snapshot, falling back
// to a disk-only Builder (no live metrics) when no supervisor is up.
func fetchStatus() (*status.StatusSnapshot, error) {
	rt, err := resolveRuntime()
	if err != nil {
		return nil, err
	}

	c, err := dial(rt)
	if err == nil {
		defer c.Close()
		resp, callErr := c.Call(ipc.Request{Tag: ipc.ReqStatus}, callTimeout)
		if callErr != nil {
			return nil, callErr
		}
		if resp.Tag == ipc.RespError {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return resp.Status, nil
	}
	if !errors.Is(err, ipc.ErrNotAvailable) {
		return nil, err
	}
	return buildOfflineSnapshot(rt)
}

func fetchInspect(rt *runtimectx.Context, unit string, samples int) (*ipc.InspectPayload, error) {
	c, err := dial(rt)
	if err == nil {
		defer c.Close()
		resp, callErr := c.Call(ipc.Request{Tag: ipc.ReqInspect, Unit: unit, Samples: samples}, callTimeout)
		if callErr != nil {
			return nil, callErr
		}
		if resp.Tag == ipc.RespError {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return resp.Inspect, nil
	}
	if !errors.Is(err, ipc.ErrNotAvailable) {
		return nil, err
	}
	snap, buildErr := buildOfflineSnapshot(rt)
	if buildErr != nil {
		return nil, buildErr
	}
	for _, u := range snap.Units {
		if u.Name == unit || u.Hash == unit {
			return &ipc.InspectPayload{Unit: u}, nil
		}
	}
	return nil, fmt.Errorf("unknown unit %q", unit)
}

// buildOfflineSnapshot constructs a Status Builder directly against the
// persisted files, without a live Metrics Store, per spec.md §6's
// disk-fallback behavior.
func buildOfflineSnapshot(rt *runtimectx.Context) (*status.StatusSnapshot, error) {
	cfg, err := config.Load(rt.ConfigFile)
	if err != nil {
		return nil, err
	}
	b := status.New(
		pidfile.Open(rt.PidMapPath()),
		statefile.Open(rt.ServiceStatePath()),
		cronstate.Open(rt.CronStatePath()),
		metrics.NewStore(),
		nil,
	)
	return b.Build(cfg)
}

func printStatusTable(snap *status.StatusSnapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tHEALTH\tPID\tSTATE")
	for _, u := range snap.Units {
		pid, state := "-", "-"
		if u.Process != nil {
			pid = fmt.Sprintf("%d", u.Process.PID)
			state = string(u.Process.State)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.Name, u.Kind, u.Health, pid, state)
	}
	w.Flush()
	fmt.Printf("overall: %s\n", snap.OverallHealth)
}

func printInspect(p *ipc.InspectPayload) {
	u := p.Unit
	fmt.Printf("%s (%s)\n", u.Name, u.Hash)
	fmt.Printf("  kind:   %s\n", u.Kind)
	fmt.Printf("  health: %s\n", u.Health)
	if u.Process != nil {
		fmt.Printf("  pid:    %d (%s)\n", u.Process.PID, u.Process.State)
	}
	if u.Cron != nil {
		fmt.Printf("  cron:   tz=%s\n", u.Cron.Timezone)
	}
	if len(p.Samples) > 0 {
		fmt.Printf("  samples (%d):\n", len(p.Samples))
		for _, s := range p.Samples {
			fmt.Printf("    %s  cpu=%.1f%%  rss=%dB\n", s.Timestamp.Format("15:04:05"), s.CPUPercent, s.RSSBytes)
		}
	}
}
