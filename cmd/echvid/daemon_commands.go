package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"echvid/internal/daemonctl"
	"echvid/internal/daemonrun"
	"echvid/internal/queue"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 30 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newRunCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var bind string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground (workers and HTTP API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel, APIBind: bind})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			envFile := ""
			if ctx.envFileFlag != nil {
				envFile = *ctx.envFileFlag
			}
			result, err := daemonctl.EnsureStarted(cfg, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configFlagValue(),
				EnvFile:    envFile,
			}, startWaitTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not stop within %s; killed pid %d\n", stopGracePeriod, result.PID)
				fmt.Fprintln(out, "Jobs it was running are recovered on the next start")
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
}

type statusView struct {
	Running      bool             `json:"running"`
	PID          int              `json:"pid,omitempty"`
	QueueDBPath  string           `json:"queueDbPath"`
	LockPath     string           `json:"lockPath"`
	APIBind      string           `json:"apiBind"`
	Queue        map[string]int   `json:"queue"`
	QueueError   string           `json:"queueError,omitempty"`
	Dependencies []dependencyView `json:"dependencies"`
}

type dependencyView struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Available bool   `json:"available"`
	Optional  bool   `json:"optional"`
	Detail    string `json:"detail,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			view := statusView{
				Running:     snap.Running,
				PID:         snap.PID,
				QueueDBPath: snap.QueueDBPath,
				LockPath:    snap.LockPath,
				APIBind:     cfg.Paths.APIBind,
				Queue:       make(map[string]int, len(snap.QueueStats)),
			}
			for status, count := range snap.QueueStats {
				view.Queue[string(status)] = count
			}
			if snap.QueueErr != nil {
				view.QueueError = snap.QueueErr.Error()
			}
			for _, dep := range snap.Dependencies {
				view.Dependencies = append(view.Dependencies, dependencyView{
					Name:      dep.Name,
					Command:   dep.Command,
					Available: dep.Available,
					Optional:  dep.Optional,
					Detail:    dep.Detail,
				})
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, view)
			}
			renderStatus(cmd.OutOrStdout(), view, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
}

func renderStatus(out io.Writer, view statusView, colorize bool) {
	lines := renderSectionHeader("Daemon", colorize)
	if view.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, "Running (pid "+strconv.Itoa(view.PID)+")", colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "Stopped", colorize))
	}
	if view.APIBind == "" {
		lines = append(lines, renderStatusLine("API", statusWarn, "Disabled", colorize))
	} else {
		lines = append(lines, renderStatusLine("API", statusInfo, view.APIBind, colorize))
	}
	lines = append(lines, renderStatusLine("Queue DB", statusInfo, view.QueueDBPath, colorize))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, dep := range view.Dependencies {
		kind := statusOK
		message := dep.Command
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			message = dep.Detail
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, message, colorize))
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out)
	if view.QueueError != "" {
		fmt.Fprintln(out, renderStatusLine("Queue", statusError, view.QueueError, colorize))
		return
	}
	printTable(out, []string{"Status", "Count"}, buildQueueStatusRows(view.Queue),
		[]columnAlignment{alignLeft, alignRight}, "Queue is empty")
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		if count := stats[string(status)]; count > 0 {
			rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(count)})
		}
	}
	return rows
}
