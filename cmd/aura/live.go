package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/aura/internal/app"
	"github.com/MrWong99/aura/internal/console"
	"github.com/MrWong99/aura/internal/live"
)

const liveHelp = "keys: m+Enter mute/unmute, c+Enter connect, d+Enter disconnect, q+Enter quit"

func newLiveCmd(rt *runtime) *cobra.Command {
	var muted bool
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Talk to the companion (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLive(cmd.Context(), rt, muted)
		},
	}
	cmd.Flags().BoolVar(&muted, "muted", false, "start with the microphone muted")
	return cmd
}

// runLive holds a spoken conversation. Lines on stdin steer the session;
// the status line is redrawn on stdout.
func runLive(ctx context.Context, rt *runtime, muted bool) error {
	con := console.New(rt.stdout, "", nil)
	a, err := newApp(ctx, rt, app.WithNotifier(con))
	if err != nil {
		return err
	}
	defer shutdown(a)

	ctrl, err := a.Live()
	if err != nil {
		return err
	}
	con.Attach(ctrl)
	ctrl.SetMuted(muted)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchConfig(watchCtx, rt, a)
	defer serveStatus(rt, a)()

	printStartupSummary(rt.stdout, rt.cfg, rt.providers)
	fmt.Fprintln(rt.stdout, liveHelp)

	connect := func() {
		settings, err := a.Settings(ctx)
		if err != nil {
			slog.Error("load settings", "err", err)
			return
		}
		con.SetName(settings.BotName)
		// Failures already reach the console banner through the notifier.
		if err := ctrl.Connect(ctx, settings); err != nil {
			slog.Debug("connect failed", "err", err)
		}
		con.Redraw()
	}
	go connect()

	lines := readLines(ctx, rt.stdin)
	for {
		con.Redraw()
		select {
		case <-ctx.Done():
			fmt.Fprintln(rt.stdout)
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep the session until a signal arrives.
				lines = nil
				continue
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "m":
				ctrl.SetMuted(!ctrl.Muted())
			case "c":
				if ctrl.State() == live.StateDisconnected {
					go connect()
				}
			case "d":
				ctrl.Disconnect()
			case "q":
				fmt.Fprintln(rt.stdout)
				return nil
			case "":
			default:
				fmt.Fprintln(rt.stdout)
				fmt.Fprintln(rt.stdout, liveHelp)
			}
		}
	}
}

// readLines delivers the lines of r until r ends or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
