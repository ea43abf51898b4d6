package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tr1v3r/mpvbridge/internal/mpv"
	"github.com/tr1v3r/mpvbridge/internal/state"
)

const (
	connectWait = 5 * time.Second
	settleQuiet = 200 * time.Millisecond
	settleMax   = 2 * time.Second
)

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "print mpv's playback state as JSON",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			mirror := state.NewMirror()
			client, err := newClient(cfg, mirror)
			if err != nil {
				return err
			}
			defer client.Close()

			sub := mirror.Subscribe(state.DefaultSubscriptionBuffer)
			defer sub.Unsubscribe()

			if err := connect(ctx, client); err != nil {
				return err
			}
			settle(ctx, sub)

			out, err := json.MarshalIndent(mirror.Snapshot(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}
}

func execCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "send one raw IPC command and print the reply data",
		ArgsUsage: "NAME [ARGS...]",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "timeout", Usage: "reply timeout", Value: mpv.DefaultCallTimeout},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return errors.New("exec: missing command name")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := connect(ctx, client); err != nil {
				return err
			}

			args := cmd.Args().Slice()
			data, err := client.CallTimeout(ctx, mpv.NewCommand(args[0], parseArgs(args[1:])...), cmd.Duration("timeout"))
			if err != nil {
				return err
			}
			if len(data) == 0 {
				data = json.RawMessage("null")
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
}

func connect(ctx context.Context, client *mpv.Client) error {
	client.Start(ctx)
	ctx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	if err := client.WaitConnected(ctx); err != nil {
		return fmt.Errorf("connecting to mpv: %w", err)
	}
	return nil
}

// settle waits until the initial property burst after subscribing has
// quieted down.
func settle(ctx context.Context, sub *state.Subscription) {
	deadline := time.NewTimer(settleMax)
	defer deadline.Stop()
	quiet := time.NewTimer(settleQuiet)
	defer quiet.Stop()

	for {
		select {
		case <-sub.C():
			quiet.Reset(settleQuiet)
		case <-quiet.C:
			return
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// parseArgs keeps JSON literals (numbers, booleans, null, objects) typed and
// passes everything else through as a string.
func parseArgs(raw []string) []any {
	args := make([]any, 0, len(raw))
	for _, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			args = append(args, v)
			continue
		}
		args = append(args, s)
	}
	return args
}
