package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tr1v3r/pkg/log"
	"github.com/urfave/cli/v3"

	"github.com/tr1v3r/mpvbridge/internal/config"
	"github.com/tr1v3r/mpvbridge/internal/mpv"
)

func main() {
	defer log.Close()

	cmd := &cli.Command{
		Name:  "mpvbridge",
		Usage: "control a running mpv over its JSON IPC socket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars("MPVBRIDGE_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "mpv IPC unix socket path (--input-ipc-server)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "mpv IPC TCP host, exclusive with --socket",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "mpv IPC TCP port",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			stateCommand(),
			execCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Error("%v", err)
		fmt.Fprintln(os.Stderr, err)
		log.Close()
		os.Exit(1)
	}
}

// loadConfig resolves the configuration for a command: file and environment
// first, then command-line overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}

	if cmd.Bool("debug") {
		cfg.Debug = true
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	switch {
	case cmd.IsSet("host"):
		cfg.Host = cmd.String("host")
		cfg.SocketPath = ""
		if cmd.IsSet("socket") {
			cfg.SocketPath = cmd.String("socket")
		}
	case cmd.IsSet("socket"):
		cfg.SocketPath = cmd.String("socket")
		cfg.Host = ""
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	if err := cfg.CheckEndpoint(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func endpoint(cfg config.Config) mpv.Endpoint {
	return mpv.Endpoint{Path: cfg.SocketPath, Host: cfg.Host, Port: cfg.Port}
}

// newClient builds an IPC client for cfg. handler may be nil.
func newClient(cfg config.Config, handler mpv.EventHandler) (*mpv.Client, error) {
	ep := endpoint(cfg)
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	return mpv.NewClient(mpv.Options{
		Transport:   mpv.NewTransport(ep, cfg.DialTimeout, cfg.WriteTimeout),
		Handler:     handler,
		CallTimeout: cfg.CallTimeout,
		Backoff: mpv.BackoffPolicy{
			Initial:     cfg.BackoffInitial,
			Max:         cfg.BackoffMax,
			Multiplier:  cfg.BackoffMultiplier,
			Jitter:      mpv.DefaultBackoffPolicy().Jitter,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		QueueLimit: cfg.QueueLimit,
	}), nil
}
