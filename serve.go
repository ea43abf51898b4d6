package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tr1v3r/pkg/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tr1v3r/mpvbridge/internal/httpserver"
	"github.com/tr1v3r/mpvbridge/internal/media"
	"github.com/tr1v3r/mpvbridge/internal/mqtt"
	"github.com/tr1v3r/mpvbridge/internal/netutil"
	"github.com/tr1v3r/mpvbridge/internal/player"
	"github.com/tr1v3r/mpvbridge/internal/state"
	"github.com/tr1v3r/mpvbridge/internal/uuid"
)

const shutdownTimeout = 3 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the bridge: IPC client, HTTP server, media gateway and MQTT",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "http-port", Usage: "HTTP listen port"},
			&cli.StringFlag{Name: "public-url", Usage: "base URL mpv uses to reach this host"},
			&cli.BoolFlag{Name: "proxy-media", Usage: "serve local files to mpv over HTTP", Value: true},
			&cli.StringFlag{Name: "mqtt-broker", Usage: "MQTT broker URL, e.g. tcp://localhost:1883"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("http-port") {
		cfg.HTTPPort = cmd.Int("http-port")
	}
	if cmd.IsSet("public-url") {
		cfg.PublicURL = cmd.String("public-url")
	}
	if cmd.IsSet("proxy-media") {
		cfg.ProxyMedia = cmd.Bool("proxy-media")
	}
	if cmd.IsSet("mqtt-broker") {
		cfg.MQTTBroker = cmd.String("mqtt-broker")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror := state.NewMirror()
	client, err := newClient(cfg, mirror)
	if err != nil {
		return err
	}
	defer client.Close()

	// media gateway
	var (
		gateway *media.Gateway
		tickets player.Ticketer
	)
	if cfg.ProxyMedia {
		baseURL, err := netutil.BaseURL(cfg.PublicURL, cfg.HTTPPort)
		if err != nil {
			log.Error("media proxy disabled, no usable base URL: %v", err)
		} else {
			gateway = media.NewGateway(media.Options{
				BaseURL: baseURL,
				TTL:     cfg.TicketTTL,
				Grace:   cfg.TicketGrace,
			})
			tickets = gateway
			log.Info("media gateway at %s%s", baseURL, media.RoutePrefix)
		}
	}

	p := player.NewMPVPlayer(client, mirror, tickets, cfg.ProxyMedia)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpserver.NewRouter(httpserver.Routes{
			Gateway: gateway,
			State:   mirror,
			Conn:    client,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	client.Start(ctx)
	log.Info("mpv IPC endpoint %s", endpoint(cfg))

	if gateway != nil {
		g.Go(func() error { return gateway.Run(ctx) })
	}

	if cfg.MQTTBroker != "" {
		id, err := uuid.LoadOrCreate(cfg.IDPath)
		if err != nil {
			log.Error("instance id not persisted, using %s for this run: %v", id, err)
		}
		bridge := mqtt.NewBridge(mqtt.Options{
			Broker:      cfg.MQTTBroker,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			InstanceID:  id,
		}, p, mirror)
		g.Go(func() error {
			// the broker being away must not take playback control down with it
			if err := bridge.Run(ctx); err != nil {
				log.Error("mqtt bridge stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info("HTTP listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
		return client.Close()
	})

	err = g.Wait()
	log.Info("bye")
	return err
}
