package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tr1v3r/pkg/log"

	"github.com/tr1v3r/mpvbridge/internal/mpv"
	"github.com/tr1v3r/mpvbridge/internal/state"
)

var (
	ErrInvalidArgument  = errors.New("player: invalid argument")
	ErrProxyUnavailable = errors.New("player: media proxy unavailable")
)

// Caller sends one IPC command and waits for its reply. *mpv.Client
// implements it.
type Caller interface {
	Call(ctx context.Context, cmd mpv.Command) (json.RawMessage, error)
}

// Ticketer exposes a local file over HTTP. *media.Gateway implements it.
type Ticketer interface {
	IssueTicket(path string) (string, error)
	RevokeURL(u string)
}

// MPVPlayer is the Player backed by the IPC client and the state mirror.
type MPVPlayer struct {
	caller  Caller
	mirror  *state.Mirror
	tickets Ticketer
	proxy   bool
}

var _ Player = (*MPVPlayer)(nil)

// NewMPVPlayer composes the facade. tickets may be nil when proxying is off.
func NewMPVPlayer(caller Caller, mirror *state.Mirror, tickets Ticketer, proxyMedia bool) *MPVPlayer {
	return &MPVPlayer{caller: caller, mirror: mirror, tickets: tickets, proxy: proxyMedia}
}

func (p *MPVPlayer) call(ctx context.Context, name string, args ...any) error {
	if _, err := p.caller.Call(ctx, mpv.NewCommand(name, args...)); err != nil {
		return fmt.Errorf("calling mpv %s failed: %w", name, err)
	}
	return nil
}

func (p *MPVPlayer) setProperty(ctx context.Context, name string, value any) error {
	return p.call(ctx, "set_property", name, value)
}

// resolve turns a media reference into something the (possibly remote) mpv
// can open. ticketed reports whether target is a gateway URL.
func (p *MPVPlayer) resolve(ref MediaRef) (target string, ticketed bool, err error) {
	path, local := ref.localPath()
	if !local {
		return ref.URI, false, nil
	}
	if !p.proxy {
		return path, false, nil
	}
	if p.tickets == nil {
		return "", false, ErrProxyUnavailable
	}
	u, err := p.tickets.IssueTicket(path)
	if err != nil {
		return "", false, fmt.Errorf("exposing %s: %w", path, err)
	}
	return u, true, nil
}

func (p *MPVPlayer) Load(ctx context.Context, ref MediaRef) error {
	if ref.URI == "" {
		return fmt.Errorf("%w: empty media reference", ErrInvalidArgument)
	}
	mode, err := ParseEnqueueMode(string(ref.Enqueue))
	if err != nil {
		return err
	}
	target, ticketed, err := p.resolve(ref)
	if err != nil {
		return err
	}

	log.CtxDebug(ctx, "MPVPlayer Load: uri=%s target=%s enqueue=%s", ref.URI, target, mode)
	if err := p.call(ctx, "loadfile", target, mode.flag()); err != nil {
		if ticketed {
			p.tickets.RevokeURL(target)
		}
		return err
	}
	// mpv has no "insert next and play it" flag
	if mode == EnqueuePlay {
		if err := p.call(ctx, "playlist-next"); err != nil {
			return err
		}
	}
	// loading anything resumes playback, even when only queued
	return p.setProperty(ctx, mpv.PropPause, false)
}

func (p *MPVPlayer) Play(ctx context.Context) error {
	return p.setProperty(ctx, mpv.PropPause, false)
}

func (p *MPVPlayer) Pause(ctx context.Context) error {
	return p.setProperty(ctx, mpv.PropPause, true)
}

func (p *MPVPlayer) Stop(ctx context.Context) error {
	return p.call(ctx, "stop")
}

func (p *MPVPlayer) Seek(ctx context.Context, seconds float64) error {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("%w: seek position %v", ErrInvalidArgument, seconds)
	}
	return p.call(ctx, "seek", seconds, "absolute")
}

func (p *MPVPlayer) SetVolume(ctx context.Context, percent float64) error {
	if percent < 0 || percent > 100 || math.IsNaN(percent) {
		return fmt.Errorf("%w: volume %v", ErrInvalidArgument, percent)
	}
	return p.setProperty(ctx, mpv.PropVolume, percent)
}

func (p *MPVPlayer) SetMute(ctx context.Context, m bool) error {
	return p.setProperty(ctx, mpv.PropMute, m)
}

func (p *MPVPlayer) Next(ctx context.Context) error {
	return p.call(ctx, "playlist-next")
}

func (p *MPVPlayer) Previous(ctx context.Context) error {
	return p.call(ctx, "playlist-prev")
}

func (p *MPVPlayer) ClearPlaylist(ctx context.Context) error {
	return p.call(ctx, "playlist-clear")
}

func (p *MPVPlayer) SetRepeat(ctx context.Context, mode state.RepeatMode) error {
	loopFile, loopPlaylist := "no", "no"
	switch mode {
	case state.RepeatOne:
		loopFile = "inf"
	case state.RepeatAll:
		loopPlaylist = "inf"
	case state.RepeatOff:
	default:
		return fmt.Errorf("%w: repeat mode %q", ErrInvalidArgument, mode)
	}
	if err := p.setProperty(ctx, mpv.PropLoopFile, loopFile); err != nil {
		return err
	}
	return p.setProperty(ctx, mpv.PropLoopPlaylist, loopPlaylist)
}

func (p *MPVPlayer) State() state.PlaybackState {
	return p.mirror.Snapshot()
}

// Subscribe registers a state-change observer.
func (p *MPVPlayer) Subscribe(buffer int) *state.Subscription {
	return p.mirror.Subscribe(buffer)
}
