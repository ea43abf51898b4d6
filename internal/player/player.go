package player

import (
	"context"

	"github.com/tr1v3r/mpvbridge/internal/state"
)

type Player interface {
	Load(ctx context.Context, ref MediaRef) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, percent float64) error
	SetMute(ctx context.Context, m bool) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	ClearPlaylist(ctx context.Context) error
	SetRepeat(ctx context.Context, mode state.RepeatMode) error

	// State returns the mirrored playback state without blocking on mpv.
	State() state.PlaybackState
}
