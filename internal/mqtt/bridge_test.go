package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr1v3r/mpvbridge/internal/player"
	"github.com/tr1v3r/mpvbridge/internal/state"
)

type call struct {
	op  string
	arg any
}

type fakePlayer struct {
	calls []call
	err   error
}

func (f *fakePlayer) record(op string, arg any) error {
	f.calls = append(f.calls, call{op, arg})
	return f.err
}

func (f *fakePlayer) Load(_ context.Context, ref player.MediaRef) error { return f.record("load", ref) }
func (f *fakePlayer) Play(context.Context) error { return f.record("play", nil) }
func (f *fakePlayer) Pause(context.Context) error { return f.record("pause", nil) }
func (f *fakePlayer) Stop(context.Context) error { return f.record("stop", nil) }
func (f *fakePlayer) Seek(_ context.Context, s float64) error { return f.record("seek", s) }
func (f *fakePlayer) SetVolume(_ context.Context, v float64) error { return f.record("volume", v) }
func (f *fakePlayer) SetMute(_ context.Context, m bool) error { return f.record("mute", m) }
func (f *fakePlayer) Next(context.Context) error { return f.record("next", nil) }
func (f *fakePlayer) Previous(context.Context) error { return f.record("previous", nil) }
func (f *fakePlayer) ClearPlaylist(context.Context) error { return f.record("clear", nil) }
func (f *fakePlayer) SetRepeat(_ context.Context, m state.RepeatMode) error {
	return f.record("repeat", m)
}
func (f *fakePlayer) State() state.PlaybackState { return state.PlaybackState{} }

func newTestBridge(p player.Player) *Bridge {
	return NewBridge(Options{
		Broker:      "tcp://127.0.0.1:1",
		TopicPrefix: "mpvbridge",
		InstanceID:  "abc",
	}, p, state.NewMirror())
}

func TestTopics(t *testing.T) {
	topics := NewTopics("/home/mpv/", "abc")
	assert.Equal(t, "home/mpv/abc/state", topics.State)
	assert.Equal(t, "home/mpv/abc/availability", topics.Availability)
	assert.Equal(t, "home/mpv/abc/command", topics.Command)
}

func TestDispatch(t *testing.T) {
	cases := []struct {
		payload string
		want    call
	}{
		{`{"action":"load","uri":"/m/a.mkv","enqueue":"append"}`,
			call{"load", player.MediaRef{URI: "/m/a.mkv", Enqueue: player.EnqueueAppend}}},
		{`{"action":"load","uri":"http://x/y"}`,
			call{"load", player.MediaRef{URI: "http://x/y", Enqueue: player.EnqueueReplace}}},
		{`{"action":"play"}`, call{"play", nil}},
		{`{"action":"PAUSE"}`, call{"pause", nil}},
		{`{"action":"stop"}`, call{"stop", nil}},
		{`{"action":"seek","position":42.5}`, call{"seek", 42.5}},
		{`{"action":"volume","level":0.25}`, call{"volume", 25.0}},
		{`{"action":"mute","muted":true}`, call{"mute", true}},
		{`{"action":"next"}`, call{"next", nil}},
		{`{"action":"previous"}`, call{"previous", nil}},
		{`{"action":"clear"}`, call{"clear", nil}},
		{`{"action":"repeat","mode":"All"}`, call{"repeat", state.RepeatAll}},
	}
	for _, tc := range cases {
		t.Run(tc.payload, func(t *testing.T) {
			p := &fakePlayer{}
			require.NoError(t, newTestBridge(p).Dispatch(context.Background(), []byte(tc.payload)))
			require.Len(t, p.calls, 1)
			assert.Equal(t, tc.want, p.calls[0])
		})
	}
}

func TestDispatchRejects(t *testing.T) {
	cases := []struct {
		payload string
		want    error
	}{
		{`{"action":"dance"}`, ErrUnknownAction},
		{`{"action":"seek"}`, player.ErrInvalidArgument},
		{`{"action":"volume","level":1.5}`, player.ErrInvalidArgument},
		{`{"action":"volume"}`, player.ErrInvalidArgument},
		{`{"action":"mute"}`, player.ErrInvalidArgument},
		{`{"action":"load","uri":"x","enqueue":"sideways"}`, player.ErrInvalidArgument},
	}
	for _, tc := range cases {
		p := &fakePlayer{}
		err := newTestBridge(p).Dispatch(context.Background(), []byte(tc.payload))
		assert.ErrorIs(t, err, tc.want, tc.payload)
		assert.Empty(t, p.calls, tc.payload)
	}

	err := newTestBridge(&fakePlayer{}).Dispatch(context.Background(), []byte("not json"))
	assert.Error(t, err)
}

func TestDispatchPropagatesPlayerError(t *testing.T) {
	boom := errors.New("boom")
	p := &fakePlayer{err: boom}
	err := newTestBridge(p).Dispatch(context.Background(), []byte(`{"action":"play"}`))
	assert.ErrorIs(t, err, boom)
}
