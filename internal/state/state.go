package state

import (
	"math"
	"sync"
	"time"

	"github.com/tr1v3r/pkg/log"

	"github.com/tr1v3r/mpvbridge/internal/mpv"
)

// Status is the coarse playback state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusBuffering Status = "buffering"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// RepeatMode mirrors loop-file / loop-playlist.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// PositionGranularity is the smallest position movement that is notified
// on its own. Smaller moves are stored but do not raise a change.
const PositionGranularity = time.Second

// PlaybackState is a snapshot of mpv's playback state.
type PlaybackState struct {
	Status    Status `json:"status"`
	Available bool   `json:"available"`

	Position          float64   `json:"position"`
	PositionUpdatedAt time.Time `json:"position_updated_at"`
	Duration          float64   `json:"duration"`

	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`

	MediaTitle string `json:"media_title,omitempty"`
	MediaPath  string `json:"media_path,omitempty"`

	Repeat        RepeatMode `json:"repeat"`
	PlaylistPos   int        `json:"playlist_pos"`
	PlaylistCount int        `json:"playlist_count"`

	Paused    bool   `json:"paused"`
	EndReason string `json:"end_reason,omitempty"`
	FileError string `json:"file_error,omitempty"`
}

// Change is delivered to subscribers for every notified transition.
type Change struct {
	Old PlaybackState
	New PlaybackState
}

// flags are the raw inputs the coarse status is derived from.
type flags struct {
	idle      bool
	cacheWait bool
	loading   bool // start-file seen, playback-restart not yet
	seeking   bool
	ended     bool
	failed    bool
	loopFile  bool
	loopList  bool
}

// Mirror applies IPC notifications to a PlaybackState and fans changes out
// to subscribers. It implements mpv.EventHandler.
type Mirror struct {
	now func() time.Time

	mu       sync.RWMutex
	current  PlaybackState
	flags    flags
	notified float64 // position carried by the last notification

	subMu sync.Mutex
	subs  map[*Subscription]struct{}
}

func NewMirror() *Mirror {
	m := &Mirror{
		now:  time.Now,
		subs: make(map[*Subscription]struct{}),
	}
	m.current = offline()
	return m
}

func offline() PlaybackState {
	return PlaybackState{Status: StatusIdle, Repeat: RepeatOff, PlaylistPos: -1}
}

// Snapshot returns a consistent copy of the current state.
func (m *Mirror) Snapshot() PlaybackState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// HandleConnState resets the mirror while mpv is unreachable, so no stale
// data is reported as current.
func (m *Mirror) HandleConnState(s mpv.ConnState) {
	switch s {
	case mpv.Connected:
		m.update(func(st *PlaybackState, _ *flags) { st.Available = true })
	case mpv.Disconnected, mpv.Closed:
		m.update(func(st *PlaybackState, f *flags) {
			*st = offline()
			*f = flags{}
		})
	}
}

// HandleEvent applies one IPC event. Unknown events are ignored.
func (m *Mirror) HandleEvent(ev mpv.Event) {
	switch ev.Kind {
	case mpv.EventPropertyChange:
		m.applyProperty(ev)
	case mpv.EventStartFile:
		m.update(func(st *PlaybackState, f *flags) {
			f.loading, f.seeking, f.ended, f.failed = true, false, false, false
			f.idle = false
			st.EndReason, st.FileError = "", ""
		})
	case mpv.EventPlaybackRestart:
		m.update(func(_ *PlaybackState, f *flags) { f.loading, f.seeking = false, false })
	case mpv.EventSeek:
		m.update(func(_ *PlaybackState, f *flags) { f.seeking = true })
	case mpv.EventPause:
		m.update(func(st *PlaybackState, _ *flags) { st.Paused = true })
	case mpv.EventUnpause:
		m.update(func(st *PlaybackState, _ *flags) { st.Paused = false })
	case mpv.EventIdle:
		m.update(func(_ *PlaybackState, f *flags) { f.idle = true })
	case mpv.EventEndFile:
		m.update(func(st *PlaybackState, f *flags) {
			f.loading, f.seeking = false, false
			st.EndReason = ev.Reason
			switch ev.Reason {
			case "error":
				f.failed = true
				st.FileError = ev.FileError
			case "eof", "stop", "quit":
				f.ended = true
			}
		})
	case mpv.EventFileLoaded, mpv.EventShutdown:
	default:
		log.Debug("mirror: ignoring event %q", ev.Name)
	}
}

func (m *Mirror) applyProperty(ev mpv.Event) {
	prop, ok := mpv.LookupProperty(ev.ID)
	if !ok || (ev.Property != "" && ev.Property != prop.Name) {
		log.Debug("mirror: ignoring property %q (id %d)", ev.Property, ev.ID)
		return
	}
	v, err := prop.Decode(ev.Data)
	if err != nil {
		log.Error("mirror: %v", err)
		return
	}

	m.update(func(st *PlaybackState, f *flags) {
		switch prop.Name {
		case mpv.PropIdleActive:
			f.idle = v.Valid && v.Bool
		case mpv.PropPause:
			st.Paused = v.Valid && v.Bool
		case mpv.PropPausedForCache:
			f.cacheWait = v.Valid && v.Bool
		case mpv.PropMute:
			st.Muted = v.Valid && v.Bool
		case mpv.PropVolume:
			if v.Valid {
				st.Volume = v.Number
			}
		case mpv.PropDuration:
			st.Duration = 0
			if v.Valid {
				st.Duration = v.Number
			}
		case mpv.PropTimePos:
			st.Position = 0
			if v.Valid {
				st.Position = v.Number
			}
			st.PositionUpdatedAt = m.now()
		case mpv.PropMediaTitle:
			st.MediaTitle = v.String
		case mpv.PropPath:
			st.MediaPath = v.String
		case mpv.PropEOFReached:
			// end-file carries the authoritative reason
		case mpv.PropLoopFile:
			f.loopFile = v.Valid && v.Bool
		case mpv.PropLoopPlaylist:
			f.loopList = v.Valid && v.Bool
		case mpv.PropPlaylistPos:
			st.PlaylistPos = -1
			if v.Valid {
				st.PlaylistPos = int(v.Number)
			}
		case mpv.PropPlaylistCount:
			st.PlaylistCount = 0
			if v.Valid {
				st.PlaylistCount = int(v.Number)
			}
		}
	})
}

// update mutates the state under the lock, re-derives the status, restores
// invariants and notifies subscribers when something observable changed.
// Publishing happens under the lock so notifications keep update order;
// offer never blocks.
func (m *Mirror) update(fn func(*PlaybackState, *flags)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.current
	next := old
	fn(&next, &m.flags)
	next.Status = derive(next, m.flags)
	next.Repeat = repeatMode(m.flags)
	normalize(&next)
	m.current = next

	if significant(old, next, m.notified) {
		m.notified = next.Position
		m.publish(Change{Old: old, New: next})
	}
}

// derive computes the coarse status. Precedence:
// error > stopped > idle > loading/seeking > paused > cache wait > playing.
func derive(st PlaybackState, f flags) Status {
	switch {
	case !st.Available:
		return StatusIdle
	case f.failed:
		return StatusError
	case f.ended:
		return StatusStopped
	case f.idle:
		return StatusIdle
	case f.loading, f.seeking:
		return StatusBuffering
	case st.Paused:
		return StatusPaused
	case f.cacheWait:
		return StatusBuffering
	}
	return StatusPlaying
}

func repeatMode(f flags) RepeatMode {
	switch {
	case f.loopFile:
		return RepeatOne
	case f.loopList:
		return RepeatAll
	}
	return RepeatOff
}

func normalize(st *PlaybackState) {
	if st.Duration < 0 || math.IsNaN(st.Duration) {
		st.Duration = 0
	}
	if st.Position < 0 || math.IsNaN(st.Position) {
		st.Position = 0
	}
	if st.Duration > 0 && st.Position > st.Duration {
		st.Position = st.Duration
	}
	st.Volume = min(max(st.Volume, 0), 100)
}

// significant reports whether the change between old and next is worth a
// notification. Position drift below PositionGranularity is not.
func significant(old, next PlaybackState, notifiedPos float64) bool {
	a, b := old, next
	a.Position, b.Position = 0, 0
	a.PositionUpdatedAt, b.PositionUpdatedAt = time.Time{}, time.Time{}
	if a != b {
		return true
	}
	return math.Abs(next.Position-notifiedPos) >= PositionGranularity.Seconds()
}
