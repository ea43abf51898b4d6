package mpv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// https://mpv.io/manual/stable/#properties

// PropertyKind is the declared semantic type of an observed property.
type PropertyKind int

const (
	KindBool PropertyKind = iota
	KindNumber
	KindString
	// KindFlag accepts the mixed forms loop-* properties use: bool, "inf", "no", or a count.
	KindFlag
)

// Property is one entry of the observed property set.
type Property struct {
	ID   int64
	Name string
	Kind PropertyKind
}

const (
	PropIdleActive     = "idle-active"
	PropPause          = "pause"
	PropPausedForCache = "paused-for-cache"
	PropMute           = "mute"
	PropVolume         = "volume"
	PropDuration       = "duration"
	PropTimePos        = "time-pos"
	PropMediaTitle     = "media-title"
	PropPath           = "path"
	PropEOFReached     = "eof-reached"
	PropLoopFile       = "loop-file"
	PropLoopPlaylist   = "loop-playlist"
	PropPlaylistPos    = "playlist-pos"
	PropPlaylistCount  = "playlist-count"
)

// ObservedProperties is subscribed on every (re)connect. Observer ids are fixed
// so property-change events can be matched by id.
var ObservedProperties = []Property{
	{ID: 1, Name: PropIdleActive, Kind: KindBool},
	{ID: 2, Name: PropPause, Kind: KindBool},
	{ID: 3, Name: PropPausedForCache, Kind: KindBool},
	{ID: 4, Name: PropMute, Kind: KindBool},
	{ID: 5, Name: PropVolume, Kind: KindNumber},
	{ID: 6, Name: PropDuration, Kind: KindNumber},
	{ID: 7, Name: PropTimePos, Kind: KindNumber},
	{ID: 8, Name: PropMediaTitle, Kind: KindString},
	{ID: 9, Name: PropPath, Kind: KindString},
	{ID: 10, Name: PropEOFReached, Kind: KindBool},
	{ID: 11, Name: PropLoopFile, Kind: KindFlag},
	{ID: 12, Name: PropLoopPlaylist, Kind: KindFlag},
	{ID: 13, Name: PropPlaylistPos, Kind: KindNumber},
	{ID: 14, Name: PropPlaylistCount, Kind: KindNumber},
}

// LookupProperty finds an observed property by observer id.
func LookupProperty(id int64) (Property, bool) {
	for _, p := range ObservedProperties {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// ObserveCommand is the subscription command for p.
func (p Property) ObserveCommand() Command {
	return NewCommand("observe_property", p.ID, p.Name)
}

// Value is a decoded property value. Valid is false when mpv reported the
// property as unavailable (null or missing data).
type Value struct {
	Valid  bool
	Bool   bool
	Number float64
	String string
}

// Decode interprets raw property data according to the property kind.
func (p Property) Decode(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Value{}, nil
	}

	switch p.Kind {
	case KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("property %s: want bool: %w", p.Name, err)
		}
		return Value{Valid: true, Bool: b}, nil
	case KindNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, fmt.Errorf("property %s: want number: %w", p.Name, err)
		}
		return Value{Valid: true, Number: f}, nil
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("property %s: want string: %w", p.Name, err)
		}
		return Value{Valid: true, String: s}, nil
	case KindFlag:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return Value{}, fmt.Errorf("property %s: %w", p.Name, err)
		}
		switch x := v.(type) {
		case bool:
			return Value{Valid: true, Bool: x}, nil
		case float64:
			return Value{Valid: true, Bool: x > 0, Number: x}, nil
		case string:
			on := x != "" && !strings.EqualFold(x, "no")
			return Value{Valid: true, Bool: on, String: x}, nil
		}
		return Value{}, fmt.Errorf("property %s: unexpected value %s", p.Name, raw)
	}
	return Value{}, fmt.Errorf("property %s: unknown kind %d", p.Name, p.Kind)
}
