package mpv

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	line, err := Encode(NewCommand("loadfile", "/m/a.mkv", "append"), 7)
	require.NoError(t, err)
	assert.Equal(t, `{"command":["loadfile","/m/a.mkv","append"],"request_id":7}`+"\n", string(line))

	line, err = Encode(NewCommand("observe_property", int64(3), "paused-for-cache"), 1)
	require.NoError(t, err)
	assert.Equal(t, `{"command":["observe_property",3,"paused-for-cache"],"request_id":1}`+"\n", string(line))

	_, err = Encode(NewCommand(""), 1)
	assert.Error(t, err)
}

func TestCommandImmutable(t *testing.T) {
	args := []any{"a", "b"}
	cmd := NewCommand("x", args...)
	args[0] = "changed"
	got := cmd.Args()
	got[1] = "changed"
	assert.Equal(t, []any{"a", "b"}, cmd.Args())
	assert.Equal(t, "x [a b]", cmd.String())
	assert.Equal(t, "stop", NewCommand("stop").String())
}

// transcript is a captured mpv session, one line per message.
const transcript = `{"request_id":1,"error":"success"}
{"event":"property-change","id":2,"name":"pause","data":false}
{"event":"start-file","playlist_entry_id":4}
{"data":12.5,"request_id":2,"error":"success"}
{"event":"property-change","id":6,"name":"duration"}
{"request_id":3,"error":"property not found","data":null}
{"event":"end-file","reason":"error","playlist_entry_id":4,"file_error":"loading failed"}
{"event":"client-message","args":["hello"]}
`

func TestDecodeTranscript(t *testing.T) {
	want := []Message{
		Reply{RequestID: 1, Error: SuccessCode},
		Event{Name: "property-change", Kind: EventPropertyChange, ID: 2, Property: "pause", Data: json.RawMessage("false")},
		Event{Name: "start-file", Kind: EventStartFile, PlaylistEntryID: 4},
		Reply{RequestID: 2, Error: SuccessCode, Data: json.RawMessage("12.5")},
		Event{Name: "property-change", Kind: EventPropertyChange, ID: 6, Property: "duration"},
		Reply{RequestID: 3, Error: "property not found", Data: json.RawMessage("null")},
		Event{Name: "end-file", Kind: EventEndFile, Reason: "error", FileError: "loading failed", PlaylistEntryID: 4},
		Event{Name: "client-message", Kind: EventUnknown},
	}

	var got []Message
	for _, line := range strings.Split(strings.TrimSpace(transcript), "\n") {
		m, err := Decode([]byte(line))
		require.NoError(t, err, line)
		got = append(got, m)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, line := range []string{
		"",
		"garbage",
		"[1,2]",
		`{"request_id":`,
		`{"foo":"bar"}`,
	} {
		_, err := Decode([]byte(line))
		var perr *ProtocolError
		require.True(t, errors.As(err, &perr), "line %q: %v", line, err)
	}
}

func TestReplyErr(t *testing.T) {
	assert.NoError(t, Reply{Error: SuccessCode}.Err("stop"))

	err := Reply{Error: "invalid parameter"}.Err("seek")
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "seek", cerr.Command)
	assert.Equal(t, "invalid parameter", cerr.Code)
}

func TestEventKindString(t *testing.T) {
	for name, kind := range eventKinds {
		assert.Equal(t, name, kind.String())
		assert.Equal(t, kind, ParseEventKind(name))
	}
	assert.Equal(t, "unknown", EventUnknown.String())
}

func TestProtocolErrorTruncates(t *testing.T) {
	err := &ProtocolError{Line: strings.Repeat("x", 500), Err: errNotObject}
	assert.Less(t, len(err.Error()), 250)
	assert.ErrorIs(t, err, errNotObject)
}
