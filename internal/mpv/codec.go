package mpv

// docs: https://mpv.io/manual/stable/#json-ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// SuccessCode is the value of the error field of a successful reply.
const SuccessCode = "success"

// Command is an outbound IPC command: a name plus ordered arguments.
// It is immutable once built.
type Command struct {
	name string
	args []any
}

// NewCommand builds a command, copying args.
func NewCommand(name string, args ...any) Command {
	return Command{name: name, args: append([]any(nil), args...)}
}

func (c Command) Name() string { return c.name }

// Args returns a copy of the arguments.
func (c Command) Args() []any { return append([]any(nil), c.args...) }

func (c Command) String() string {
	if len(c.args) == 0 {
		return c.name
	}
	return fmt.Sprintf("%s %v", c.name, c.args)
}

type request struct {
	Command   []any `json:"command"` // https://mpv.io/manual/stable/#list-of-input-commands
	RequestID int64 `json:"request_id"`
}

// Encode renders cmd as one newline terminated JSON line.
func Encode(cmd Command, id int64) ([]byte, error) {
	if cmd.name == "" {
		return nil, errors.New("empty command name")
	}
	data, err := json.Marshal(request{
		Command:   append([]any{cmd.name}, cmd.args...),
		RequestID: id,
	})
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", cmd.name, err)
	}
	return append(data, '\n'), nil
}

// Message is either a Reply or an Event.
type Message interface {
	isMessage()
}

// Reply answers one command, matched by RequestID.
type Reply struct {
	RequestID int64
	Error     string
	Data      json.RawMessage
}

func (Reply) isMessage() {}

// Err converts a non-success reply into a *CommandError.
func (r Reply) Err(command string) error {
	if r.Error == SuccessCode {
		return nil
	}
	return &CommandError{Command: command, Code: r.Error}
}

// EventKind tags the lifecycle events the client understands.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPropertyChange
	EventStartFile
	EventFileLoaded
	EventEndFile
	EventIdle
	EventPause
	EventUnpause
	EventSeek
	EventPlaybackRestart
	EventShutdown
)

var eventKinds = map[string]EventKind{
	"property-change":  EventPropertyChange,
	"start-file":       EventStartFile,
	"file-loaded":      EventFileLoaded,
	"end-file":         EventEndFile,
	"idle":             EventIdle,
	"pause":            EventPause,
	"unpause":          EventUnpause,
	"seek":             EventSeek,
	"playback-restart": EventPlaybackRestart,
	"shutdown":         EventShutdown,
}

// ParseEventKind maps an event name to its kind. Names mpv may add in the
// future map to EventUnknown.
func ParseEventKind(name string) EventKind {
	if k, ok := eventKinds[name]; ok {
		return k
	}
	return EventUnknown
}

func (k EventKind) String() string {
	for name, kind := range eventKinds {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Event is an unsolicited notification.
type Event struct {
	Name string
	Kind EventKind

	// property-change
	ID       int64
	Property string
	Data     json.RawMessage

	// end-file
	Reason    string
	FileError string

	// start-file / end-file
	PlaylistEntryID int64
}

func (Event) isMessage() {}

type wireMessage struct {
	RequestID *int64          `json:"request_id"`
	Error     *string         `json:"error"`
	Data      json.RawMessage `json:"data"`

	Event           *string `json:"event"`
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Reason          string  `json:"reason"`
	FileError       string  `json:"file_error"`
	PlaylistEntryID int64   `json:"playlist_entry_id"`
}

var (
	errNotObject   = errors.New("line is not a JSON object")
	errUnknownLine = errors.New("line is neither a reply nor an event")
)

// Decode parses one line into a Reply or an Event.
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, &ProtocolError{Line: string(line), Err: errNotObject}
	}

	var m wireMessage
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, &ProtocolError{Line: string(line), Err: err}
	}

	switch {
	case m.Event != nil:
		return Event{
			Name:            *m.Event,
			Kind:            ParseEventKind(*m.Event),
			ID:              m.ID,
			Property:        m.Name,
			Data:            m.Data,
			Reason:          m.Reason,
			FileError:       m.FileError,
			PlaylistEntryID: m.PlaylistEntryID,
		}, nil
	case m.RequestID != nil || m.Error != nil:
		r := Reply{Data: m.Data}
		if m.RequestID != nil {
			r.RequestID = *m.RequestID
		}
		if m.Error != nil {
			r.Error = *m.Error
		}
		return r, nil
	default:
		return nil, &ProtocolError{Line: string(line), Err: errUnknownLine}
	}
}
