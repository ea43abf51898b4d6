// Package mqtt publishes the mirrored playback state to an MQTT broker and
// accepts playback commands from it.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/tr1v3r/pkg/log"

	"github.com/tr1v3r/mpvbridge/internal/monitoring"
	"github.com/tr1v3r/mpvbridge/internal/player"
	"github.com/tr1v3r/mpvbridge/internal/state"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
	commandTimeout = 10 * time.Second
)

var ErrUnknownAction = errors.New("mqtt: unknown action")

// StateFeed is the part of the state mirror the bridge needs.
type StateFeed interface {
	Snapshot() state.PlaybackState
	OnChange(fn func(state.Change)) *state.Subscription
}

type Options struct {
	Broker      string // tcp://host:1883, ssl://host:8883, ws://...
	Username    string
	Password    string
	TopicPrefix string
	InstanceID  string
}

// Topics are all rooted at <prefix>/<instance-id>.
type Topics struct {
	State        string
	Availability string
	Command      string
}

func NewTopics(prefix, instanceID string) Topics {
	root := strings.Trim(prefix, "/") + "/" + instanceID
	return Topics{
		State:        root + "/state",
		Availability: root + "/availability",
		Command:      root + "/command",
	}
}

// Command is the JSON payload accepted on the command topic.
type Command struct {
	Action   string   `json:"action"`
	URI      string   `json:"uri,omitempty"`
	Enqueue  string   `json:"enqueue,omitempty"`
	Position *float64 `json:"position,omitempty"`
	Level    *float64 `json:"level,omitempty"` // 0..1
	Muted    *bool    `json:"muted,omitempty"`
	Mode     string   `json:"mode,omitempty"`
}

type Bridge struct {
	client paho.Client
	topics Topics
	player player.Player
	feed   StateFeed
}

func NewBridge(opts Options, p player.Player, feed StateFeed) *Bridge {
	b := &Bridge{
		topics: NewTopics(opts.TopicPrefix, opts.InstanceID),
		player: p,
		feed:   feed,
	}

	co := paho.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID("mpvbridge-" + opts.InstanceID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetKeepAlive(30 * time.Second)
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)
	co.SetWill(b.topics.Availability, payloadOffline, 1, true)
	co.OnConnect = b.onConnect
	co.OnConnectionLost = func(_ paho.Client, err error) {
		log.Error("mqtt: connection lost: %v", err)
	}
	b.client = paho.NewClient(co)
	return b
}

func (b *Bridge) Topics() Topics { return b.topics }

// Run connects to the broker and mirrors state until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}

	sub := b.feed.OnChange(func(c state.Change) {
		b.publishState(c.New)
	})
	defer sub.Unsubscribe()

	<-ctx.Done()

	b.publish(b.topics.Availability, payloadOffline)
	b.client.Unsubscribe(b.topics.Command).WaitTimeout(publishTimeout)
	b.client.Disconnect(250)
	log.Info("mqtt: disconnected")
	return nil
}

// onConnect runs on every (re)connect: the broker forgets subscriptions of
// clean sessions.
func (b *Bridge) onConnect(c paho.Client) {
	log.Info("mqtt: connected, commands on %s", b.topics.Command)
	token := c.Subscribe(b.topics.Command, 1, b.handleMessage)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Error("mqtt: subscribe %s: %v", b.topics.Command, token.Error())
	}
	b.publish(b.topics.Availability, payloadOnline)
	b.publishState(b.feed.Snapshot())
}

func (b *Bridge) handleMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := b.Dispatch(ctx, msg.Payload()); err != nil {
		log.CtxError(ctx, "mqtt: command %q failed: %v", msg.Payload(), err)
	}
}

func (b *Bridge) publishState(st state.PlaybackState) {
	payload, err := json.Marshal(st)
	if err != nil {
		log.Error("mqtt: encode state: %v", err)
		return
	}
	b.publish(b.topics.State, payload)
}

func (b *Bridge) publish(topic string, payload any) {
	if !b.client.IsConnected() {
		return
	}
	token := b.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Error("mqtt: publish %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Error("mqtt: publish %s: %v", topic, err)
	}
}

// Dispatch decodes one command payload and applies it to the player.
func (b *Bridge) Dispatch(ctx context.Context, payload []byte) (err error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		monitoring.RecordMQTTCommand("invalid", err)
		return fmt.Errorf("mqtt: decode command: %w", err)
	}
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	defer func() { monitoring.RecordMQTTCommand(action, err) }()

	log.CtxDebug(ctx, "mqtt: command action=%s", action)
	switch action {
	case "load":
		mode, err := player.ParseEnqueueMode(cmd.Enqueue)
		if err != nil {
			return err
		}
		return b.player.Load(ctx, player.MediaRef{URI: cmd.URI, Enqueue: mode})
	case "play":
		return b.player.Play(ctx)
	case "pause":
		return b.player.Pause(ctx)
	case "stop":
		return b.player.Stop(ctx)
	case "seek":
		if cmd.Position == nil {
			return fmt.Errorf("%w: seek without position", player.ErrInvalidArgument)
		}
		return b.player.Seek(ctx, *cmd.Position)
	case "volume":
		if cmd.Level == nil || *cmd.Level < 0 || *cmd.Level > 1 {
			return fmt.Errorf("%w: volume level must be within 0..1", player.ErrInvalidArgument)
		}
		return b.player.SetVolume(ctx, *cmd.Level*100)
	case "mute":
		if cmd.Muted == nil {
			return fmt.Errorf("%w: mute without muted", player.ErrInvalidArgument)
		}
		return b.player.SetMute(ctx, *cmd.Muted)
	case "next":
		return b.player.Next(ctx)
	case "previous":
		return b.player.Previous(ctx)
	case "clear":
		return b.player.ClearPlaylist(ctx)
	case "repeat":
		return b.player.SetRepeat(ctx, state.RepeatMode(strings.ToLower(cmd.Mode)))
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
}
