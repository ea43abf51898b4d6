package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSocketPath   = "/tmp/mpvsocket"
	DefaultHTTPPort     = 8200
	DefaultIDPath       = ".local/mpvbridge/instance_id"
	DefaultTopicPrefix  = "mpvbridge"
	DefaultCallTimeout  = 5 * time.Second
	DefaultDialTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultTicketTTL    = 5 * time.Minute
	DefaultTicketGrace  = 30 * time.Second
)

type Config struct {
	// mpv endpoint: either SocketPath or Host+Port
	SocketPath string `yaml:"socket_path"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`

	ProxyMedia bool   `yaml:"proxy_media"`
	HTTPPort   int    `yaml:"http_port"`
	PublicURL  string `yaml:"public_url"` // base URL mpv uses to reach the gateway

	CallTimeout  time.Duration `yaml:"call_timeout"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	QueueLimit   int           `yaml:"queue_limit"`

	BackoffInitial       time.Duration `yaml:"backoff_initial"`
	BackoffMax           time.Duration `yaml:"backoff_max"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`

	TicketTTL   time.Duration `yaml:"ticket_ttl"`
	TicketGrace time.Duration `yaml:"ticket_grace"`

	MQTTBroker      string `yaml:"mqtt_broker"`
	MQTTUsername    string `yaml:"mqtt_username"`
	MQTTPassword    string `yaml:"mqtt_password"`
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`

	IDPath string `yaml:"id_path"`
	Debug  bool   `yaml:"debug"`
}

func Default() Config {
	return Config{
		SocketPath:        DefaultSocketPath,
		ProxyMedia:        true,
		HTTPPort:          DefaultHTTPPort,
		CallTimeout:       DefaultCallTimeout,
		DialTimeout:       DefaultDialTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		BackoffInitial:    time.Second,
		BackoffMax:        30 * time.Second,
		BackoffMultiplier: 2,
		TicketTTL:         DefaultTicketTTL,
		TicketGrace:       DefaultTicketGrace,
		MQTTTopicPrefix:   DefaultTopicPrefix,
		IDPath:            os.Getenv("HOME") + "/" + DefaultIDPath,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()

	// Validate configuration
	cfg.validate()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	hadHost := false
	var probe struct {
		Host *string `yaml:"host"`
	}
	if err := yaml.Unmarshal(data, &probe); err == nil && probe.Host != nil && *probe.Host != "" {
		hadHost = true
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	// a TCP endpoint in the file replaces the default socket path
	if hadHost && c.SocketPath == DefaultSocketPath {
		c.SocketPath = ""
	}
	return nil
}

func (c *Config) applyEnv() {
	c.SocketPath = envVar("MPV_SOCKET", c.SocketPath)
	if host := envVar("MPV_HOST", ""); host != "" {
		c.Host = host
		c.SocketPath = envVar("MPV_SOCKET", "")
	}
	c.Port = envVar("MPV_PORT", c.Port)
	c.ProxyMedia = envVar("MPVBRIDGE_PROXY_MEDIA", c.ProxyMedia)
	c.HTTPPort = envVar("MPVBRIDGE_HTTP_PORT", c.HTTPPort)
	c.PublicURL = envVar("MPVBRIDGE_PUBLIC_URL", c.PublicURL)
	c.CallTimeout = envVar("MPVBRIDGE_CALL_TIMEOUT", c.CallTimeout)
	c.DialTimeout = envVar("MPVBRIDGE_DIAL_TIMEOUT", c.DialTimeout)
	c.WriteTimeout = envVar("MPVBRIDGE_WRITE_TIMEOUT", c.WriteTimeout)
	c.QueueLimit = envVar("MPVBRIDGE_QUEUE_LIMIT", c.QueueLimit)
	c.BackoffInitial = envVar("MPVBRIDGE_BACKOFF_INITIAL", c.BackoffInitial)
	c.BackoffMax = envVar("MPVBRIDGE_BACKOFF_MAX", c.BackoffMax)
	c.BackoffMultiplier = envVar("MPVBRIDGE_BACKOFF_MULTIPLIER", c.BackoffMultiplier)
	c.MaxReconnectAttempts = envVar("MPVBRIDGE_MAX_RECONNECT_ATTEMPTS", c.MaxReconnectAttempts)
	c.TicketTTL = envVar("MPVBRIDGE_TICKET_TTL", c.TicketTTL)
	c.TicketGrace = envVar("MPVBRIDGE_TICKET_GRACE", c.TicketGrace)
	c.MQTTBroker = envVar("MPVBRIDGE_MQTT_BROKER", c.MQTTBroker)
	c.MQTTUsername = envVar("MPVBRIDGE_MQTT_USERNAME", c.MQTTUsername)
	c.MQTTPassword = envVar("MPVBRIDGE_MQTT_PASSWORD", c.MQTTPassword)
	c.MQTTTopicPrefix = envVar("MPVBRIDGE_MQTT_TOPIC_PREFIX", c.MQTTTopicPrefix)
	c.IDPath = envVar("MPVBRIDGE_ID_PATH", c.IDPath)
	c.Debug = envVar("MPVBRIDGE_DEBUG", c.Debug)
}

func envVar[T ~string | ~bool | ~int | ~int64 | ~float64](key string, def T) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	switch any(def).(type) {
	case string:
		return any(v).(T)
	case bool:
		if b, err := strconv.ParseBool(v); err == nil {
			return any(b).(T)
		}
	case int:
		if i, err := strconv.Atoi(v); err == nil {
			return any(i).(T)
		}
	case time.Duration:
		if d, err := time.ParseDuration(v); err == nil {
			return any(d).(T)
		}
	case int64:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return any(i).(T)
		}
	case float64:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return any(f).(T)
		}
	}
	return def
}

// Endpoint validation is strict; everything else falls back to defaults.
func (c *Config) CheckEndpoint() error {
	switch {
	case c.Host != "" && c.SocketPath != "":
		return errors.New("config: set either MPV_SOCKET or MPV_HOST/MPV_PORT, not both")
	case c.Host == "" && c.SocketPath == "":
		return errors.New("config: no mpv endpoint configured")
	case c.Host != "" && (c.Port < 1 || c.Port > 65535):
		return fmt.Errorf("config: invalid mpv port %d", c.Port)
	}
	return nil
}

// validate performs validation on configuration values
func (c *Config) validate() {
	def := Default()

	// Validate HTTP port range
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		c.HTTPPort = def.HTTPPort
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.QueueLimit < 0 {
		c.QueueLimit = 0
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = def.BackoffInitial
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = max(def.BackoffMax, c.BackoffInitial)
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.TicketTTL <= 0 {
		c.TicketTTL = def.TicketTTL
	}
	if c.TicketGrace < 0 {
		c.TicketGrace = 0
	}
	if c.MQTTTopicPrefix == "" {
		c.MQTTTopicPrefix = def.MQTTTopicPrefix
	}
}
