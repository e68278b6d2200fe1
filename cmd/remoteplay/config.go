package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for remoteplay.
//
// The file is the primary configuration surface; flags override single values.
// Defaults and validation live here so the rest of the code can assume a
// well-formed config.
type Config struct {
	HTTP    HTTPConfig       `yaml:"http"`
	Media   MediaConfig      `yaml:"media"`
	Source  SourceConfig     `yaml:"source"`
	Player  PlayerConfig     `yaml:"player"`
	Input   InputConfig      `yaml:"input"`
	IPC     IPCConfig        `yaml:"ipc"`
	Router  RouterFileConfig `yaml:"router"`
	Logging LoggingConfig    `yaml:"logging"`
}

type HTTPConfig struct {
	Addr               string `yaml:"addr"`
	MaxUploadMB        int64  `yaml:"max_upload_mb"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	StateWSPath        string `yaml:"state_ws_path"`
}

type MediaConfig struct {
	Dir string `yaml:"dir"`
}

type SourceConfig struct {
	Provider string `yaml:"provider"` // "upload" or "folder"
	Autoplay bool   `yaml:"autoplay"`
	SettleMS int    `yaml:"settle_ms"`
}

const (
	PlayerBackendMPV  = "mpv"
	PlayerBackendNone = "none"
)

type PlayerConfig struct {
	Backend      string        `yaml:"backend"` // "mpv" or "none"
	RenderHeight int           `yaml:"render_height"`
	MPV          MPVFileConfig `yaml:"mpv"`
}

type MPVFileConfig struct {
	Binary           string   `yaml:"binary"`
	SocketPath       string   `yaml:"socket_path"`
	Spawn            bool     `yaml:"spawn"`
	Args             []string `yaml:"args,omitempty"`
	ConnectTimeoutMS int      `yaml:"connect_timeout_ms"`
	QueueSize        int      `yaml:"queue_size"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type RouterFileConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:               ":3000",
			MaxUploadMB:        4096,
			RateLimitPerMinute: 120,
			StateWSPath:        "/ws/state",
		},
		Media: MediaConfig{
			Dir: "~/remoteplay/media",
		},
		Source: SourceConfig{
			Provider: SourceProviderUpload,
			Autoplay: true,
			SettleMS: 750,
		},
		Player: PlayerConfig{
			Backend:      PlayerBackendMPV,
			RenderHeight: 1080,
			MPV: MPVFileConfig{
				Binary:           "mpv",
				SocketPath:       "/tmp/remoteplay-mpv.sock",
				Spawn:            true,
				ConnectTimeoutMS: 5000,
				QueueSize:        64,
			},
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/remoteplay.sock",
		},
		Router: RouterFileConfig{
			QueueSize: defaultQueueSize,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig.
// Unknown fields are rejected so typos surface at startup.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries values set on the command line. A nil pointer means
// the flag was not given.
type FlagOverrides struct {
	HTTPAddr       *string
	MediaDir       *string
	SourceProvider *string
	Autoplay       *bool
	PlayerBackend  *string
	MPVBinary      *string
	MPVSocketPath  *string
	MPVSpawn       *bool
	InputDevice    *string
	IPCSocketPath  *string
	LogLevel       *string
}

// Apply merges the overrides into cfg; a non-nil pointer is applied even when
// it holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.MediaDir != nil {
		cfg.Media.Dir = *o.MediaDir
	}
	if o.SourceProvider != nil {
		cfg.Source.Provider = *o.SourceProvider
	}
	if o.Autoplay != nil {
		cfg.Source.Autoplay = *o.Autoplay
	}
	if o.PlayerBackend != nil {
		cfg.Player.Backend = *o.PlayerBackend
	}
	if o.MPVBinary != nil {
		cfg.Player.MPV.Binary = *o.MPVBinary
	}
	if o.MPVSocketPath != nil {
		cfg.Player.MPV.SocketPath = *o.MPVSocketPath
	}
	if o.MPVSpawn != nil {
		cfg.Player.MPV.Spawn = *o.MPVSpawn
	}
	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		return fmt.Errorf("http.addr: %w", err)
	}
	if c.HTTP.MaxUploadMB < 0 {
		return errors.New("http.max_upload_mb must be >= 0")
	}
	if c.HTTP.RateLimitPerMinute < 0 {
		return errors.New("http.rate_limit_per_minute must be >= 0")
	}
	if c.HTTP.StateWSPath == "" || c.HTTP.StateWSPath[0] != '/' {
		return errors.New("http.state_ws_path must start with /")
	}

	if c.Media.Dir == "" {
		return errors.New("media.dir must not be empty")
	}

	switch c.Source.Provider {
	case SourceProviderUpload, SourceProviderFolder:
	default:
		return fmt.Errorf("source.provider must be %q or %q", SourceProviderUpload, SourceProviderFolder)
	}
	if c.Source.SettleMS < 0 {
		return errors.New("source.settle_ms must be >= 0")
	}

	switch c.Player.Backend {
	case PlayerBackendMPV:
		if c.Player.MPV.SocketPath == "" {
			return errors.New("player.mpv.socket_path must not be empty")
		}
		if c.Player.MPV.Spawn && c.Player.MPV.Binary == "" {
			return errors.New("player.mpv.spawn is true but player.mpv.binary is empty")
		}
		if c.Player.MPV.ConnectTimeoutMS <= 0 {
			return errors.New("player.mpv.connect_timeout_ms must be > 0")
		}
		if c.Player.MPV.QueueSize < 0 {
			return errors.New("player.mpv.queue_size must be >= 0")
		}
	case PlayerBackendNone:
	default:
		return fmt.Errorf("player.backend must be %q or %q", PlayerBackendMPV, PlayerBackendNone)
	}
	if c.Player.RenderHeight < 0 {
		return errors.New("player.render_height must be >= 0")
	}

	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	if c.Router.QueueSize < 0 {
		return errors.New("router.queue_size must be >= 0")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func (c *Config) ToMPVConfig() MPVConfig {
	return MPVConfig{
		Binary:         c.Player.MPV.Binary,
		SocketPath:     ExpandPath(c.Player.MPV.SocketPath),
		Spawn:          c.Player.MPV.Spawn,
		Args:           append([]string(nil), c.Player.MPV.Args...),
		ConnectTimeout: time.Duration(c.Player.MPV.ConnectTimeoutMS) * time.Millisecond,
		QueueSize:      c.Player.MPV.QueueSize,
	}
}

// ExpandPath expands a leading "~" using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
