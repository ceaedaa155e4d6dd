// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Transport configuration and the thread-safe store with hot-reload propagation.

package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/momentics/hioload-transport/api"
)

// Config is the configuration consumed by a transport Context.
type Config struct {
	// Address is the host to connect to, or the bind address of a listener.
	// Empty binds all interfaces.
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`

	// Negative timeouts block forever, zero never blocks.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	// Backend: select, poll or eventloop.
	Backend string `mapstructure:"backend"`

	ReadBufferSize  int `mapstructure:"read_buffer_size"`
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	// MaxBufferSize caps growth of the write buffer.
	MaxBufferSize int `mapstructure:"max_buffer_size"`

	Backlog       int `mapstructure:"backlog"`
	SessionShards int `mapstructure:"session_shards"`

	// LoopCPU pins the event loop thread to a CPU. -1 leaves it unpinned.
	LoopCPU int `mapstructure:"loop_cpu"`
	// LoopWorkers bounds the goroutines running event loop callbacks.
	// Zero uses one per CPU.
	LoopWorkers int `mapstructure:"loop_workers"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:         "127.0.0.1",
		Port:            0,
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		Backend:         "poll",
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 16 * 1024,
		MaxBufferSize:   4 * 1024 * 1024,
		Backlog:         128,
		SessionShards:   16,
		LoopCPU:         -1,
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/hioload-transport.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Validate checks presence and ranges. Failures wrap api.ErrConfiguration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", api.ErrConfiguration)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", api.ErrConfiguration, c.Port)
	}
	if _, err := api.ParseBackend(c.Backend); err != nil {
		return fmt.Errorf("%w: %v", api.ErrConfiguration, err)
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be positive", api.ErrConfiguration)
	}
	if c.MaxBufferSize != 0 && c.MaxBufferSize < c.WriteBufferSize {
		return fmt.Errorf("%w: max_buffer_size below write_buffer_size", api.ErrConfiguration)
	}
	if c.Backlog < 0 || c.SessionShards < 0 {
		return fmt.Errorf("%w: negative backlog or session_shards", api.ErrConfiguration)
	}
	if c.LoopWorkers < 0 {
		return fmt.Errorf("%w: negative loop_workers", api.ErrConfiguration)
	}
	if c.LoopCPU < -1 {
		return fmt.Errorf("%w: loop_cpu %d", api.ErrConfiguration, c.LoopCPU)
	}
	return nil
}

// Decode overlays the keys of m onto cfg. Durations accept "250ms" strings.
func Decode(m map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("%w: %v", api.ErrConfiguration, err)
	}
	return nil
}

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetConfig merges new values and dispatches reload listeners.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		go fn()
	}
}

// OnReload registers a listener called after every SetConfig.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// Config decodes the current snapshot over DefaultConfig and validates it.
func (cs *ConfigStore) Config() (*Config, error) {
	cfg := DefaultConfig()
	if err := Decode(cs.GetSnapshot(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
