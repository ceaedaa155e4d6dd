// control/load.go
// Author: momentics <momentics@gmail.com>
//
// File and environment loading of Config.

package control

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from path (if non-empty) or HIOLOAD_CONFIG, then
// applies environment overrides with the HIOLOAD prefix, e.g.
// HIOLOAD_READ_TIMEOUT=250ms or HIOLOAD_LOG_LEVEL=debug. A missing file is
// not an error when no path was given.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HIOLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("address", cfg.Address)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("connect_timeout", cfg.ConnectTimeout)
	v.SetDefault("read_timeout", cfg.ReadTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("read_buffer_size", cfg.ReadBufferSize)
	v.SetDefault("write_buffer_size", cfg.WriteBufferSize)
	v.SetDefault("max_buffer_size", cfg.MaxBufferSize)
	v.SetDefault("backlog", cfg.Backlog)
	v.SetDefault("session_shards", cfg.SessionShards)
	v.SetDefault("loop_cpu", cfg.LoopCPU)
	v.SetDefault("loop_workers", cfg.LoopWorkers)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	explicit := path != ""
	if path == "" {
		path = os.Getenv("HIOLOAD_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hioload")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
