package control_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/control"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := control.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *control.Config){
		"port":    func(c *control.Config) { c.Port = 70000 },
		"backend": func(c *control.Config) { c.Backend = "kqueue" },
		"rbuf":    func(c *control.Config) { c.ReadBufferSize = 0 },
		"max":     func(c *control.Config) { c.MaxBufferSize = 10 },
		"backlog": func(c *control.Config) { c.Backlog = -1 },
		"cpu":     func(c *control.Config) { c.LoopCPU = -2 },
		"workers": func(c *control.Config) { c.LoopWorkers = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := control.DefaultConfig()
			mutate(c)
			if err := c.Validate(); !errors.Is(err, api.ErrConfiguration) {
				t.Fatalf("Validate = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestConfigStoreDecodes(t *testing.T) {
	cs := control.NewConfigStore()
	reloaded := make(chan struct{}, 1)
	cs.OnReload(func() { reloaded <- struct{}{} })
	cs.SetConfig(map[string]any{
		"port":         "9000",
		"read_timeout": "250ms",
		"backend":      "select",
	})
	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("reload listener not called")
	}
	cfg, err := cs.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.Port != 9000 || cfg.ReadTimeout != 250*time.Millisecond || cfg.Backend != "select" {
		t.Errorf("decoded %+v", cfg)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("unset key lost default: %v", cfg.WriteTimeout)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hioload.yaml")
	data := "address: 10.0.0.1\nport: 8080\nconnect_timeout: 2s\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HIOLOAD_PORT", "8081")
	cfg, err := control.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != "10.0.0.1" || cfg.ConnectTimeout != 2*time.Second || cfg.Log.Level != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Port != 8081 {
		t.Errorf("env override port = %d, want 8081", cfg.Port)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := control.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}
