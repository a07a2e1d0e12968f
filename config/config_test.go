package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	conf := DefaultConfig()
	if err := conf.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(home, ".config", "remote", "instances.yaml")
	if conf.RegistryPath != want {
		t.Errorf("expected %q, got %q", want, conf.RegistryPath)
	}
	if conf.RegistryLock() != want+".lock" {
		t.Errorf("expected lock next to registry, got %q", conf.RegistryLock())
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty registry path", func(c *Config) { c.RegistryPath = "" }},
		{"zero poll attempts", func(c *Config) { c.Poll.MaxAttempts = 0 }},
		{"negative poll interval", func(c *Config) { c.Poll.Interval = -time.Second }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"zero transition ttl", func(c *Config) { c.TransitionTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := DefaultConfig()
			conf.RegistryPath = "/tmp/remote/instances.yaml"
			tt.mutate(conf)
			if err := conf.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_CleansPath(t *testing.T) {
	conf := DefaultConfig()
	conf.RegistryPath = "/tmp/remote/../remote/instances.json"
	if err := conf.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.RegistryPath != "/tmp/remote/instances.json" {
		t.Errorf("expected cleaned path, got %q", conf.RegistryPath)
	}
}
