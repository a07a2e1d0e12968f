package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	coretypes "github.com/projecteru2/core/types"

	"github.com/projecteru2/remote/utils"
)

// Config holds global remote configuration.
type Config struct {
	// RegistryPath is the instance registry file. The extension selects the
	// codec (.json or .yaml). The lock file lives next to it.
	// Env: REMOTE_REGISTRY_PATH. Default: ~/.config/remote/instances.yaml.
	RegistryPath string `json:"registry_path" mapstructure:"registry_path"`
	// LockTimeout bounds how long a command waits for another invocation
	// holding the registry lock. Default: 30s.
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout"`
	// TransitionTTL is how long a lifecycle claim by another invocation is
	// honoured before it is considered abandoned. Default: 10m.
	TransitionTTL time.Duration `json:"transition_ttl" mapstructure:"transition_ttl"`
	// Poll bounds start/stop/provision confirmation.
	Poll utils.PollConfig `json:"poll" mapstructure:"poll"`
	// Retry bounds retries of transient provider errors.
	Retry RetryConfig `json:"retry" mapstructure:"retry"`
	// AWSRegion overrides the region resolved from the profile.
	// Env: REMOTE_AWS_REGION.
	AWSRegion string `json:"aws_region" mapstructure:"aws_region"`
	// SSHBinary and SCPBinary are the OpenSSH client executables.
	SSHBinary string `json:"ssh_binary" mapstructure:"ssh_binary"`
	SCPBinary string `json:"scp_binary" mapstructure:"scp_binary"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// RetryConfig bounds the exponential backoff applied to RateLimited and
// Unavailable provider errors.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" mapstructure:"max_delay"`
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() *Config {
	return &Config{
		RegistryPath:  "~/.config/remote/instances.yaml",
		LockTimeout:   30 * time.Second, //nolint:mnd
		TransitionTTL: 10 * time.Minute, //nolint:mnd
		Poll: utils.PollConfig{
			MaxAttempts: 40,              //nolint:mnd
			Interval:    2 * time.Second, //nolint:mnd
			MaxInterval: 10 * time.Second,
			Backoff:     1.5, //nolint:mnd
		},
		Retry: RetryConfig{
			MaxAttempts:  4, //nolint:mnd
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second, //nolint:mnd
		},
		SSHBinary: "ssh",
		SCPBinary: "scp",
		Log: coretypes.ServerLogConfig{
			Level: "info",
		},
	}
}

// Validate rejects settings the lifecycle code cannot work with and expands
// "~" in RegistryPath.
func (c *Config) Validate() error {
	if c.RegistryPath == "" {
		return errors.New("registry_path is empty")
	}
	p, err := utils.ExpandHome(c.RegistryPath)
	if err != nil {
		return err
	}
	c.RegistryPath = filepath.Clean(p)
	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("poll.max_attempts must be positive, got %d", c.Poll.MaxAttempts)
	}
	if c.Poll.Interval < 0 || c.Poll.MaxInterval < 0 {
		return errors.New("poll intervals must not be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.TransitionTTL <= 0 {
		return errors.New("transition_ttl must be positive")
	}
	return nil
}

// RegistryLock returns the lock file guarding RegistryPath.
func (c *Config) RegistryLock() string { return c.RegistryPath + ".lock" }
