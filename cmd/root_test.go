package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/projecteru2/remote/registry"
	"github.com/projecteru2/remote/types"
)

// resetFlags puts every flag changed by a previous run back to its default
// and drops the context cobra cached on subcommands, since commands are
// package singletons.
func resetFlags(c *cobra.Command) {
	if c != rootCmd {
		c.SetContext(nil) //nolint:staticcheck
	}
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// isolate points HOME at a temp dir, clears REMOTE_* overrides and detaches
// stdin so prompts fall back to defaults.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"REMOTE_REGISTRY_PATH", "REMOTE_LOG_LEVEL", "REMOTE_LOCK_TIMEOUT", "REMOTE_POLL_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	devnull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	stdin := os.Stdin
	os.Stdin = devnull
	t.Cleanup(func() {
		os.Stdin = stdin
		_ = devnull.Close()
	})
	cfgFile = ""
	resetFlags(rootCmd)
	return home
}

func runCLI(args ...string) int {
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return Execute()
}

// --- initConfig ---

func TestInitConfig_NoOverridesUsesDefaults(t *testing.T) {
	home := isolate(t)
	if err := initConfig(); err != nil {
		t.Fatalf("initConfig: %v", err)
	}
	want := filepath.Join(home, ".config", "remote", "instances.yaml")
	if conf.RegistryPath != want {
		t.Errorf("expected %q, got %q", want, conf.RegistryPath)
	}
	if conf.Log.Level != "info" {
		t.Errorf("expected %q, got %q", "info", conf.Log.Level)
	}
	if conf.Poll.MaxAttempts != 40 || conf.LockTimeout != 30*time.Second {
		t.Errorf("expected default poll and lock settings, got %d %s", conf.Poll.MaxAttempts, conf.LockTimeout)
	}
}

func TestInitConfig_EnvOverrides(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "reg.json")
	t.Setenv("REMOTE_REGISTRY_PATH", path)
	t.Setenv("REMOTE_LOCK_TIMEOUT", "3s")
	t.Setenv("REMOTE_POLL_MAX_ATTEMPTS", "7")
	if err := initConfig(); err != nil {
		t.Fatalf("initConfig: %v", err)
	}
	if conf.RegistryPath != path {
		t.Errorf("expected %q, got %q", path, conf.RegistryPath)
	}
	if conf.LockTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %s", conf.LockTimeout)
	}
	if conf.Poll.MaxAttempts != 7 {
		t.Errorf("expected 7, got %d", conf.Poll.MaxAttempts)
	}
}

// --- commands ---

func TestCommands_DefaultConfig(t *testing.T) {
	home := isolate(t)
	if code := runCLI("ls"); code != 0 {
		t.Fatalf("ls: expected exit 0, got %d", code)
	}
	if code := runCLI("new", "--alias", "dev", "--cloud", "aws"); code != 0 {
		t.Fatalf("new: expected exit 0, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(home, ".config", "remote", "instances.yaml")); err != nil {
		t.Errorf("expected registry at the default path: %v", err)
	}
}

func TestCommands_NewInstanceListRemove(t *testing.T) {
	isolate(t)
	t.Setenv("REMOTE_REGISTRY_PATH", filepath.Join(t.TempDir(), "instances.yaml"))
	ctx := context.Background()

	if code := runCLI("new", "--alias", "dev", "--cloud", "AWS", "--type", "t3.small", "--user", "ubuntu", "-a"); code != 0 {
		t.Fatalf("new dev: expected exit 0, got %d", code)
	}
	reg := registry.New(conf)
	active, err := reg.GetActive(ctx)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.Alias != "dev" || active.Type != "t3.small" || active.Provider != types.ProviderAWS || active.Profile != "default" {
		t.Errorf("unexpected record %+v", active)
	}

	if code := runCLI("new", "--alias", "scratch", "--cloud", "aws"); code != 0 {
		t.Fatalf("new scratch: expected exit 0, got %d", code)
	}
	if active, _ := reg.GetActive(ctx); active.Alias != "dev" {
		t.Errorf("expected dev to stay active, got %q", active.Alias)
	}

	if code := runCLI("instance", "scratch"); code != 0 {
		t.Fatalf("instance scratch: expected exit 0, got %d", code)
	}
	if active, _ := reg.GetActive(ctx); active.Alias != "scratch" {
		t.Errorf("expected scratch active, got %q", active.Alias)
	}
	if code := runCLI("instance", "missing"); code != 1 {
		t.Errorf("instance missing: expected exit 1, got %d", code)
	}
	if code := runCLI("ls"); code != 0 {
		t.Errorf("ls: expected exit 0, got %d", code)
	}

	if code := runCLI("rm", "dev"); code != 0 {
		t.Fatalf("rm dev: expected exit 0, got %d", code)
	}
	if _, err := reg.Get(ctx, "dev"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("expected dev removed, got %v", err)
	}
	if code := runCLI("rm", "dev"); code != 1 {
		t.Errorf("second rm: expected exit 1, got %d", code)
	}
}

func TestNew_DuplicateAliasRejectedBeforeCloudCall(t *testing.T) {
	isolate(t)
	t.Setenv("REMOTE_REGISTRY_PATH", filepath.Join(t.TempDir(), "instances.yaml"))
	if code := runCLI("new", "--alias", "dev", "--cloud", "aws"); code != 0 {
		t.Fatalf("new dev: expected exit 0, got %d", code)
	}

	// an instance id would be verified against AWS if the alias check came later
	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"new", "--alias", "dev", "--cloud", "aws", "--instance-id", "i-0123456789abcdef0"})
	err := rootCmd.ExecuteContext(context.Background())
	if !errors.Is(err, registry.ErrDuplicateAlias) {
		t.Fatalf("expected ErrDuplicateAlias, got %v", err)
	}
	if got := errorKind(err); got != "DuplicateAlias" {
		t.Errorf("expected %q, got %q", "DuplicateAlias", got)
	}
}
