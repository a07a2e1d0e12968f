package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/projecteru2/remote/config"
	"github.com/projecteru2/remote/remote"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "remote",
		Short:         "Remote - manage cloud dev instances",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	defaults := config.DefaultConfig()
	cmd.PersistentFlags().String("registry-path", defaults.RegistryPath, "instance registry file (.yaml or .json)")
	cmd.PersistentFlags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("aws-region", "", "override the AWS region of the profile")

	_ = viper.BindPFlag("registry_path", cmd.PersistentFlags().Lookup("registry-path"))
	_ = viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("aws_region", cmd.PersistentFlags().Lookup("aws-region"))

	viper.SetEnvPrefix("REMOTE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cmd.AddCommand(
		newCmd,
		rmCmd,
		instanceCmd,
		startCmd,
		stopCmd,
		terminateCmd,
		provisionCmd,
		resizeCmd,
		statusCmd,
		listCmd,
		sshCmd,
		uploadCmd,
		downloadCmd,
		versionCmd,
	)

	return cmd
}()

func initConfig() error {
	conf = config.DefaultConfig()
	setDefaults(conf)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return log.SetupLog(context.Background(), &conf.Log, "")
}

// setDefaults seeds viper with d so that unset flags, env vars and config
// keys fall back to it instead of to the flags' own defaults.
func setDefaults(d *config.Config) {
	for key, val := range map[string]any{
		"registry_path":       d.RegistryPath,
		"lock_timeout":        d.LockTimeout,
		"transition_ttl":      d.TransitionTTL,
		"poll.max_attempts":   d.Poll.MaxAttempts,
		"poll.interval":       d.Poll.Interval,
		"poll.max_interval":   d.Poll.MaxInterval,
		"poll.backoff":        d.Poll.Backoff,
		"retry.max_attempts":  d.Retry.MaxAttempts,
		"retry.initial_delay": d.Retry.InitialDelay,
		"retry.max_delay":     d.Retry.MaxDelay,
		"aws_region":          d.AWSRegion,
		"ssh_binary":          d.SSHBinary,
		"scp_binary":          d.SCPBinary,
		"log.level":           d.Log.Level,
	} {
		viper.SetDefault(key, val)
	}
}

// Execute is the main entry point called from main.go. It returns the
// process exit code.
func Execute() int {
	ctx, cancel := newCommandContext()
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *remote.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", errorKind(err), err)
	return 1
}
