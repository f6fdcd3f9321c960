package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuya-takeyama/goes-mirror/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "goes-mirror",
		Short: "Mirror the NOAA GOES archive on S3 to a local directory",
		Long: `goes-mirror downloads GOES-R satellite products from the public NOAA buckets
(noaa-goes16 ... noaa-goes19) into a local tree that mirrors the bucket layout.
Re-running a mirror only fetches files that are missing or whose size differs.`,
		Version:      fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool(config.KeyQuiet, false, "Suppress non-error output")

	rootCmd.AddCommand(newMirrorCommand(), newMigrateCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadViper binds the command's flags, environment variables and the config
// file into a fresh viper instance. A positional ROOT argument overrides
// every other source of the root.
func loadViper(cmd *cobra.Command, args []string) (*viper.Viper, error) {
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if err := config.ReadFile(v, configFile); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		v.Set(config.KeyRoot, args[0])
	}
	return v, nil
}

func newLogrus(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// signalContext is cancelled on SIGINT or SIGTERM. Transfers already in
// flight still finish.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
