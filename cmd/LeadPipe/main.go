// Command LeadPipe runs the sales pipeline automation service.
//
// With no subcommand it serves the HTTP API. The seed, graph and provider
// subcommands operate on the same state directory while the service is
// stopped.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/LeadPipe/internal/config"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	stateDir   string
	logLevel   string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("LeadPipe failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serve := &serveOptions{}

	root := &cobra.Command{
		Use:           "leadpipe",
		Short:         "Sales pipeline CRM with agent-driven lead messaging",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnvFile(opts.envFile)
			level, err := parseLogLevel(firstNonEmpty(opts.logLevel, os.Getenv("LEADPIPE_LOG_LEVEL"), "info"))
			if err != nil {
				return err
			}
			initializeLogger(level)
			return nil
		},
		// Serving is the default so the binary can be started bare.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, serve)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", os.Getenv("LEADPIPE_CONFIG"), "path to a YAML configuration file (overrides $LEADPIPE_CONFIG)")
	pf.StringVar(&opts.stateDir, "state-dir", "", "state directory (overrides $LEADPIPE_STATE_DIR)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides $LEADPIPE_LOG_LEVEL)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	serve.bind(root)
	root.AddCommand(
		newServeCommand(opts, serve),
		newSeedCommand(opts),
		newGraphCommand(opts),
		newProviderCommand(opts),
	)
	return root
}

// initializeLogger installs a text handler on stdout at the given level.
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// loadEnvFile loads a dotenv file. A missing file is not an error.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Debug("failed to load env file", "path", path, "error", err)
		return
	}
	slog.Debug("env file loaded", "path", path)
}

// loadConfig reads the configuration and applies the shared flags on top.
func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.stateDir != "" {
		cfg.StateDir = opts.stateDir
	}
	slog.Debug("configuration loaded", "state_dir", cfg.StateDir, "config_path", opts.configPath)
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
