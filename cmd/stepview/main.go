package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/stepview/internal/config"
	"github.com/steveyegge/stepview/internal/control"
	"github.com/steveyegge/stepview/internal/jira"
	"github.com/steveyegge/stepview/internal/storage"
	"github.com/steveyegge/stepview/internal/types"
)

const version = "0.3.0"

var (
	daemonCfg config.DaemonConfig
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stepview",
	Short: "Related-issue step viewer and update inbox for Jira",
	Long: `stepview groups the issues linked to a Jira issue into products and
ordered steps, suggests look-alike issues, walks through the steps one by
one, and (as a daemon) polls for recently updated issues into a local inbox.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.DaemonConfigFromEnv()
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			cfg.DataDir = dir
			if !cmd.Flags().Changed("settings") {
				cfg.SettingsPath = config.DefaultSettingsPath(dir)
			}
		}
		if path, _ := cmd.Flags().GetString("settings"); path != "" {
			cfg.SettingsPath = path
		}
		if backend, _ := cmd.Flags().GetString("storage"); backend != "" {
			cfg.StorageBackend = backend
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		daemonCfg = cfg

		level := slog.LevelInfo
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default: ~/.stepview, or STEPVIEW_DATA_DIR)")
	rootCmd.PersistentFlags().String("settings", "", "Settings file (default: <data dir>/settings.yaml)")
	rootCmd.PersistentFlags().String("storage", "", "Storage backend: sqlite or badger")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStorage opens the inbox store of the data directory
func openStorage(ctx context.Context) (storage.Storage, error) {
	if err := os.MkdirAll(daemonCfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewStorage(ctx, &storage.Config{
		Backend: daemonCfg.StorageBackend,
		Path:    daemonCfg.DBPath(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

// openStorageOptional opens storage for commands that can work without it.
// A badger store held by a running daemon cannot be opened twice.
func openStorageOptional(ctx context.Context) storage.Storage {
	store, err := openStorage(ctx)
	if err != nil {
		logger.Warn("continuing without local storage", "error", err)
		return nil
	}
	return store
}

// newSource builds the settings source over store, which may be nil
func newSource(store storage.Storage) *config.Source {
	var kv config.KV
	if store != nil {
		kv = store
	}
	return config.NewSource(daemonCfg.SettingsPath, kv, storage.NamespaceSynced, logger)
}

// newJiraClient builds a tracker client for the resolved settings
func newJiraClient(s types.Settings) *jira.Client {
	return jira.NewClient(jira.Config{
		BaseURL:           s.BaseURL,
		User:              daemonCfg.JiraUser,
		Token:             daemonCfg.JiraToken,
		RequestsPerSecond: float64(daemonCfg.RequestsPerSecond),
		Concurrency:       daemonCfg.FetchConcurrency,
		Logger:            logger,
	})
}

// daemonClient returns a control client when a daemon owns the data
// directory
func daemonClient() (*control.Client, bool) {
	if _, running := storage.DaemonRunning(daemonCfg.DataDir); !running {
		return nil, false
	}
	return control.NewClient(daemonCfg.SocketPath()), true
}
