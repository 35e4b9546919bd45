package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/stepview/internal/alerts"
	"github.com/steveyegge/stepview/internal/api"
	"github.com/steveyegge/stepview/internal/config"
	"github.com/steveyegge/stepview/internal/control"
	"github.com/steveyegge/stepview/internal/notify"
	"github.com/steveyegge/stepview/internal/storage"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Poll for issue updates into the local inbox",
	Long: `Run the alert daemon until stopped with Ctrl+C.

The daemon will:
1. Take the data directory lock (one daemon per data directory)
2. Open the inbox store and write a default settings file if none exists
3. Poll the tracker for recently updated issues every alert_interval_min
4. Record each new update in the inbox and show a notification
5. Serve the inbox over the control socket and the HTTP surface
6. Reload settings whenever the settings file changes`,
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		noInitialPoll, _ := cmd.Flags().GetBool("no-initial-poll")

		lockPath, err := storage.AcquireDaemonLock(daemonCfg.DataDir, version, daemonCfg.HTTPAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := storage.ReleaseDaemonLock(lockPath); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store, err := openStorage(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		defer store.Close()

		source := newSource(store)
		if created, err := source.EnsureFile(); err != nil {
			logger.Warn("failed to write default settings file", "path", source.Path(), "error", err)
		} else if created {
			fmt.Printf("%s Wrote default settings to %s\n", green("✓"), source.Path())
		}
		settings := source.Settings(ctx)

		client := newJiraClient(settings)
		hub := api.NewHub(daemonCfg.AllowedOrigins, logger)
		hub.SetBaseURL(settings.BaseURL)

		notifier, err := notify.New(daemonCfg.NotifyMode, os.Stdout, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}

		engine, err := alerts.NewEngine(alerts.Config{
			Searcher:    client,
			Store:       store,
			Settings:    source.Settings,
			Notifier:    notifier,
			Broadcaster: hub,
			Logger:      logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create alert engine: %v\n", err)
			return
		}

		scheduler := alerts.NewScheduler(engine, alerts.IntervalFor(settings), logger)
		// config set writes the synced store, which the file watcher never sees
		scheduler.Follow(func(ctx context.Context) time.Duration {
			s := source.Settings(ctx)
			client.SetBaseURL(s.BaseURL)
			hub.SetBaseURL(s.BaseURL)
			return alerts.IntervalFor(s)
		})
		if err := scheduler.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start scheduler: %v\n", err)
			return
		}
		defer func() { _ = scheduler.Stop() }()

		startedAt := time.Now()
		status := func() control.Status {
			s := source.Settings(ctx)
			return control.Status{
				PID:           os.Getpid(),
				StartedAt:     startedAt,
				BaseURL:       s.BaseURL,
				AlertsEnabled: s.AlertEnabled,
				PollInterval:  scheduler.Interval().String(),
				SchedulerOn:   scheduler.IsRunning(),
				Backend:       daemonCfg.StorageBackend,
				HTTPAddr:      daemonCfg.HTTPAddr,
				StoredCount:   engine.StoredCount(ctx),
			}
		}
		ctl, err := control.NewServer(daemonCfg.SocketPath(), control.NewInboxHandler(engine, status), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		if err := ctl.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		defer func() { _ = ctl.Stop() }()

		var httpSrv *api.Server
		if daemonCfg.HTTPAddr != "" {
			httpSrv, err = api.NewServer(api.Config{
				Addr:   daemonCfg.HTTPAddr,
				Inbox:  engine,
				Hub:    hub,
				Logger: logger,
			})
			if err == nil {
				err = httpSrv.Start()
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return
			}
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := httpSrv.Stop(shutdownCtx); err != nil {
					logger.Warn("http shutdown", "error", err)
				}
			}()
		}

		watcher := config.NewWatcher(source.Path(), func(config.RawSettings) {
			s := source.Settings(ctx)
			client.SetBaseURL(s.BaseURL)
			hub.SetBaseURL(s.BaseURL)
			scheduler.Reschedule(alerts.IntervalFor(s))
		}, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("settings file changes will not be picked up", "error", err)
		} else {
			defer func() { _ = watcher.Stop() }()
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		fmt.Printf("%s Daemon started (version %s)\n", green("✓"), cyan(version))
		if settings.BaseURL == "" {
			fmt.Printf("  Tracker: %s\n", gray("not configured (set base_url in "+source.Path()+")"))
		} else {
			fmt.Printf("  Tracker: %s\n", settings.BaseURL)
		}
		fmt.Printf("  Polling every %v (alerts %s)\n", scheduler.Interval(), onOff(settings.AlertEnabled))
		fmt.Printf("  Control socket: %s\n", ctl.SocketPath())
		if httpSrv != nil {
			fmt.Printf("  HTTP: http://%s\n", httpSrv.Addr())
		}
		fmt.Printf("  Press Ctrl+C to stop\n\n")

		if !noInitialPoll {
			go func() {
				if _, err := engine.Poll(ctx); err != nil && !errors.Is(err, alerts.ErrPollInProgress) {
					logger.Warn("initial poll failed", "error", err)
				}
			}()
		}

		<-sigCh
		fmt.Println("\nShutting down daemon...")
		cancel()
	},
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	daemonCmd.Flags().Bool("no-initial-poll", false, "Wait one interval before the first poll")
	rootCmd.AddCommand(daemonCmd)
}
