package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/stepview/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		lock, running := storage.DaemonRunning(daemonCfg.DataDir)
		if !running {
			fmt.Printf("%s Daemon not running %s\n", gray("○"), gray("("+daemonCfg.DataDir+")"))
			return
		}

		client, _ := daemonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := client.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: daemon PID %d holds the lock but did not answer: %v\n", lock.PID, err)
			os.Exit(1)
		}

		fmt.Printf("%s Daemon running (PID %d, version %s)\n", green("●"), st.PID, lock.Version)
		fmt.Printf("    Started:  %s (%v ago)\n", st.StartedAt.Format(time.DateTime), time.Since(st.StartedAt).Round(time.Second))
		if st.BaseURL == "" {
			fmt.Printf("    Tracker:  %s\n", gray("not configured"))
		} else {
			fmt.Printf("    Tracker:  %s\n", st.BaseURL)
		}
		fmt.Printf("    Alerts:   %s, every %s\n", onOff(st.AlertsEnabled), st.PollInterval)
		fmt.Printf("    Storage:  %s\n", st.Backend)
		if st.HTTPAddr != "" {
			fmt.Printf("    HTTP:     http://%s\n", st.HTTPAddr)
		}
		fmt.Printf("    Unread:   %d of %d stored\n", st.UnreadCount, st.StoredCount)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
