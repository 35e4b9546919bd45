package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/stepview/internal/alerts"
	"github.com/steveyegge/stepview/internal/control"
	"github.com/steveyegge/stepview/internal/types"
)

// inboxOps is the inbox protocol as seen from the CLI. A running daemon
// serves it over the control socket; otherwise the store is used directly.
type inboxOps interface {
	Inbox(ctx context.Context) (types.InboxPayload, error)
	MarkRead(ctx context.Context, id string, read bool) (types.InboxPayload, error)
	MarkAllRead(ctx context.Context) (types.InboxPayload, error)
	Delete(ctx context.Context, id string) (types.InboxPayload, error)
	DeleteRead(ctx context.Context) (types.InboxPayload, error)
	Poll(ctx context.Context) (control.PollReply, error)
}

var _ inboxOps = (*control.Client)(nil)

// localInbox runs the inbox protocol in-process
type localInbox struct {
	engine *alerts.Engine
}

func (l localInbox) Inbox(ctx context.Context) (types.InboxPayload, error) {
	return l.engine.GetInbox(ctx), nil
}

func (l localInbox) MarkRead(ctx context.Context, id string, read bool) (types.InboxPayload, error) {
	return l.engine.MarkRead(ctx, id, read), nil
}

func (l localInbox) MarkAllRead(ctx context.Context) (types.InboxPayload, error) {
	return l.engine.MarkAllRead(ctx), nil
}

func (l localInbox) Delete(ctx context.Context, id string) (types.InboxPayload, error) {
	return l.engine.DeleteOne(ctx, id), nil
}

func (l localInbox) DeleteRead(ctx context.Context) (types.InboxPayload, error) {
	return l.engine.DeleteRead(ctx), nil
}

func (l localInbox) Poll(ctx context.Context) (control.PollReply, error) {
	payload, result, err := l.engine.PollNow(ctx)
	reply := control.PollReply{Inbox: payload, Result: result}
	if err != nil {
		reply.Error = err.Error()
		reply.InProgress = errors.Is(err, alerts.ErrPollInProgress)
	}
	return reply, nil
}

// openInbox picks the daemon when one runs. The returned func releases
// local resources.
func openInbox(ctx context.Context) (inboxOps, func(), error) {
	if client, ok := daemonClient(); ok {
		return client, func() {}, nil
	}

	store, err := openStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	source := newSource(store)
	engine, err := alerts.NewEngine(alerts.Config{
		Searcher: newJiraClient(source.Settings(ctx)),
		Store:    store,
		Settings: source.Settings,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return localInbox{engine: engine}, func() { _ = store.Close() }, nil
}

// withInbox runs fn against the inbox and prints the resulting payload
func withInbox(fn func(ctx context.Context, inbox inboxOps) (types.InboxPayload, error), unreadOnly bool) {
	ctx := context.Background()
	inbox, release, err := openInbox(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	payload, err := fn(ctx, inbox)
	release()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printInbox(os.Stdout, payload, unreadOnly)
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List recent issue updates",
	Long: `List the newest 40 entries of the update inbox together with the number
of unread entries. Entries are added by the daemon's polls or by 'stepview poll'.`,
	Run: func(cmd *cobra.Command, args []string) {
		unread, _ := cmd.Flags().GetBool("unread")
		withInbox(func(ctx context.Context, inbox inboxOps) (types.InboxPayload, error) {
			return inbox.Inbox(ctx)
		}, unread)
	},
}

var inboxReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark an inbox entry read (or unread with --unread)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		unread, _ := cmd.Flags().GetBool("unread")
		withInbox(func(ctx context.Context, inbox inboxOps) (types.InboxPayload, error) {
			return inbox.MarkRead(ctx, args[0], !unread)
		}, false)
	},
}

var inboxReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every inbox entry read",
	Run: func(cmd *cobra.Command, args []string) {
		withInbox(func(ctx context.Context, inbox inboxOps) (types.InboxPayload, error) {
			return inbox.MarkAllRead(ctx)
		}, false)
	},
}

var inboxDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one inbox entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withInbox(func(ctx context.Context, inbox inboxOps) (types.InboxPayload, error) {
			return inbox.Delete(ctx, args[0])
		}, false)
	},
}

var inboxCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every read inbox entry",
	Run: func(cmd *cobra.Command, args []string) {
		withInbox(func(ctx context.Context, inbox inboxOps) (types.InboxPayload, error) {
			return inbox.DeleteRead(ctx)
		}, false)
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check for issue updates now",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		inbox, release, err := openInbox(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		reply, err := inbox.Poll(ctx)
		release()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printPollReply(os.Stdout, reply)
		if reply.Error != "" && !reply.InProgress {
			os.Exit(1)
		}
	},
}

func init() {
	inboxCmd.Flags().Bool("unread", false, "Only list unread entries")
	inboxReadCmd.Flags().Bool("unread", false, "Mark the entry unread instead")
	inboxCmd.AddCommand(inboxReadCmd, inboxReadAllCmd, inboxDeleteCmd, inboxCleanCmd)
	rootCmd.AddCommand(inboxCmd, pollCmd)
}

func printPollReply(w io.Writer, reply control.PollReply) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	switch {
	case reply.InProgress:
		fmt.Fprintf(w, "%s A poll is already running\n", yellow("⚠"))
	case reply.Error != "":
		fmt.Fprintf(w, "%s Poll failed: %s\n", red("✗"), reply.Error)
	case reply.Result.Skipped:
		fmt.Fprintf(w, "%s Polling is off (alert_enabled is false or base_url is not set)\n", yellow("⚠"))
	default:
		fmt.Fprintf(w, "%s %d new updates\n", green("✓"), reply.Result.NewCount)
	}
	printInbox(w, reply.Inbox, false)
}

func printInbox(w io.Writer, payload types.InboxPayload, unreadOnly bool) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s %s\n", cyan("Inbox"), gray(fmt.Sprintf("(%d unread)", payload.UnreadCount)))

	shown := 0
	for _, item := range payload.Items {
		if unreadOnly && item.IsRead {
			continue
		}
		shown++
		icon := green("●")
		if item.IsRead {
			icon = gray("○")
		}
		line := item.Key
		if item.Status != "" {
			line += " [" + item.Status + "]"
		}
		fmt.Fprintf(w, "  %s %s %s\n", icon, line, item.Summary)
		updated := item.UpdatedLabel
		if updated == "" {
			updated = alerts.FormatUpdated(item.Updated)
		}
		fmt.Fprintf(w, "    %s\n", gray(updated+"  "+item.ID))
	}
	if shown == 0 {
		fmt.Fprintf(w, "  %s\n", gray("Nothing here"))
	}
	fmt.Fprintln(w)
}
