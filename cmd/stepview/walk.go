package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/stepview/internal/session"
	"github.com/steveyegge/stepview/internal/storage"
	"github.com/steveyegge/stepview/internal/types"
)

var walkCmd = &cobra.Command{
	Use:   "walk <issue-key|issue-url>",
	Short: "Walk through the steps of an issue one at a time",
	Long: `Walk through the grouped steps of an issue and record pass or fail
for each one. For every step the linked issues are listed together with
look-alike issues that mention the step.

Commands:
  pass     Record a pass and move on
  fail     Record a fail and move on
  next     Skip to the next step without a verdict
  status   Show the verdict counts
  refresh  Fetch the issue again (progress starts over)
  quit     Leave the walkthrough

Progress is saved in the local store and resumed on the next walk of the
same issue.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fresh, _ := cmd.Flags().GetBool("fresh")
		ctx := context.Background()

		store := openStorageOptional(ctx)
		if store != nil {
			defer store.Close()
		}
		source := newSource(store)

		key, ok := session.ExtractIssueKey(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: %q is not an issue key or issue URL\n", args[0])
			os.Exit(1)
		}
		settings := source.Resolve(ctx, key)
		if settings.BaseURL == "" {
			fmt.Fprintf(os.Stderr, "Error: no tracker configured (set base_url in %s)\n", source.Path())
			os.Exit(1)
		}

		w := &walker{
			sess:      session.New(),
			refresher: session.NewRefresher(newJiraClient(settings), source.Resolve, logger),
			out:       os.Stdout,
		}
		if store != nil {
			w.kv = store
		}
		if err := w.start(ctx, key, !fresh); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := w.run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	walkCmd.Flags().Bool("fresh", false, "Ignore saved progress")
	rootCmd.AddCommand(walkCmd)
}

// errQuit ends the walkthrough loop
var errQuit = errors.New("quit")

// walker drives one interactive walkthrough
type walker struct {
	sess      *session.Session
	refresher *session.Refresher
	kv        session.KV // nil disables save and resume
	out       io.Writer
}

// start analyzes key and optionally resumes saved progress
func (w *walker) start(ctx context.Context, key string, resume bool) error {
	res, err := w.refresher.Refresh(ctx, w.sess, key, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(w.out, "\n%s %s\n", color.New(color.FgCyan, color.Bold).Sprint(res.IssueKey), res.Issue.Summary)

	tracker := w.sess.Tracker()
	if tracker.Len() == 0 {
		fmt.Fprintln(w.out, "No related steps to walk through.")
		return nil
	}
	fmt.Fprintf(w.out, "%d steps across %d products\n", tracker.Len(), len(res.Groups))

	if resume && w.kv != nil {
		ok, err := w.sess.Resume(ctx, w.kv, storage.NamespaceLocal)
		if err != nil {
			logger.Warn("failed to resume walkthrough", "error", err)
		} else if ok {
			fmt.Fprintf(w.out, "Resumed saved progress: %s\n", tracker.Summary())
		}
	}
	w.showStep()
	return nil
}

func (w *walker) run(ctx context.Context) error {
	if w.sess.Tracker().Len() == 0 {
		return nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            color.New(color.FgCyan).Sprint("step> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("pass"),
			readline.PcItem("fail"),
			readline.PcItem("next"),
			readline.PcItem("status"),
			readline.PcItem("refresh"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := w.handle(ctx, strings.TrimSpace(line)); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(w.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// handle executes one walkthrough command
func (w *walker) handle(ctx context.Context, line string) error {
	tracker := w.sess.Tracker()

	switch strings.ToLower(line) {
	case "":
		return nil
	case "pass", "p", "fail", "f":
		verdict := types.VerdictPass
		if strings.HasPrefix(strings.ToLower(line), "f") {
			verdict = types.VerdictFail
		}
		advanced, err := tracker.RecordDecision(verdict)
		if err != nil {
			return err
		}
		w.save(ctx)
		if !advanced {
			fmt.Fprintf(w.out, "Walkthrough complete: %s\n", tracker.Summary())
			return nil
		}
		w.showStep()
	case "next", "n", "skip":
		if !tracker.Advance() {
			fmt.Fprintln(w.out, "Already at the last step.")
			return nil
		}
		w.save(ctx)
		w.showStep()
	case "status", "s":
		fmt.Fprintf(w.out, "Step %d of %d: %s\n", tracker.Cursor()+1, tracker.Len(), tracker.Summary())
	case "refresh":
		if _, err := w.refresher.Refresh(ctx, w.sess, w.sess.ActiveKey(), true); err != nil {
			return err
		}
		fmt.Fprintf(w.out, "Refreshed: %d steps\n", tracker.Len())
		w.showStep()
	case "quit", "q", "exit":
		w.save(ctx)
		fmt.Fprintf(w.out, "%s\n", tracker.Summary())
		return errQuit
	case "help", "?":
		fmt.Fprintln(w.out, "Commands: pass, fail, next, status, refresh, quit")
	default:
		return fmt.Errorf("unknown command %q (try 'help')", line)
	}
	return nil
}

// save persists progress; failures only cost the resume
func (w *walker) save(ctx context.Context) {
	if w.kv == nil {
		return
	}
	if err := w.sess.Save(ctx, w.kv, storage.NamespaceLocal); err != nil {
		logger.Warn("failed to save walkthrough", "error", err)
	}
}

// showStep prints the guidance for the current step
func (w *walker) showStep() {
	tracker := w.sess.Tracker()
	step, ok := tracker.Current()
	if !ok {
		return
	}
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w.out, "\n%s %s %s\n", gray(fmt.Sprintf("[%d/%d]", tracker.Cursor()+1, tracker.Len())), yellow(step.Title), gray("("+step.Product+")"))
	if verdict, decided := tracker.Results()[step.ID]; decided {
		fmt.Fprintf(w.out, "  %s\n", gray("previously: "+string(verdict)))
	}
	for _, issue := range step.Issues {
		fmt.Fprintf(w.out, "  %s\n", issueLine(issue))
	}

	suggestions := w.sess.Suggestions(step)
	if suggestions.Empty() {
		return
	}
	printSuggestions(w.out, "Same project", suggestions.SameProject)
	printSuggestions(w.out, "Other projects", suggestions.CrossProject)
}

func printSuggestions(out io.Writer, heading string, recs []types.RecommendedIssue) {
	if len(recs) == 0 {
		return
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(out, "  %s\n", gray(heading+":"))
	for _, rec := range recs {
		fmt.Fprintf(out, "    %s %s\n", issueLine(rec.Issue), gray("("+rec.ReasonText()+")"))
	}
}
