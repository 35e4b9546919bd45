package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/stepview/internal/session"
	"github.com/steveyegge/stepview/internal/types"
)

var relatedCmd = &cobra.Command{
	Use:   "related <issue-key|issue-url>",
	Short: "Show the related issues of an issue grouped by product and step",
	Long: `Fetch an issue and the issues linked to it, group them into products
and ordered steps, and list look-alike issues worth checking.

Products and steps come from issue labels (see product_label_prefix and
step_label_prefix) or from the configured custom fields. Steps are ordered
by their number; unnumbered steps come last.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
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

		refresher := session.NewRefresher(newJiraClient(settings), source.Resolve, logger)
		res, err := refresher.Refresh(ctx, session.New(), key, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		printResult(os.Stdout, res, settings.BaseURL)
	},
}

func init() {
	relatedCmd.Flags().Bool("json", false, "Print the result as JSON")
	rootCmd.AddCommand(relatedCmd)
}

// printResult renders the grouped steps and the recommendations
func printResult(w io.Writer, res *session.Result, baseURL string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s %s\n", cyan(res.IssueKey), res.Issue.Summary)
	fmt.Fprintf(w, "%s\n\n", gray(strings.TrimRight(baseURL, "/")+"/browse/"+res.IssueKey))

	if len(res.Groups) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No related issues"))
	}
	for _, g := range res.Groups {
		fmt.Fprintf(w, "%s %s\n", yellow(g.Name), gray(fmt.Sprintf("(%d)", g.Count)))
		for _, step := range g.Steps {
			fmt.Fprintf(w, "  %s\n", step.Title)
			for _, issue := range step.Issues {
				fmt.Fprintf(w, "    %s\n", issueLine(issue))
			}
		}
		fmt.Fprintln(w)
	}
	if res.Truncated > 0 {
		fmt.Fprintf(w, "%s\n\n", gray(fmt.Sprintf("%d more related issues not shown (max_related_issues)", res.Truncated)))
	}

	if len(res.Recommended) > 0 {
		fmt.Fprintf(w, "%s\n", yellow("Worth checking:"))
		for _, rec := range res.Recommended {
			fmt.Fprintf(w, "  %s  %s\n", issueLine(rec.Issue), gray(fmt.Sprintf("(%d: %s)", rec.Score, rec.ReasonText())))
		}
		fmt.Fprintln(w)
	}
}

func issueLine(issue types.Issue) string {
	green := color.New(color.FgGreen).SprintFunc()
	if issue.Status == "" {
		return fmt.Sprintf("%s %s", green(issue.Key), issue.Summary)
	}
	return fmt.Sprintf("%s [%s] %s", green(issue.Key), issue.Status, issue.Summary)
}
