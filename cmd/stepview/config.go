package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/stepview/internal/config"
	"github.com/steveyegge/stepview/internal/session"
	"github.com/steveyegge/stepview/internal/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `Settings are layered, lowest first: built-in defaults, the preset for
the tracker host and issue project, the settings file, values stored with
'stepview config set', and STEPVIEW_* environment variables.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [issue-key]",
	Short: "Show the resolved settings",
	Long: `Show the settings in effect. With an issue key the matching preset is
applied as well.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStorageOptional(ctx)
		if store != nil {
			defer store.Close()
		}
		source := newSource(store)

		key := ""
		if len(args) == 1 {
			k, ok := session.ExtractIssueKey(args[0])
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: %q is not an issue key or issue URL\n", args[0])
				os.Exit(1)
			}
			key = k
		}
		if err := printSettings(os.Stdout, source.Resolve(ctx, key)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s\n", gray("# settings file: "+source.Path()))
		fmt.Printf("%s\n", gray("# "+daemonCfg.String()))
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting override",
	Long: `Store one setting in the local store. Stored values take precedence over
the settings file. Known keys:

  base_url, alert_enabled, alert_interval_min, alert_lookback_min,
  product_label_prefix, step_label_prefix, step_regex, max_related_issues,
  product_field_id, step_field_id, link_type_filter`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := config.ParseAssignment(args[0], args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		store, err := openStorage(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		if err := newSource(store).Store(ctx, raw); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s = %s\n", green("✓"), args[0], args[1])
		if _, running := daemonClient(); running {
			fmt.Println("  The daemon picks this up on its next poll.")
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the defaults",
	Run: func(cmd *cobra.Command, args []string) {
		source := newSource(nil)
		created, err := source.EnsureFile()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if created {
			fmt.Printf("Wrote %s\n", source.Path())
		} else {
			fmt.Printf("%s already exists\n", source.Path())
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func printSettings(w io.Writer, s types.Settings) error {
	data, err := yaml.Marshal(config.Raw(s))
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = w.Write(data)
	return err
}
