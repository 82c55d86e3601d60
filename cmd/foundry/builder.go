package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/config"
	"github.com/zulandar/foundry/internal/db"
	"github.com/zulandar/foundry/internal/store"
)

func newBuilderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "builder",
		Short: "Builder management commands",
	}

	cmd.AddCommand(newBuilderListCmd())
	cmd.AddCommand(newBuilderShowCmd())
	cmd.AddCommand(newBuilderEnableCmd())
	cmd.AddCommand(newBuilderDisableCmd())
	return cmd
}

func newBuilderListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List builders and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuilderList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	return cmd
}

func runBuilderList(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	builders, err := store.Builders(gormDB)
	if err != nil {
		return err
	}
	if len(builders) == 0 {
		fmt.Fprintln(out, "No builders.")
		return nil
	}

	noteWidth := terminalWidth() - 60
	if noteWidth < 16 {
		noteWidth = 16
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tARCH\tSTATE\tCLEAN\tJOB\tFAILURES\tNOTE")
	for _, b := range builders {
		state := "ok"
		if !b.OK {
			state = "disabled"
		} else if b.Manual {
			state = "manual"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			b.Name, b.Arch, state, b.CleanStatus, b.CurrentJob, b.FailureCount,
			truncate(b.FailureNote, noteWidth))
	}
	return w.Flush()
}

func newBuilderShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one builder with its recent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuilderShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	return cmd
}

func runBuilderShow(cmd *cobra.Command, configPath, name string) error {
	out := cmd.OutOrStdout()

	gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	b, err := store.Builder(gormDB, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Builder %s (%s)\n", b.Name, b.URL)
	fmt.Fprintf(out, "  arch: %s  virtualized: %t  manual: %t\n", b.Arch, b.Virtualized, b.Manual)
	fmt.Fprintf(out, "  ok: %t  clean: %s  failures: %d  version: %s\n", b.OK, b.CleanStatus, b.FailureCount, b.Version)
	if b.CurrentJob != "" {
		fmt.Fprintf(out, "  current job: %s\n", b.CurrentJob)
	}
	if b.FailureNote != "" {
		fmt.Fprintf(out, "  note: %s\n", b.FailureNote)
	}

	events, err := store.Events(gormDB, name, 10)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Fprintln(out, "\nRecent events:")
		for _, ev := range events {
			fmt.Fprintf(out, "  %s  %-10s  %s %s\n",
				ev.CreatedAt.Format("2006-01-02 15:04"), ev.Kind, ev.JobID, ev.Note)
		}
	}
	return nil
}

func newBuilderEnableCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "enable <name>",
		Short: "Return a builder to rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := store.SetBuilderOK(gormDB, args[0], true, ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Builder %s enabled\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	return cmd
}

func newBuilderDisableCmd() *cobra.Command {
	var (
		configPath string
		note       string
	)

	cmd := &cobra.Command{
		Use:   "disable <name>",
		Short: "Take a builder out of rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := store.SetBuilderOK(gormDB, args[0], false, note); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Builder %s disabled\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	cmd.Flags().StringVar(&note, "note", "disabled by operator", "reason recorded with the disablement")
	return cmd
}

// connectFromConfig loads the config and opens the database.
func connectFromConfig(configPath string) (*gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return db.Connect(cfg.Database)
}

// terminalWidth reports the width of stdout, or 120 when stdout is not a
// terminal (pipes, CI).
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 120
}

// truncate shortens s to at most n runes, with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
