package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/store"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Build job commands",
	}

	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobAddCmd())
	cmd.AddCommand(newJobCancelCmd())
	cmd.AddCommand(newJobRetryCmd())
	return cmd
}

func newJobListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List build jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobList(cmd, configPath, status)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (waiting, running, cancelling, cancelled, built, failed)")
	return cmd
}

func runJobList(cmd *cobra.Command, configPath, status string) error {
	out := cmd.OutOrStdout()

	gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	jobs, err := store.Jobs(gormDB, status)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tARCH\tBUILDER\tPRIORITY\tFAILURES")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			j.ID, j.Kind, j.Status, j.Arch, j.Builder, j.Priority, j.FailureCount)
	}
	return w.Flush()
}

func newJobAddCmd() *cobra.Command {
	var (
		configPath string
		kind       string
		arch       string
		source     string
		ref        string
		priority   int
		requiresVM bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a build job",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			id, err := store.GenerateJobID()
			if err != nil {
				return err
			}
			job := models.BuildJob{
				ID:         id,
				Kind:       kind,
				Status:     models.JobWaiting,
				Arch:       arch,
				Source:     source,
				Ref:        ref,
				Priority:   priority,
				RequiresVM: requiresVM,
			}
			if err := gormDB.Create(&job).Error; err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s job %s (arch %s, priority %d)\n", kind, job.ID, arch, priority)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	cmd.Flags().StringVarP(&kind, "kind", "k", models.KindPackage, "build kind (package, recipe, ci)")
	cmd.Flags().StringVarP(&arch, "arch", "a", "amd64", "target architecture")
	cmd.Flags().StringVar(&source, "source", "", "source location (required)")
	cmd.Flags().StringVar(&ref, "ref", "", "source ref, recipe text, or version")
	cmd.Flags().IntVarP(&priority, "priority", "p", 50, "dispatch priority (lower first)")
	cmd.Flags().BoolVar(&requiresVM, "requires-vm", false, "only dispatch to virtualized builders")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newJobCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := store.RequestCancel(gormDB, args[0], time.Now()); err != nil {
				return err
			}
			job, err := store.Job(gormDB, args[0])
			if err != nil {
				return err
			}
			if job.Status == models.JobCancelled {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", job.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelling; builder %s will be interrupted on its next scan\n", job.ID, job.Builder)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	return cmd
}

func newJobRetryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue a failed or cancelled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			job, err := store.Job(gormDB, args[0])
			if err != nil {
				return err
			}
			if job.Status != models.JobFailed && job.Status != models.JobCancelled {
				return fmt.Errorf("job %s is %s; only failed or cancelled jobs can be retried", job.ID, job.Status)
			}
			if err := store.ResetToWaiting(gormDB, job.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	return cmd
}
