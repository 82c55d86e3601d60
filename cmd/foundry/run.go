package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zulandar/foundry/internal/behaviour"
	"github.com/zulandar/foundry/internal/clock"
	"github.com/zulandar/foundry/internal/config"
	"github.com/zulandar/foundry/internal/dashboard"
	"github.com/zulandar/foundry/internal/db"
	"github.com/zulandar/foundry/internal/fleet"
	"github.com/zulandar/foundry/internal/notify"
	"github.com/zulandar/foundry/internal/registry"
	"github.com/zulandar/foundry/internal/scanner"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher daemon",
		Long:  "Starts the fleet supervisor, the status dashboard, and the periodic digest. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	return cmd
}

func runDaemon(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedBuilders(gormDB, cfg.Builders); err != nil {
		return err
	}
	if len(cfg.Builders) > 0 {
		fmt.Fprintf(out, "Seeded %d builders from config\n", len(cfg.Builders))
	}

	notifier, err := buildNotifier(cfg.Notify)
	if err != nil {
		return err
	}

	// Set up context with signal handling for clean shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	go func() {
		if err := dashboard.Start(ctx, dashboard.StartOpts{
			DB:   gormDB,
			Port: cfg.Dashboard.Port,
			Out:  out,
		}); err != nil {
			log.Printf("dashboard: %v", err)
		}
	}()

	if cfg.Notify.DigestSchedule != "" {
		go notify.RunDigest(ctx, gormDB, cfg.Notify.DigestSchedule, notifier)
		fmt.Fprintf(out, "Fleet digest scheduled: %s\n", cfg.Notify.DigestSchedule)
	}

	supervisor := fleet.New(fleet.Opts{
		DB:       gormDB,
		Factory:  registry.NewPrefetched(gormDB),
		Resolver: behaviour.NewResolver(cfg.GitHub.Token),
		Clock:    clock.New(),
		Config: fleet.Config{
			ScanInterval:       cfg.ScanInterval.Std(),
			NewBuilderInterval: cfg.NewBuilderScanInterval.Std(),
			Scanner: scanner.Config{
				CancelTimeout: cfg.CancelTimeout.Std(),
				Thresholds: scanner.Thresholds{
					JobReset:             cfg.JobResetThreshold,
					BuilderReset:         cfg.BuilderResetThreshold,
					BuilderResetMultiple: cfg.BuilderResetFailureMultiple,
				},
			},
		},
		Notifier: notifier,
		Out:      out,
	})

	fmt.Fprintf(out, "Foundry running (scan every %s)\n", cfg.ScanInterval.Std())
	return supervisor.Run(ctx)
}

// buildNotifier assembles the configured chat notifiers. No configuration
// means no notifications.
func buildNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	var all notify.Multi
	if cfg.Slack.Token != "" {
		s, err := notify.NewSlack(notify.SlackOpts{Token: cfg.Slack.Token, Channel: cfg.Slack.Channel})
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}
	if cfg.Discord.Token != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{Token: cfg.Discord.Token, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		all = append(all, d)
	}
	if len(all) == 0 {
		return notify.Nop{}, nil
	}
	return all, nil
}
