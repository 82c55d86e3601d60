package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/foundry/internal/config"
	"github.com/zulandar/foundry/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Foundry database",
		Long:  "Migrates all tables and seeds the builders declared in the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foundry.yaml", "path to Foundry config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "sqlite" {
		fmt.Fprintf(out, "Using SQLite database %s\n", cfg.Database.Path)
	} else {
		fmt.Fprintf(out, "Connected to %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedBuilders(gormDB, cfg.Builders); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d builders:", len(cfg.Builders))
	for _, b := range cfg.Builders {
		fmt.Fprintf(out, " %s", b.Name)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "\nFoundry database initialized successfully.")
	return nil
}
