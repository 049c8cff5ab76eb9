package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/promptwizard/internal/config"
	"github.com/dshills/promptwizard/internal/mcpserver"
	"github.com/dshills/promptwizard/internal/repository/postgres"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the template tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := mcpserver.NewServer(mcpserver.Config{Version: version}, log)
		return s.Listen(ctx, os.Stdin, os.Stdout)
	},
}

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.Storage.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate requires storage driver %q, configured %q", config.DriverPostgres, cfg.Storage.Driver)
		}
		v, err := postgres.Migrate(cfg.Storage.DSN, migrateDown)
		if err != nil {
			return err
		}
		log.Info("migrations applied", "version", v, "down", migrateDown)
		return nil
	},
}

var syncModelsCmd = &cobra.Command{
	Use:   "sync-models",
	Short: "Add models discovered from configured providers to the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		discovered := a.factory.DiscoverModels(ctx)
		if len(discovered) == 0 {
			return fmt.Errorf("no models discovered; configured providers: %v", a.factory.Configured())
		}
		n, err := a.catalog.Sync(ctx, discovered)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d models\n", n)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "revert all migrations")
	rootCmd.AddCommand(mcpCmd, migrateCmd, syncModelsCmd)
}
