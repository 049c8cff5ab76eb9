package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/promptwizard/internal/api"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		handler := api.NewHandler(api.Deps{
			Wizards:    a.wizards,
			Catalog:    a.catalog,
			Playground: a.playground,
			Validator:  a.validator,
			Log:        log,
		})
		mux := http.NewServeMux()
		handler.RegisterRoutes(mux)

		server := &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      api.Chain(mux, api.CORS(cfg.Server.CORSOrigins), api.AccessLog(log)),
			ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
			WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		}

		errC := make(chan error, 1)
		go func() {
			log.Info("server starting", "version", version, "addr", server.Addr, "env", cfg.Env())
			errC <- server.ListenAndServe()
		}()

		select {
		case err := <-errC:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
		case <-ctx.Done():
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
		}
		log.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
