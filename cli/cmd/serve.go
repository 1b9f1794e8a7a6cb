package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"screenloom/runtime"
)

var (
	serveConfigPath string
	serveOverrides  map[string]string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the flow engine and its HTTP surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runtime.LoadConfigWithOverrides(serveConfigPath, serveOverrides)
		if err != nil {
			return err
		}

		app, err := runtime.NewApp(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Start(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: app.Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			app.Logger.Info("listening", "addr", cfg.Server.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
		case <-ctx.Done():
			app.Logger.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("http shutdown failed", "error", err)
		}
		return app.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "config.yaml", "path to the config file")
	serveCmd.Flags().StringToStringVar(&serveOverrides, "set", nil, "override a config value, dotted path (e.g. log_level=debug, redis.db=3)")
}
