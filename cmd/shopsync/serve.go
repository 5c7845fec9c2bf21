package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook endpoint and operator routes and run scheduled reconciliation",
		Long: `Start the HTTP server and the reconciliation schedule.

Examples:
  shopsync serve --addr :3000
  SHOPSYNC_PERSISTENCE_DRIVER=postgres SHOPSYNC_PERSISTENCE_DSN=postgres://... shopsync serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gin.SetMode(gin.ReleaseMode)
			s, err := openSession(ctx, flags, !skipMigrate)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				_ = s.close(closeCtx)
			}()

			if err := s.runtime.Start(ctx); err != nil {
				return err
			}
			return s.runtime.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations on startup")
	return cmd
}
