package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/devserver"
)

func (a *app) devserverCmd() *cobra.Command {
	var (
		port   int
		delay  time.Duration
		secret string
		faults devserver.Faults
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory Marketa backend for local development",
		Long: `Runs a backend that speaks the Marketa REST and event-stream contract
from memory. Point the client at it with --api-url or MARKETA_API_URL.

Example:
  marketa devserver --port 8095
  MARKETA_API_URL=http://localhost:8095 marketa`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.DevServerPort
			}
			if !cmd.Flags().Changed("reply-delay") {
				delay = a.cfg.DevReplyDelay
			}

			srv := devserver.New(devserver.Options{
				Secret:     []byte(secret),
				ReplyDelay: delay,
				Logger:     a.logger,
			})
			srv.SetFaults(faults)

			addr := fmt.Sprintf(":%d", port)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
			a.logger.Info("devserver started", zap.String("addr", addr), zap.Duration("reply_delay", delay))
			printf(cmd.OutOrStdout(), "Marketa devserver listening on http://localhost:%d\n", port)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("failed to start devserver: %w", err)
				}
			}

			a.logger.Info("shutting down devserver")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("failed to shutdown devserver gracefully", zap.Error(err))
			}
			a.logger.Info("devserver stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8095, "Port to listen on")
	cmd.Flags().DurationVar(&delay, "reply-delay", 500*time.Millisecond, "How long the assistant takes to answer")
	cmd.Flags().StringVar(&secret, "secret", "", "Token signing secret (random when empty)")
	cmd.Flags().BoolVar(&faults.DropPush, "drop-push", false, "Never push replies; clients must poll")
	cmd.Flags().BoolVar(&faults.DuplicatePush, "duplicate-push", false, "Push every reply twice")
	cmd.Flags().DurationVar(&faults.PushDelay, "push-delay", 0, "Hold replies back from the stream")
	return cmd
}
