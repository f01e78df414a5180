package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kmufti7/intelliflow-supportflow/internal/server"
	"github.com/kmufti7/intelliflow-supportflow/internal/trigger"
)

var (
	serveAddr          string
	serveSweepSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with the resolved-ticket sweep schedule",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8420)")
	serveCmd.Flags().StringVar(&serveSweepSchedule, "sweep-schedule", "", "cron schedule for the close sweep (default daily at 03:00)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, true)
	if err != nil {
		return err
	}
	defer p.Close()

	sweeper := trigger.NewSweeper(p.db, int(p.cfg.SweepResolvedAge.Hours()/24), log.Logger)
	if err := sweeper.Register(serveSweepSchedule); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := server.NewServer(p.orchestrator, p.db, p.costs, p.audit, log.Logger)

	addr := serveAddr
	if addr == "" {
		addr = p.cfg.ServerAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
