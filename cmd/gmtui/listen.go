package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gmtui/gmtui/internal/logging"
	"github.com/spf13/cobra"
)

func runListen(cmd *cobra.Command, _ []string) error {
	env, err := setup(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	log := logging.Console(cmd.ErrOrStderr(), env.cfg.Log.Level)
	log.Info().Str("config", env.path).Msg("starting listener")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, closeSink := buildSink(env.cfg, log)
	defer closeSink()

	handle, err := startListener(ctx, env, sink, log)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	case <-handle.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := handle.Shutdown(sctx); err != nil {
		return err
	}
	stats := handle.Stats()
	log.Info().
		Uint64("alerts", stats.Alerts).
		Uint64("handshakes", stats.Handshakes).
		Uint64("renewals", stats.Renewals).
		Uint64("delivery_failures", stats.DeliveryFailures).
		Msg("listener summary")
	return nil
}
