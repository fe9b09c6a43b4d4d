package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tgrelay/pkg/channel"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay gateway in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

// serve runs until ctx ends or the HTTP listener fails. The webhook stays
// registered on shutdown so Telegram holds updates until the next start.
func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for _, p := range configProblems(cfg) {
		logger.WarnCF("serve", "Config problem", map[string]interface{}{
			logger.FieldError: p.Error(),
		})
	}

	rl := newRelay(cfg)
	srv := server.NewServer(cfg, rl.updates, rl.dispatcher, rl.manager)
	if links := fileLinks(cfg); links != nil && rl.tg != nil {
		srv.ServeFiles(rl.tg, links)
	}

	var watchdog *channel.Watchdog
	if cfg.Watchdog.Enabled && rl.tg != nil {
		watchdog = channel.NewWatchdog(rl.manager, cfg.Watchdog.Schedule, cfg.SetupTimeout())
	}

	g, gctx := errgroup.WithContext(ctx)
	rl.workers.Start()

	g.Go(srv.ListenAndServe)

	if cfg.Telegram.AutoConnect && rl.tg != nil && rl.manager.WebhookURL() != "" {
		g.Go(func() error {
			connectCtx, cancel := context.WithTimeout(gctx, cfg.SetupTimeout())
			defer cancel()
			if _, err := rl.manager.Connect(connectCtx); err != nil {
				logger.WarnCF("serve", "Auto-connect failed, use POST /api/telegram/connect to retry", map[string]interface{}{
					logger.FieldError: err.Error(),
				})
			}
			return nil
		})
	}

	if watchdog != nil {
		if err := watchdog.Start(); err != nil {
			logger.WarnCF("serve", "Webhook watchdog disabled", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
			watchdog = nil
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.InfoC("serve", "Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Stop(shutdownCtx)
		if watchdog != nil {
			watchdog.Stop()
		}
		rl.updates.Close()
		rl.workers.Stop()
		return err
	})

	return g.Wait()
}
