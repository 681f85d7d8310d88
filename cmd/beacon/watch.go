package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/copperline/beacon/internal/config"
	"github.com/copperline/beacon/internal/events"
	"github.com/copperline/beacon/internal/revalidate"
	"github.com/copperline/beacon/internal/subscriber"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run subscribers that revalidate app caches on content events",
	Long: `Watch consumes content events for each configured target site and
drives revalidation callbacks into the target application's
/api/revalidate endpoint. Targets are declared in a TOML file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		wc, err := loadWatchConfig(configPath)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := slog.Default()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Consume the bus directly when NATS is configured; each subscriber
		// falls back to SSE push (and then polling) on its own if the bus
		// connection cannot be established or is lost.
		var bus events.Subscriber
		if cfg.NATSURL != "" {
			nsub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Warn("NATS unavailable, subscribers will use SSE push", "err", err)
			} else {
				bus = nsub
				defer nsub.Close()
				logger.Info("consuming events from the bus", "nats_url", cfg.NATSURL)
			}
		}

		var wg sync.WaitGroup
		dispatchers := make([]*revalidate.Dispatcher, 0, len(wc.Targets))
		for _, target := range wc.Targets {
			dispatcher := revalidate.New(target.AppURL, revalidate.Options{
				SettleDelay: cfg.SettleDelay,
				CallTimeout: cfg.RevalidateTimeout,
				MaxAttempts: 3,
				ExtraPaths:  target.ExtraPaths,
			}, logger)
			dispatchers = append(dispatchers, dispatcher)

			sub := subscriber.New(beaconClient, subscriber.Options{
				SiteID:       target.SiteID,
				APIKey:       target.APIKey,
				WindowLimit:  cfg.WindowLimit,
				PollInterval: cfg.PollInterval,
				Bus:          bus,
			}, dispatcher, logger)

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("subscriber stopped", "site_id", target.SiteID, "err", err)
				}
			}()
			logger.Info("watching", "site_id", target.SiteID, "app_url", target.AppURL)
		}

		wg.Wait()

		// Let in-flight revalidations drain briefly before exit.
		done := make(chan struct{})
		go func() {
			for _, d := range dispatchers {
				d.Wait()
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("config", "watch.toml", "path to watch targets TOML file")
}
