package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/copperline/beacon/internal/archive"
	"github.com/copperline/beacon/internal/config"
	"github.com/copperline/beacon/internal/events"
	"github.com/copperline/beacon/internal/server"
	"github.com/copperline/beacon/internal/store"
	"github.com/copperline/beacon/internal/store/memory"
	"github.com/copperline/beacon/internal/store/postgres"
	"github.com/copperline/beacon/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the beacon distribution server",
	// The serve command is the server itself; no client connection needed.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Pick the store backend: Postgres when configured, otherwise the
		// in-process bounded log.
		var st store.Store
		if cfg.DatabaseURL != "" {
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
			logger.Info("using postgres store")
		} else {
			st = memory.New()
			logger.Info("using in-memory store (BEACON_DATABASE_URL not set)")
		}

		// Create the bus publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("bus fan-out enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("bus fan-out disabled (BEACON_NATS_URL not set)")
		}

		beaconServer := server.NewBeaconServer(st, publisher, cfg.RetentionWindow, cfg.WindowLimit, logger)

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: beaconServer.NewHTTPHandler(cfg.AdminToken),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the retention sweeper.
		var sw *sweeper.Sweeper
		if cfg.SweepInterval > 0 {
			sw = sweeper.New(st, cfg.RetentionWindow, cfg.SweepInterval, logger)
			sw.Start()
			logger.Info("sweeper started", "interval", cfg.SweepInterval, "retention", cfg.RetentionWindow)
		}

		// Start the archive scheduler when a bucket is configured.
		var archiver *archive.Scheduler
		if cfg.ArchiveS3Bucket != "" {
			dest, err := archive.NewS3Destination(
				context.Background(),
				cfg.ArchiveS3Bucket,
				cfg.ArchiveS3Prefix,
				cfg.ArchiveS3Region,
				cfg.ArchiveS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				archiver = archive.NewScheduler(st, []archive.Destination{dest}, cfg.ArchiveInterval, logger)
				archiver.Start()
				logger.Info("archiver started", "bucket", cfg.ArchiveS3Bucket, "interval", cfg.ArchiveInterval)
			}
		}

		logger.Info("beacon server started", "http_addr", cfg.HTTPAddr)

		// Wait for shutdown signal.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down")
		if archiver != nil {
			archiver.Stop()
		}
		if sw != nil {
			sw.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		publisher.Close()
		return st.Close()
	},
}
