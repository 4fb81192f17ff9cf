// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/assplayer/internal/api"
	"github.com/ManuGH/assplayer/internal/config"
	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/telemetry"
	"github.com/ManuGH/assplayer/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the resolver HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, loader, err := loadConfig(opts, os.Stdout)
	if err != nil {
		return err
	}
	logger := xglog.WithComponent("serve")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "assplayer",
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn().Err(err).Msg("releasing resources failed")
		}
	}()

	apiServer, err := api.NewServer(api.Config{
		ResolveInterval: cfg.Server.RateLimit,
		TrustedProxies:  cfg.Server.TrustedProxies,
		TracingService:  "assplayer",
		Version:         version.Version,
	}, api.Deps{
		Resolver: svc.resolver,
		CDN:      svc.optimizer,
		Health:   svc.health,
	})
	if err != nil {
		return fmt.Errorf("build api: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           apiServer.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	holder := config.NewHolder(cfg, loader)
	g, gctx := errgroup.WithContext(ctx)

	// Watcher is best-effort: a missing directory must not block startup.
	if err := holder.StartWatcher(gctx); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
	}
	defer holder.Stop()

	updates := make(chan config.AppConfig, 1)
	holder.RegisterListener(updates)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case next := <-updates:
				svc.applyRuntime(next)
			}
		}
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info().Str(xglog.FieldEvent, "config.reload_signal").Msg("received SIGHUP, reloading config")
				if err := holder.Reload(gctx); err != nil {
					logger.Warn().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("config reload failed")
				}
			}
		}
	})

	g.Go(func() error {
		logger.Info().
			Str(xglog.FieldEvent, "startup").
			Str("version", version.Version).
			Str("commit", version.Commit).
			Str("addr", srv.Addr).
			Msg("starting assplayer")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info().Str(xglog.FieldEvent, "shutdown").Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
