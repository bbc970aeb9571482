// SPDX-License-Identifier: AGPL-3.0-or-later

// Command lydia-device runs the gateway process: it owns the serial
// session to the laser controller, polls and fans out telemetry over
// WebSocket, and brokers client exec requests against the command
// policy.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lydia-device/audit"
	"lydia-device/gateway"
	"lydia-device/metricsx"
	"lydia-device/mshsession"
	"lydia-device/telemetry"
)

const (
	auditQueueSize  = 2048
	auditFlushEvery = 1
	debugAddr       = ":9090"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lydia-device",
		Short: "Serial-to-WebSocket gateway for the msh-prompt laser controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				slog.Error("startup_fatal: invalid configuration", "error", err)
				return err
			}
			configureLogging(cfg.Verbose)
			return run(cmd.Context(), cfg)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindFlags(cmd)
	return cmd
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, cfg Config) error {
	session, err := mshsession.Open(cfg.Serial, cfg.Baud)
	if err != nil {
		slog.Error("startup_fatal: serial open failed", "device", cfg.Serial, "error", err)
		return fmt.Errorf("serial open: %w", err)
	}
	defer session.Close()

	reg := prometheus.NewRegistry()
	metrics := metricsx.New(reg)

	auditSink, err := audit.Start(cfg.AuditPath, auditQueueSize, auditFlushEvery, metrics)
	if err != nil {
		// Audit durability never gates device communications: log and
		// keep the sink nil, which Log/Stop treat as a no-op.
		slog.Error("audit sink unavailable, continuing without audit log", "path", cfg.AuditPath, "error", err)
	}
	defer auditSink.Stop()

	hub := telemetry.NewHub()
	pollLoop := telemetry.NewPollLoop(session, hub, cfg.Hz, metrics)
	handler := gateway.NewHandler(session, hub, auditSink, metrics)

	wsMux := http.NewServeMux()
	gateway.Register(wsMux, "/ws", handler)
	wsServer := &http.Server{Addr: cfg.addr(), Handler: wsMux}

	debugMux := http.NewServeMux()
	debugMux.HandleFunc("/healthz", metricsx.Healthz)
	debugMux.Handle("/metrics", metricsx.Handler(reg))
	debugServer := &http.Server{Addr: debugAddr, Handler: debugMux}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		err := pollLoop.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return serveUntilCanceled(gCtx, wsServer) })
	g.Go(func() error { return serveUntilCanceled(gCtx, debugServer) })

	slog.Info("lydia-device starting",
		"serial", cfg.Serial, "baud", cfg.Baud,
		"ws_addr", cfg.addr(), "debug_addr", debugAddr, "hz", cfg.Hz)

	if err := g.Wait(); err != nil {
		slog.Error("gateway exited with error", "error", err)
		return err
	}
	slog.Info("lydia-device shut down cleanly")
	return nil
}

// serveUntilCanceled runs srv until ctx is canceled, then gracefully
// shuts it down. http.ErrServerClosed is the expected exit on shutdown.
func serveUntilCanceled(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
