package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/spf13/cobra"

	"netonboard/internal/handler"
	"netonboard/internal/hub"
)

var listenAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the onboarding HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddress, "listen", "", "HTTP listen address (overrides listen_address)")
	rootCmd.AddCommand(serveCmd)
}

func runServer(ctx context.Context) error {
	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, otelShutdown := otelinit.InitOpenTelemetry(ctx, "netonboard")
	defer otelShutdown(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := a.logger.WithField("component", "http")

	events := hub.New(a.logger.WithField("component", "events"))
	go events.Forward(ctx, a.eventBus)

	router := handler.NewRouter(handler.Routes{
		Onboarding: handler.NewOnboardingHandler(a.controller, logger),
		Secrets:    handler.NewSecretsHandler(a.secrets, logger),
		Events:     events,
	}, logger)

	addr := a.cfg.ListenAddress
	if listenAddress != "" {
		addr = listenAddress
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", addr).Info("server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown error")
	}
	if err := a.controller.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("jobs still running at shutdown")
	}

	logger.Info("server stopped")
	return nil
}
