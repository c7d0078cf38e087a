package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/infrastructure/config"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/logger"
	"github.com/fenwicklabs/brainloop/internal/interfaces/httpapi"
	"github.com/fenwicklabs/brainloop/internal/wiring"
)

const (
	appName    = "brainloop-gateway"
	appVersion = "0.1.0"
)

func main() {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "brainloop gateway — browser-resident agent runtime server",
		Long:  "Serves the session/turn HTTP API and the live trace websocket that front ends drive the browser-resident agent runtime through.",
		RunE:  runServe,
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check config and dependency reachability",
		RunE:  runDoctor,
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{Level: "info", Format: "json", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := config.Bootstrap(log); err != nil {
		log.Warn("config bootstrap failed", zap.Error(err))
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	log.Info("starting brainloop gateway", zap.String("version", appVersion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := wiring.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("wire runtime: %w", err)
	}

	api := httpapi.New(rt, log)
	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	srv := api.Server(addr)

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway HTTP listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("gateway server error", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		return err
	}
	rt.Bus.Close()
	log.Info("gateway stopped cleanly")
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{Level: "info", Format: "console", OutputPath: "stdout"})
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rt, err := wiring.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("wire runtime: %w", err)
	}
	fmt.Println("config OK")
	fmt.Println("database OK")
	defer rt.Bus.Close()
	if rt.Bridge == nil {
		fmt.Println("executor bridge: unreachable (fs/command tools will degrade)")
	} else {
		fmt.Println("executor bridge OK")
		rt.Bridge.Close()
	}
	return nil
}
