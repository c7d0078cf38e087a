package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/infrastructure/bridge"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/config"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/executor"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/logger"
)

const (
	appName    = "brainloop-executor"
	appVersion = "0.1.0"
)

func main() {
	root := &cobra.Command{
		Use:   "executor",
		Short: "brainloop executor — local filesystem/command daemon behind the bridge",
		Long:  "Hosts the Executor Bridge's /ws listener over a root-confined filesystem guard and a whitelisted command runner, so a sandboxed gateway process can still read/write files and run commands on the host.",
		RunE:  runServe,
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the executor version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
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

	guard, err := executor.NewFSGuard(cfg.Executor.Roots)
	if err != nil {
		return fmt.Errorf("build filesystem guard: %w", err)
	}

	commandRegistry := executor.DefaultCommandRegistry()
	if cfg.Executor.CommandsFile != "" {
		loaded, err := executor.LoadCommandRegistryFile(cfg.Executor.CommandsFile)
		if err != nil {
			return fmt.Errorf("load command registry file: %w", err)
		}
		commandRegistry = loaded
	}
	runner := executor.NewCommandRunner(
		commandRegistry,
		cfg.Executor.WorkDir,
		time.Duration(cfg.Executor.MaxTimeoutMs)*time.Millisecond,
		cfg.Executor.MaxOutputBytes,
		cfg.Executor.StrictMode,
		log,
	)
	if cfg.Executor.CommandsFile != "" {
		stopWatch, err := executor.WatchCommandRegistryFile(cfg.Executor.CommandsFile, log, runner.SetRegistry)
		if err != nil {
			log.Warn("command registry hot-reload disabled", zap.Error(err))
		} else {
			defer stopWatch()
		}
	}
	localExecutor := executor.NewLocalExecutor(guard, runner)

	registry := prometheus.NewRegistry()
	srv := bridge.NewServer(bridge.Config{
		SharedToken:    cfg.Bridge.SharedToken,
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
		MaxConcurrency: cfg.Bridge.MaxConcurrency,
		AdmissionRate:  cfg.Bridge.AdmissionRate,
		DedupTTLSec:    cfg.Bridge.DedupTTLSec,
		DedupMaxEntry:  cfg.Bridge.DedupMaxEntry,
		DedupMaxBytes:  cfg.Bridge.DedupMaxBytes,
		Version:        appVersion,
	}, localExecutor, registry, log)

	httpSrv := &http.Server{
		Addr:              cfg.Bridge.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("executor bridge listening", zap.String("addr", cfg.Bridge.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("executor server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		return err
	}
	log.Info("executor stopped cleanly")
	return nil
}
