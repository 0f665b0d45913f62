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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dgallion1/zortex/internal/api"
	"github.com/dgallion1/zortex/internal/bufsync"
	"github.com/dgallion1/zortex/internal/config"
	"github.com/dgallion1/zortex/internal/manager"
	"github.com/dgallion1/zortex/internal/metrics"
)

type flags struct {
	port     string
	notesDir string
	logLevel string
	verify   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "zortexd",
		Short:         "Incremental section-tree engine for zortex notes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.notesDir, "notes", "", "Notes directory (overrides ZORTEX_NOTES_DIR)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return serveHTTP(cmd.Context(), cfg, log)
		},
	}
	serve.Flags().StringVar(&f.port, "port", "", "Listen port (overrides ZORTEX_PORT)")
	serve.Flags().BoolVar(&f.verify, "verify", false, "Check every incremental parse against a full parse")

	root.AddCommand(serve, newInspectCmd(&f), newTasksCmd(&f))
	return root
}

// loadConfig reads the environment configuration and applies flags given on
// the command line.
func loadConfig(cmd *cobra.Command, f flags) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if cmd.Flags().Changed("notes") {
		cfg.NotesDir = f.notesDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("verify") {
		cfg.VerifyIncremental = f.verify
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := cfg.SlogLevel()
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, log, nil
}

func newManager(cfg config.Config, log *slog.Logger, obs manager.Observer) (*manager.Manager, error) {
	return manager.New(manager.Options{
		CacheCapacity: cfg.CacheCapacity,
		Debounce:      cfg.Debounce,
		Watch:         cfg.WatchFiles,
		SweepInterval: cfg.SweepInterval,
		ScanWorkers:   cfg.ScanWorkers,
		Verify:        cfg.VerifyIncremental,
		Logger:        log,
		Observer:      obs,
	})
}

func serveHTTP(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mgr, err := newManager(cfg, log, m)
	if err != nil {
		return err
	}
	mgr.Start(ctx)

	srv := api.NewServer(mgr, bufsync.New(mgr, bufsync.Options{StampDone: cfg.StampDone}), m, reg, log, cfg)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		mgr.Stop()
		mgr.Close()
	}()

	if cfg.APIKey == "" {
		log.Warn("no API key configured, listening on loopback only", "addr", httpServer.Addr)
	}
	log.Info("starting zortexd", "addr", httpServer.Addr, "notes_dir", cfg.NotesDir, "watch", cfg.WatchFiles)
	err = httpServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-done
		return fmt.Errorf("server error: %w", err)
	}
	<-done
	return nil
}
