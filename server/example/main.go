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

	"github.com/cyp0633/caldelete/server"
	"github.com/cyp0633/caldelete/server/deletion"
	"github.com/cyp0633/caldelete/server/lock"
	"github.com/cyp0633/caldelete/server/scheduling"
	"github.com/cyp0633/caldelete/server/storage/badgerstore"
	"github.com/cyp0633/caldelete/server/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	logLevel   string
	listenAddr string
	dataDir    string
	lockDir    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caldelete",
		Short: "Example CalDAV/CardDAV server answering DELETE",
		Long: `caldelete serves an in-memory calendar and contacts store seeded with sample data.

Examples:
  # Serve on :8080 with everything in memory
  caldelete serve

  # Keep sync revisions on disk and share locks with other processes
  caldelete serve --data-dir /var/lib/caldelete --lock-dir /run/caldelete

  # Delete one of Alice's events
  curl -u alice:password -X DELETE http://localhost:8080/caldav/alice/cal/work/<id>.ics`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "listen address")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for the sync revision database (in memory if empty)")
	serveCmd.Flags().StringVar(&lockDir, "lock-dir", "", "directory for cross-process lock files (in process if empty)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	cfg := server.DefaultConfig()
	if cfgFile != "" {
		if cfg, err = server.LoadConfig(cfgFile); err != nil {
			return err
		}
	}

	var revisions *badgerstore.Revisions
	if dataDir != "" {
		revisions, err = badgerstore.Open(dataDir)
	} else {
		revisions, err = badgerstore.OpenInMemory()
	}
	if err != nil {
		return fmt.Errorf("open revision store: %w", err)
	}
	defer func() {
		if err := revisions.Close(); err != nil {
			logger.Error("failed to close revision store", "error", err)
		}
	}()

	store := memory.New(memory.WithRevisions(revisions), memory.WithLogger(logger))
	if err := seed(store); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	var locks lock.Factory = lock.NewTable()
	if lockDir != "" {
		if locks, err = lock.NewFileFactory(lockDir); err != nil {
			return fmt.Errorf("open lock directory: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deleter := deletion.New(store,
		deletion.WithConfig(cfg.Deletion),
		deletion.WithLocks(locks),
		deletion.WithTrigger(scheduling.NewImplicit(store, scheduling.LogNotifier{Logger: logger}, logger)),
		deletion.WithMetrics(deletion.NewMetrics(registry)),
		deletion.WithLogger(logger))

	handler := server.NewCaldavHandler(store, store, deleter,
		server.WithConfig(cfg),
		server.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle(handler.Prefix, handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", listenAddr,
			"prefix", handler.Prefix)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
