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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pefman/rs3calc/internal/catalogue"
	"github.com/pefman/rs3calc/internal/config"
	"github.com/pefman/rs3calc/internal/eventlog"
	"github.com/pefman/rs3calc/internal/index"
	"github.com/pefman/rs3calc/internal/preload"
	"github.com/pefman/rs3calc/internal/stats"
)

// Build metadata injected via -ldflags at build time
var (
	buildVersion = "dev"
	buildTime    = ""
)

var configDir string

var rootCmd = &cobra.Command{
	Use:          "rs3calc",
	Short:        "RS3 calculator API with a preloaded Grand Exchange item index",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Flags(), configDir)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
	rootCmd.Flags().StringVar(&configDir, "config-dir", ".", "directory searched for rs3calc.yaml")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	level, _ := cfg.SlogLevel()
	events := eventlog.New(cfg.LogCapacity)
	logger := slog.New(eventlog.NewHandler(events,
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.SetDefault(logger)

	client, err := catalogue.NewClient(catalogue.Options{
		BaseURL:           cfg.CatalogueURL,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		UserAgent:         "rs3calc/" + buildVersion,
	})
	if err != nil {
		return err
	}

	ix := index.New(index.WithMinTermLength(cfg.MinTermLength), index.WithSuggestLimit(cfg.SuggestLimit))
	history := stats.NewHistory(cfg.HistorySize)
	planner := catalogue.NewPlanner(client, cfg.MaxCategory, cfg.PageSize, logger)
	builder := preload.NewBuilder(planner, client, ix, preload.BuilderConfig{
		Workers: cfg.Workers,
		Logger:  logger,
		History: history,
	})
	sched := preload.NewScheduler(builder, cfg.RefreshInterval, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := preload.RegisterMetrics(reg); err != nil {
		return err
	}

	srv := &server{
		index:     ix,
		prices:    catalogue.NewPrices(client, cfg.PriceCacheSize, cfg.PriceCacheTTL),
		scheduler: sched,
		history:   history,
		events:    events,
		logger:    logger,
		metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The preloader lives off the request path for the life of the process.
	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           withCORS(srv.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	logger.Info("rs3calc listening",
		slog.String("addr", cfg.Addr), slog.String("version", buildVersion), slog.String("built", buildTime),
		slog.Int("max_category", cfg.MaxCategory), slog.Duration("refresh_interval", cfg.RefreshInterval))

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}
	stop()
	<-schedDone
	logger.Info("rs3calc shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
