package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stockdash/internal/api"
	"stockdash/internal/binding"
	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/config"
	"stockdash/internal/dashboard"
	"stockdash/internal/domain"
	"stockdash/internal/httpapi"
	"stockdash/internal/ingest"
	"stockdash/internal/layout"
	"stockdash/internal/panel"
	"stockdash/internal/session"
	"stockdash/internal/store"
	"stockdash/internal/util"
)

func main() {
	withIngest := flag.Bool("ingest", false, "run the CSV import in-process on the ingest schedule")
	noGRPC := flag.Bool("no-grpc", false, "do not start the gRPC listener")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, closer, err := util.NewLogger(util.LogOptions{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closer.Close()
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stores.
	market := domain.Market(cfg.Catalog.Market)
	bars := store.NewParquetStore(cfg.Storage.DataDir)
	var meta store.SymbolStore
	if cfg.Storage.SQLitePath != "" {
		sq, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite: %v", err)
		}
		defer sq.Close()
		meta = sq
	}

	// Catalog, binding layer and services.
	cat, err := catalog.Build(ctx, bars, meta, market, cfg.Catalog.Symbols)
	if err != nil {
		log.Fatalf("failed to build catalog: %v", err)
	}
	binder := binding.NewBinder(bars, cat, cfg.Dashboard.CacheTTL)

	panelOpts := panel.Options{
		RangeDays:    cfg.Dashboard.DefaultRangeDays,
		LineDefaults: cfg.Dashboard.LineDefaults,
		PieDefaults:  cfg.Dashboard.PieDefaults,
	}
	loading := make([]chart.Kind, 0, len(cfg.Dashboard.LoadingPanels))
	for _, p := range cfg.Dashboard.LoadingPanels {
		if k, ok := chart.ParseKind(p); ok {
			loading = append(loading, k)
		}
	}

	svc, err := dashboard.New(cat, binder, dashboard.Options{
		Panel: panelOpts,
		Layout: layout.Options{
			Brand:         cfg.Dashboard.Brand,
			Title:         cfg.Dashboard.Title,
			LoadingPanels: loading,
		},
		EvalTimeout: cfg.Dashboard.EvalTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to build dashboard: %v", err)
	}

	sessions := session.NewManager(ctx, cat, svc.EvalFunc(), session.Options{
		Panel:         panelOpts,
		LoadingPanels: loading,
		EvalTimeout:   cfg.Dashboard.EvalTimeout,
		Logger:        logger,
	})
	defer sessions.Close()

	// Scheduled jobs: pick up bars written by the ingest process.
	sched := ingest.NewScheduler(ctx, logger)
	if cfg.Ingest.Schedule != "" {
		var gatherers []ingest.Gatherer
		if *withIngest && cfg.Ingest.CSVDir != "" {
			gatherers = append(gatherers, ingest.NewCSVImporter(cfg.Ingest.CSVDir, market, bars, meta, logger))
		}
		err := sched.Add("refresh", cfg.Ingest.Schedule, func(ctx context.Context) {
			if len(gatherers) > 0 {
				if err := ingest.RunAll(ctx, logger, gatherers...); err != nil {
					logger.Warn("scheduled ingest incomplete", "err", err)
				}
			}
			binder.Invalidate()
		})
		if err != nil {
			log.Fatalf("failed to schedule refresh: %v", err)
		}
		go sched.Run()
	}

	// gRPC.
	if !*noGRPC {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
		gs := api.NewServer(grpcAddr, api.NewChartService(svc, logger), logger)
		go func() {
			if err := gs.ListenAndServe(ctx); err != nil {
				logger.Error("grpc server error", "error", err)
				cancel()
			}
		}()
	}

	// HTTP.
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpapi.NewServer(svc, sessions, logger, httpapi.Options{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("stockdash-server listening",
			"addr", httpServer.Addr,
			"symbols", cat.Len(),
			"version", httpapi.Version,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down stockdash-server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
