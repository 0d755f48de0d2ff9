package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stockdash/internal/config"
	"stockdash/internal/domain"
	"stockdash/internal/ingest"
	"stockdash/internal/store"
	"stockdash/internal/util"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stockdash-ingest <source> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Sources:\n")
	fmt.Fprintf(os.Stderr, "  csv        Import CSV exports from ingest.csv_dir\n")
	fmt.Fprintf(os.Stderr, "  alpaca     Fetch US daily bars from Alpaca\n")
	fmt.Fprintf(os.Stderr, "  all        Run every configured source\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	fmt.Fprintf(os.Stderr, "  -dir       override ingest.csv_dir\n")
	fmt.Fprintf(os.Stderr, "  -market    market for CSV imports (default catalog.market)\n")
	fmt.Fprintf(os.Stderr, "  -schedule  keep running on ingest.schedule\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	source := os.Args[1]

	fs := flag.NewFlagSet(source, flag.ExitOnError)
	fs.Usage = usage
	dir := fs.String("dir", "", "CSV directory")
	marketFlag := fs.String("market", "", "market for CSV imports")
	scheduled := fs.Bool("schedule", false, "run on the configured cron schedule")
	fs.Parse(os.Args[2:])

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

	csvDir := cfg.Ingest.CSVDir
	if *dir != "" {
		csvDir = *dir
	}
	market := domain.Market(cfg.Catalog.Market)
	if *marketFlag != "" {
		market = domain.Market(*marketFlag)
	}

	newCSV := func() ingest.Gatherer {
		return ingest.NewCSVImporter(csvDir, market, bars, meta, logger)
	}
	newAlpaca := func() ingest.Gatherer {
		return ingest.NewAlpacaGatherer(ingest.AlpacaOptions{
			APIKey:          cfg.Alpaca.APIKey,
			APISecret:       cfg.Alpaca.APISecret,
			BaseURL:         cfg.Alpaca.BaseURL,
			DataURL:         cfg.Alpaca.DataURL,
			Feed:            cfg.Alpaca.Feed,
			Watchlist:       cfg.Alpaca.Watchlist,
			Symbols:         cfg.Catalog.Symbols,
			StartDate:       cfg.Ingest.StartDate,
			BatchSize:       cfg.Ingest.BatchSize,
			MaxWorkers:      cfg.Ingest.MaxWorkers,
			RateLimitPerMin: cfg.Ingest.RateLimitPerMin,
			MaxRetries:      cfg.Ingest.MaxRetries,
		}, bars, meta, logger)
	}

	var gatherers []ingest.Gatherer
	switch source {
	case "csv":
		gatherers = append(gatherers, newCSV())
	case "alpaca":
		if cfg.Alpaca.APIKey == "" {
			log.Fatal("alpaca credentials are not configured (APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
		}
		gatherers = append(gatherers, newAlpaca())
	case "all":
		if csvDir != "" {
			gatherers = append(gatherers, newCSV())
		}
		if cfg.Alpaca.APIKey != "" {
			gatherers = append(gatherers, newAlpaca())
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown source: %s\n\n", source)
		usage()
		os.Exit(1)
	}
	if len(gatherers) == 0 {
		log.Fatal("no ingest source configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !*scheduled {
		if err := ingest.RunAll(ctx, logger, gatherers...); err != nil {
			logger.Error("ingest finished with errors", "err", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Ingest.Schedule == "" {
		log.Fatal("ingest.schedule is empty")
	}
	sched := ingest.NewScheduler(ctx, logger)
	if err := sched.Add(source, cfg.Ingest.Schedule, func(ctx context.Context) {
		if err := ingest.RunAll(ctx, logger, gatherers...); err != nil {
			logger.Warn("scheduled ingest incomplete", "err", err)
		}
	}); err != nil {
		log.Fatalf("failed to schedule ingest: %v", err)
	}
	slog.Info("starting stockdash-ingest daemon", "source", source, "schedule", cfg.Ingest.Schedule)
	sched.Run()
}
