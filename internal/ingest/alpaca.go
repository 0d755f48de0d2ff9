package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"stockdash/internal/domain"
	"stockdash/internal/store"
	"stockdash/internal/util"
)

var _ Gatherer = (*AlpacaGatherer)(nil)

// barsClient is the subset of the market-data client used for daily bars.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// watchlistClient is the subset of the trading client used to resolve a
// named watchlist into symbols.
type watchlistClient interface {
	GetWatchlists() ([]alpaca.Watchlist, error)
	GetWatchlist(watchlistID string) (*alpaca.Watchlist, error)
}

// AlpacaOptions configures an AlpacaGatherer.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, used for watchlists
	DataURL   string // market-data API
	Feed      string
	Watchlist string
	Symbols   []string
	StartDate string

	BatchSize       int
	MaxWorkers      int
	RateLimitPerMin int
	MaxRetries      int
	RetryDelay      time.Duration
}

// AlpacaGatherer loads daily bars for a fixed symbol list, optionally extended
// by an Alpaca watchlist. Each symbol resumes from the day after its last
// stored bar, so repeated runs only fetch what is missing.
type AlpacaGatherer struct {
	client   barsClient
	trading  watchlistClient
	bars     store.BarStore
	symbols  store.SymbolStore
	opts     AlpacaOptions
	limiter  *util.RateLimiter
	calendar *util.TradingCalendar
	now      func() time.Time
	stats    Stats
	log      *slog.Logger
}

// NewAlpacaGatherer creates an AlpacaGatherer writing US bars to the given
// stores. symbols may be nil.
func NewAlpacaGatherer(opts AlpacaOptions, bars store.BarStore, symbols store.SymbolStore, log *slog.Logger) *AlpacaGatherer {
	if log == nil {
		log = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}

	mdOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		mdOpts.BaseURL = opts.DataURL
	}

	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})

	return &AlpacaGatherer{
		client:   marketdata.NewClient(mdOpts),
		trading:  trading,
		bars:     bars,
		symbols:  symbols,
		opts:     opts,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		calendar: util.NewTradingCalendar(domain.MarketUS),
		now:      time.Now,
		log:      log.With("gatherer", "alpaca"),
	}
}

// Name returns the gatherer identifier.
func (g *AlpacaGatherer) Name() string { return "alpaca" }

// Stats returns the counters of the last Run.
func (g *AlpacaGatherer) Stats() *Stats { return &g.stats }

// Run fetches every missing daily bar up to the latest finished US session.
func (g *AlpacaGatherer) Run(ctx context.Context) error {
	g.stats.reset()
	start, err := time.ParseInLocation(domain.DateLayout, g.opts.StartDate, time.UTC)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.opts.StartDate, err)
	}
	endDay := g.calendar.LatestFinishedDay(g.now())

	meta, err := g.resolveSymbols()
	if err != nil {
		return err
	}
	if len(meta) == 0 {
		g.log.Warn("no symbols configured")
		return nil
	}
	symbols := make([]string, 0, len(meta))
	for s := range meta {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	// Resume each symbol after its last stored day.
	resume := make(map[string]time.Time, len(symbols))
	var pending []string
	for _, sym := range symbols {
		from := start
		_, last, err := g.bars.DateBounds(ctx, sym, domain.MarketUS)
		switch {
		case err == nil:
			if next := domain.Day(last).AddDate(0, 0, 1); next.After(from) {
				from = next
			}
		case !errors.Is(err, store.ErrNoData):
			return fmt.Errorf("date bounds %s: %w", sym, err)
		}
		if from.After(endDay) {
			continue
		}
		resume[sym] = from
		pending = append(pending, sym)
	}
	if len(pending) == 0 {
		g.log.Info("up to date", "end", endDay.Format(domain.DateLayout))
		return nil
	}

	batches := chunk(pending, g.opts.BatchSize)
	g.log.Info("starting",
		"symbols", len(pending),
		"batches", len(batches),
		"end", endDay.Format(domain.DateLayout),
	)

	runStart := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxWorkers)
	for i, batch := range batches {
		label := fmt.Sprintf("%d/%d", i+1, len(batches))
		from := resume[batch[0]]
		for _, s := range batch[1:] {
			if resume[s].Before(from) {
				from = resume[s]
			}
		}
		eg.Go(func() error {
			g.runBatch(egCtx, label, batch, from, endDay, meta)
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.log.Info("complete",
		"bars", g.stats.Bars.Load(),
		"empty", g.stats.Empty.Load(),
		"failed", g.stats.Failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if failed := g.stats.Failed.Load(); failed > 0 {
		return fmt.Errorf("%d of %d batches failed", failed, len(batches))
	}
	return nil
}

// runBatch fetches, writes and records one batch. Failures are counted and
// logged rather than returned so the remaining batches still run.
func (g *AlpacaGatherer) runBatch(ctx context.Context, label string, batch []string, from, endDay time.Time, meta map[string]domain.SymbolInfo) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.opts.MaxRetries, g.opts.RetryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = g.fetchMultiBars(ctx, batch, from, endDay)
		if err != nil {
			g.log.Warn("fetch failed", "batch", label, "err", err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			g.stats.Failed.Add(1)
			g.log.Error("batch failed", "batch", label, "err", err)
		}
		return
	}

	hit := make(map[string]bool, len(batch))
	for _, b := range bars {
		hit[b.Symbol] = true
	}
	g.stats.Empty.Add(int64(len(batch) - len(hit)))

	if len(bars) > 0 {
		if err := g.bars.WriteBars(ctx, domain.MarketUS, bars); err != nil {
			g.stats.Failed.Add(1)
			g.log.Error("writing bars failed", "batch", label, "err", err)
			return
		}
		g.stats.Bars.Add(int64(len(bars)))
	}
	for _, sym := range batch {
		if !hit[sym] {
			continue
		}
		g.stats.Symbols.Add(1)
		if err := refreshSymbol(ctx, g.bars, g.symbols, domain.MarketUS, sym, meta[sym]); err != nil {
			g.log.Error("symbol metadata", "symbol", sym, "err", err)
		}
	}
	g.log.Info("batch done", "batch", label, "bars", len(bars), "hits", len(hit))
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *AlpacaGatherer) fetchMultiBars(ctx context.Context, symbols []string, start, endDay time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, util.Permanent(err)
	}

	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       endDay.Add(24*time.Hour - time.Nanosecond),
		Feed:      g.opts.Feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  domain.Day(ab.Timestamp),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// resolveSymbols merges the configured symbols with the named watchlist.
// Watchlist entries carry the asset name into the metadata store.
func (g *AlpacaGatherer) resolveSymbols() (map[string]domain.SymbolInfo, error) {
	out := make(map[string]domain.SymbolInfo)
	for _, s := range g.opts.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out[s] = domain.SymbolInfo{Symbol: s}
		}
	}
	if g.opts.Watchlist == "" {
		return out, nil
	}

	lists, err := g.trading.GetWatchlists()
	if err != nil {
		return nil, fmt.Errorf("listing watchlists: %w", err)
	}
	for _, w := range lists {
		if w.Name != g.opts.Watchlist {
			continue
		}
		// GetWatchlists omits assets; fetch the full watchlist.
		full, err := g.trading.GetWatchlist(w.ID)
		if err != nil {
			return nil, fmt.Errorf("loading watchlist %q: %w", w.Name, err)
		}
		for _, a := range full.Assets {
			sym := strings.ToUpper(a.Symbol)
			out[sym] = domain.SymbolInfo{Symbol: sym, Name: a.Name}
		}
		return out, nil
	}
	g.log.Warn("watchlist not found", "name", g.opts.Watchlist)
	return out, nil
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		end := min(i+size, len(symbols))
		out = append(out, symbols[i:end])
	}
	return out
}
