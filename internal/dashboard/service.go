// Package dashboard is the stateless facade over the catalog, the binding
// layer and the page layout. The REST API, the gRPC service and the PNG
// exporter all go through it; live browser sessions use the session
// package instead.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stockdash/internal/binding"
	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/controls"
	"stockdash/internal/domain"
	"stockdash/internal/export"
	"stockdash/internal/layout"
	"stockdash/internal/panel"
)

// ErrInvalidRequest is returned when a request names an unknown panel or
// carries a selector value the panel rejects.
var ErrInvalidRequest = errors.New("invalid request")

// Request is a full selector state for one panel. Empty fields keep the
// panel's defaults.
type Request struct {
	Panel       string   `json:"panel"`
	Symbol      string   `json:"symbol,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Date        string   `json:"date,omitempty"`
	RangeSlider *bool    `json:"rangeslider,omitempty"`
}

// Result is the outcome of a stateless evaluation.
type Result struct {
	Spec     chart.Spec     `json:"figure"`
	Inputs   map[string]any `json:"inputs"`
	Warnings []string       `json:"warnings,omitempty"`
}

// CatalogInfo describes the symbol universe.
type CatalogInfo struct {
	Market  domain.Market       `json:"market"`
	Symbols []string            `json:"symbols"`
	Options []catalog.Option    `json:"options"`
	MinDate string              `json:"min_date"`
	MaxDate string              `json:"max_date"`
	Info    []domain.SymbolInfo `json:"info,omitempty"`
}

// Options configures the service.
type Options struct {
	Panel       panel.Options
	Layout      layout.Options
	EvalTimeout time.Duration
}

// Service answers stateless dashboard queries.
type Service struct {
	cat    *catalog.Catalog
	binder *binding.Binder
	opts   Options
	page   *layout.Page
	log    *slog.Logger
}

// New builds the service and its page layout.
func New(cat *catalog.Catalog, binder *binding.Binder, opts Options, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	lo := opts.Layout
	lo.Panel = opts.Panel
	page, err := layout.Build(cat, lo)
	if err != nil {
		return nil, err
	}
	return &Service{cat: cat, binder: binder, opts: opts, page: page, log: log}, nil
}

// Catalog returns the catalog the service was built with.
func (s *Service) Catalog() *catalog.Catalog { return s.cat }

// Page returns the component tree.
func (s *Service) Page() *layout.Page { return s.page }

// EvalFunc returns the binding layer's evaluation entry point.
func (s *Service) EvalFunc() panel.EvalFunc { return s.binder.Evaluate }

// CatalogInfo returns the catalog summary.
func (s *Service) CatalogInfo() CatalogInfo {
	ci := CatalogInfo{
		Market:  s.cat.Market(),
		Symbols: s.cat.Symbols(),
		Options: s.cat.Options(),
		MinDate: s.cat.MinDate().Format(domain.DateLayout),
		MaxDate: s.cat.MaxDate().Format(domain.DateLayout),
	}
	for _, sym := range ci.Symbols {
		if info, ok := s.cat.Info(sym); ok {
			ci.Info = append(ci.Info, info)
		}
	}
	return ci
}

// Evaluate computes one panel's chart from req. A store failure still
// returns the error placeholder spec alongside the error.
func (s *Service) Evaluate(ctx context.Context, req Request) (Result, error) {
	p, warnings, err := s.panelFor(req)
	if err != nil {
		return Result{}, err
	}
	if s.opts.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EvalTimeout)
		defer cancel()
	}
	start := time.Now()
	spec, err := p.Evaluate(ctx, s.binder.Evaluate)
	res := Result{Spec: spec, Inputs: p.State().Inputs, Warnings: warnings}
	if err != nil {
		s.log.Warn("evaluation failed", "panel", p.Kind(), "error", err)
		return res, err
	}
	s.log.Debug("panel evaluated", "panel", p.Kind(), "points", spec.Points(), "elapsed", time.Since(start))
	return res, nil
}

// ExportPNG evaluates req and renders the chart as a PNG image.
func (s *Service) ExportPNG(ctx context.Context, req Request, width, height int) ([]byte, error) {
	res, err := s.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	return export.Bytes(res.Spec, width, height)
}

// panelFor builds a panel of the requested kind and applies every provided
// selector value to it.
func (s *Service) panelFor(req Request) (*panel.Panel, []string, error) {
	kind, ok := chart.ParseKind(req.Panel)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown panel %q", ErrInvalidRequest, req.Panel)
	}
	p, err := panel.New(kind, s.cat, s.opts.Panel)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	for _, c := range controls.Inputs(kind) {
		ch := panel.Change{Control: c.ID}
		set := false
		switch c.Kind {
		case controls.KindDropdown:
			ch.Symbol, set = req.Symbol, req.Symbol != ""
		case controls.KindMultiDropdown:
			ch.Symbols, set = req.Symbols, req.Symbols != nil
		case controls.KindChecklist:
			if req.RangeSlider != nil {
				ch.Flags, set = []string{}, true
				if *req.RangeSlider {
					ch.Flags = []string{"slider"}
				}
			}
		case controls.KindDateRange:
			if ch.Start, err = parseOptionalDay(req.StartDate); err == nil {
				ch.End, err = parseOptionalDay(req.EndDate)
			}
			set = req.StartDate != "" || req.EndDate != ""
		case controls.KindDateSingle:
			ch.Date, err = parseOptionalDay(req.Date)
			set = req.Date != ""
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrInvalidRequest, c.ID, err)
		}
		if !set {
			continue
		}
		_, warning, err := p.Apply(ch)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrInvalidRequest, c.ID, err)
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}
	return p, warnings, nil
}

func parseOptionalDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return domain.ParseDay(s)
}
