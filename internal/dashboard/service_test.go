package dashboard

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"stockdash/internal/binding"
	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/domain"
	"stockdash/internal/panel"
	"stockdash/internal/selector"
	"stockdash/internal/store"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func newService(t *testing.T) (*Service, *store.MemStore) {
	t.Helper()
	syms := []string{"INFY", "TCS", "WIPRO"}
	ms := store.NewMemStore()
	var bars []domain.Bar
	for i, sym := range syms {
		for _, d := range []int{25, 26, 27, 28} {
			p := float64(100*(i+1) + d)
			bars = append(bars, domain.Bar{Symbol: sym, Timestamp: day(d), Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: int64(1000 + d)})
		}
	}
	if err := ms.WriteBars(context.Background(), domain.MarketNSE, bars); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.New(domain.MarketNSE, syms, day(20), day(28))
	if err != nil {
		t.Fatal(err)
	}
	svc, err := New(cat, binding.NewBinder(ms, cat, time.Minute), Options{
		Panel:       panel.DefaultOptions(),
		EvalTimeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, ms
}

func TestEvaluateDefaults(t *testing.T) {
	svc, _ := newService(t)
	for _, kind := range chart.Kinds {
		res, err := svc.Evaluate(context.Background(), Request{Panel: string(kind)})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if res.Spec.Kind != kind || res.Spec.Points() == 0 {
			t.Errorf("%s: spec = %+v", kind, res.Spec)
		}
	}
}

func TestEvaluateBarRange(t *testing.T) {
	svc, _ := newService(t)
	res, err := svc.Evaluate(context.Background(), Request{
		Panel: "bar", Symbol: "TCS", StartDate: "2024-03-26", EndDate: "2024-03-27",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := res.Spec.Traces[0].X; len(got) != 2 || got[0] != "2024-03-26" {
		t.Errorf("x = %v", got)
	}
	if res.Inputs["bar_ticker"] != "TCS" {
		t.Errorf("inputs = %v", res.Inputs)
	}
}

func TestEvaluateRangeSliderOff(t *testing.T) {
	svc, _ := newService(t)
	off := false
	res, err := svc.Evaluate(context.Background(), Request{Panel: "line", RangeSlider: &off})
	if err != nil {
		t.Fatal(err)
	}
	if res.Spec.Layout.RangeSlider {
		t.Error("range slider should be off")
	}
}

func TestEvaluateInvalid(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		name string
		req  Request
		is   error
	}{
		{"unknown panel", Request{Panel: "scatter"}, ErrInvalidRequest},
		{"unknown symbol", Request{Panel: "candlestick", Symbol: "ACME"}, selector.ErrUnknownSymbol},
		{"inverted range", Request{Panel: "bar", StartDate: "2024-03-28", EndDate: "2024-03-25"}, selector.ErrInvertedRange},
		{"inverted range keeping start", Request{Panel: "bar", StartDate: "2024-03-25", EndDate: "2024-03-22"}, selector.ErrInvertedRange},
		{"out of bounds", Request{Panel: "pie", Date: "2023-01-01"}, selector.ErrOutOfBounds},
		{"bad date", Request{Panel: "pie", Date: "yesterday"}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Evaluate(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) || !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestEvaluateStoreDown(t *testing.T) {
	svc, ms := newService(t)
	ms.SetErr(errors.New("io error"))
	res, err := svc.Evaluate(context.Background(), Request{Panel: "bar", Symbol: "WIPRO"})
	if !binding.IsStoreError(err) {
		t.Fatalf("err = %v, want store error", err)
	}
	if res.Spec.Error == "" {
		t.Error("expected error placeholder")
	}
}

func TestExportPNG(t *testing.T) {
	svc, _ := newService(t)
	img, err := svc.ExportPNG(context.Background(), Request{Panel: "pie"}, 400, 300)
	if err != nil {
		t.Fatalf("ExportPNG: %v", err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Error("not a png")
	}
}

func TestCatalogInfo(t *testing.T) {
	svc, _ := newService(t)
	ci := svc.CatalogInfo()
	if len(ci.Symbols) != 3 || ci.MinDate != "2024-03-20" || ci.MaxDate != "2024-03-28" {
		t.Errorf("catalog info = %+v", ci)
	}
	if svc.Page() == nil {
		t.Error("page not built")
	}
}
