package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"stockdash/internal/binding"
	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/controls"
	"stockdash/internal/domain"
	"stockdash/internal/panel"
	"stockdash/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var testSymbols = []string{"INFY", "TCS", "WIPRO", "HCLTECH"}

func seed(t *testing.T) (*store.MemStore, *catalog.Catalog) {
	t.Helper()
	ms := store.NewMemStore()
	var bars []domain.Bar
	for i, sym := range testSymbols {
		for d := 22; d <= 28; d++ {
			ts := day(2024, 3, d)
			if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
				continue
			}
			base := float64(100 * (i + 1))
			bars = append(bars, domain.Bar{
				Symbol: sym, Timestamp: ts,
				Open: base, High: base + 5, Low: base - 5, Close: base + 1,
				Volume: int64(1000 * (i + 1)),
			})
		}
	}
	if err := ms.WriteBars(context.Background(), domain.MarketNSE, bars); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cat, err := catalog.New(domain.MarketNSE, testSymbols, day(2024, 3, 22), day(2024, 3, 28))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return ms, cat
}

func testOptions() Options {
	return Options{
		Panel:         panel.DefaultOptions(),
		LoadingPanels: []chart.Kind{chart.Candlestick, chart.Line},
		EvalTimeout:   2 * time.Second,
	}
}

// start runs a session backed by a real binder and returns it with a
// subscription opened before the first evaluation.
func start(t *testing.T, ms *store.MemStore, cat *catalog.Catalog) (*Session, <-chan Message) {
	t.Helper()
	b := binding.NewBinder(ms, cat, time.Minute)
	s, err := New("test", cat, b.Evaluate, testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, ch := s.Subscribe(64)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s, ch
}

// waitPanel reads messages until a panel update for kind satisfies ok.
func waitPanel(t *testing.T, ch <-chan Message, kind chart.Kind, ok func(panel.State) bool) panel.State {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg, open := <-ch:
			if !open {
				t.Fatal("subscription closed")
			}
			if msg.Type == MsgPanel && msg.Panel.Kind == kind && ok(*msg.Panel) {
				return *msg.Panel
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s panel", kind)
		}
	}
}

func loaded(st panel.State) bool { return !st.Loading && st.Spec.Points() > 0 }

// waitAll polls snapshots until every panel has finished its first load.
func waitAll(t *testing.T, s *Session) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		done := true
		for _, p := range snap.Panels {
			if !loaded(p) {
				done = false
			}
		}
		if done {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("panels did not load")
	return Snapshot{}
}

func event(t *testing.T, id controls.ID, v any) Event {
	t.Helper()
	var raw json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		raw = b
	}
	return Event{Control: string(id), Value: raw}
}

func TestDefaultLoad(t *testing.T) {
	ms, cat := seed(t)
	s, _ := start(t, ms, cat)

	snap := waitAll(t, s)
	for _, p := range snap.Panels {
		if p.Spec.Error != "" {
			t.Errorf("%s: unexpected error %q", p.Kind, p.Spec.Error)
		}
	}
	if len(snap.Panels) != 4 {
		t.Fatalf("panels = %d, want 4", len(snap.Panels))
	}
	if snap.Modal.Open {
		t.Error("modal should start closed")
	}
	line := snap.Panels[1]
	if got := line.Inputs[string(controls.MultiTickers)].([]string); len(got) != 2 || got[0] != "INFY" || got[1] != "TCS" {
		t.Errorf("line defaults = %v", got)
	}
	if len(line.Spec.Traces) != 2 {
		t.Errorf("line traces = %d, want 2", len(line.Spec.Traces))
	}
	if !snap.Panels[0].Spec.Layout.RangeSlider {
		t.Error("candlestick range slider should default on")
	}
}

func TestPanelIsolation(t *testing.T) {
	ms, cat := seed(t)
	s, ch := start(t, ms, cat)
	before := waitAll(t, s)

	if err := s.Dispatch(context.Background(), event(t, controls.Ticker, "WIPRO")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitPanel(t, ch, chart.Candlestick, func(st panel.State) bool {
		return loaded(st) && st.Spec.Traces[0].Name == "WIPRO"
	})
	if st.Inputs[string(controls.Ticker)] != "WIPRO" {
		t.Errorf("ticker = %v", st.Inputs[string(controls.Ticker)])
	}

	after, _ := s.Snapshot(context.Background())
	for i := 1; i < 4; i++ {
		if after.Panels[i].Seq != before.Panels[i].Seq {
			t.Errorf("%s panel was re-evaluated", after.Panels[i].Kind)
		}
	}
}

func TestRangeSliderToggleRedecorates(t *testing.T) {
	ms, cat := seed(t)
	s, ch := start(t, ms, cat)
	before := waitAll(t, s)

	if err := s.Dispatch(context.Background(), event(t, controls.ToggleRangeSlider2, []string{})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitPanel(t, ch, chart.Line, func(st panel.State) bool { return loaded(st) && !st.Spec.Layout.RangeSlider })
	if st.Seq != before.Panels[1].Seq {
		t.Errorf("toggle triggered evaluation: seq %d -> %d", before.Panels[1].Seq, st.Seq)
	}
	if len(st.Spec.Traces) != 2 {
		t.Errorf("traces = %d, want data kept", len(st.Spec.Traces))
	}
}

func TestPieFourSymbols(t *testing.T) {
	ms, cat := seed(t)
	s, ch := start(t, ms, cat)
	waitAll(t, s)

	if err := s.Dispatch(context.Background(), event(t, controls.PieTickers, testSymbols)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitPanel(t, ch, chart.Pie, func(st panel.State) bool {
		return loaded(st) && len(st.Spec.Traces[0].Labels) == 4
	})
	if got := st.Spec.Traces[0].Labels; got[3] != "HCLTECH" {
		t.Errorf("labels = %v", got)
	}
}

func TestRunPublishesNoSnapshot(t *testing.T) {
	ms, cat := seed(t)
	s, ch := start(t, ms, cat)
	waitAll(t, s)

	for {
		select {
		case msg := <-ch:
			if msg.Type == MsgSnapshot {
				t.Fatal("loop published a snapshot; the transport sends its own")
			}
		default:
			return
		}
	}
}

func TestDateRangeClampPublishedInInputs(t *testing.T) {
	ms, cat := seed(t)
	s, ch := start(t, ms, cat)
	waitAll(t, s)
	ctx := context.Background()
	id := string(controls.BarDatePicker)

	// Moving only the end before the start clamps the start, and the panel
	// update carries both adjusted ends for the widget.
	if err := s.Dispatch(ctx, event(t, controls.BarDatePicker, map[string]string{"end_date": "2024-03-22"})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitPanel(t, ch, chart.Bar, func(st panel.State) bool {
		v, _ := st.Inputs[id].(map[string]string)
		return v["start_date"] == "2024-03-22"
	})
	if v := st.Inputs[id].(map[string]string); v["end_date"] != "2024-03-22" {
		t.Errorf("end_date = %q, want 2024-03-22", v["end_date"])
	}

	// A full pair is never clamped, even when one end is unchanged.
	ev := event(t, controls.BarDatePicker, map[string]string{"start_date": "2024-03-26", "end_date": "2024-03-22"})
	if err := s.Dispatch(ctx, ev); !errors.Is(err, domain.ErrInvertedRange) {
		t.Errorf("inverted pair err = %v", err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range snap.Panels {
		if p.Kind != chart.Bar {
			continue
		}
		if v := p.Inputs[id].(map[string]string); v["start_date"] != "2024-03-22" || v["end_date"] != "2024-03-22" {
			t.Errorf("range after rejected pair = %v", v)
		}
	}
}

func TestStoreFailureIsolatedToPanel(t *testing.T) {
	ms, cat := seed(t)
	s, ch := start(t, ms, cat)
	waitAll(t, s)

	ms.SetErr(errors.New("disk gone"))
	ev := event(t, controls.BarDatePicker, map[string]string{"start_date": "2024-03-22", "end_date": "2024-03-26"})
	if err := s.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st := waitPanel(t, ch, chart.Bar, func(st panel.State) bool { return st.Spec.Error != "" })
	if st.Spec.Error != "Chart data is unavailable right now" {
		t.Errorf("error = %q", st.Spec.Error)
	}

	snap, _ := s.Snapshot(context.Background())
	for _, p := range snap.Panels {
		if p.Kind != chart.Bar && p.Spec.Error != "" {
			t.Errorf("%s panel affected: %q", p.Kind, p.Spec.Error)
		}
	}
}

func TestDispatchRejectsInvalid(t *testing.T) {
	ms, cat := seed(t)
	s, _ := start(t, ms, cat)

	tests := []struct {
		name string
		ev   Event
	}{
		{"missing control", Event{}},
		{"unknown control", event(t, "nope", "x")},
		{"output control", event(t, controls.Graph1, "x")},
		{"bad date", event(t, controls.PieDatePicker, "28/03/2024")},
		{"empty ticker", event(t, controls.Ticker, "")},
		{"wrong shape", event(t, controls.MultiTickers, "INFY")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Dispatch(context.Background(), tt.ev)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("err = %v, want ErrInvalidEvent", err)
			}
		})
	}

	err := s.Dispatch(context.Background(), event(t, controls.Ticker, "ACME"))
	if err == nil {
		t.Error("unknown symbol accepted")
	}
}

func TestModalTransitions(t *testing.T) {
	var m Modal
	steps := []struct {
		id      controls.ID
		open    bool
		changed bool
	}{
		{controls.Close, false, false},
		{controls.Open, true, true},
		{controls.Open, true, false},
		{controls.Close, false, true},
		{controls.Close, false, false},
	}
	for i, s := range steps {
		changed, err := m.Click(s.id)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if changed != s.changed || m.State().Open != s.open {
			t.Errorf("step %d (%s): open=%v changed=%v, want %v %v", i, s.id, m.State().Open, changed, s.open, s.changed)
		}
	}
	if st := m.State(); st.OpenClicks != 2 || st.CloseClicks != 3 {
		t.Errorf("clicks = %+v", st)
	}
	if _, err := m.Click(controls.Ticker); err == nil {
		t.Error("non-button click accepted")
	}
}

func TestModalViaDispatch(t *testing.T) {
	ms, cat := seed(t)
	s, ch := start(t, ms, cat)

	if err := s.Dispatch(context.Background(), event(t, controls.Open, nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Type == MsgModal {
				if !msg.Modal.Open {
					t.Error("modal not open")
				}
				return
			}
		case <-timeout:
			t.Fatal("no modal message")
		}
	}
}

func TestClosedSession(t *testing.T) {
	ms, cat := seed(t)
	b := binding.NewBinder(ms, cat, time.Minute)
	s, err := New("x", cat, b.Evaluate, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	_, ch := s.Subscribe(8)
	go s.Run(ctx)
	cancel()
	<-s.Done()

	if err := s.Dispatch(context.Background(), event(t, controls.Open, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch after close = %v", err)
	}
	for range ch {
	}
}

func TestManager(t *testing.T) {
	ms, cat := seed(t)
	b := binding.NewBinder(ms, cat, time.Minute)
	m := NewManager(context.Background(), cat, b.Evaluate, testOptions())
	defer m.Close()

	a, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	if a.ID() == c.ID() {
		t.Fatal("duplicate session id")
	}
	if got, ok := m.Get(a.ID()); !ok || got != a {
		t.Error("Get did not return session")
	}
	m.Remove(a.ID())
	if _, ok := m.Get(a.ID()); ok {
		t.Error("session still present after Remove")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}
