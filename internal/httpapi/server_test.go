package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stockdash/internal/binding"
	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/dashboard"
	"stockdash/internal/domain"
	"stockdash/internal/layout"
	"stockdash/internal/panel"
	"stockdash/internal/session"
	"stockdash/internal/store"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	syms := []string{"INFY", "TCS", "WIPRO", "HCLTECH"}
	ms := store.NewMemStore()
	var bars []domain.Bar
	for i, sym := range syms {
		for _, d := range []int{25, 26, 27, 28} {
			p := float64(100*(i+1) + d)
			bars = append(bars, domain.Bar{Symbol: sym, Timestamp: day(d), Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: int64(500 * (i + 1))})
		}
	}
	if err := ms.WriteBars(context.Background(), domain.MarketNSE, bars); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.New(domain.MarketNSE, syms, day(25), day(28))
	if err != nil {
		t.Fatal(err)
	}
	loading := []chart.Kind{chart.Candlestick, chart.Line}
	svc, err := dashboard.New(cat, binding.NewBinder(ms, cat, time.Minute), dashboard.Options{
		Panel:       panel.DefaultOptions(),
		Layout:      layout.Options{Brand: "Stock Dashboard ( IT sector )", LoadingPanels: loading},
		EvalTimeout: 2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := session.NewManager(ctx, cat, svc.EvalFunc(), session.Options{
		Panel:         panel.DefaultOptions(),
		LoadingPanels: loading,
		EvalTimeout:   2 * time.Second,
	})
	srv := httptest.NewServer(NewServer(svc, mgr, nil, Options{}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		mgr.Close()
	})
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, v any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	var out struct {
		Status  string `json:"status"`
		Symbols int    `json:"symbols"`
	}
	if code := getJSON(t, srv.URL+"/healthz", &out); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if out.Status != "ok" || out.Symbols != 4 {
		t.Errorf("health = %+v", out)
	}
}

func TestCatalogAndControls(t *testing.T) {
	srv := newTestServer(t)

	var ci dashboard.CatalogInfo
	if code := getJSON(t, srv.URL+"/api/v1/catalog", &ci); code != http.StatusOK {
		t.Fatalf("catalog status = %d", code)
	}
	if len(ci.Options) != 4 || ci.MaxDate != "2024-03-28" {
		t.Errorf("catalog = %+v", ci)
	}

	var ctl struct {
		Controls []map[string]any `json:"controls"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/controls", &ctl); code != http.StatusOK {
		t.Fatalf("controls status = %d", code)
	}
	if len(ctl.Controls) != 17 {
		t.Errorf("controls = %d, want 17", len(ctl.Controls))
	}
}

func TestEvaluate(t *testing.T) {
	srv := newTestServer(t)

	var res dashboard.Result
	code := postJSON(t, srv.URL+"/api/v1/panels/pie/evaluate", map[string]any{
		"symbols": []string{"INFY", "TCS", "WIPRO", "HCLTECH"},
		"date":    "2024-03-27",
	}, &res)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if res.Spec.Kind != chart.Pie || len(res.Spec.Traces[0].Values) != 4 {
		t.Errorf("figure = %+v", res.Spec)
	}

	if code := postJSON(t, srv.URL+"/api/v1/panels/bar/evaluate", map[string]any{"symbol": "ACME"}, nil); code != http.StatusBadRequest {
		t.Errorf("unknown symbol status = %d, want 400", code)
	}
	if code := postJSON(t, srv.URL+"/api/v1/panels/bar/evaluate", map[string]any{
		"start_date": "2024-03-28", "end_date": "2024-03-25",
	}, nil); code != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", code)
	}
	if code := postJSON(t, srv.URL+"/api/v1/panels/scatter/evaluate", map[string]any{}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("unknown panel status = %d, want 422", code)
	}
}

func TestExportPNG(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/panels/line/export.png?symbols=INFY,TCS&width=400&height=300")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	b, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Error("body is not a png")
	}
}

func TestPageAndOpenAPI(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "Stock Dashboard ( IT sector )") {
		t.Error("page missing brand")
	}

	var doc map[string]any
	if code := getJSON(t, srv.URL+"/openapi.json", &doc); code != http.StatusOK {
		t.Fatalf("openapi status = %d", code)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/api/v1/panels/{panel}/evaluate"]; !ok {
		t.Error("openapi missing evaluate path")
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, ok func(session.Message) bool) session.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg session.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ok(msg) {
			return msg
		}
	}
}

func TestWebsocketSession(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readUntil(t, conn, func(session.Message) bool { return true })
	if first.Type != session.MsgSnapshot || len(first.Snapshot.Panels) != 4 {
		t.Fatalf("first message = %+v", first)
	}

	if err := conn.WriteJSON(map[string]any{"control": "ticker", "value": "WIPRO"}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, func(m session.Message) bool {
		if m.Type == session.MsgSnapshot {
			t.Error("second snapshot on the socket")
		}
		return m.Type == session.MsgPanel && m.Panel.Kind == chart.Candlestick &&
			len(m.Panel.Spec.Traces) > 0 && m.Panel.Spec.Traces[0].Name == "WIPRO"
	})

	if err := conn.WriteJSON(map[string]any{"control": "ticker", "value": "ACME"}); err != nil {
		t.Fatal(err)
	}
	w := readUntil(t, conn, func(m session.Message) bool { return m.Type == session.MsgWarning })
	if w.Control != "ticker" {
		t.Errorf("warning control = %q", w.Control)
	}

	if err := conn.WriteJSON(map[string]any{"control": "open"}); err != nil {
		t.Fatal(err)
	}
	m := readUntil(t, conn, func(m session.Message) bool { return m.Type == session.MsgModal })
	if !m.Modal.Open {
		t.Error("modal should be open")
	}
}
