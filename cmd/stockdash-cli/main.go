package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stockdash/internal/api"
	"stockdash/internal/dashboard"
	"stockdash/pkg/stockdash"
)

const version = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stockdash-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  status     Show stockdash-server status\n")
	fmt.Fprintf(os.Stderr, "  symbols    List available symbols\n")
	fmt.Fprintf(os.Stderr, "  chart      Evaluate a panel and print its figure as JSON\n")
	fmt.Fprintf(os.Stderr, "  export     Render a panel to a PNG file\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	fmt.Fprintf(os.Stderr, "  -server    REST base URL (default $STOCKDASH_URL or http://localhost:8050)\n")
	fmt.Fprintf(os.Stderr, "  -grpc      use the gRPC endpoint at this address for symbols and chart\n")
	fmt.Fprintf(os.Stderr, "  -panel     candlestick, line, bar or pie\n")
	fmt.Fprintf(os.Stderr, "  -symbols   comma separated symbols\n")
	fmt.Fprintf(os.Stderr, "  -start, -end, -date   YYYY-MM-DD selector values\n")
	fmt.Fprintf(os.Stderr, "  -o         output file for export\n")
	fmt.Fprintf(os.Stderr, "\n")
}

type options struct {
	server, grpc  string
	panel         string
	symbols       string
	start, end    string
	date          string
	rangeslider   string
	out           string
	width, height int
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]

	defaultURL := "http://localhost:8050"
	if v := os.Getenv("STOCKDASH_URL"); v != "" {
		defaultURL = v
	}

	var o options
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = usage
	fs.StringVar(&o.server, "server", defaultURL, "REST base URL")
	fs.StringVar(&o.grpc, "grpc", "", "gRPC address")
	fs.StringVar(&o.panel, "panel", stockdash.PanelCandlestick, "panel kind")
	fs.StringVar(&o.symbols, "symbols", "", "comma separated symbols")
	fs.StringVar(&o.start, "start", "", "range start")
	fs.StringVar(&o.end, "end", "", "range end")
	fs.StringVar(&o.date, "date", "", "pie date")
	fs.StringVar(&o.rangeslider, "rangeslider", "", "true or false")
	fs.StringVar(&o.out, "o", "", "output file")
	fs.IntVar(&o.width, "width", 0, "PNG width")
	fs.IntVar(&o.height, "height", 0, "PNG height")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "version":
		fmt.Printf("stockdash-cli %s\n", version)
	case "status":
		err = status(ctx, o)
	case "symbols":
		err = symbols(ctx, o)
	case "chart":
		err = chart(ctx, o)
	case "export":
		err = export(ctx, o)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func status(ctx context.Context, o options) error {
	h, err := stockdash.NewClient(o.server).Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("status:   %s\nsymbols:  %d\nsessions: %d\n", h.Status, h.Symbols, h.Sessions)
	return nil
}

func symbols(ctx context.Context, o options) error {
	if o.grpc != "" {
		c, err := api.Dial(o.grpc)
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.Catalog(ctx)
		if err != nil {
			return err
		}
		printSymbols(info.Symbols, info.MinDate, info.MaxDate)
		return nil
	}

	cat, err := stockdash.NewClient(o.server).Catalog(ctx)
	if err != nil {
		return err
	}
	printSymbols(cat.Symbols, cat.MinDate, cat.MaxDate)
	return nil
}

func printSymbols(syms []string, minDate, maxDate string) {
	fmt.Printf("%d symbols, %s .. %s\n", len(syms), minDate, maxDate)
	for _, s := range syms {
		fmt.Println(s)
	}
}

func chart(ctx context.Context, o options) error {
	req := request(o)
	var out any
	if o.grpc != "" {
		c, err := api.Dial(o.grpc)
		if err != nil {
			return err
		}
		defer c.Close()
		res, err := c.Evaluate(ctx, dashboard.Request{
			Panel:       o.panel,
			Symbol:      req.Symbol,
			Symbols:     req.Symbols,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			Date:        req.Date,
			RangeSlider: req.RangeSlider,
		})
		if err != nil {
			return err
		}
		out = res
	} else {
		res, err := stockdash.NewClient(o.server).Evaluate(ctx, o.panel, req)
		if err != nil {
			return err
		}
		out = res
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func export(ctx context.Context, o options) error {
	img, err := stockdash.NewClient(o.server).ExportPNG(ctx, o.panel, request(o), o.width, o.height)
	if err != nil {
		return err
	}
	path := o.out
	if path == "" {
		path = o.panel + ".png"
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(img))
	return nil
}

// request maps flags onto a selector state. Single-symbol panels take the
// first listed symbol.
func request(o options) stockdash.Request {
	var req stockdash.Request
	var syms []string
	for _, s := range strings.Split(o.symbols, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			syms = append(syms, s)
		}
	}
	switch o.panel {
	case stockdash.PanelCandlestick, stockdash.PanelBar:
		if len(syms) > 0 {
			req.Symbol = syms[0]
		}
	default:
		req.Symbols = syms
	}
	req.StartDate, req.EndDate, req.Date = o.start, o.end, o.date
	if o.rangeslider != "" {
		on := o.rangeslider == "true"
		req.RangeSlider = &on
	}
	return req
}
