// Package export renders chart specs to PNG images server side, for
// downloads and for clients without a browser.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"stockdash/internal/chart"
	"stockdash/internal/domain"
)

// ErrNothingToRender is returned for empty and error specs.
var ErrNothingToRender = errors.New("chart has no data to render")

// Size of exported images in pixels.
const (
	DefaultWidth  = 1024
	DefaultHeight = 480
)

var palette = []drawing.Color{
	gochart.ColorBlue,
	gochart.ColorGreen,
	gochart.ColorRed,
	gochart.ColorOrange,
	gochart.ColorCyan,
	gochart.ColorAlternateGray,
}

// PNG writes spec as a PNG image. Candlesticks are drawn as a close-price
// line since the renderer has no OHLC series.
func PNG(w io.Writer, spec chart.Spec, width, height int) error {
	if spec.Error != "" || spec.Points() == 0 {
		return ErrNothingToRender
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	var r interface {
		Render(gochart.RendererProvider, io.Writer) error
	}
	var err error
	switch spec.Kind {
	case chart.Candlestick, chart.Line:
		r, err = timeChart(spec, width, height)
	case chart.Bar:
		r = barChart(spec, width, height)
	case chart.Pie:
		r, err = pieChart(spec, width, height)
	default:
		return fmt.Errorf("export: unsupported chart kind %q", spec.Kind)
	}
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := r.Render(gochart.PNG, &buf); err != nil {
		return fmt.Errorf("export %s: %w", spec.Kind, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// Bytes renders spec and returns the encoded image.
func Bytes(spec chart.Spec, width, height int) ([]byte, error) {
	var buf bytes.Buffer
	if err := PNG(&buf, spec, width, height); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lineStyle(i int) gochart.Style {
	c := palette[i%len(palette)]
	return gochart.Style{StrokeColor: c, StrokeWidth: 2, DotColor: c}
}

func timeChart(spec chart.Spec, width, height int) (*gochart.Chart, error) {
	var (
		series   []gochart.Series
		min, max = math.Inf(1), math.Inf(-1)
	)
	for i, tr := range spec.Traces {
		ys := tr.Y
		if tr.Type == "candlestick" {
			ys = tr.Close
		}
		var (
			xs  []time.Time
			val []float64
		)
		for j, x := range tr.X {
			if j >= len(ys) {
				break
			}
			t, err := domain.ParseDay(x)
			if err != nil {
				return nil, fmt.Errorf("export: trace %q: %w", tr.Name, err)
			}
			xs = append(xs, t)
			val = append(val, ys[j])
			min, max = math.Min(min, ys[j]), math.Max(max, ys[j])
		}
		if len(xs) == 0 {
			continue
		}
		// A single point has a zero-width x range; stretch it by a day.
		if len(xs) == 1 {
			xs = append(xs, xs[0].AddDate(0, 0, 1))
			val = append(val, val[0])
		}
		series = append(series, gochart.TimeSeries{Name: tr.Name, XValues: xs, YValues: val, Style: lineStyle(i)})
	}
	if len(series) == 0 {
		return nil, ErrNothingToRender
	}

	pad := (max - min) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(max)*0.05, 1)
	}
	ch := &gochart.Chart{
		Title:      spec.Layout.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      gochart.XAxis{Name: spec.Layout.XTitle, ValueFormatter: gochart.TimeDateValueFormatter},
		YAxis:      gochart.YAxis{Name: spec.Layout.YTitle, Range: &gochart.ContinuousRange{Min: min - pad, Max: max + pad}},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(ch)}
	return ch, nil
}

func barChart(spec chart.Spec, width, height int) *gochart.BarChart {
	tr := spec.Traces[0]
	bars := make([]gochart.Value, 0, len(tr.X))
	max := 0.0
	for i, x := range tr.X {
		if i >= len(tr.Y) {
			break
		}
		bars = append(bars, gochart.Value{Label: x, Value: tr.Y[i]})
		max = math.Max(max, tr.Y[i])
	}
	if max == 0 {
		max = 1
	}
	barWidth := (width - 120) / (2 * len(bars))
	if barWidth > 80 {
		barWidth = 80
	}
	return &gochart.BarChart{
		Title:      spec.Layout.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40}},
		BarWidth:   barWidth,
		YAxis:      gochart.YAxis{Range: &gochart.ContinuousRange{Min: 0, Max: max * 1.1}},
		Bars:       bars,
	}
}

// pieChart fails with ErrNothingToRender when no slice has a positive value.
func pieChart(spec chart.Spec, width, height int) (*gochart.PieChart, error) {
	tr := spec.Traces[0]
	values := make([]gochart.Value, 0, len(tr.Values))
	var total float64
	for i, v := range tr.Values {
		label := ""
		if i < len(tr.Labels) {
			label = tr.Labels[i]
		}
		total += v
		values = append(values, gochart.Value{Label: label, Value: v})
	}
	if total <= 0 {
		return nil, ErrNothingToRender
	}
	return &gochart.PieChart{
		Title:  spec.Layout.Title,
		Width:  width,
		Height: height,
		Values: values,
	}, nil
}
