package httpapi

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stockdash/internal/controls"
	"stockdash/internal/dashboard"
	"stockdash/internal/layout"
)

type panelPath struct {
	Panel string `path:"panel" enum:"candlestick,line,bar,pie" doc:"Panel chart kind"`
}

type evaluateInput struct {
	panelPath
	Body struct {
		Symbol      string   `json:"symbol,omitempty" doc:"Single-symbol dropdown value (candlestick, bar)"`
		Symbols     []string `json:"symbols,omitempty" doc:"Multi-symbol dropdown value (line, pie)"`
		StartDate   string   `json:"start_date,omitempty" format:"date" doc:"Bar panel range start"`
		EndDate     string   `json:"end_date,omitempty" format:"date" doc:"Bar panel range end"`
		Date        string   `json:"date,omitempty" format:"date" doc:"Pie panel date"`
		RangeSlider *bool    `json:"rangeslider,omitempty" doc:"Range slider toggle (candlestick, line)"`
	}
}

type exportInput struct {
	panelPath
	Symbol      string   `query:"symbol"`
	Symbols     []string `query:"symbols" doc:"Comma separated symbols"`
	StartDate   string   `query:"start_date"`
	EndDate     string   `query:"end_date"`
	Date        string   `query:"date"`
	RangeSlider string   `query:"rangeslider" enum:"true,false"`
	Width       int      `query:"width" minimum:"100" maximum:"4096" default:"1024"`
	Height      int      `query:"height" minimum:"100" maximum:"4096" default:"480"`
}

func registerDashboardHandlers(api huma.API, s *Server) {
	type layoutOutput struct {
		Body *layout.Page
	}
	huma.Register(api, huma.Operation{OperationID: "get-layout", Method: http.MethodGet, Path: "/api/v1/layout", Summary: "Dashboard component tree", Tags: []string{"Dashboard"}},
		func(ctx context.Context, input *struct{}) (*layoutOutput, error) {
			return &layoutOutput{Body: s.svc.Page()}, nil
		})

	type catalogOutput struct {
		Body dashboard.CatalogInfo
	}
	huma.Register(api, huma.Operation{OperationID: "get-catalog", Method: http.MethodGet, Path: "/api/v1/catalog", Summary: "Symbol catalog and date bounds", Tags: []string{"Dashboard"}},
		func(ctx context.Context, input *struct{}) (*catalogOutput, error) {
			return &catalogOutput{Body: s.svc.CatalogInfo()}, nil
		})

	type controlsOutput struct {
		Body struct {
			Controls []controls.Control `json:"controls"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-controls", Method: http.MethodGet, Path: "/api/v1/controls", Summary: "Control registry", Tags: []string{"Dashboard"}},
		func(ctx context.Context, input *struct{}) (*controlsOutput, error) {
			out := &controlsOutput{}
			out.Body.Controls = controls.All()
			return out, nil
		})
}

func registerPanelHandlers(api huma.API, s *Server) {
	type evaluateOutput struct {
		Body dashboard.Result
	}
	huma.Register(api, huma.Operation{OperationID: "evaluate-panel", Method: http.MethodPost, Path: "/api/v1/panels/{panel}/evaluate", Summary: "Evaluate a panel from a selector state", Tags: []string{"Panels"}},
		func(ctx context.Context, input *evaluateInput) (*evaluateOutput, error) {
			res, err := s.svc.Evaluate(ctx, dashboard.Request{
				Panel:       input.Panel,
				Symbol:      input.Body.Symbol,
				Symbols:     input.Body.Symbols,
				StartDate:   input.Body.StartDate,
				EndDate:     input.Body.EndDate,
				Date:        input.Body.Date,
				RangeSlider: input.Body.RangeSlider,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &evaluateOutput{Body: res}, nil
		})

	type exportOutput struct {
		ContentType  string `header:"Content-Type"`
		CacheControl string `header:"Cache-Control"`
		Body         []byte
	}
	huma.Register(api, huma.Operation{OperationID: "export-panel", Method: http.MethodGet, Path: "/api/v1/panels/{panel}/export.png", Summary: "Render a panel as PNG", Tags: []string{"Panels"}},
		func(ctx context.Context, input *exportInput) (*exportOutput, error) {
			req := dashboard.Request{
				Panel:     input.Panel,
				Symbol:    input.Symbol,
				Symbols:   input.Symbols,
				StartDate: input.StartDate,
				EndDate:   input.EndDate,
				Date:      input.Date,
			}
			if input.RangeSlider != "" {
				on := input.RangeSlider == "true"
				req.RangeSlider = &on
			}
			img, err := s.svc.ExportPNG(ctx, req, input.Width, input.Height)
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportOutput{ContentType: "image/png", CacheControl: "no-store", Body: img}, nil
		})
}

func registerHealthHandlers(api huma.API, s *Server) {
	type healthOutput struct {
		Body struct {
			Status   string `json:"status"`
			Symbols  int    `json:"symbols"`
			Sessions int    `json:"sessions"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/healthz", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Symbols = s.svc.Catalog().Len()
			if s.sessions != nil {
				out.Body.Sessions = s.sessions.Len()
			}
			return out, nil
		})
}
