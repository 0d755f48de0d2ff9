package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"stockdash/internal/controls"
	"stockdash/internal/domain"
	"stockdash/internal/panel"
)

// ErrInvalidEvent is returned for an event that cannot be decoded or names
// an unknown control.
var ErrInvalidEvent = errors.New("invalid event")

// Event is a control change sent by the browser. Value holds the control's
// new value in the shape its kind expects:
//
//	dropdown        "TCS"
//	multi_dropdown  ["TCS", "INFY"]
//	checklist       ["slider"]
//	date_range      {"start_date": "2024-03-01", "end_date": "2024-03-28"}
//	date_single     "2024-03-28"
//	button          ignored
type Event struct {
	Control string          `json:"control" validate:"required,max=64"`
	Value   json.RawMessage `json:"value,omitempty"`
}

type dateRangeValue struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

var validate = validator.New()

// decodeEvent validates ev and converts it into a registry entry plus a
// panel change. Button events return a zero Change.
func decodeEvent(ev Event) (controls.Control, panel.Change, error) {
	if err := validate.Struct(ev); err != nil {
		return controls.Control{}, panel.Change{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	ctrl, ok := controls.Lookup(controls.ID(ev.Control))
	if !ok || ctrl.Role != controls.Input {
		return controls.Control{}, panel.Change{}, fmt.Errorf("%w: unknown input control %q", ErrInvalidEvent, ev.Control)
	}

	c := panel.Change{Control: ctrl.ID}
	var err error
	switch ctrl.Kind {
	case controls.KindButton:
		return ctrl, c, nil
	case controls.KindDropdown:
		err = decodeVar(ev.Value, &c.Symbol, "required,max=32")
	case controls.KindMultiDropdown:
		err = decodeVar(ev.Value, &c.Symbols, "dive,required,max=32")
	case controls.KindChecklist:
		err = decodeVar(ev.Value, &c.Flags, "dive,required")
	case controls.KindDateSingle:
		var s string
		if err = decodeVar(ev.Value, &s, "required,datetime=2006-01-02"); err == nil {
			c.Date, err = domain.ParseDay(s)
		}
	case controls.KindDateRange:
		var v dateRangeValue
		if err = json.Unmarshal(ev.Value, &v); err == nil {
			err = validate.Struct(v)
		}
		if err == nil && v.StartDate == "" && v.EndDate == "" {
			err = errors.New("start_date or end_date is required")
		}
		if err == nil && v.StartDate != "" {
			c.Start, err = domain.ParseDay(v.StartDate)
		}
		if err == nil && v.EndDate != "" {
			c.End, err = domain.ParseDay(v.EndDate)
		}
	}
	if err != nil {
		return controls.Control{}, panel.Change{}, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, ev.Control, err)
	}
	return ctrl, c, nil
}

// decodeVar unmarshals raw into dst and validates the result with tag.
func decodeVar[T any](raw json.RawMessage, dst *T, tag string) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	return validate.Var(*dst, tag)
}
