package session

import (
	"fmt"

	"stockdash/internal/controls"
)

// ModalState is the wire view of the "About the Dashboard" modal.
type ModalState struct {
	Open        bool `json:"is_open"`
	OpenClicks  int  `json:"open_n_clicks"`
	CloseClicks int  `json:"close_n_clicks"`
}

// Modal is a two-state machine: closed (initial) and open. The open button
// opens it and is a no-op while open; the close button closes it and is a
// no-op while closed. Click counters always advance.
type Modal struct {
	state ModalState
}

// State returns the current modal state.
func (m *Modal) State() ModalState { return m.state }

// Click applies a button click and reports whether the open state changed.
func (m *Modal) Click(id controls.ID) (bool, error) {
	switch id {
	case controls.Open:
		m.state.OpenClicks++
		if m.state.Open {
			return false, nil
		}
		m.state.Open = true
		return true, nil
	case controls.Close:
		m.state.CloseClicks++
		if !m.state.Open {
			return false, nil
		}
		m.state.Open = false
		return true, nil
	}
	return false, fmt.Errorf("control %q is not a modal button", id)
}
