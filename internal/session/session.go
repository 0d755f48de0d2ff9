// Package session runs one browser session of the dashboard: four
// independent panels plus the About modal, driven by a single event loop.
// Control changes and evaluation results are serialized through the loop,
// and every state change is published to subscribers as a Message.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/controls"
	"stockdash/internal/panel"
)

// ErrClosed is returned when the session loop has exited.
var ErrClosed = errors.New("session closed")

// Message types. Snapshot messages come from the transport, never from
// the loop.
const (
	MsgSnapshot = "snapshot"
	MsgPanel    = "panel"
	MsgModal    = "modal"
	MsgWarning  = "warning"
	MsgError    = "error"
)

// Message is one update pushed to subscribers.
type Message struct {
	Type     string       `json:"type"`
	Panel    *panel.State `json:"panel,omitempty"`
	Modal    *ModalState  `json:"modal,omitempty"`
	Snapshot *Snapshot    `json:"snapshot,omitempty"`
	Control  string       `json:"control,omitempty"`
	Text     string       `json:"text,omitempty"`
}

// Snapshot is the full state of a session.
type Snapshot struct {
	ID     string        `json:"id"`
	Panels []panel.State `json:"panels"`
	Modal  ModalState    `json:"modal"`
}

// Options configures a session.
type Options struct {
	Panel         panel.Options
	LoadingPanels []chart.Kind
	EvalTimeout   time.Duration
	Logger        *slog.Logger
}

type dispatchReq struct {
	ev    Event
	reply chan error
}

// Session owns the panels of one client. All panel state is touched only by
// the goroutine running Run.
type Session struct {
	id      string
	log     *slog.Logger
	eval    panel.EvalFunc
	timeout time.Duration

	panels map[chart.Kind]*panel.Panel
	modal  Modal

	events  chan dispatchReq
	results chan panel.Result
	queries chan func()
	done    chan struct{}

	subsMu    sync.Mutex
	subs      map[int]chan Message
	nextSubID int
}

// New builds a session with default selector values. Call Run to start it.
func New(id string, cat *catalog.Catalog, eval panel.EvalFunc, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		id:      id,
		log:     log.With("session", id),
		eval:    eval,
		timeout: opts.EvalTimeout,
		panels:  make(map[chart.Kind]*panel.Panel, len(chart.Kinds)),
		events:  make(chan dispatchReq),
		results: make(chan panel.Result, len(chart.Kinds)),
		queries: make(chan func()),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Message),
	}
	for _, kind := range chart.Kinds {
		po := opts.Panel
		po.ShowLoading = slices.Contains(opts.LoadingPanels, kind)
		p, err := panel.New(kind, cat, po)
		if err != nil {
			return nil, err
		}
		s.panels[kind] = p
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run evaluates every panel once with its defaults, then serves events
// until ctx is cancelled. It publishes panel updates only; a subscriber
// reads the starting state with Snapshot. Subscribers are closed on return.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.closeSubs()
	defer func() {
		for _, p := range s.panels {
			p.Stop()
		}
	}()

	for _, kind := range chart.Kinds {
		s.panels[kind].Start(ctx, s.eval, s.timeout, s.results)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.events:
			req.reply <- s.handle(ctx, req.ev)
		case r := <-s.results:
			s.complete(r)
		case q := <-s.queries:
			q()
		}
	}
}

// Dispatch applies one control event. Validation errors are returned to the
// caller and leave the session unchanged.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	req := dispatchReq{ev: ev, reply: make(chan error, 1)}
	select {
	case s.events <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state of every panel and the modal.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	q := func() { reply <- *s.snapshot() }
	select {
	case s.queries <- q:
	case <-s.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Session) handle(ctx context.Context, ev Event) error {
	ctrl, change, err := decodeEvent(ev)
	if err != nil {
		return err
	}

	if ctrl.Kind == controls.KindButton {
		changed, err := s.modal.Click(ctrl.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if changed {
			st := s.modal.State()
			s.publish(Message{Type: MsgModal, Modal: &st})
		}
		return nil
	}

	p, ok := s.panels[ctrl.Panel]
	if !ok {
		return fmt.Errorf("%w: %s has no panel", ErrInvalidEvent, ctrl.ID)
	}
	effect, warning, err := p.Apply(change)
	if err != nil {
		s.log.Debug("control rejected", "control", ctrl.ID, "error", err)
		return err
	}
	if warning != "" {
		s.publish(Message{Type: MsgWarning, Control: string(ctrl.ID), Text: warning})
	}

	switch effect {
	case panel.EffectRedecorate:
		p.Redecorate()
		s.publishPanel(p)
	case panel.EffectEvaluate:
		seq := p.Start(ctx, s.eval, s.timeout, s.results)
		s.log.Debug("evaluation started", "panel", p.Kind(), "seq", seq)
		if p.Loading() {
			s.publishPanel(p)
		}
	}
	return nil
}

func (s *Session) complete(r panel.Result) {
	p, ok := s.panels[r.Kind]
	if !ok {
		return
	}
	if !p.Complete(r) {
		s.log.Debug("stale result discarded", "panel", r.Kind, "seq", r.Seq, "current", p.Seq())
		return
	}
	if r.Err != nil {
		s.log.Warn("panel evaluation failed", "panel", r.Kind, "error", r.Err)
		s.publish(Message{Type: MsgError, Control: string(controls.GraphFor(r.Kind)), Text: r.Err.Error()})
	}
	s.publishPanel(p)
}

func (s *Session) snapshot() *Snapshot {
	snap := &Snapshot{ID: s.id, Modal: s.modal.State()}
	for _, kind := range chart.Kinds {
		snap.Panels = append(snap.Panels, s.panels[kind].State())
	}
	return snap
}

func (s *Session) publishPanel(p *panel.Panel) {
	st := p.State()
	s.publish(Message{Type: MsgPanel, Panel: &st})
}

// ---------------------------------------------------------------------------
// Pub/sub
// ---------------------------------------------------------------------------

// Subscribe returns a channel that receives every message published after
// the call. Slow subscribers drop messages rather than block the loop.
func (s *Session) Subscribe(bufSize int) (id int, ch <-chan Message) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id = s.nextSubID
	s.nextSubID++
	c := make(chan Message, bufSize)
	if s.subs == nil {
		close(c)
		return id, c
	}
	s.subs[id] = c
	return id, c
}

// Unsubscribe removes and closes a subscription.
func (s *Session) Unsubscribe(id int) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Session) publish(msg Message) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- msg:
		default:
			s.log.Debug("subscriber lagging, message dropped", "sub", id, "type", msg.Type)
		}
	}
}

func (s *Session) closeSubs() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subs = nil
}
