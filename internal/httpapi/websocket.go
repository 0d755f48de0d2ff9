package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"stockdash/internal/session"
	"stockdash/internal/util"
)

const (
	wsPingInterval = 45 * time.Second
	wsReadTimeout  = 90 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

// handleWS runs one browser session over a websocket. The session lives as
// long as the connection; its first message is a full snapshot.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "sessions disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess, err := s.sessions.Create()
	if err != nil {
		s.log.Error("creating session", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		return
	}
	defer s.sessions.Remove(sess.ID())
	log := s.log.With("session", sess.ID())

	subID, updates := sess.Subscribe(256)
	defer sess.Unsubscribe(subID)

	// The snapshot goes out before the writer starts so that no later
	// update can be overtaken by it.
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		log.Warn("session snapshot failed", "error", err)
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(session.Message{Type: session.MsgSnapshot, Snapshot: &snap}); err != nil {
		return
	}

	replies := make(chan session.Message, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	// writer
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		write := func(msg session.Message) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("websocket write failed", "error", err)
				return false
			}
			return true
		}
		for {
			select {
			case msg, ok := <-updates:
				if !ok || !write(msg) {
					return
				}
			case msg := <-replies:
				if !write(msg) {
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	reply := func(msg session.Message) {
		select {
		case replies <- msg:
		default:
		}
	}

	limiter := util.NewBurstLimiter(s.opts.EventsPerMinute, s.opts.EventBurst)
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		var ev session.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			reply(session.Message{Type: session.MsgWarning, Text: "malformed event"})
			continue
		}
		if !limiter.Allow() {
			reply(session.Message{Type: session.MsgWarning, Control: ev.Control, Text: "too many events, slow down"})
			continue
		}
		if err := sess.Dispatch(r.Context(), ev); err != nil {
			reply(session.Message{Type: session.MsgWarning, Control: ev.Control, Text: err.Error()})
		}
	}

	close(done)
	<-writerDone
}
