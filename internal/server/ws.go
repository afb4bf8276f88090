package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/hub"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// wsFrame is the JSON wire shape of one stream event.
type wsFrame struct {
	Type     string                     `json:"type"`
	Seq      uint64                     `json:"seq,omitempty"`
	Snapshot *telemetry.MetricsSnapshot `json:"snapshot,omitempty"`
	Line     string                     `json:"line,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Time     time.Time                  `json:"time"`
}

func frameFor(ev hub.Event) wsFrame {
	frame := wsFrame{
		Type:     ev.Kind.String(),
		Seq:      ev.Seq,
		Snapshot: ev.Snapshot,
		Line:     ev.Line,
		Time:     ev.Time,
	}
	if ev.Err != nil {
		frame.Error = ev.Err.Error()
	}
	return frame
}

// clampInterval parses the interval query parameter and keeps it inside the
// configured bounds. Empty means the stream default.
func (s *Server) clampInterval(raw string) (time.Duration, error) {
	if raw == "" {
		return s.cfg.DefaultInterval, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New(errors.ErrConfig,
			"'"+raw+"' isn't a valid interval",
			"Use a Go duration like 2s or 500ms.")
	}
	if d < s.cfg.MinInterval {
		d = s.cfg.MinInterval
	}
	if d > s.cfg.MaxInterval {
		d = s.cfg.MaxInterval
	}
	return d, nil
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	interval, err := s.clampInterval(r.URL.Query().Get("interval"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	sub, err := s.cfg.Hub.SubscribeMetrics(r.Context(), r.PathValue("id"), interval)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	s.cfg.Metrics.WSConnects.WithLabelValues("metrics").Inc()
	s.streamEvents(conn, sub, string(hub.KindMetrics))
}

func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	unit := r.URL.Query().Get("unit")

	sub, err := s.cfg.Hub.SubscribeLogs(r.Context(), r.PathValue("id"), unit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	s.cfg.Metrics.WSConnects.WithLabelValues("logs").Inc()
	s.streamEvents(conn, sub, string(hub.KindLogs))
}

// streamEvents pumps a subscription onto a WebSocket until either side
// closes. One connection carries exactly one subscription; tearing down one
// tears down the other.
func (s *Server) streamEvents(conn *websocket.Conn, sub *hub.Subscription, kind string) {
	defer conn.Close()
	defer sub.Close()

	s.cfg.Metrics.Subscribers.WithLabelValues(kind).Inc()
	defer s.cfg.Metrics.Subscribers.WithLabelValues(kind).Dec()

	readerGone := s.watchReads(conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				deadline := time.Now().Add(writeWait)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
			if gap := seqGap(lastSeq, ev.Seq); gap > 0 {
				s.cfg.Metrics.DroppedTotal.Add(float64(gap))
			}
			lastSeq = ev.Seq
			if ev.Kind == hub.EventSnapshot {
				s.cfg.Metrics.SnapshotsTotal.Inc()
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frameFor(ev)); err != nil {
				return
			}
		case <-readerGone:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// watchReads runs the connection's read side: it answers the peer's close
// handshake, refreshes the read deadline on pongs, and reports when the
// peer is gone. Stream clients send no data, so anything read is discarded.
func (s *Server) watchReads(conn *websocket.Conn) <-chan struct{} {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}()
	return gone
}

// seqGap counts events that were queued but never delivered between two
// consecutive sequence numbers.
func seqGap(last, cur uint64) uint64 {
	if last == 0 {
		if cur > 1 {
			return cur - 1
		}
		return 0
	}
	if cur > last+1 {
		return cur - last - 1
	}
	return 0
}

// resizeControl is the text-frame payload a terminal client sends to
// resize the remote PTY. Binary frames carry terminal bytes.
type resizeControl struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	size := terminalSize(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.cfg.Metrics.WSConnects.WithLabelValues("terminal").Inc()

	s.cfg.Metrics.Subscribers.WithLabelValues("terminal").Inc()
	defer s.cfg.Metrics.Subscribers.WithLabelValues("terminal").Dec()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go pingUntil(conn, done)

	rw := &terminalConn{conn: conn, resize: make(chan session.TermSize, 4)}
	err = s.cfg.Hub.Bridge(r.Context(), r.PathValue("id"), rw, size, rw.resize)

	deadline := time.Now().Add(writeWait)
	switch {
	case err == nil:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shell exited")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		// The peer hung up first; nothing left to tell it.
	default:
		reason := err.Error()
		if len(reason) > 120 {
			reason = reason[:120]
		}
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}
}

func terminalSize(r *http.Request) session.TermSize {
	size := session.TermSize{Rows: 24, Cols: 80}
	if rows, err := strconv.Atoi(r.URL.Query().Get("rows")); err == nil && rows > 0 {
		size.Rows = rows
	}
	if cols, err := strconv.Atoi(r.URL.Query().Get("cols")); err == nil && cols > 0 {
		size.Cols = cols
	}
	return size
}

func pingUntil(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// terminalConn adapts a WebSocket connection to the bridge's io.ReadWriter.
// Binary frames are terminal bytes both ways; text frames are control JSON,
// currently just resize.
type terminalConn struct {
	conn     *websocket.Conn
	resize   chan session.TermSize
	leftover []byte
}

// Read hands the bridge the next chunk of terminal input. Control frames
// are consumed here and never reach the remote shell.
func (t *terminalConn) Read(p []byte) (int, error) {
	if len(t.leftover) > 0 {
		n := copy(p, t.leftover)
		t.leftover = t.leftover[n:]
		return n, nil
	}
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		t.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.BinaryMessage:
			n := copy(p, data)
			if n < len(data) {
				t.leftover = data[n:]
			}
			return n, nil
		case websocket.TextMessage:
			var ctl resizeControl
			if json.Unmarshal(data, &ctl) != nil || ctl.Type != "resize" {
				continue
			}
			if ctl.Rows <= 0 || ctl.Cols <= 0 {
				continue
			}
			select {
			case t.resize <- session.TermSize{Rows: ctl.Rows, Cols: ctl.Cols}:
			default:
				// A stale resize is harmless; the next one wins.
			}
		}
	}
}

func (t *terminalConn) Write(p []byte) (int, error) {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
