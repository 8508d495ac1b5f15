package demo

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/httputil"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

const (
	subscribeWait = 10 * time.Second
	feedWriteWait = 10 * time.Second
)

type subscribeMsg struct {
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	ResourceIDs []string `json:"resourceIds"`
}

type logsFrame struct {
	Type string          `json:"type"`
	Logs []logs.LogEntry `json:"logs"`
}

// handleSubscribe upgrades to a websocket, waits for the subscribe frame,
// acknowledges it and then pushes generated batches until the client goes
// away.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.ComponentWarn(logging.ComponentDemo, "Feed upgrade failed", zap.Error(err))
		return
	}
	s.track(conn)
	defer s.untrack(conn)

	_ = conn.SetReadDeadline(time.Now().Add(subscribeWait))
	var sub subscribeMsg
	if err := conn.ReadJSON(&sub); err != nil || sub.Type != "subscribe" {
		s.writeFrame(conn, map[string]string{"type": "error", "code": httputil.CodeBadRequest, "message": "expected subscribe frame"})
		return
	}
	for _, id := range sub.ResourceIDs {
		if !s.store.HasResource(id) {
			s.writeFrame(conn, map[string]string{"type": "error", "code": httputil.CodeNotFound, "message": "unknown resource " + id})
			return
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := s.writeFrame(conn, map[string]any{"type": "ack", "id": sub.ID, "resourceIds": sub.ResourceIDs}); err != nil {
		return
	}
	s.logger.ComponentInfo(logging.ComponentDemo, "Feed subscribed",
		zap.Strings("resources", sub.ResourceIDs),
		zap.String("remote", r.RemoteAddr))

	// Reader: detects client close; further subscribe frames are ignored.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if s.opts.HeartbeatInterval > 0 {
		hb := time.NewTicker(s.opts.HeartbeatInterval)
		defer hb.Stop()
		heartbeat = hb.C
	}

	for {
		select {
		case <-gone:
			s.logger.ComponentDebug(logging.ComponentDemo, "Feed client left", zap.String("remote", r.RemoteAddr))
			return
		case <-heartbeat:
			if err := s.writeFrame(conn, map[string]string{"type": "heartbeat"}); err != nil {
				return
			}
		case <-ticker.C:
			batch := s.gen.Batch(s.opts.Now(), s.opts.BatchSize, s.opts.Interval, sub.ResourceIDs...)
			s.store.Record(batch...)
			if err := s.writeFrame(conn, logsFrame{Type: "logs", Logs: batch}); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) track(c *websocket.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

// Connections returns the number of live feed connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
