package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const logStreamWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// GET /ws/logs
// Sends the retained log tail, then every new entry as it is appended.
func (s *server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade error", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Subscribe before reading the tail so nothing falls in between.
	entries, unsubscribe := s.events.Subscribe(128)
	defer unsubscribe()

	for _, e := range s.events.Tail() {
		_ = conn.SetWriteDeadline(time.Now().Add(logStreamWriteWait))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	// The client never sends anything; reading only notices when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(logStreamWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
