package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/julianstephens/planmate/internal/logger"
)

const eventBuffer = 64

// handleEvents streams broadcast events as JSON text frames until the client
// goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "events are not available")
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"127.0.0.1:*", "localhost:*"},
	})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	events, cancel := s.Hub.Subscribe(eventBuffer)
	defer cancel()

	// Reads are only needed to notice the client closing.
	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				ws.Close(websocket.StatusNormalClosure, "stream ended")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 15*time.Second)
			err = ws.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}
