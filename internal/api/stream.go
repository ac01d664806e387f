package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// stream pushes the report as a JSON text message right away and then every
// StreamInterval until the client goes away or the handler is closed.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	log := h.deps.Logger.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Debug("report stream opened")

	// Reads are only needed to notice close frames and dead peers.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.deps.StreamInterval)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(h.deps.Telemetry.Report()); err != nil {
			log.Debug("report stream write failed", zap.Error(err))
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			log.Debug("report stream closed by peer")
			return
		case <-h.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
