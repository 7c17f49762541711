package server

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/Ferretttde/ProteinTracker/internal/live"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Single-user local app; the HTTP layer already allows any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams store change events to the UI over a websocket. The
// UI re-runs its queries when an event for a table it renders arrives,
// mirroring the in-process live queries.
func (h *httpHandler) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.dispatcher.Subscribe(c.Request.Context(), live.TableMeals, live.TableSettings)
	defer unsubscribe()

	// Reader goroutine notices the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// decodePhoto accepts both raw base64 and data-URL prefixed payloads.
func decodePhoto(encoded string) ([]byte, bool) {
	if encoded == "" {
		return nil, true
	}
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.IndexByte(encoded, ','); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}
	photo, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	return photo, true
}
