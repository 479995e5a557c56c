package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// streamWS upgrades GET /stream to a WebSocket and hands it to the
// ConnectionManager, grounded on the teacher's handler_ws.go: Accept, then
// block in HandleConnection until the client disconnects.
func (h *ingestHandlers) streamWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "websocket upgrade failed"})
		return
	}
	h.deps.Stream.HandleConnection(c.Request.Context(), conn)
}
