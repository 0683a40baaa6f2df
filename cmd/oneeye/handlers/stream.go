package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/theoneeye/oneeye/cmd/oneeye/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler upgrades connections onto the state-snapshot hub
type StreamHandler struct {
	hub *stream.Hub
	log Logger
}

// NewStreamHandler creates a stream handler
func NewStreamHandler(hub *stream.Hub, log Logger) *StreamHandler {
	return &StreamHandler{hub: hub, log: log}
}

// Stream handles GET /api/v1/workflows/:id/stream
func (h *StreamHandler) Stream(c echo.Context) error {
	workflowID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "workflow_id", workflowID, "error", err)
		return err
	}

	h.hub.Register(workflowID, conn)
	h.log.Debug("stream client connected", "workflow_id", workflowID, "remote", c.Request().RemoteAddr)
	return nil
}
