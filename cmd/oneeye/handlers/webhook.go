package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/theoneeye/oneeye/common/pubsub"
	"github.com/theoneeye/oneeye/engine/node/builtin"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// WebhookHandler accepts external webhook deliveries and fans them out
// to subscribed webhook producers. Publish-and-forget: the response is
// 202 regardless of subscriber count and nothing is retained.
type WebhookHandler struct {
	pubsub pubsub.Store
	log    Logger
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(store pubsub.Store, log Logger) *WebhookHandler {
	return &WebhookHandler{pubsub: store, log: log}
}

// Trigger handles POST /api/webhooks/:id
func (h *WebhookHandler) Trigger(c echo.Context) error {
	webhookID := c.Param("id")
	req := c.Request()

	var body any
	raw, err := io.ReadAll(req.Body)
	if err == nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body = string(raw)
		}
	}

	headers := make(map[string]string, len(req.Header))
	for name := range req.Header {
		headers[name] = req.Header.Get(name)
	}
	queryParams := make(map[string]string)
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			queryParams[name] = values[0]
		}
	}

	delivery := map[string]any{
		"body":         body,
		"headers":      headers,
		"method":       req.Method,
		"query_params": queryParams,
	}

	receivers, err := h.pubsub.Publish(req.Context(), builtin.WebhookChannel(webhookID), delivery)
	if err != nil {
		h.log.Error("webhook publish failed", "webhook_id", webhookID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error": "failed to publish webhook",
		})
	}

	h.log.Debug("webhook delivered", "webhook_id", webhookID, "receivers", receivers)
	return c.JSON(http.StatusAccepted, map[string]any{
		"status": "accepted",
	})
}
