package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ankit/closepilot/internal/logger"
)

// EventSink consumes raw e-signature webhook payloads.
type EventSink interface {
	HandleEvent(ctx context.Context, body []byte)
}

// WebhookHandler receives envelope status events from the signature
// provider.
type WebhookHandler struct {
	sink EventSink
}

func NewWebhookHandler(sink EventSink) *WebhookHandler {
	return &WebhookHandler{sink: sink}
}

// Receive handles POST /webhook. It always responds 200: a non-200 makes
// the provider redeliver, and redelivery never fixes a payload we could
// not act on.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.CtxWarn(c.Request.Context(), "failed to read webhook body: %v", err)
		c.Status(http.StatusOK)
		return
	}

	h.sink.HandleEvent(c.Request.Context(), body)
	c.Status(http.StatusOK)
}
