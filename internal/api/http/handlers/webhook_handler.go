package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/alertbridge/internal/api/dto"
	"github.com/spec-kit/alertbridge/internal/service"
)

// RequestIDHeader carries the caller's correlation id, echoed on the response.
const RequestIDHeader = "X-Request-ID"

// WebhookHandler accepts alert payloads for a configured endpoint.
type WebhookHandler struct {
	ingest *service.IngestService
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(ingest *service.IngestService) *WebhookHandler {
	return &WebhookHandler{ingest: ingest}
}

// Receive POST /w/:endpointID. The body is queued as-is; malformed JSON is
// accepted here and rejected by the pipeline.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	event, err := h.ingest.Submit(c.UserContext(), service.SubmitInput{
		EndpointID:    c.Params("endpointID"),
		CorrelationID: c.Get(RequestIDHeader),
		Body:          body,
		SourceIP:      c.IP(),
	})
	if err != nil {
		return err
	}
	c.Set(RequestIDHeader, event.CorrelationID)
	return c.Status(fiber.StatusAccepted).JSON(dto.WebhookAccepted{
		Status:        "queued",
		EventID:       event.ID,
		CorrelationID: event.CorrelationID,
	})
}
