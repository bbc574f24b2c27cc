package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/alertbridge/internal/api/dto"
	"github.com/spec-kit/alertbridge/internal/service"
)

// EventsHandler exposes processing history by correlation id.
type EventsHandler struct {
	service *service.EventLogService
}

// NewEventsHandler constructs handler.
func NewEventsHandler(eventLog *service.EventLogService) *EventsHandler {
	return &EventsHandler{service: eventLog}
}

// ByCorrelation GET /events/:correlationID.
func (h *EventsHandler) ByCorrelation(c *fiber.Ctx) error {
	entries, err := h.service.ByCorrelation(c.UserContext(), c.Params("correlationID"))
	if err != nil {
		return err
	}
	items := make([]dto.EventLogEntry, 0, len(entries))
	for _, e := range entries {
		rules := e.MatchedRules
		if rules == nil {
			rules = []string{}
		}
		items = append(items, dto.EventLogEntry{
			EventID:          e.EventID,
			EndpointID:       e.EndpointID,
			State:            e.State,
			Action:           e.Action,
			TicketID:         e.TicketID,
			DedupKey:         e.DedupKey,
			MatchedRules:     rules,
			Error:            e.ErrorMessage,
			Attempts:         e.Attempts,
			ProcessingTimeMS: e.ProcessingTime.Milliseconds(),
			CreatedAt:        e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
