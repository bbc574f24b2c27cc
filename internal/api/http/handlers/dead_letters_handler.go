package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/alertbridge/internal/api/dto"
	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/repository"
	"github.com/spec-kit/alertbridge/internal/service"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// DeadLettersHandler lists and replays dead-lettered events.
type DeadLettersHandler struct {
	service *service.DeadLetterService
}

// NewDeadLettersHandler constructs handler.
func NewDeadLettersHandler(deadLetters *service.DeadLetterService) *DeadLettersHandler {
	return &DeadLettersHandler{service: deadLetters}
}

// List GET /dead-letters.
func (h *DeadLettersHandler) List(c *fiber.Ctx) error {
	filter, err := parseDeadLetterQuery(c)
	if err != nil {
		return err
	}
	records, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.DeadLetterSummary, 0, len(records))
	for i := range records {
		items = append(items, deadLetterSummary(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Replay POST /dead-letters/:id/replay.
func (h *DeadLettersHandler) Replay(c *fiber.Ctx) error {
	id := c.Params("id")
	event, err := h.service.Replay(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.ReplayResponse{
		DeadLetterID:  id,
		EventID:       event.ID,
		CorrelationID: event.CorrelationID,
	}})
}

func parseDeadLetterQuery(c *fiber.Ctx) (repository.DeadLetterFilter, error) {
	filter := repository.DeadLetterFilter{EndpointID: c.Query("endpoint_id")}
	if v := c.Query("include_replayed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperrors.NewValidationError("include_replayed must be a boolean", nil)
		}
		filter.IncludeReplayed = b
	}
	var err error
	if filter.Limit, err = parseNonNegative(c.Query("limit")); err != nil {
		return filter, apperrors.NewValidationError("limit must be a non-negative integer", nil)
	}
	if filter.Offset, err = parseNonNegative(c.Query("offset")); err != nil {
		return filter, apperrors.NewValidationError("offset must be a non-negative integer", nil)
	}
	return filter, nil
}

func parseNonNegative(val string) (int, error) {
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func deadLetterSummary(dl *domain.DeadLetter) dto.DeadLetterSummary {
	return dto.DeadLetterSummary{
		ID:             dl.ID,
		EndpointID:     dl.Event.EndpointID,
		CorrelationID:  dl.Event.CorrelationID,
		DedupKey:       dl.DedupKey,
		LastError:      dl.LastError,
		AttemptCount:   dl.AttemptCount,
		DeadLetteredAt: dl.DeadLetteredAt,
		ReplayedAt:     dl.ReplayedAt,
		ReplayEventID:  dl.ReplayEventID,
	}
}
