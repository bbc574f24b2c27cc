package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/alertbridge/internal/api/dto"
	"github.com/spec-kit/alertbridge/internal/service"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// MaintenanceHandler reads and toggles global maintenance.
type MaintenanceHandler struct {
	service *service.MaintenanceService
}

// NewMaintenanceHandler constructs handler.
func NewMaintenanceHandler(maintenance *service.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{service: maintenance}
}

// Get GET /maintenance.
func (h *MaintenanceHandler) Get(c *fiber.Ctx) error {
	on, err := h.service.Enabled(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.MaintenanceResponse{Enabled: on})
}

// Put PUT /maintenance.
func (h *MaintenanceHandler) Put(c *fiber.Ctx) error {
	var req dto.MaintenanceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Enabled == nil {
		return apperrors.NewValidationError("enabled required", nil)
	}
	if err := h.service.SetEnabled(c.UserContext(), *req.Enabled); err != nil {
		return err
	}
	return c.JSON(dto.MaintenanceResponse{Enabled: *req.Enabled})
}
