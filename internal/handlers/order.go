package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itbhushan/payform/internal/services"
)

// OrderHandler opens payments for form submissions.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder is called by the form's submit hook with the purchaser's details.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req services.CreateOrderInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	checkout, err := h.orders.CreateOrder(c.UserContext(), req)
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    checkout,
	})
}
