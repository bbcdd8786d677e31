package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/itbhushan/payform/internal/commission"
	"github.com/itbhushan/payform/internal/gateway"
	"github.com/itbhushan/payform/internal/services"
)

// ErrorHandler renders every error as {"success": false, "error": ...}.
// Anything that is not a *fiber.Error is logged and hidden behind a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// serviceError translates service and gateway errors into HTTP errors.
// Unknown errors pass through untouched and end up as a 500.
func serviceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, commission.ErrAmountBelowFees):
		return fiber.NewError(fiber.StatusBadRequest, "amount does not cover gateway fees and commission")
	case errors.Is(err, commission.ErrInvalidAmount):
		return fiber.NewError(fiber.StatusBadRequest, "amount must be positive with at most two decimals")
	case errors.Is(err, commission.ErrUnknownProvider):
		return fiber.NewError(fiber.StatusBadRequest, "unsupported payment provider")
	case errors.Is(err, services.ErrFormNotFound):
		return fiber.NewError(fiber.StatusNotFound, "form not found")
	case errors.Is(err, services.ErrFormInactive):
		return fiber.NewError(fiber.StatusConflict, "form is not accepting payments")
	case errors.Is(err, services.ErrAccountExists):
		return fiber.NewError(fiber.StatusConflict, "linked account already exists")
	case errors.Is(err, services.ErrAccountMissing):
		return fiber.NewError(fiber.StatusConflict, "linked account not set up")
	case errors.Is(err, services.ErrTransactionNotPending):
		return fiber.NewError(fiber.StatusConflict, "payment received for a closed order; the form owner will review it")
	case errors.Is(err, services.ErrAmountMismatch):
		return fiber.NewError(fiber.StatusConflict, "paid amount does not match the order")
	case errors.Is(err, gateway.ErrNotConfigured):
		return fiber.NewError(fiber.StatusServiceUnavailable, "payment gateway not configured")
	case errors.Is(err, services.ErrGatewayRejected):
		return fiber.NewError(fiber.StatusBadGateway, "payment gateway rejected the request")
	case errors.Is(err, services.ErrGatewayUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, "payment gateway unavailable")
	default:
		return err
	}
}
