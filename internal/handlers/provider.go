package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/itbhushan/payform/internal/middleware"
	"github.com/itbhushan/payform/internal/services"
)

// ProviderHandler exposes payout account onboarding on Razorpay Route and
// Cashfree Easy Split.
type ProviderHandler struct {
	accounts *services.AccountService
}

// NewProviderHandler constructs ProviderHandler.
func NewProviderHandler(accounts *services.AccountService) *ProviderHandler {
	return &ProviderHandler{accounts: accounts}
}

func currentAdmin(c *fiber.Ctx) (uuid.UUID, error) {
	adminID, ok := middleware.CurrentAdminID(c)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return adminID, nil
}

// ListProviders returns every payout account of the admin.
func (h *ProviderHandler) ListProviders(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	configs, err := h.accounts.ListConfigs(c.UserContext(), adminID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": configs})
}

// GetProvider returns the admin's payout account on one gateway.
func (h *ProviderHandler) GetProvider(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	cfg, err := h.accounts.Config(c.UserContext(), adminID, strings.ToLower(c.Params("provider")))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "provider account not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": cfg})
}

// CreateRazorpayAccount creates a Route linked account.
func (h *ProviderHandler) CreateRazorpayAccount(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	var req services.BusinessDetails
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.accounts.CreateRazorpayLinkedAccount(c.UserContext(), adminID, req)
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": cfg})
}

// AttachRazorpayBank sets the settlement bank account of the Route account.
func (h *ProviderHandler) AttachRazorpayBank(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	var req services.BankAccountInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.accounts.AttachRazorpayBankAccount(c.UserContext(), adminID, req)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": cfg})
}

// CreateCashfreeVendor registers the admin as an Easy Split vendor.
func (h *ProviderHandler) CreateCashfreeVendor(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	var req services.BusinessDetails
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.accounts.CreateCashfreeVendor(c.UserContext(), adminID, req)
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": cfg})
}

// UpdateCashfreeBank replaces the vendor's bank account.
func (h *ProviderHandler) UpdateCashfreeBank(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	var req services.BankAccountInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.accounts.UpdateCashfreeBankDetails(c.UserContext(), adminID, req)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": cfg})
}
