package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/itbhushan/payform/internal/commission"
	"github.com/itbhushan/payform/internal/middleware"
	"github.com/itbhushan/payform/internal/models"
	"github.com/itbhushan/payform/internal/utils"
)

// FormHandler manages the connected forms of an admin.
type FormHandler struct {
	db       *gorm.DB
	schedule *commission.Schedule
}

// NewFormHandler constructs FormHandler.
func NewFormHandler(db *gorm.DB, schedule *commission.Schedule) *FormHandler {
	return &FormHandler{db: db, schedule: schedule}
}

type formRequest struct {
	ExternalFormID  string          `json:"external_form_id" validate:"required,max=200"`
	Title           string          `json:"title" validate:"required,max=200"`
	ProductName     string          `json:"product_name" validate:"omitempty,max=200"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	PaymentProvider string          `json:"payment_provider" validate:"required,oneof=cashfree cashfree_link razorpay stripe"`
	IsActive        *bool           `json:"is_active"`
}

func (h *FormHandler) parseForm(c *fiber.Ctx) (*formRequest, error) {
	var req formRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.ExternalFormID = strings.TrimSpace(req.ExternalFormID)
	req.PaymentProvider = strings.ToLower(strings.TrimSpace(req.PaymentProvider))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "INR"
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	provider := strings.TrimSuffix(req.PaymentProvider, "_link")
	if _, err := h.schedule.Split(provider, req.Amount); err != nil {
		return nil, serviceError(err)
	}
	return &req, nil
}

// ListForms returns the admin's forms, newest first.
func (h *FormHandler) ListForms(c *fiber.Ctx) error {
	adminID, ok := middleware.CurrentAdminID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.FormConfig{}).Where("admin_id = ?", adminID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var forms []models.FormConfig
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&forms).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       forms,
		"pagination": pg.Meta(total),
	})
}

// GetForm returns one form of the admin.
func (h *FormHandler) GetForm(c *fiber.Ctx) error {
	form, err := h.ownedForm(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": form})
}

// CreateForm connects a new form.
func (h *FormHandler) CreateForm(c *fiber.Ctx) error {
	adminID, ok := middleware.CurrentAdminID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	req, err := h.parseForm(c)
	if err != nil {
		return err
	}

	var count int64
	if err := h.db.Model(&models.FormConfig{}).Where("external_form_id = ?", req.ExternalFormID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fiber.NewError(fiber.StatusConflict, "form already connected")
	}

	form := models.FormConfig{
		AdminID:         adminID,
		ExternalFormID:  req.ExternalFormID,
		Title:           req.Title,
		ProductName:     req.ProductName,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentProvider: req.PaymentProvider,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	if err := h.db.Create(&form).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": form})
}

// UpdateForm replaces the editable fields of a form.
func (h *FormHandler) UpdateForm(c *fiber.Ctx) error {
	form, err := h.ownedForm(c)
	if err != nil {
		return err
	}

	req, err := h.parseForm(c)
	if err != nil {
		return err
	}
	if req.ExternalFormID != form.ExternalFormID {
		var count int64
		if err := h.db.Model(&models.FormConfig{}).Where("external_form_id = ? AND id <> ?", req.ExternalFormID, form.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "form already connected")
		}
	}

	form.ExternalFormID = req.ExternalFormID
	form.Title = req.Title
	form.ProductName = req.ProductName
	form.Amount = req.Amount
	form.Currency = req.Currency
	form.PaymentProvider = req.PaymentProvider
	if req.IsActive != nil {
		form.IsActive = *req.IsActive
	}
	if err := h.db.Save(form).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": form})
}

// DeleteForm deactivates a form. Transactions keep pointing at it.
func (h *FormHandler) DeleteForm(c *fiber.Ctx) error {
	form, err := h.ownedForm(c)
	if err != nil {
		return err
	}
	if err := h.db.Model(form).Update("is_active", false).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *FormHandler) ownedForm(c *fiber.Ctx) (*models.FormConfig, error) {
	adminID, ok := middleware.CurrentAdminID(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var form models.FormConfig
	if err := h.db.First(&form, "id = ? AND admin_id = ?", id, adminID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "form not found")
		}
		return nil, err
	}
	return &form, nil
}
