package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/itbhushan/payform/internal/dashboard"
	"github.com/itbhushan/payform/internal/models"
	"github.com/itbhushan/payform/internal/utils"
)

// DashboardHandler serves the admin's read-only reporting views.
type DashboardHandler struct {
	db *gorm.DB
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// transactions scopes a query to the admin and the optional form_id and
// status filters of the request.
func (h *DashboardHandler) transactions(c *fiber.Ctx, adminID uuid.UUID) (*gorm.DB, error) {
	query := h.db.Model(&models.Transaction{}).Where("admin_id = ?", adminID)
	if raw := strings.TrimSpace(c.Query("form_id")); raw != "" {
		formID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid form_id")
		}
		query = query.Where("form_id = ?", formID)
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		switch status {
		case models.TransactionStatusPending, models.TransactionStatusPaid, models.TransactionStatusFailed:
			query = query.Where("status = ?", status)
		default:
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
	}
	return query, nil
}

// Summary returns totals over every transaction of the admin.
func (h *DashboardHandler) Summary(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	query, err := h.transactions(c, adminID)
	if err != nil {
		return err
	}

	var rows []models.Transaction
	if err := query.Find(&rows).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": dashboard.Summarize(rows)})
}

// ListTransactions returns the admin's transactions with their form, newest first.
func (h *DashboardHandler) ListTransactions(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}
	query, err := h.transactions(c, adminID)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var rows []models.Transaction
	if err := query.Preload("Form").
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&rows).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       rows,
		"pagination": pg.Meta(total),
	})
}

// ListCommissions returns the platform commission records of the admin.
func (h *DashboardHandler) ListCommissions(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.PlatformCommission{}).Where("admin_id = ?", adminID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var rows []models.PlatformCommission
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&rows).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       rows,
		"pagination": pg.Meta(total),
	})
}

// FormStats returns one summary per form that has transactions.
func (h *DashboardHandler) FormStats(c *fiber.Ctx) error {
	adminID, err := currentAdmin(c)
	if err != nil {
		return err
	}

	var rows []models.Transaction
	if err := h.db.Preload("Form").Where("admin_id = ?", adminID).Find(&rows).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": dashboard.ByForm(rows)})
}
