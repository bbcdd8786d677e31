package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FormAdmin owns connected forms and receives payouts.
type FormAdmin struct {
	BaseModel
	Email        string `gorm:"uniqueIndex" json:"email"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	PasswordHash string `json:"-"`
}

// FormConfig links an external Google Form to a price and a gateway.
type FormConfig struct {
	BaseModel
	AdminID         uuid.UUID       `gorm:"type:uuid;index" json:"admin_id"`
	ExternalFormID  string          `gorm:"uniqueIndex" json:"external_form_id"`
	Title           string          `json:"title"`
	ProductName     string          `json:"product_name"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Currency        string          `json:"currency"`
	PaymentProvider string          `json:"payment_provider"`
	IsActive        bool            `json:"is_active"`
}
