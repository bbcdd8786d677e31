package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction statuses.
const (
	TransactionStatusPending = "pending"
	TransactionStatusPaid    = "paid"
	TransactionStatusFailed  = "failed"
)

// Transaction is one purchase made through a connected form.
// PaymentAmount is always the gross amount charged to the customer.
type Transaction struct {
	BaseModel
	FormID             uuid.UUID       `gorm:"type:uuid;index" json:"form_id"`
	Form               *FormConfig     `gorm:"foreignKey:FormID" json:"form,omitempty"`
	AdminID            uuid.UUID       `gorm:"type:uuid;index" json:"admin_id"`
	CustomerEmail      string          `gorm:"index" json:"customer_email"`
	CustomerName       string          `json:"customer_name"`
	CustomerPhone      string          `json:"customer_phone"`
	ProductName        string          `json:"product_name"`
	PaymentAmount      decimal.Decimal `gorm:"type:numeric(12,2)" json:"payment_amount"`
	Currency           string          `json:"currency"`
	Status             string          `gorm:"index;default:pending" json:"status"`
	PaymentProvider    string          `gorm:"index" json:"payment_provider"`
	OrderReference     string          `gorm:"uniqueIndex" json:"order_reference"`
	GatewayOrderID     string          `gorm:"index" json:"gateway_order_id"`
	GatewayPaymentID   string          `json:"gateway_payment_id"`
	CheckoutURL        string          `json:"checkout_url,omitempty"`
	GatewayFee         decimal.Decimal `gorm:"type:numeric(12,2)" json:"gateway_fee"`
	PlatformCommission decimal.Decimal `gorm:"type:numeric(12,2)" json:"platform_commission"`
	NetAmountToAdmin   decimal.Decimal `gorm:"type:numeric(12,2)" json:"net_amount_to_admin"`
	PaidAt             *time.Time      `json:"paid_at"`
	GatewayPayload     datatypes.JSON  `gorm:"type:jsonb" json:"-"`
}

// PlatformCommission is the append-only reporting copy of a paid transaction's split.
type PlatformCommission struct {
	BaseModel
	TransactionID    uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"transaction_id"`
	AdminID          uuid.UUID       `gorm:"type:uuid;index" json:"admin_id"`
	FormID           uuid.UUID       `gorm:"type:uuid;index" json:"form_id"`
	PaymentProvider  string          `json:"payment_provider"`
	GrossAmount      decimal.Decimal `gorm:"type:numeric(12,2)" json:"gross_amount"`
	GatewayFee       decimal.Decimal `gorm:"type:numeric(12,2)" json:"gateway_fee"`
	CommissionAmount decimal.Decimal `gorm:"type:numeric(12,2)" json:"commission_amount"`
	NetAmount        decimal.Decimal `gorm:"type:numeric(12,2)" json:"net_amount"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(5,2)" json:"commission_rate"`
	Currency         string          `json:"currency"`
}
