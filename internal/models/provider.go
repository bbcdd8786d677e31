package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Linked account statuses.
const (
	AccountStatusPending   = "pending"
	AccountStatusCreated   = "created"
	AccountStatusActivated = "activated"
	AccountStatusRejected  = "rejected"
)

// ProviderConfig is the payout destination of an admin on one gateway.
type ProviderConfig struct {
	BaseModel
	AdminID           uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_provider_admin" json:"admin_id"`
	Provider          string    `gorm:"uniqueIndex:idx_provider_admin" json:"provider"`
	AccountID         string    `json:"account_id"`
	ProductID         string    `json:"product_id"`
	AccountStatus     string    `gorm:"default:pending" json:"account_status"`
	BusinessName      string    `json:"business_name"`
	ContactName       string    `json:"contact_name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	PAN               string    `json:"pan"`
	GSTIN             string    `json:"gstin"`
	AccountHolderName string    `json:"account_holder_name"`
	BankAccountNumber string    `json:"-"`
	BankAccountMasked string    `json:"bank_account_masked"`
	IFSC              string    `json:"ifsc"`
}

// SubAccountApplication records every setup call made against a gateway.
type SubAccountApplication struct {
	BaseModel
	AdminID   uuid.UUID      `gorm:"type:uuid;index" json:"admin_id"`
	Provider  string         `gorm:"index" json:"provider"`
	Action    string         `json:"action"`
	AccountID string         `json:"account_id"`
	Status    string         `json:"status"`
	Request   datatypes.JSON `gorm:"type:jsonb" json:"-"`
	Response  datatypes.JSON `gorm:"type:jsonb" json:"response,omitempty"`
	Error     string         `json:"error,omitempty"`
}
