package models

import (
	"time"

	"github.com/google/uuid"
)

// Reconciliation retry statuses.
const (
	RetryStatusQueued    = "queued"
	RetryStatusResolved  = "resolved"
	RetryStatusExhausted = "exhausted"
)

// ReconciliationRetry is a queued re-check of a gateway order that could not
// be applied when its callback arrived.
type ReconciliationRetry struct {
	BaseModel
	Provider       string     `gorm:"uniqueIndex:idx_retry_order" json:"provider"`
	GatewayOrderID string     `gorm:"uniqueIndex:idx_retry_order" json:"gateway_order_id"`
	FormID         *uuid.UUID `gorm:"type:uuid" json:"form_id"`
	CustomerEmail  string     `json:"customer_email"`
	Status         string     `gorm:"index" json:"status"`
	Attempts       int        `json:"attempts"`
	NextAttemptAt  time.Time  `gorm:"index" json:"next_attempt_at"`
	LastError      string     `json:"last_error"`
	ResolvedAt     *time.Time `json:"resolved_at"`
}
