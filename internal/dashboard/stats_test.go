package dashboard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itbhushan/payform/internal/models"
)

func row(status, amount string) models.Transaction {
	return models.Transaction{
		Status:        status,
		PaymentAmount: decimal.RequireFromString(amount),
	}
}

func TestSummarizeMixedStatuses(t *testing.T) {
	paid := row(models.TransactionStatusPaid, "1000")
	paid.GatewayFee = decimal.RequireFromString("28")
	paid.PlatformCommission = decimal.RequireFromString("30")
	paid.NetAmountToAdmin = decimal.RequireFromString("942")

	rows := []models.Transaction{
		paid,
		row(models.TransactionStatusPaid, "250.50"),
		row(models.TransactionStatusPending, "999"),
		row(models.TransactionStatusFailed, "500"),
	}

	s := Summarize(rows)

	assert.Equal(t, 4, s.TotalTransactions)
	assert.Equal(t, 2, s.PaidCount)
	assert.Equal(t, 1, s.PendingCount)
	assert.Equal(t, 1, s.FailedCount)
	assert.Equal(t, "1250.50", s.TotalRevenue.StringFixed(2))
	assert.Equal(t, "30.00", s.TotalCommission.StringFixed(2))
	assert.Equal(t, "942.00", s.NetEarnings.StringFixed(2))
	assert.Equal(t, "50.0", s.ConversionRate)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)

	assert.Equal(t, 0, s.TotalTransactions)
	assert.Equal(t, "0.0", s.ConversionRate)
	assert.True(t, s.TotalRevenue.IsZero())
}

func TestConversionRate(t *testing.T) {
	assert.Equal(t, "0.0", ConversionRate(0, 0))
	assert.Equal(t, "33.3", ConversionRate(1, 3))
	assert.Equal(t, "66.7", ConversionRate(2, 3))
	assert.Equal(t, "100.0", ConversionRate(5, 5))
}

func TestByFormGroupsAndOrders(t *testing.T) {
	formA := uuid.New()
	formB := uuid.New()

	a1 := row(models.TransactionStatusPaid, "100")
	a1.FormID = formA
	a1.Form = &models.FormConfig{Title: "Workshop"}
	a2 := row(models.TransactionStatusPending, "100")
	a2.FormID = formA
	b1 := row(models.TransactionStatusPaid, "40")
	b1.FormID = formB

	out := ByForm([]models.Transaction{b1, a1, a2})
	require.Len(t, out, 2)

	assert.Equal(t, formA, out[0].FormID)
	assert.Equal(t, "Workshop", out[0].FormTitle)
	assert.Equal(t, 2, out[0].TotalTransactions)
	assert.Equal(t, "50.0", out[0].ConversionRate)

	assert.Equal(t, formB, out[1].FormID)
	assert.Equal(t, "40.00", out[1].TotalRevenue.StringFixed(2))
}
