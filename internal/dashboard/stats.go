// Package dashboard aggregates transaction rows for the admin dashboard.
package dashboard

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/itbhushan/payform/internal/models"
)

// Summary is the headline view of a list of transactions.
type Summary struct {
	TotalTransactions int             `json:"total_transactions"`
	PaidCount         int             `json:"paid_count"`
	PendingCount      int             `json:"pending_count"`
	FailedCount       int             `json:"failed_count"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalGatewayFees  decimal.Decimal `json:"total_gateway_fees"`
	TotalCommission   decimal.Decimal `json:"total_commission"`
	NetEarnings       decimal.Decimal `json:"net_earnings"`
	ConversionRate    string          `json:"conversion_rate"`
}

// FormSummary is a Summary restricted to one form.
type FormSummary struct {
	FormID    uuid.UUID `json:"form_id"`
	FormTitle string    `json:"form_title"`
	Summary
}

// Summarize counts rows by status and sums the money fields of paid rows.
func Summarize(rows []models.Transaction) Summary {
	s := Summary{
		TotalRevenue:     decimal.Zero,
		TotalGatewayFees: decimal.Zero,
		TotalCommission:  decimal.Zero,
		NetEarnings:      decimal.Zero,
	}

	for _, row := range rows {
		s.TotalTransactions++
		switch row.Status {
		case models.TransactionStatusPaid:
			s.PaidCount++
			s.TotalRevenue = s.TotalRevenue.Add(row.PaymentAmount)
			s.TotalGatewayFees = s.TotalGatewayFees.Add(row.GatewayFee)
			s.TotalCommission = s.TotalCommission.Add(row.PlatformCommission)
			s.NetEarnings = s.NetEarnings.Add(row.NetAmountToAdmin)
		case models.TransactionStatusPending:
			s.PendingCount++
		case models.TransactionStatusFailed:
			s.FailedCount++
		}
	}

	s.ConversionRate = ConversionRate(s.PaidCount, s.TotalTransactions)
	return s
}

// ConversionRate formats paid/total as a percentage with one decimal.
func ConversionRate(paid, total int) string {
	if total <= 0 {
		return "0.0"
	}
	return decimal.NewFromInt(int64(paid)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		StringFixed(1)
}

// ByForm groups rows per form, busiest form first.
func ByForm(rows []models.Transaction) []FormSummary {
	grouped := make(map[uuid.UUID][]models.Transaction)
	titles := make(map[uuid.UUID]string)
	for _, row := range rows {
		grouped[row.FormID] = append(grouped[row.FormID], row)
		if row.Form != nil && row.Form.Title != "" {
			titles[row.FormID] = row.Form.Title
		}
	}

	out := make([]FormSummary, 0, len(grouped))
	for formID, formRows := range grouped {
		out = append(out, FormSummary{
			FormID:    formID,
			FormTitle: titles[formID],
			Summary:   Summarize(formRows),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTransactions != out[j].TotalTransactions {
			return out[i].TotalTransactions > out[j].TotalTransactions
		}
		return out[i].FormID.String() < out[j].FormID.String()
	})
	return out
}
