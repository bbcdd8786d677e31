// Package commission splits a gross payment into the gateway fee, the
// platform commission and the net payout of the form admin.
package commission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money amounts carry two decimal places and round half-to-even.
const Places = 2

var (
	// ErrUnknownProvider is returned when no fee model is configured for a provider.
	ErrUnknownProvider = errors.New("commission: unknown provider")
	// ErrInvalidAmount is returned for non-positive amounts or amounts finer than a paisa.
	ErrInvalidAmount = errors.New("commission: invalid gross amount")
	// ErrAmountBelowFees is returned when fees would consume the whole payment.
	ErrAmountBelowFees = errors.New("commission: amount does not cover fees")
)

var hundred = decimal.NewFromInt(100)

// FeeModel describes how one gateway and the platform charge a payment.
type FeeModel struct {
	GatewayPercent  decimal.Decimal
	FixedFee        decimal.Decimal
	PlatformPercent decimal.Decimal
}

// Split is the three-way division of a gross amount.
type Split struct {
	Provider           string          `json:"provider"`
	GrossAmount        decimal.Decimal `json:"gross_amount"`
	GatewayFee         decimal.Decimal `json:"gateway_fee"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	PlatformPercent    decimal.Decimal `json:"platform_percent"`
}

// Total returns the sum of the three parts.
func (s Split) Total() decimal.Decimal {
	return s.GatewayFee.Add(s.PlatformCommission).Add(s.NetAmount)
}

// Schedule maps provider names to fee models.
type Schedule struct {
	models map[string]FeeModel
}

// NewSchedule builds a schedule; provider names are case-insensitive.
func NewSchedule(models map[string]FeeModel) *Schedule {
	s := &Schedule{models: make(map[string]FeeModel, len(models))}
	for name, m := range models {
		s.models[normalize(name)] = m
	}
	return s
}

// DefaultSchedule returns the stock PayForm fee table.
func DefaultSchedule() *Schedule {
	platform := decimal.NewFromInt(3)
	return NewSchedule(map[string]FeeModel{
		"cashfree": {GatewayPercent: decimal.RequireFromString("2.5"), FixedFee: decimal.NewFromInt(3), PlatformPercent: platform},
		"razorpay": {GatewayPercent: decimal.NewFromInt(2), FixedFee: decimal.NewFromInt(3), PlatformPercent: platform},
		"stripe":   {GatewayPercent: decimal.NewFromInt(3), FixedFee: decimal.Zero, PlatformPercent: platform},
	})
}

// Model returns the fee model configured for provider.
func (s *Schedule) Model(provider string) (FeeModel, bool) {
	m, ok := s.models[normalize(provider)]
	return m, ok
}

// Providers lists the configured provider names.
func (s *Schedule) Providers() []string {
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	return names
}

// Split divides gross according to the provider's fee model.
func (s *Schedule) Split(provider string, gross decimal.Decimal) (Split, error) {
	m, ok := s.Model(provider)
	if !ok {
		return Split{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	split, err := m.Split(gross)
	if err != nil {
		return Split{}, err
	}
	split.Provider = normalize(provider)
	return split, nil
}

// Split divides gross. The net amount is derived by subtraction so the three
// parts always add back to gross exactly.
func (m FeeModel) Split(gross decimal.Decimal) (Split, error) {
	if !gross.IsPositive() || !gross.Equal(gross.Round(Places)) {
		return Split{}, fmt.Errorf("%w: %s", ErrInvalidAmount, gross.String())
	}

	gatewayFee := gross.Mul(m.GatewayPercent).Div(hundred).Add(m.FixedFee).RoundBank(Places)
	platform := gross.Mul(m.PlatformPercent).Div(hundred).RoundBank(Places)
	net := gross.Sub(gatewayFee).Sub(platform)

	if !net.IsPositive() {
		return Split{}, fmt.Errorf("%w: gross %s, fees %s", ErrAmountBelowFees, gross.StringFixed(Places), gatewayFee.Add(platform).StringFixed(Places))
	}

	return Split{
		GrossAmount:        gross,
		GatewayFee:         gatewayFee,
		PlatformCommission: platform,
		NetAmount:          net,
		PlatformPercent:    m.PlatformPercent,
	}, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
