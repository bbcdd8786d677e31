package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSplitKnownAmounts(t *testing.T) {
	schedule := DefaultSchedule()

	tests := []struct {
		provider   string
		gross      string
		gatewayFee string
		platform   string
		net        string
	}{
		{"cashfree", "1000", "28.00", "30.00", "942.00"},
		{"razorpay", "1000", "23.00", "30.00", "947.00"},
		{"stripe", "1000", "30.00", "30.00", "940.00"},
		{"Cashfree", "499.99", "15.50", "15.00", "469.49"},
		{"razorpay", "10.50", "3.21", "0.32", "6.97"},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.gross, func(t *testing.T) {
			split, err := schedule.Split(tt.provider, d(tt.gross))
			require.NoError(t, err)

			assert.True(t, split.GatewayFee.Equal(d(tt.gatewayFee)), "gateway fee %s", split.GatewayFee)
			assert.True(t, split.PlatformCommission.Equal(d(tt.platform)), "platform %s", split.PlatformCommission)
			assert.True(t, split.NetAmount.Equal(d(tt.net)), "net %s", split.NetAmount)
		})
	}
}

func TestSplitPartsAlwaysSumToGross(t *testing.T) {
	schedule := DefaultSchedule()

	for _, provider := range []string{"cashfree", "razorpay", "stripe"} {
		for paise := int64(1000); paise <= 5_000_000; paise += 7919 {
			gross := decimal.New(paise, -Places)
			split, err := schedule.Split(provider, gross)
			require.NoError(t, err, "%s %s", provider, gross)
			require.True(t, split.Total().Equal(gross), "%s %s: %s", provider, gross, split.Total())
			require.True(t, split.NetAmount.IsPositive())
		}
	}
}

func TestSplitRoundsHalfToEven(t *testing.T) {
	// 2.5% of 1.00 is 0.025; half-even gives 0.02.
	m := FeeModel{GatewayPercent: d("2.5"), FixedFee: decimal.Zero, PlatformPercent: decimal.Zero}
	split, err := m.Split(d("1.00"))
	require.NoError(t, err)
	assert.Equal(t, "0.02", split.GatewayFee.StringFixed(Places))

	// 2.5% of 3.00 is 0.075; half-even gives 0.08.
	split, err = m.Split(d("3.00"))
	require.NoError(t, err)
	assert.Equal(t, "0.08", split.GatewayFee.StringFixed(Places))
}

func TestSplitRejectsAmountsBelowFees(t *testing.T) {
	schedule := DefaultSchedule()

	for _, provider := range []string{"cashfree", "razorpay"} {
		_, err := schedule.Split(provider, d("2"))
		assert.ErrorIs(t, err, ErrAmountBelowFees)

		_, err = schedule.Split(provider, d("3"))
		assert.ErrorIs(t, err, ErrAmountBelowFees)
	}
}

func TestSplitRejectsInvalidAmounts(t *testing.T) {
	schedule := DefaultSchedule()

	for _, gross := range []string{"0", "-10", "100.001"} {
		_, err := schedule.Split("cashfree", d(gross))
		assert.ErrorIs(t, err, ErrInvalidAmount, gross)
	}
}

func TestSplitUnknownProvider(t *testing.T) {
	_, err := DefaultSchedule().Split("paypal", d("100"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewScheduleOverridesRates(t *testing.T) {
	schedule := NewSchedule(map[string]FeeModel{
		" CashFree ": {GatewayPercent: d("1.75"), FixedFee: d("2"), PlatformPercent: d("5")},
	})

	split, err := schedule.Split("cashfree", d("200"))
	require.NoError(t, err)
	assert.Equal(t, "cashfree", split.Provider)
	assert.Equal(t, "5.50", split.GatewayFee.StringFixed(Places))
	assert.Equal(t, "10.00", split.PlatformCommission.StringFixed(Places))
	assert.Equal(t, "184.50", split.NetAmount.StringFixed(Places))
}
