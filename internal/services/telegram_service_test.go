package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatINR(t *testing.T) {
	cases := map[string]string{
		"0":        "₹0.00",
		"999.5":    "₹999.50",
		"1000":     "₹1,000.00",
		"123456.7": "₹1,23,456.70",
		"12345678": "₹1,23,45,678.00",
		"-1500.25": "-₹1,500.25",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatINR(decimal.RequireFromString(in)), in)
	}
}

func TestNotifyPaymentReceived(t *testing.T) {
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramService("TOKEN", "42").WithBaseURL(srv.URL)
	err := tg.NotifyPaymentReceived(PaymentNotification{
		OrderReference:     "pf_1",
		Provider:           "cashfree",
		FormTitle:          "Yoga <Batch>",
		GrossAmount:        decimal.NewFromInt(1000),
		GatewayFee:         decimal.NewFromInt(28),
		PlatformCommission: decimal.NewFromInt(30),
		NetAmount:          decimal.NewFromInt(942),
	})
	require.NoError(t, err)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "Yoga &lt;Batch&gt;")
	assert.Contains(t, got.Text, "₹942.00")
}

func TestTelegramWithoutTokenIsSilent(t *testing.T) {
	assert.NoError(t, NewTelegramService("", "42").SendToAdmin("hi"))
	assert.NoError(t, NewTelegramService("TOKEN", "").SendToAdmin("hi"))

	var nilService *TelegramService
	assert.NoError(t, nilService.NotifyRetryExhausted("cashfree", "o", 3, "boom"))
}

func TestTelegramErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramService("TOKEN", "42").WithBaseURL(srv.URL).SendToAdmin("hi")
	assert.Error(t, err)
}
