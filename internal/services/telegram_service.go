package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const telegramAPI = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	client      *resty.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		client:      resty.New().SetBaseURL(telegramAPI).SetTimeout(10 * time.Second),
	}
}

// WithBaseURL points the service at another Bot API host.
func (s *TelegramService) WithBaseURL(baseURL string) *TelegramService {
	s.client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	return s
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s == nil || s.botToken == "" {
		log.Debug().Msg("telegram bot token not configured")
		return nil
	}

	resp, err := s.client.R().
		SetPathParam("token", s.botToken).
		SetBody(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"}).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() {
		log.Warn().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("telegram rejected message")
		return fmt.Errorf("telegram returned status %d", resp.StatusCode())
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s == nil || s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// FormatINR renders an amount with Indian digit grouping, e.g. ₹1,23,456.70.
func FormatINR(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	parts := strings.SplitN(amount.StringFixed(2), ".", 2)
	whole := parts[0]

	var grouped string
	if len(whole) <= 3 {
		grouped = whole
	} else {
		head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		grouped = strings.Join(groups, ",") + "," + tail
	}

	return sign + "₹" + grouped + "." + parts[1]
}

// PaymentNotification contains the split of a confirmed payment.
type PaymentNotification struct {
	OrderReference     string
	Provider           string
	FormTitle          string
	CustomerEmail      string
	GrossAmount        decimal.Decimal
	GatewayFee         decimal.Decimal
	PlatformCommission decimal.Decimal
	NetAmount          decimal.Decimal
}

// NotifyPaymentReceived tells the admin chat about a confirmed payment.
func (s *TelegramService) NotifyPaymentReceived(p PaymentNotification) error {
	message := fmt.Sprintf(`<b>✅ Payment received</b>
<b>Order:</b> %s
<b>Form:</b> %s
<b>Customer:</b> %s
<b>Gateway:</b> %s
<b>Amount:</b> %s
<b>Gateway fee:</b> %s
<b>Platform commission:</b> %s
<b>Net to admin:</b> %s`,
		html.EscapeString(p.OrderReference),
		html.EscapeString(p.FormTitle),
		html.EscapeString(p.CustomerEmail),
		html.EscapeString(p.Provider),
		FormatINR(p.GrossAmount),
		FormatINR(p.GatewayFee),
		FormatINR(p.PlatformCommission),
		FormatINR(p.NetAmount),
	)

	return s.SendToAdmin(message)
}

// NotifyRetryExhausted reports a gateway order that could never be applied.
func (s *TelegramService) NotifyRetryExhausted(provider, gatewayOrderID string, attempts int, lastError string) error {
	message := fmt.Sprintf(`<b>⚠️ Reconciliation gave up</b>
<b>Gateway:</b> %s
<b>Order:</b> %s
<b>Attempts:</b> %d
<b>Last error:</b> %s
Check the gateway dashboard and record the payment manually.`,
		html.EscapeString(provider),
		html.EscapeString(gatewayOrderID),
		attempts,
		html.EscapeString(lastError),
	)

	return s.SendToAdmin(message)
}

// NotifyPaidNotPending reports a gateway payment whose transaction was already
// closed without being paid, e.g. marked failed when order creation errored.
func (s *TelegramService) NotifyPaidNotPending(orderReference, provider, gatewayOrderID, localStatus string, amount decimal.Decimal) error {
	message := fmt.Sprintf(`<b>🚨 Payment on a closed transaction</b>
<b>Order:</b> %s
<b>Gateway:</b> %s
<b>Gateway order:</b> %s
<b>Local status:</b> %s
<b>Amount:</b> %s
The gateway reports this order as paid. Review it and refund or record it manually.`,
		html.EscapeString(orderReference),
		html.EscapeString(provider),
		html.EscapeString(gatewayOrderID),
		html.EscapeString(localStatus),
		FormatINR(amount),
	)

	return s.SendToAdmin(message)
}
