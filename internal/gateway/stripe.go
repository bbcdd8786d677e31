package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// StripeOptions configures the Stripe client.
type StripeOptions struct {
	BaseURL   string
	SecretKey string
	CancelURL string
}

// Stripe opens Checkout Sessions and reads their payment status.
type Stripe struct {
	client    *resty.Client
	cancelURL string
}

// NewStripe builds a client; it returns nil when the secret key is missing.
func NewStripe(opts StripeOptions) *Stripe {
	if opts.SecretKey == "" {
		return nil
	}
	return &Stripe{
		client:    newClient(opts.BaseURL).SetAuthToken(opts.SecretKey),
		cancelURL: opts.CancelURL,
	}
}

func (s *Stripe) Name() string     { return ProviderStripe }
func (s *Stripe) Provider() string { return ProviderStripe }

type stripeSession struct {
	ID                string `json:"id"`
	URL               string `json:"url"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	PaymentIntent     flexID `json:"payment_intent"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// CreateOrder calls POST /v1/checkout/sessions.
func (s *Stripe) CreateOrder(ctx context.Context, req OrderRequest) (*CreatedOrder, error) {
	name := req.Description
	if name == "" {
		name = "PayForm payment"
	}
	successURL := strings.ReplaceAll(req.ReturnURL, ReturnURLOrderToken, "{CHECKOUT_SESSION_ID}")
	cancelURL := s.cancelURL
	if cancelURL == "" {
		cancelURL = successURL
	}

	form := map[string]string{
		"mode":                "payment",
		"success_url":         successURL,
		"cancel_url":          cancelURL,
		"client_reference_id": req.OrderReference,
		"line_items[0][quantity]":                       "1",
		"line_items[0][price_data][currency]":           strings.ToLower(req.Currency),
		"line_items[0][price_data][unit_amount]":        strconv.FormatInt(toMinorUnits(req.Amount), 10),
		"line_items[0][price_data][product_data][name]": name,
		"metadata[order_reference]":                     req.OrderReference,
	}
	if req.CustomerEmail != "" {
		form["customer_email"] = req.CustomerEmail
	}

	var out stripeSession
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("stripe create session: %w", err)
	}
	if err := checkResponse(ProviderStripe, "create session", resp); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: stripe session without id", ErrInvalidResponse)
	}

	return &CreatedOrder{
		GatewayOrderID: out.ID,
		CheckoutURL:    out.URL,
		Status:         out.PaymentStatus,
		Raw:            json.RawMessage(resp.Body()),
	}, nil
}

// PaymentStatus calls GET /v1/checkout/sessions/{id}.
func (s *Stripe) PaymentStatus(ctx context.Context, sessionID string) (*PaymentStatus, error) {
	var out stripeSession
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("sessionID", sessionID).
		SetResult(&out).
		Get("/v1/checkout/sessions/{sessionID}")
	if err != nil {
		return nil, fmt.Errorf("stripe get session: %w", err)
	}
	if err := checkResponse(ProviderStripe, "get session", resp); err != nil {
		return nil, err
	}

	email := out.CustomerDetails.Email
	if email == "" {
		email = out.CustomerEmail
	}

	return &PaymentStatus{
		Provider:       ProviderStripe,
		GatewayOrderID: sessionID,
		PaymentID:      string(out.PaymentIntent),
		Status:         out.PaymentStatus,
		Paid:           out.PaymentStatus == "paid",
		Amount:         fromMinorUnits(out.AmountTotal),
		Currency:       strings.ToUpper(out.Currency),
		CustomerEmail:  email,
		Raw:            json.RawMessage(resp.Body()),
	}, nil
}
