package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// RazorpayOptions configures the Razorpay client.
type RazorpayOptions struct {
	BaseURL   string
	KeyID     string
	KeySecret string
}

// Razorpay is a client for the Razorpay Orders and Route APIs.
type Razorpay struct {
	client *resty.Client
}

// NewRazorpay builds a client; it returns nil when credentials are missing.
func NewRazorpay(opts RazorpayOptions) *Razorpay {
	if opts.KeyID == "" || opts.KeySecret == "" {
		return nil
	}
	client := newClient(opts.BaseURL).SetBasicAuth(opts.KeyID, opts.KeySecret)
	return &Razorpay{client: client}
}

func (r *Razorpay) Name() string     { return ProviderRazorpay }
func (r *Razorpay) Provider() string { return ProviderRazorpay }

type razorpayOrder struct {
	ID         string            `json:"id"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Notes      map[string]string `json:"notes"`
}

// CreateOrder calls POST /v1/orders. Razorpay has no hosted page for orders;
// the checkout script opens the payment with the returned id.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*CreatedOrder, error) {
	body := map[string]any{
		"amount":   toMinorUnits(req.Amount),
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.OrderReference,
		"notes": map[string]string{
			"order_reference": req.OrderReference,
			"customer_email":  req.CustomerEmail,
			"customer_name":   req.CustomerName,
			"description":     req.Description,
		},
	}

	var out razorpayOrder
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	if err := checkResponse(ProviderRazorpay, "create order", resp); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: razorpay order without id", ErrInvalidResponse)
	}

	return &CreatedOrder{
		GatewayOrderID: out.ID,
		Status:         out.Status,
		Raw:            json.RawMessage(resp.Body()),
	}, nil
}

// PaymentStatus calls GET /v1/orders/{id}.
func (r *Razorpay) PaymentStatus(ctx context.Context, orderID string) (*PaymentStatus, error) {
	var out razorpayOrder
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("orderID", orderID).
		SetResult(&out).
		Get("/v1/orders/{orderID}")
	if err != nil {
		return nil, fmt.Errorf("razorpay get order: %w", err)
	}
	if err := checkResponse(ProviderRazorpay, "get order", resp); err != nil {
		return nil, err
	}

	return &PaymentStatus{
		Provider:       ProviderRazorpay,
		GatewayOrderID: orderID,
		Status:         out.Status,
		Paid:           out.Status == "paid",
		Amount:         fromMinorUnits(out.Amount),
		Currency:       out.Currency,
		CustomerEmail:  out.Notes["customer_email"],
		Raw:            json.RawMessage(resp.Body()),
	}, nil
}

// LinkedAccountRequest is the Route linked-account payload.
type LinkedAccountRequest struct {
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Type               string `json:"type"`
	ReferenceID        string `json:"reference_id"`
	LegalBusinessName  string `json:"legal_business_name"`
	BusinessType       string `json:"business_type"`
	ContactName        string `json:"contact_name"`
	Profile            any    `json:"profile,omitempty"`
	LegalInfo          any    `json:"legal_info,omitempty"`
	CustomerFacingName string `json:"customer_facing_business_name,omitempty"`
}

// LinkedAccount is Razorpay's answer to account calls.
type LinkedAccount struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

// RouteProduct is a Route product configuration of a linked account.
type RouteProduct struct {
	ID               string          `json:"id"`
	ActivationStatus string          `json:"activation_status"`
	Raw              json.RawMessage `json:"-"`
}

// Settlement is the bank account Route pays a linked account into.
type Settlement struct {
	AccountNumber   string `json:"account_number"`
	IFSCCode        string `json:"ifsc_code"`
	BeneficiaryName string `json:"beneficiary_name"`
}

// CreateLinkedAccount calls POST /v2/accounts.
func (r *Razorpay) CreateLinkedAccount(ctx context.Context, req LinkedAccountRequest) (*LinkedAccount, error) {
	if req.Type == "" {
		req.Type = "route"
	}

	var out LinkedAccount
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v2/accounts")
	if err != nil {
		return nil, fmt.Errorf("razorpay create account: %w", err)
	}
	if err := checkResponse(ProviderRazorpay, "create account", resp); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: razorpay account without id", ErrInvalidResponse)
	}
	out.Raw = json.RawMessage(resp.Body())
	return &out, nil
}

// RequestRouteProduct calls POST /v2/accounts/{id}/products for the route product.
func (r *Razorpay) RequestRouteProduct(ctx context.Context, accountID string) (*RouteProduct, error) {
	var out RouteProduct
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("accountID", accountID).
		SetBody(map[string]any{"product_name": "route", "tnc_accepted": true}).
		SetResult(&out).
		Post("/v2/accounts/{accountID}/products")
	if err != nil {
		return nil, fmt.Errorf("razorpay request product: %w", err)
	}
	if err := checkResponse(ProviderRazorpay, "request product", resp); err != nil {
		return nil, err
	}
	out.Raw = json.RawMessage(resp.Body())
	return &out, nil
}

// UpdateSettlement calls PATCH /v2/accounts/{id}/products/{product_id}.
func (r *Razorpay) UpdateSettlement(ctx context.Context, accountID, productID string, settlement Settlement) (*RouteProduct, error) {
	var out RouteProduct
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"accountID": accountID, "productID": productID}).
		SetBody(map[string]any{"settlements": settlement, "tnc_accepted": true}).
		SetResult(&out).
		Patch("/v2/accounts/{accountID}/products/{productID}")
	if err != nil {
		return nil, fmt.Errorf("razorpay update settlement: %w", err)
	}
	if err := checkResponse(ProviderRazorpay, "update settlement", resp); err != nil {
		return nil, err
	}
	out.Raw = json.RawMessage(resp.Body())
	return &out, nil
}
