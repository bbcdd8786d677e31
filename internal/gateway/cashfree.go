package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// CashfreeOptions configures the Cashfree PG client.
type CashfreeOptions struct {
	BaseURL    string
	AppID      string
	SecretKey  string
	APIVersion string
}

// Cashfree is a client for the Cashfree Payment Gateway API. As a Gateway it
// serves the Orders API; Links returns the Payment Links flavour.
type Cashfree struct {
	client *resty.Client
}

// NewCashfree builds a client; it returns nil when credentials are missing.
func NewCashfree(opts CashfreeOptions) *Cashfree {
	if opts.AppID == "" || opts.SecretKey == "" {
		return nil
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "2023-08-01"
	}

	client := newClient(opts.BaseURL).
		SetHeader("x-client-id", opts.AppID).
		SetHeader("x-client-secret", opts.SecretKey).
		SetHeader("x-api-version", opts.APIVersion)

	return &Cashfree{client: client}
}

func (c *Cashfree) Name() string     { return ProviderCashfree }
func (c *Cashfree) Provider() string { return ProviderCashfree }

type cashfreeCustomer struct {
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

type cashfreeOrderRequest struct {
	OrderID       string           `json:"order_id"`
	OrderAmount   float64          `json:"order_amount"`
	OrderCurrency string           `json:"order_currency"`
	OrderNote     string           `json:"order_note,omitempty"`
	Customer      cashfreeCustomer `json:"customer_details"`
	OrderMeta     struct {
		ReturnURL string `json:"return_url,omitempty"`
	} `json:"order_meta"`
}

type cashfreeOrder struct {
	CfOrderID        flexID           `json:"cf_order_id"`
	OrderID          string           `json:"order_id"`
	OrderStatus      string           `json:"order_status"`
	OrderAmount      decimal.Decimal  `json:"order_amount"`
	OrderCurrency    string           `json:"order_currency"`
	PaymentSessionID string           `json:"payment_session_id"`
	Customer         cashfreeCustomer `json:"customer_details"`
}

// CreateOrder opens a Cashfree order whose id is the PayForm order reference.
func (c *Cashfree) CreateOrder(ctx context.Context, req OrderRequest) (*CreatedOrder, error) {
	body := cashfreeOrderRequest{
		OrderID:       req.OrderReference,
		OrderAmount:   req.Amount.Round(2).InexactFloat64(),
		OrderCurrency: strings.ToUpper(req.Currency),
		OrderNote:     req.Description,
		Customer: cashfreeCustomer{
			CustomerID:    customerID(req.CustomerEmail, req.OrderReference),
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
		},
	}
	body.OrderMeta.ReturnURL = req.ReturnURL

	var out cashfreeOrder
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("cashfree create order: %w", err)
	}
	if err := checkResponse(ProviderCashfree, "create order", resp); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("%w: cashfree order without order_id", ErrInvalidResponse)
	}

	return &CreatedOrder{
		GatewayOrderID:   out.OrderID,
		PaymentSessionID: out.PaymentSessionID,
		Status:           out.OrderStatus,
		Raw:              json.RawMessage(resp.Body()),
	}, nil
}

// PaymentStatus calls GET /orders/{order_id}.
func (c *Cashfree) PaymentStatus(ctx context.Context, orderID string) (*PaymentStatus, error) {
	var out cashfreeOrder
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("orderID", orderID).
		SetResult(&out).
		Get("/orders/{orderID}")
	if err != nil {
		return nil, fmt.Errorf("cashfree get order: %w", err)
	}
	if err := checkResponse(ProviderCashfree, "get order", resp); err != nil {
		return nil, err
	}

	status := &PaymentStatus{
		Provider:       ProviderCashfree,
		GatewayOrderID: orderID,
		Status:         out.OrderStatus,
		Paid:           strings.EqualFold(out.OrderStatus, "PAID"),
		Amount:         out.OrderAmount,
		Currency:       out.OrderCurrency,
		CustomerEmail:  out.Customer.CustomerEmail,
		Raw:            json.RawMessage(resp.Body()),
	}
	if status.Paid {
		if status.PaymentID, err = c.successfulPaymentID(ctx, orderID); err != nil {
			return nil, err
		}
	}
	return status, nil
}

type cashfreePayment struct {
	CfPaymentID   flexID `json:"cf_payment_id"`
	PaymentStatus string `json:"payment_status"`
}

// successfulPaymentID calls GET /orders/{order_id}/payments and returns the
// id of the successful attempt, or "" when none is listed.
func (c *Cashfree) successfulPaymentID(ctx context.Context, orderID string) (string, error) {
	var payments []cashfreePayment
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("orderID", orderID).
		SetResult(&payments).
		Get("/orders/{orderID}/payments")
	if err != nil {
		return "", fmt.Errorf("cashfree get order payments: %w", err)
	}
	if err := checkResponse(ProviderCashfree, "get order payments", resp); err != nil {
		return "", err
	}
	for _, p := range payments {
		if strings.EqualFold(p.PaymentStatus, "SUCCESS") {
			return string(p.CfPaymentID), nil
		}
	}
	return "", nil
}

// Links returns the Payment Links gateway sharing this client.
func (c *Cashfree) Links() *CashfreeLinks {
	if c == nil {
		return nil
	}
	return &CashfreeLinks{client: c.client}
}

// CashfreeLinks serves Cashfree Payment Links as a Gateway.
type CashfreeLinks struct {
	client *resty.Client
}

func (l *CashfreeLinks) Name() string     { return ProviderCashfree + "_link" }
func (l *CashfreeLinks) Provider() string { return ProviderCashfree }

type cashfreeLinkRequest struct {
	LinkID       string           `json:"link_id"`
	LinkAmount   float64          `json:"link_amount"`
	LinkCurrency string           `json:"link_currency"`
	LinkPurpose  string           `json:"link_purpose"`
	Customer     cashfreeCustomer `json:"customer_details"`
	LinkMeta     struct {
		ReturnURL string `json:"return_url,omitempty"`
	} `json:"link_meta"`
	LinkNotify struct {
		SendEmail bool `json:"send_email"`
		SendSMS   bool `json:"send_sms"`
	} `json:"link_notify"`
}

type cashfreeLink struct {
	CfLinkID       flexID           `json:"cf_link_id"`
	LinkID         string           `json:"link_id"`
	LinkStatus     string           `json:"link_status"`
	LinkURL        string           `json:"link_url"`
	LinkAmount     decimal.Decimal  `json:"link_amount"`
	LinkAmountPaid decimal.Decimal  `json:"link_amount_paid"`
	LinkCurrency   string           `json:"link_currency"`
	Customer       cashfreeCustomer `json:"customer_details"`
}

// CreateOrder creates a payment link whose id is the PayForm order reference.
func (l *CashfreeLinks) CreateOrder(ctx context.Context, req OrderRequest) (*CreatedOrder, error) {
	purpose := req.Description
	if purpose == "" {
		purpose = "PayForm payment"
	}

	body := cashfreeLinkRequest{
		LinkID:       req.OrderReference,
		LinkAmount:   req.Amount.Round(2).InexactFloat64(),
		LinkCurrency: strings.ToUpper(req.Currency),
		LinkPurpose:  purpose,
		Customer: cashfreeCustomer{
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
		},
	}
	body.LinkMeta.ReturnURL = strings.ReplaceAll(req.ReturnURL, ReturnURLOrderToken, req.OrderReference)

	var out cashfreeLink
	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/links")
	if err != nil {
		return nil, fmt.Errorf("cashfree create link: %w", err)
	}
	if err := checkResponse(ProviderCashfree, "create link", resp); err != nil {
		return nil, err
	}
	if out.LinkID == "" {
		return nil, fmt.Errorf("%w: cashfree link without link_id", ErrInvalidResponse)
	}

	return &CreatedOrder{
		GatewayOrderID: out.LinkID,
		CheckoutURL:    out.LinkURL,
		Status:         out.LinkStatus,
		Raw:            json.RawMessage(resp.Body()),
	}, nil
}

// PaymentStatus calls GET /links/{link_id}.
func (l *CashfreeLinks) PaymentStatus(ctx context.Context, linkID string) (*PaymentStatus, error) {
	var out cashfreeLink
	resp, err := l.client.R().
		SetContext(ctx).
		SetPathParam("linkID", linkID).
		SetResult(&out).
		Get("/links/{linkID}")
	if err != nil {
		return nil, fmt.Errorf("cashfree get link: %w", err)
	}
	if err := checkResponse(ProviderCashfree, "get link", resp); err != nil {
		return nil, err
	}

	return &PaymentStatus{
		Provider:       ProviderCashfree,
		GatewayOrderID: linkID,
		Status:         out.LinkStatus,
		Paid:           strings.EqualFold(out.LinkStatus, "PAID"),
		Amount:         out.LinkAmount,
		Currency:       out.LinkCurrency,
		CustomerEmail:  out.Customer.CustomerEmail,
		Raw:            json.RawMessage(resp.Body()),
	}, nil
}

// CashfreeBank is the settlement account of an Easy Split vendor.
type CashfreeBank struct {
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
	IFSC          string `json:"ifsc"`
}

// CashfreeVendor is the Easy Split vendor payload.
type CashfreeVendor struct {
	VendorID       string        `json:"vendor_id"`
	Status         string        `json:"status,omitempty"`
	Name           string        `json:"name,omitempty"`
	Email          string        `json:"email,omitempty"`
	Phone          string        `json:"phone,omitempty"`
	VerifyAccount  bool          `json:"verify_account"`
	ScheduleOption int           `json:"schedule_option,omitempty"`
	Bank           *CashfreeBank `json:"bank,omitempty"`
	KYCDetails     *CashfreeKYC  `json:"kyc_details,omitempty"`
}

// CashfreeKYC carries the tax identifiers of a vendor.
type CashfreeKYC struct {
	PAN   string `json:"pan,omitempty"`
	GSTIN string `json:"gst,omitempty"`
}

// VendorResult is what Cashfree returns for vendor calls.
type VendorResult struct {
	VendorID string          `json:"vendor_id"`
	Status   string          `json:"status"`
	Raw      json.RawMessage `json:"-"`
}

// SetKYC attaches PAN and GSTIN to the vendor payload.
func (v *CashfreeVendor) SetKYC(pan, gstin string) {
	if pan == "" && gstin == "" {
		return
	}
	v.KYCDetails = &CashfreeKYC{PAN: pan, GSTIN: gstin}
}

// CreateVendor calls POST /easy-split/vendors.
func (c *Cashfree) CreateVendor(ctx context.Context, vendor CashfreeVendor) (*VendorResult, error) {
	var out VendorResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(vendor).
		SetResult(&out).
		Post("/easy-split/vendors")
	if err != nil {
		return nil, fmt.Errorf("cashfree create vendor: %w", err)
	}
	if err := checkResponse(ProviderCashfree, "create vendor", resp); err != nil {
		return nil, err
	}
	out.Raw = json.RawMessage(resp.Body())
	return &out, nil
}

// UpdateVendorBank calls PATCH /easy-split/vendors/{vendor_id} with new bank details.
func (c *Cashfree) UpdateVendorBank(ctx context.Context, vendorID string, bank CashfreeBank) (*VendorResult, error) {
	var out VendorResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("vendorID", vendorID).
		SetBody(map[string]any{"bank": bank}).
		SetResult(&out).
		Patch("/easy-split/vendors/{vendorID}")
	if err != nil {
		return nil, fmt.Errorf("cashfree update vendor: %w", err)
	}
	if err := checkResponse(ProviderCashfree, "update vendor", resp); err != nil {
		return nil, err
	}
	out.Raw = json.RawMessage(resp.Body())
	return &out, nil
}

func customerID(email, fallback string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, email)
	if id == "" {
		return fallback
	}
	return id
}
