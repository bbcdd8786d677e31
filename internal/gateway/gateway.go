// Package gateway talks to the payment providers PayForm collects through.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Provider names, as stored on transactions and used by the fee schedule.
const (
	ProviderCashfree = "cashfree"
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
)

// ReturnURLOrderToken is replaced by each gateway with its own order identifier placeholder.
const ReturnURLOrderToken = "{order_id}"

const defaultTimeout = 15 * time.Second

var (
	// ErrNotConfigured is returned when a gateway has no credentials.
	ErrNotConfigured = errors.New("gateway: not configured")
	// ErrInvalidResponse is returned when a gateway answers 2xx with an unusable body.
	ErrInvalidResponse = errors.New("gateway: invalid response")
)

// Error is a non-2xx answer from a gateway. Body is kept for logs only.
type Error struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Provider, e.Operation, e.StatusCode)
}

// OrderRequest asks a gateway to open a payment for one form submission.
type OrderRequest struct {
	OrderReference string
	Amount         decimal.Decimal
	Currency       string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Description    string
	ReturnURL      string
}

// CreatedOrder is the gateway's handle for a newly opened payment.
type CreatedOrder struct {
	GatewayOrderID   string
	PaymentSessionID string
	CheckoutURL      string
	Status           string
	Raw              json.RawMessage
}

// PaymentStatus is the gateway's view of an order.
type PaymentStatus struct {
	Provider       string
	GatewayOrderID string
	PaymentID      string
	Status         string
	Paid           bool
	Amount         decimal.Decimal
	Currency       string
	CustomerEmail  string
	Raw            json.RawMessage
}

// Gateway opens payments and reports their status.
type Gateway interface {
	// Name is the routing key, e.g. "cashfree_link".
	Name() string
	// Provider is the fee provider the gateway bills under.
	Provider() string
	CreateOrder(ctx context.Context, req OrderRequest) (*CreatedOrder, error)
	PaymentStatus(ctx context.Context, gatewayOrderID string) (*PaymentStatus, error)
}

// Registry resolves gateways by name.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry registers the given gateways; nil entries are skipped.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		if g != nil {
			r.gateways[g.Name()] = g
		}
	}
	return r
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, name)
	}
	return g, nil
}

// Names lists registered gateway names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
}

func checkResponse(provider, operation string, resp *resty.Response) error {
	if resp.IsError() {
		return &Error{
			Provider:   provider,
			Operation:  operation,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String(), 2048),
		}
	}
	return nil
}

// toMinorUnits converts rupees to paise.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// flexID decodes identifiers that gateways send as strings, numbers or
// expanded objects carrying an id.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*f = flexID(obj.ID)
		return nil
	}
	*f = flexID(data)
	return nil
}
