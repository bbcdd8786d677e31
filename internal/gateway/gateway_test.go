package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonReply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestCashfreePaymentStatusPaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "app-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "secret", r.Header.Get("x-client-secret"))
		assert.Equal(t, "2023-08-01", r.Header.Get("x-api-version"))
		switch r.URL.Path {
		case "/pg/orders/pf_123":
			jsonReply(w, http.StatusOK, `{"cf_order_id": 2149460581, "order_id": "pf_123", "order_status": "PAID",
				"order_amount": 1000.00, "order_currency": "INR", "customer_details": {"customer_email": "a@b.in"}}`)
		case "/pg/orders/pf_123/payments":
			jsonReply(w, http.StatusOK, `[{"cf_payment_id": 5114910000001, "payment_status": "FAILED"},
				{"cf_payment_id": 5114910000002, "payment_status": "SUCCESS"}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	cf := NewCashfree(CashfreeOptions{BaseURL: srv.URL + "/pg", AppID: "app-id", SecretKey: "secret"})
	require.NotNil(t, cf)

	status, err := cf.PaymentStatus(context.Background(), "pf_123")
	require.NoError(t, err)
	assert.True(t, status.Paid)
	assert.Equal(t, "PAID", status.Status)
	assert.Equal(t, "5114910000002", status.PaymentID, "payment id is the successful attempt, not the order id")
	assert.True(t, status.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "a@b.in", status.CustomerEmail)
	assert.Equal(t, ProviderCashfree, status.Provider)
}

func TestCashfreePaymentStatusActiveIsNotPaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, http.StatusOK, `{"order_id": "pf_1", "order_status": "ACTIVE", "order_amount": 10}`)
	}))
	defer srv.Close()

	cf := NewCashfree(CashfreeOptions{BaseURL: srv.URL, AppID: "a", SecretKey: "b"})
	status, err := cf.PaymentStatus(context.Background(), "pf_1")
	require.NoError(t, err)
	assert.False(t, status.Paid)
}

func TestCashfreePaymentStatusPaymentsLookupFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/orders/pf_2/payments" {
			jsonReply(w, http.StatusBadGateway, `{"message": "upstream"}`)
			return
		}
		jsonReply(w, http.StatusOK, `{"cf_order_id": 7, "order_id": "pf_2", "order_status": "PAID", "order_amount": 10}`)
	}))
	defer srv.Close()

	cf := NewCashfree(CashfreeOptions{BaseURL: srv.URL, AppID: "a", SecretKey: "b"})
	_, err := cf.PaymentStatus(context.Background(), "pf_2")
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
}

func TestCashfreeErrorKeepsBodyOutOfMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, http.StatusUnauthorized, `{"message": "authentication Failed", "code": "request_failed"}`)
	}))
	defer srv.Close()

	cf := NewCashfree(CashfreeOptions{BaseURL: srv.URL, AppID: "a", SecretKey: "b"})
	_, err := cf.PaymentStatus(context.Background(), "pf_1")
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
	assert.Contains(t, gwErr.Body, "authentication Failed")
	assert.NotContains(t, err.Error(), "authentication Failed")
}

func TestCashfreeCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pf_abc", body["order_id"])
		assert.Equal(t, 499.5, body["order_amount"])
		assert.Equal(t, "INR", body["order_currency"])
		meta := body["order_meta"].(map[string]any)
		assert.Equal(t, "https://pay.example/verify?order_id={order_id}", meta["return_url"])

		jsonReply(w, http.StatusOK, `{"cf_order_id": "99", "order_id": "pf_abc", "order_status": "ACTIVE", "payment_session_id": "session_x"}`)
	}))
	defer srv.Close()

	cf := NewCashfree(CashfreeOptions{BaseURL: srv.URL, AppID: "a", SecretKey: "b"})
	order, err := cf.CreateOrder(context.Background(), OrderRequest{
		OrderReference: "pf_abc",
		Amount:         decimal.RequireFromString("499.50"),
		Currency:       "inr",
		CustomerEmail:  "buyer@example.com",
		ReturnURL:      "https://pay.example/verify?order_id={order_id}",
	})
	require.NoError(t, err)
	assert.Equal(t, "pf_abc", order.GatewayOrderID)
	assert.Equal(t, "session_x", order.PaymentSessionID)
}

func TestCashfreeLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/links/link_9", r.URL.Path)
		jsonReply(w, http.StatusOK, `{"cf_link_id": 4, "link_id": "link_9", "link_status": "PAID", "link_amount": "250.00", "link_currency": "INR"}`)
	}))
	defer srv.Close()

	links := NewCashfree(CashfreeOptions{BaseURL: srv.URL, AppID: "a", SecretKey: "b"}).Links()
	assert.Equal(t, "cashfree_link", links.Name())
	assert.Equal(t, ProviderCashfree, links.Provider())

	status, err := links.PaymentStatus(context.Background(), "link_9")
	require.NoError(t, err)
	assert.True(t, status.Paid)
	assert.Equal(t, "250", status.Amount.String())
	assert.Empty(t, status.PaymentID)
}

func TestRazorpayPaymentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "/v1/orders/order_Lx1", r.URL.Path)
		jsonReply(w, http.StatusOK, `{"id": "order_Lx1", "amount": 100000, "amount_paid": 100000, "currency": "INR",
			"status": "paid", "notes": {"customer_email": "c@d.in"}}`)
	}))
	defer srv.Close()

	rzp := NewRazorpay(RazorpayOptions{BaseURL: srv.URL, KeyID: "rzp_key", KeySecret: "rzp_secret"})
	status, err := rzp.PaymentStatus(context.Background(), "order_Lx1")
	require.NoError(t, err)
	assert.True(t, status.Paid)
	assert.Equal(t, "1000.00", status.Amount.StringFixed(2))
	assert.Equal(t, "c@d.in", status.CustomerEmail)
}

func TestRazorpayCreateOrderSendsPaise(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(49950), body["amount"])
		assert.Equal(t, "pf_ref", body["receipt"])
		jsonReply(w, http.StatusOK, `{"id": "order_new", "status": "created"}`)
	}))
	defer srv.Close()

	rzp := NewRazorpay(RazorpayOptions{BaseURL: srv.URL, KeyID: "k", KeySecret: "s"})
	order, err := rzp.CreateOrder(context.Background(), OrderRequest{
		OrderReference: "pf_ref",
		Amount:         decimal.RequireFromString("499.50"),
		Currency:       "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_new", order.GatewayOrderID)
}

func TestStripeCreateOrderUsesSessionPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		assert.NoError(t, err)
		assert.Equal(t, "https://pay.example/verify?order_id={CHECKOUT_SESSION_ID}", form.Get("success_url"))
		assert.Equal(t, "1000", form.Get("line_items[0][price_data][unit_amount]"))
		jsonReply(w, http.StatusOK, `{"id": "cs_test_1", "url": "https://checkout.stripe.com/c/pay/cs_test_1", "payment_status": "unpaid"}`)
	}))
	defer srv.Close()

	st := NewStripe(StripeOptions{BaseURL: srv.URL, SecretKey: "sk_test"})
	order, err := st.CreateOrder(context.Background(), OrderRequest{
		OrderReference: "pf_s",
		Amount:         decimal.NewFromInt(10),
		Currency:       "INR",
		ReturnURL:      "https://pay.example/verify?order_id={order_id}",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", order.GatewayOrderID)
	assert.Contains(t, order.CheckoutURL, "checkout.stripe.com")
}

func TestStripeCreateOrderSendsCancelURL(t *testing.T) {
	var cancelURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		assert.NoError(t, err)
		cancelURL = form.Get("cancel_url")
		jsonReply(w, http.StatusOK, `{"id": "cs_test_2", "url": "https://checkout.stripe.com/c/pay/cs_test_2"}`)
	}))
	defer srv.Close()

	st := NewStripe(StripeOptions{BaseURL: srv.URL, SecretKey: "sk_test", CancelURL: "https://pay.example/api/payments/cancelled"})
	_, err := st.CreateOrder(context.Background(), OrderRequest{
		OrderReference: "pf_c",
		Amount:         decimal.NewFromInt(10),
		Currency:       "INR",
		ReturnURL:      "https://pay.example/verify?order_id={order_id}",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/api/payments/cancelled", cancelURL)
}

func TestNewClientsWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewCashfree(CashfreeOptions{BaseURL: "http://x"}))
	assert.Nil(t, NewRazorpay(RazorpayOptions{BaseURL: "http://x", KeyID: "only-id"}))
	assert.Nil(t, NewStripe(StripeOptions{BaseURL: "http://x"}))
}

func TestRegistry(t *testing.T) {
	cf := NewCashfree(CashfreeOptions{BaseURL: "http://x", AppID: "a", SecretKey: "b"})
	reg := NewRegistry(cf, cf.Links())

	g, err := reg.Get(" Cashfree_Link ")
	require.NoError(t, err)
	assert.Equal(t, "cashfree_link", g.Name())

	_, err = reg.Get("stripe")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, []string{"cashfree", "cashfree_link"}, reg.Names())
}
