package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/itbhushan/payform/internal/commission"
	"github.com/itbhushan/payform/internal/gateway"
	"github.com/itbhushan/payform/internal/models"
	"github.com/itbhushan/payform/internal/utils"
)

var (
	ErrFormNotFound = errors.New("form not found")
	ErrFormInactive = errors.New("form is not accepting payments")
	ErrInvalidInput = errors.New("invalid input")
)

// CreateOrderInput is a form submission asking to pay.
type CreateOrderInput struct {
	FormID        string `json:"form_id" validate:"required"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerName  string `json:"customer_name" validate:"omitempty,max=120"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,inphone"`
}

// Checkout is what the purchaser needs to complete the payment.
type Checkout struct {
	TransactionID    uuid.UUID       `json:"transaction_id"`
	OrderReference   string          `json:"order_reference"`
	Gateway          string          `json:"gateway"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	PaymentSessionID string          `json:"payment_session_id,omitempty"`
	CheckoutURL      string          `json:"checkout_url,omitempty"`
	CallbackURL      string          `json:"callback_url"`
	PublicKey        string          `json:"public_key,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// OrderService opens gateway orders for form submissions.
type OrderService struct {
	db         *gorm.DB
	gateways   *gateway.Registry
	schedule   *commission.Schedule
	baseURL    string
	publicKeys map[string]string
}

// NewOrderService wires an OrderService. publicKeys maps a provider to the
// key its client-side checkout needs (Razorpay key id, Stripe publishable key).
func NewOrderService(db *gorm.DB, gateways *gateway.Registry, schedule *commission.Schedule, baseURL string, publicKeys map[string]string) *OrderService {
	return &OrderService{
		db:         db,
		gateways:   gateways,
		schedule:   schedule,
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKeys: publicKeys,
	}
}

// CreateOrder records a pending transaction at the form's price and opens the
// matching order on the form's gateway.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*Checkout, error) {
	input.CustomerEmail = strings.ToLower(strings.TrimSpace(input.CustomerEmail))
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	form, err := s.findForm(ctx, input.FormID)
	if err != nil {
		return nil, err
	}
	if !form.IsActive {
		return nil, ErrFormInactive
	}

	gw, err := s.gateways.Get(form.PaymentProvider)
	if err != nil {
		return nil, err
	}
	if _, err := s.schedule.Split(gw.Provider(), form.Amount); err != nil {
		return nil, fmt.Errorf("form %s price: %w", form.ID, err)
	}

	txn := models.Transaction{
		FormID:          form.ID,
		AdminID:         form.AdminID,
		CustomerEmail:   input.CustomerEmail,
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerPhone:   input.CustomerPhone,
		ProductName:     form.ProductName,
		PaymentAmount:   form.Amount,
		Currency:        form.Currency,
		Status:          models.TransactionStatusPending,
		PaymentProvider: gw.Provider(),
		OrderReference:  NewOrderReference(),
	}
	if txn.Currency == "" {
		txn.Currency = "INR"
	}
	if err := s.db.WithContext(ctx).Create(&txn).Error; err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	description := form.ProductName
	if description == "" {
		description = form.Title
	}

	returnURL := s.returnURL(gw.Name(), form.ID, txn.CustomerEmail)
	created, err := gw.CreateOrder(ctx, gateway.OrderRequest{
		OrderReference: txn.OrderReference,
		Amount:         txn.PaymentAmount,
		Currency:       txn.Currency,
		CustomerName:   txn.CustomerName,
		CustomerEmail:  txn.CustomerEmail,
		CustomerPhone:  txn.CustomerPhone,
		Description:    description,
		ReturnURL:      returnURL,
	})
	if err != nil {
		gatewayErrorsTotal.WithLabelValues(gw.Name(), "create_order").Inc()
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			log.Warn().Str("gateway", gw.Name()).Int("status", gwErr.StatusCode).Str("body", gwErr.Body).Msg("gateway refused order")
		}
		if uerr := s.db.WithContext(ctx).Model(&txn).Update("status", models.TransactionStatusFailed).Error; uerr != nil {
			log.Error().Err(uerr).Str("transaction_id", txn.ID.String()).Msg("failed to mark transaction failed")
		}
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	if err := s.db.WithContext(ctx).Model(&txn).Updates(map[string]any{
		"gateway_order_id": created.GatewayOrderID,
		"checkout_url":     created.CheckoutURL,
		"gateway_payload":  datatypes.JSON(created.Raw),
	}).Error; err != nil {
		return nil, fmt.Errorf("store gateway order: %w", err)
	}

	ordersCreatedTotal.WithLabelValues(gw.Name()).Inc()
	log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("gateway", gw.Name()).
		Str("gateway_order_id", created.GatewayOrderID).
		Msg("gateway order created")

	return &Checkout{
		TransactionID:    txn.ID,
		OrderReference:   txn.OrderReference,
		Gateway:          gw.Name(),
		GatewayOrderID:   created.GatewayOrderID,
		PaymentSessionID: created.PaymentSessionID,
		CheckoutURL:      created.CheckoutURL,
		CallbackURL:      strings.ReplaceAll(returnURL, gateway.ReturnURLOrderToken, url.QueryEscape(created.GatewayOrderID)),
		PublicKey:        s.publicKeys[gw.Provider()],
		Amount:           txn.PaymentAmount,
		Currency:         txn.Currency,
	}, nil
}

func (s *OrderService) findForm(ctx context.Context, formID string) (*models.FormConfig, error) {
	formID = strings.TrimSpace(formID)
	query := s.db.WithContext(ctx)
	if id, err := uuid.Parse(formID); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("external_form_id = ?", formID)
	}

	var form models.FormConfig
	if err := query.First(&form).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

// returnURL is where the gateway sends the purchaser back. The order id
// placeholder is filled in by each gateway.
func (s *OrderService) returnURL(gatewayName string, formID uuid.UUID, email string) string {
	q := url.Values{}
	q.Set("form_id", formID.String())
	q.Set("email", email)
	return fmt.Sprintf("%s/api/payments/%s/verify?order_id=%s&%s", s.baseURL, gatewayName, gateway.ReturnURLOrderToken, q.Encode())
}

// NewOrderReference returns a merchant-side order id accepted by every gateway.
func NewOrderReference() string {
	return "pf_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
