package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/itbhushan/payform/internal/gateway"
	"github.com/itbhushan/payform/internal/models"
	"github.com/itbhushan/payform/internal/utils"
)

var (
	// ErrAccountExists is returned when the admin already has an account on the gateway.
	ErrAccountExists = errors.New("linked account already exists")
	// ErrAccountMissing is returned when bank details arrive before the account.
	ErrAccountMissing = errors.New("linked account not set up")
)

// Application actions recorded in sub_account_applications.
const (
	ActionCreateAccount = "create_account"
	ActionRequestRoute  = "request_route_product"
	ActionAttachBank    = "attach_bank_account"
	ActionCreateVendor  = "create_vendor"
	ActionUpdateBank    = "update_vendor_bank"
)

// RouteAccounts is the Razorpay Route surface used for linked accounts.
type RouteAccounts interface {
	CreateLinkedAccount(ctx context.Context, req gateway.LinkedAccountRequest) (*gateway.LinkedAccount, error)
	RequestRouteProduct(ctx context.Context, accountID string) (*gateway.RouteProduct, error)
	UpdateSettlement(ctx context.Context, accountID, productID string, settlement gateway.Settlement) (*gateway.RouteProduct, error)
}

// VendorAccounts is the Cashfree Easy Split surface used for vendors.
type VendorAccounts interface {
	CreateVendor(ctx context.Context, vendor gateway.CashfreeVendor) (*gateway.VendorResult, error)
	UpdateVendorBank(ctx context.Context, vendorID string, bank gateway.CashfreeBank) (*gateway.VendorResult, error)
}

// BankAccountInput is a settlement bank account.
type BankAccountInput struct {
	AccountHolderName string `json:"account_holder_name" validate:"required,max=100"`
	AccountNumber     string `json:"account_number" validate:"required,accountno"`
	IFSC              string `json:"ifsc" validate:"required,ifsc"`
}

// BusinessDetails describes the admin's business for gateway onboarding.
type BusinessDetails struct {
	BusinessName string            `json:"business_name" validate:"required,max=200"`
	BusinessType string            `json:"business_type" validate:"omitempty,oneof=individual proprietorship partnership private_limited public_limited llp trust society ngo"`
	ContactName  string            `json:"contact_name" validate:"required,max=100"`
	Email        string            `json:"email" validate:"required,email"`
	Phone        string            `json:"phone" validate:"required,inphone"`
	PAN          string            `json:"pan" validate:"omitempty,pan"`
	GSTIN        string            `json:"gstin" validate:"omitempty,gstin"`
	Category     string            `json:"category" validate:"omitempty,max=50"`
	Subcategory  string            `json:"subcategory" validate:"omitempty,max=50"`
	Street       string            `json:"street" validate:"omitempty,max=100"`
	City         string            `json:"city" validate:"omitempty,max=50"`
	State        string            `json:"state" validate:"omitempty,max=50"`
	PostalCode   string            `json:"postal_code" validate:"omitempty,number,len=6"`
	Bank         *BankAccountInput `json:"bank"`
}

func (d *BusinessDetails) normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.PAN = strings.ToUpper(strings.TrimSpace(d.PAN))
	d.GSTIN = strings.ToUpper(strings.TrimSpace(d.GSTIN))
	if d.BusinessType == "" {
		d.BusinessType = "individual"
	}
	if d.Bank != nil {
		d.Bank.normalize()
	}
}

func (b *BankAccountInput) normalize() {
	b.AccountNumber = strings.TrimSpace(b.AccountNumber)
	b.IFSC = strings.ToUpper(strings.TrimSpace(b.IFSC))
	b.AccountHolderName = strings.TrimSpace(b.AccountHolderName)
}

// AccountService onboards admins as Razorpay linked accounts and Cashfree vendors.
type AccountService struct {
	db      *gorm.DB
	route   RouteAccounts
	vendors VendorAccounts
}

// NewAccountService wires an AccountService. Either gateway may be nil when
// it is not configured.
func NewAccountService(db *gorm.DB, route RouteAccounts, vendors VendorAccounts) *AccountService {
	return &AccountService{db: db, route: route, vendors: vendors}
}

// NormalizeAccountStatus maps gateway account and product statuses onto
// pending, created, activated or rejected.
func NormalizeAccountStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "activated", "active":
		return models.AccountStatusActivated
	case "suspended", "rejected", "blocked", "deleted":
		return models.AccountStatusRejected
	case "created", "requested", "under_review", "needs_clarification", "in_bene_creation":
		return models.AccountStatusCreated
	default:
		return models.AccountStatusPending
	}
}

// Config returns the admin's provider config.
func (s *AccountService) Config(ctx context.Context, adminID uuid.UUID, provider string) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	if err := s.db.WithContext(ctx).
		Where("admin_id = ? AND provider = ?", adminID, provider).
		First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListConfigs returns every provider config of the admin.
func (s *AccountService) ListConfigs(ctx context.Context, adminID uuid.UUID) ([]models.ProviderConfig, error) {
	var configs []models.ProviderConfig
	err := s.db.WithContext(ctx).Where("admin_id = ?", adminID).Order("provider").Find(&configs).Error
	return configs, err
}

// CreateRazorpayLinkedAccount creates a Route linked account for the admin and
// requests the route product on it.
func (s *AccountService) CreateRazorpayLinkedAccount(ctx context.Context, adminID uuid.UUID, details BusinessDetails) (*models.ProviderConfig, error) {
	details.normalize()
	if err := utils.ValidateStruct(details); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if s.route == nil {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotConfigured, gateway.ProviderRazorpay)
	}
	existing, err := s.Config(ctx, adminID, gateway.ProviderRazorpay)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && existing.AccountID != "" {
		if existing.ProductID != "" {
			return nil, ErrAccountExists
		}
		// The account exists but its route product request never went through.
		return s.requestRouteProduct(ctx, adminID, existing.AccountID, existing.AccountStatus, details.Bank)
	}

	req := gateway.LinkedAccountRequest{
		Email:              details.Email,
		Phone:              details.Phone,
		Type:               "route",
		ReferenceID:        referenceID(adminID),
		LegalBusinessName:  details.BusinessName,
		BusinessType:       details.BusinessType,
		ContactName:        details.ContactName,
		CustomerFacingName: details.BusinessName,
		Profile:            razorpayProfile(details),
	}
	if details.PAN != "" || details.GSTIN != "" {
		legal := map[string]string{}
		if details.PAN != "" {
			legal["pan"] = details.PAN
		}
		if details.GSTIN != "" {
			legal["gst"] = details.GSTIN
		}
		req.LegalInfo = legal
	}

	logged := details
	if details.Bank != nil {
		logged.Bank = maskedBank(*details.Bank)
	}

	account, err := s.route.CreateLinkedAccount(ctx, req)
	if err != nil {
		s.recordApplication(ctx, adminID, gateway.ProviderRazorpay, ActionCreateAccount, "", models.AccountStatusPending, logged, nil, err)
		return nil, gatewayFailure(gateway.ProviderRazorpay, "create_account", err)
	}
	status := NormalizeAccountStatus(account.Status)
	s.recordApplication(ctx, adminID, gateway.ProviderRazorpay, ActionCreateAccount, account.ID, status, logged, account.Raw, nil)

	cfg := models.ProviderConfig{
		AdminID:       adminID,
		Provider:      gateway.ProviderRazorpay,
		AccountID:     account.ID,
		AccountStatus: status,
		BusinessName:  details.BusinessName,
		ContactName:   details.ContactName,
		Email:         details.Email,
		Phone:         details.Phone,
		PAN:           details.PAN,
		GSTIN:         details.GSTIN,
	}
	if err := s.upsertConfig(ctx, &cfg); err != nil {
		return nil, err
	}

	return s.requestRouteProduct(ctx, adminID, account.ID, status, details.Bank)
}

// requestRouteProduct requests the route product on a created linked account
// and attaches the bank account when one was given.
func (s *AccountService) requestRouteProduct(ctx context.Context, adminID uuid.UUID, accountID, status string, bank *BankAccountInput) (*models.ProviderConfig, error) {
	product, err := s.route.RequestRouteProduct(ctx, accountID)
	if err != nil {
		s.recordApplication(ctx, adminID, gateway.ProviderRazorpay, ActionRequestRoute, accountID, status, nil, nil, err)
		return nil, gatewayFailure(gateway.ProviderRazorpay, "request_product", err)
	}
	productStatus := NormalizeAccountStatus(product.ActivationStatus)
	if productStatus == models.AccountStatusPending {
		productStatus = models.AccountStatusCreated
	}
	s.recordApplication(ctx, adminID, gateway.ProviderRazorpay, ActionRequestRoute, accountID, productStatus, nil, product.Raw, nil)

	if err := s.db.WithContext(ctx).Model(&models.ProviderConfig{}).
		Where("admin_id = ? AND provider = ?", adminID, gateway.ProviderRazorpay).
		Updates(map[string]any{"product_id": product.ID, "account_status": productStatus}).Error; err != nil {
		return nil, err
	}

	if bank != nil {
		return s.AttachRazorpayBankAccount(ctx, adminID, *bank)
	}
	return s.Config(ctx, adminID, gateway.ProviderRazorpay)
}

// AttachRazorpayBankAccount sets the settlement account of the admin's route product.
func (s *AccountService) AttachRazorpayBankAccount(ctx context.Context, adminID uuid.UUID, bank BankAccountInput) (*models.ProviderConfig, error) {
	bank.normalize()
	if err := utils.ValidateStruct(bank); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if s.route == nil {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotConfigured, gateway.ProviderRazorpay)
	}

	cfg, err := s.Config(ctx, adminID, gateway.ProviderRazorpay)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountMissing
		}
		return nil, err
	}
	if cfg.AccountID == "" || cfg.ProductID == "" {
		return nil, ErrAccountMissing
	}

	product, err := s.route.UpdateSettlement(ctx, cfg.AccountID, cfg.ProductID, gateway.Settlement{
		AccountNumber:   bank.AccountNumber,
		IFSCCode:        bank.IFSC,
		BeneficiaryName: bank.AccountHolderName,
	})
	if err != nil {
		s.recordApplication(ctx, adminID, gateway.ProviderRazorpay, ActionAttachBank, cfg.AccountID, cfg.AccountStatus, maskedBank(bank), nil, err)
		return nil, gatewayFailure(gateway.ProviderRazorpay, "update_settlement", err)
	}

	status := NormalizeAccountStatus(product.ActivationStatus)
	if status == models.AccountStatusPending {
		status = cfg.AccountStatus
	}
	s.recordApplication(ctx, adminID, gateway.ProviderRazorpay, ActionAttachBank, cfg.AccountID, status, maskedBank(bank), product.Raw, nil)

	return s.saveBank(ctx, cfg, bank, status)
}

// CreateCashfreeVendor registers the admin as an Easy Split vendor.
func (s *AccountService) CreateCashfreeVendor(ctx context.Context, adminID uuid.UUID, details BusinessDetails) (*models.ProviderConfig, error) {
	details.normalize()
	if err := utils.ValidateStruct(details); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if details.Bank == nil {
		return nil, fmt.Errorf("%w: bank is required", ErrInvalidInput)
	}
	if s.vendors == nil {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotConfigured, gateway.ProviderCashfree)
	}
	if existing, err := s.Config(ctx, adminID, gateway.ProviderCashfree); err == nil && existing.AccountID != "" {
		return nil, ErrAccountExists
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	vendor := gateway.CashfreeVendor{
		VendorID:       referenceID(adminID),
		Status:         "ACTIVE",
		Name:           details.BusinessName,
		Email:          details.Email,
		Phone:          details.Phone,
		VerifyAccount:  true,
		ScheduleOption: 1,
		Bank: &gateway.CashfreeBank{
			AccountNumber: details.Bank.AccountNumber,
			AccountHolder: details.Bank.AccountHolderName,
			IFSC:          details.Bank.IFSC,
		},
	}
	vendor.SetKYC(details.PAN, details.GSTIN)

	logged := details
	logged.Bank = maskedBank(*details.Bank)

	result, err := s.vendors.CreateVendor(ctx, vendor)
	if err != nil {
		s.recordApplication(ctx, adminID, gateway.ProviderCashfree, ActionCreateVendor, vendor.VendorID, models.AccountStatusPending, logged, nil, err)
		return nil, gatewayFailure(gateway.ProviderCashfree, "create_vendor", err)
	}

	vendorID := result.VendorID
	if vendorID == "" {
		vendorID = vendor.VendorID
	}
	status := NormalizeAccountStatus(result.Status)
	if status == models.AccountStatusPending {
		status = models.AccountStatusCreated
	}
	s.recordApplication(ctx, adminID, gateway.ProviderCashfree, ActionCreateVendor, vendorID, status, logged, result.Raw, nil)

	cfg := models.ProviderConfig{
		AdminID:           adminID,
		Provider:          gateway.ProviderCashfree,
		AccountID:         vendorID,
		AccountStatus:     status,
		BusinessName:      details.BusinessName,
		ContactName:       details.ContactName,
		Email:             details.Email,
		Phone:             details.Phone,
		PAN:               details.PAN,
		GSTIN:             details.GSTIN,
		AccountHolderName: details.Bank.AccountHolderName,
		BankAccountNumber: details.Bank.AccountNumber,
		BankAccountMasked: utils.MaskAccountNumber(details.Bank.AccountNumber),
		IFSC:              details.Bank.IFSC,
	}
	if err := s.upsertConfig(ctx, &cfg); err != nil {
		return nil, err
	}
	return s.Config(ctx, adminID, gateway.ProviderCashfree)
}

// UpdateCashfreeBankDetails replaces the settlement account of the admin's vendor.
func (s *AccountService) UpdateCashfreeBankDetails(ctx context.Context, adminID uuid.UUID, bank BankAccountInput) (*models.ProviderConfig, error) {
	bank.normalize()
	if err := utils.ValidateStruct(bank); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if s.vendors == nil {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotConfigured, gateway.ProviderCashfree)
	}

	cfg, err := s.Config(ctx, adminID, gateway.ProviderCashfree)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountMissing
		}
		return nil, err
	}
	if cfg.AccountID == "" {
		return nil, ErrAccountMissing
	}

	result, err := s.vendors.UpdateVendorBank(ctx, cfg.AccountID, gateway.CashfreeBank{
		AccountNumber: bank.AccountNumber,
		AccountHolder: bank.AccountHolderName,
		IFSC:          bank.IFSC,
	})
	if err != nil {
		s.recordApplication(ctx, adminID, gateway.ProviderCashfree, ActionUpdateBank, cfg.AccountID, cfg.AccountStatus, maskedBank(bank), nil, err)
		return nil, gatewayFailure(gateway.ProviderCashfree, "update_vendor", err)
	}

	status := NormalizeAccountStatus(result.Status)
	if status == models.AccountStatusPending {
		status = cfg.AccountStatus
	}
	s.recordApplication(ctx, adminID, gateway.ProviderCashfree, ActionUpdateBank, cfg.AccountID, status, maskedBank(bank), result.Raw, nil)

	return s.saveBank(ctx, cfg, bank, status)
}

func (s *AccountService) saveBank(ctx context.Context, cfg *models.ProviderConfig, bank BankAccountInput, status string) (*models.ProviderConfig, error) {
	if err := s.db.WithContext(ctx).Model(cfg).Updates(map[string]any{
		"account_holder_name": bank.AccountHolderName,
		"bank_account_number": bank.AccountNumber,
		"bank_account_masked": utils.MaskAccountNumber(bank.AccountNumber),
		"ifsc":                bank.IFSC,
		"account_status":      status,
	}).Error; err != nil {
		return nil, err
	}
	return s.Config(ctx, cfg.AdminID, cfg.Provider)
}

func (s *AccountService) upsertConfig(ctx context.Context, cfg *models.ProviderConfig) error {
	columns := []string{"account_id", "account_status", "business_name", "contact_name", "email", "phone", "pan", "gstin", "updated_at"}
	if cfg.BankAccountNumber != "" {
		columns = append(columns, "account_holder_name", "bank_account_number", "bank_account_masked", "ifsc")
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "admin_id"}, {Name: "provider"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(cfg).Error
}

func (s *AccountService) recordApplication(ctx context.Context, adminID uuid.UUID, provider, action, accountID, status string, request any, response json.RawMessage, callErr error) {
	app := models.SubAccountApplication{
		AdminID:   adminID,
		Provider:  provider,
		Action:    action,
		AccountID: accountID,
		Status:    status,
		Response:  datatypes.JSON(response),
	}
	if request != nil {
		if raw, err := json.Marshal(request); err == nil {
			app.Request = datatypes.JSON(raw)
		}
	}
	if callErr != nil {
		app.Error = callErr.Error()
	}
	if err := s.db.WithContext(ctx).Create(&app).Error; err != nil {
		log.Error().Err(err).Str("provider", provider).Str("action", action).Msg("failed to record sub-account application")
	}
}

func gatewayFailure(provider, operation string, err error) error {
	gatewayErrorsTotal.WithLabelValues(provider, operation).Inc()
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		log.Warn().Str("gateway", provider).Str("operation", operation).Int("status", gwErr.StatusCode).Str("body", gwErr.Body).Msg("gateway call failed")
		if gwErr.StatusCode < 500 {
			return fmt.Errorf("%w: %w", ErrGatewayRejected, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
}

func maskedBank(bank BankAccountInput) *BankAccountInput {
	bank.AccountNumber = utils.MaskAccountNumber(bank.AccountNumber)
	return &bank
}

// referenceID is a stable gateway-side id for an admin, within Razorpay's
// 20 character reference limit.
func referenceID(adminID uuid.UUID) string {
	return "pf" + strings.ReplaceAll(adminID.String(), "-", "")[:18]
}

func razorpayProfile(d BusinessDetails) map[string]any {
	category := d.Category
	if category == "" {
		category = "education"
	}
	profile := map[string]any{"category": category}
	if d.Subcategory != "" {
		profile["subcategory"] = d.Subcategory
	}
	if d.Street != "" || d.City != "" {
		profile["addresses"] = map[string]any{
			"registered": map[string]string{
				"street1":     d.Street,
				"street2":     d.Street,
				"city":        d.City,
				"state":       d.State,
				"postal_code": d.PostalCode,
				"country":     "IN",
			},
		}
	}
	return profile
}
