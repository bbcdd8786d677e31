package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/itbhushan/payform/internal/commission"
	"github.com/itbhushan/payform/internal/database"
	"github.com/itbhushan/payform/internal/gateway"
	"github.com/itbhushan/payform/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// fakeGateway answers status calls from a map and records created orders.
type fakeGateway struct {
	name     string
	provider string

	mu       sync.Mutex
	statuses map[string]*gateway.PaymentStatus
	err      error
	created  []gateway.OrderRequest
	calls    int
}

func newFakeGateway(name, provider string) *fakeGateway {
	return &fakeGateway{name: name, provider: provider, statuses: map[string]*gateway.PaymentStatus{}}
}

func (f *fakeGateway) Name() string     { return f.name }
func (f *fakeGateway) Provider() string { return f.provider }

func (f *fakeGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.CreatedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &gateway.CreatedOrder{
		GatewayOrderID:   "gw_" + req.OrderReference,
		PaymentSessionID: "session_" + req.OrderReference,
		Raw:              json.RawMessage(`{"ok":true}`),
	}, nil
}

func (f *fakeGateway) PaymentStatus(_ context.Context, id string) (*gateway.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	st, ok := f.statuses[id]
	if !ok {
		return &gateway.PaymentStatus{Provider: f.provider, GatewayOrderID: id, Status: "ACTIVE"}, nil
	}
	return st, nil
}

func (f *fakeGateway) setPaid(id string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = &gateway.PaymentStatus{
		Provider:       f.provider,
		GatewayOrderID: id,
		PaymentID:      "pay_" + id,
		Status:         "PAID",
		Paid:           true,
		Amount:         amount,
		Currency:       "INR",
		Raw:            json.RawMessage(`{"order_status":"PAID"}`),
	}
}

func seedForm(t *testing.T, db *gorm.DB, provider string, amount string) models.FormConfig {
	t.Helper()
	form := models.FormConfig{
		AdminID:         uuid.New(),
		ExternalFormID:  "gf_" + uuid.NewString()[:8],
		Title:           "Workshop Registration",
		ProductName:     "Workshop Ticket",
		Amount:          decimal.RequireFromString(amount),
		Currency:        "INR",
		PaymentProvider: provider,
		IsActive:        true,
	}
	require.NoError(t, db.Create(&form).Error)
	return form
}

func seedPending(t *testing.T, db *gorm.DB, form models.FormConfig, provider, gatewayOrderID string) models.Transaction {
	t.Helper()
	txn := models.Transaction{
		FormID:          form.ID,
		AdminID:         form.AdminID,
		CustomerEmail:   "buyer@example.com",
		ProductName:     form.ProductName,
		PaymentAmount:   form.Amount,
		Currency:        "INR",
		Status:          models.TransactionStatusPending,
		PaymentProvider: provider,
		OrderReference:  NewOrderReference(),
		GatewayOrderID:  gatewayOrderID,
	}
	require.NoError(t, db.Create(&txn).Error)
	return txn
}

func newReconciler(db *gorm.DB, gw gateway.Gateway) *ReconcileService {
	return NewReconcileService(db, gateway.NewRegistry(gw), commission.DefaultSchedule(), nil, RetryPolicy{
		Delay:       time.Minute,
		MaxAttempts: 3,
		BatchSize:   10,
	})
}

func TestReconcileMarksTransactionPaid(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	form := seedForm(t, db, "cashfree", "1000")
	txn := seedPending(t, db, form, "cashfree", "order_1")
	gw.setPaid("order_1", decimal.NewFromInt(1000))

	svc := newReconciler(db, gw)
	res, err := svc.Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_1", FormID: &form.ID, Email: "buyer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, "28.00", res.Transaction.GatewayFee.StringFixed(2))
	assert.Equal(t, "30.00", res.Transaction.PlatformCommission.StringFixed(2))
	assert.Equal(t, "942.00", res.Transaction.NetAmountToAdmin.StringFixed(2))

	var stored models.Transaction
	require.NoError(t, db.First(&stored, "id = ?", txn.ID).Error)
	assert.Equal(t, models.TransactionStatusPaid, stored.Status)
	assert.Equal(t, "pay_order_1", stored.GatewayPaymentID)
	assert.NotNil(t, stored.PaidAt)
	assert.True(t, stored.PaymentAmount.Equal(stored.GatewayFee.Add(stored.PlatformCommission).Add(stored.NetAmountToAdmin)))

	var records []models.PlatformCommission
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, txn.ID, records[0].TransactionID)
	assert.Equal(t, "30.00", records[0].CommissionAmount.StringFixed(2))
	assert.Equal(t, "3.00", records[0].CommissionRate.StringFixed(2))
}

func TestReconcileTwiceIsNoOp(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("razorpay", "razorpay")
	form := seedForm(t, db, "razorpay", "1000")
	seedPending(t, db, form, "razorpay", "order_Rz1")
	gw.setPaid("order_Rz1", decimal.NewFromInt(1000))

	svc := newReconciler(db, gw)
	req := ReconcileRequest{Gateway: "razorpay", GatewayOrderID: "order_Rz1"}

	first, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, first.Outcome)

	second, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)
	assert.Equal(t, "23.00", second.Transaction.GatewayFee.StringFixed(2))
	assert.Equal(t, "947.00", second.Transaction.NetAmountToAdmin.StringFixed(2))

	var count int64
	require.NoError(t, db.Model(&models.PlatformCommission{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconcileNotPaidWritesNothing(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	form := seedForm(t, db, "cashfree", "500")
	txn := seedPending(t, db, form, "cashfree", "order_open")

	res, err := newReconciler(db, gw).Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_open"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPaid, res.Outcome)
	assert.Equal(t, "ACTIVE", res.GatewayStatus)

	var stored models.Transaction
	require.NoError(t, db.First(&stored, "id = ?", txn.ID).Error)
	assert.Equal(t, models.TransactionStatusPending, stored.Status)
}

func TestReconcileMissingRowQueuesRetry(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	gw.setPaid("order_ghost", decimal.NewFromInt(250))

	_, err := newReconciler(db, gw).Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_ghost", Email: "x@y.in"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	var scheduled *RetryScheduledError
	require.True(t, errors.As(err, &scheduled))
	assert.Equal(t, time.Minute, scheduled.RetryAfter)

	var retries []models.ReconciliationRetry
	require.NoError(t, db.Find(&retries).Error)
	require.Len(t, retries, 1)
	assert.Equal(t, "cashfree", retries[0].Provider)
	assert.Equal(t, "order_ghost", retries[0].GatewayOrderID)
	assert.Equal(t, models.RetryStatusQueued, retries[0].Status)
	assert.Equal(t, "x@y.in", retries[0].CustomerEmail)

	var count int64
	require.NoError(t, db.Model(&models.PlatformCommission{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEnqueueRetryIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newReconciler(db, newFakeGateway("cashfree", "cashfree"))
	req := ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_dup"}

	require.NoError(t, svc.EnqueueRetry(context.Background(), req, errors.New("first")))
	require.NoError(t, svc.EnqueueRetry(context.Background(), req, errors.New("second")))

	var retries []models.ReconciliationRetry
	require.NoError(t, db.Find(&retries).Error)
	require.Len(t, retries, 1)
	assert.Equal(t, "second", retries[0].LastError)
}

func TestReconcileGatewayRejectionIsNotQueued(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("stripe", "stripe")
	gw.err = &gateway.Error{Provider: "stripe", Operation: "get session", StatusCode: 404, Body: "no such session"}

	_, err := newReconciler(db, gw).Reconcile(context.Background(), ReconcileRequest{Gateway: "stripe", GatewayOrderID: "cs_missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.NotContains(t, err.Error(), "no such session")

	var count int64
	require.NoError(t, db.Model(&models.ReconciliationRetry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileGatewayOutageIsQueued(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	gw.err = &gateway.Error{Provider: "cashfree", Operation: "get order", StatusCode: 502}

	_, err := newReconciler(db, gw).Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_x"})
	var scheduled *RetryScheduledError
	require.True(t, errors.As(err, &scheduled))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestReconcileAmountMismatch(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	form := seedForm(t, db, "cashfree", "1000")
	seedPending(t, db, form, "cashfree", "order_cheap")
	gw.setPaid("order_cheap", decimal.NewFromInt(1))

	_, err := newReconciler(db, gw).Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_cheap"})
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestReconcileUnknownGateway(t *testing.T) {
	db := newTestDB(t)
	_, err := newReconciler(db, newFakeGateway("cashfree", "cashfree")).Reconcile(context.Background(), ReconcileRequest{Gateway: "stripe", GatewayOrderID: "cs_1"})
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
}

func TestRunDueRetriesResolvesOnceRowAppears(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	gw.setPaid("order_late", decimal.NewFromInt(1000))

	svc := newReconciler(db, gw)
	clock := time.Now()
	svc.now = func() time.Time { return clock }

	_, err := svc.Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_late"})
	require.Error(t, err)

	n, err := svc.RunDueRetries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "retry is not due yet")

	form := seedForm(t, db, "cashfree", "1000")
	txn := seedPending(t, db, form, "cashfree", "order_late")

	clock = clock.Add(2 * time.Minute)
	n, err = svc.RunDueRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var retry models.ReconciliationRetry
	require.NoError(t, db.First(&retry).Error)
	assert.Equal(t, models.RetryStatusResolved, retry.Status)
	assert.Equal(t, 1, retry.Attempts)
	assert.NotNil(t, retry.ResolvedAt)

	var stored models.Transaction
	require.NoError(t, db.First(&stored, "id = ?", txn.ID).Error)
	assert.Equal(t, models.TransactionStatusPaid, stored.Status)
}

func TestRunDueRetriesExhausts(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	gw.setPaid("order_never", decimal.NewFromInt(100))

	svc := newReconciler(db, gw)
	clock := time.Now()
	svc.now = func() time.Time { return clock }

	_, err := svc.Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_never"})
	require.Error(t, err)

	for i := 0; i < 3; i++ {
		clock = clock.Add(2 * time.Minute)
		_, err := svc.RunDueRetries(context.Background())
		require.NoError(t, err)
	}

	var retry models.ReconciliationRetry
	require.NoError(t, db.First(&retry).Error)
	assert.Equal(t, models.RetryStatusExhausted, retry.Status)
	assert.Equal(t, 3, retry.Attempts)
	assert.Contains(t, retry.LastError, ErrTransactionNotFound.Error())

	clock = clock.Add(2 * time.Minute)
	n, err := svc.RunDueRetries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateOrderOpensGatewayOrder(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree_link", "cashfree")
	form := seedForm(t, db, "cashfree_link", "499.50")

	svc := NewOrderService(db, gateway.NewRegistry(gw), commission.DefaultSchedule(), "https://payform.example/", nil)
	checkout, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		FormID:        form.ExternalFormID,
		CustomerEmail: " Buyer@Example.com ",
		CustomerName:  "Asha",
		CustomerPhone: "9876543210",
	})
	require.NoError(t, err)
	assert.Equal(t, "cashfree_link", checkout.Gateway)
	assert.Equal(t, "gw_"+checkout.OrderReference, checkout.GatewayOrderID)
	assert.Equal(t, "499.5", checkout.Amount.String())

	require.Len(t, gw.created, 1)
	sent := gw.created[0]
	assert.Equal(t, "buyer@example.com", sent.CustomerEmail)
	assert.Equal(t, "Workshop Ticket", sent.Description)
	assert.Contains(t, sent.ReturnURL, "https://payform.example/api/payments/cashfree_link/verify?order_id={order_id}&")
	assert.Contains(t, sent.ReturnURL, "form_id="+form.ID.String())

	var stored models.Transaction
	require.NoError(t, db.First(&stored, "id = ?", checkout.TransactionID).Error)
	assert.Equal(t, models.TransactionStatusPending, stored.Status)
	assert.Equal(t, "cashfree", stored.PaymentProvider)
	assert.Equal(t, checkout.GatewayOrderID, stored.GatewayOrderID)
	assert.True(t, stored.PaymentAmount.Equal(decimal.RequireFromString("499.50")))
}

func TestCreateOrderRejections(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	svc := NewOrderService(db, gateway.NewRegistry(gw), commission.DefaultSchedule(), "http://localhost", nil)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderInput{FormID: "missing", CustomerEmail: "a@b.in"})
	assert.ErrorIs(t, err, ErrFormNotFound)

	_, err = svc.CreateOrder(ctx, CreateOrderInput{FormID: "x", CustomerEmail: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	inactive := seedForm(t, db, "cashfree", "100")
	require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)
	_, err = svc.CreateOrder(ctx, CreateOrderInput{FormID: inactive.ID.String(), CustomerEmail: "a@b.in"})
	assert.ErrorIs(t, err, ErrFormInactive)

	tiny := seedForm(t, db, "cashfree", "2")
	_, err = svc.CreateOrder(ctx, CreateOrderInput{FormID: tiny.ID.String(), CustomerEmail: "a@b.in"})
	assert.ErrorIs(t, err, commission.ErrAmountBelowFees)

	stripeForm := seedForm(t, db, "stripe", "100")
	_, err = svc.CreateOrder(ctx, CreateOrderInput{FormID: stripeForm.ID.String(), CustomerEmail: "a@b.in"})
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
}

func TestCreateOrderGatewayFailureMarksFailed(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("razorpay", "razorpay")
	gw.err = &gateway.Error{Provider: "razorpay", Operation: "create order", StatusCode: 500}
	form := seedForm(t, db, "razorpay", "100")

	svc := NewOrderService(db, gateway.NewRegistry(gw), commission.DefaultSchedule(), "http://localhost", nil)
	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{FormID: form.ID.String(), CustomerEmail: "a@b.in"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	var stored models.Transaction
	require.NoError(t, db.First(&stored, "form_id = ?", form.ID).Error)
	assert.Equal(t, models.TransactionStatusFailed, stored.Status)
}

func TestReconcilePaidOnFailedTransaction(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	form := seedForm(t, db, "cashfree", "1000")
	txn := seedPending(t, db, form, "cashfree", "order_failed")
	require.NoError(t, db.Model(&txn).Update("status", models.TransactionStatusFailed).Error)
	gw.setPaid("order_failed", decimal.NewFromInt(1000))

	res, err := newReconciler(db, gw).Reconcile(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_failed"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrTransactionNotPending)

	var scheduled *RetryScheduledError
	assert.False(t, errors.As(err, &scheduled))

	var stored models.Transaction
	require.NoError(t, db.First(&stored, "id = ?", txn.ID).Error)
	assert.Equal(t, models.TransactionStatusFailed, stored.Status)
	assert.True(t, stored.PlatformCommission.IsZero())

	var count int64
	require.NoError(t, db.Model(&models.PlatformCommission{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEnqueueRetryRestartsExhaustedRow(t *testing.T) {
	db := newTestDB(t)
	svc := newReconciler(db, newFakeGateway("cashfree", "cashfree"))
	clock := time.Now().UTC().Truncate(time.Second)
	svc.now = func() time.Time { return clock }
	req := ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_again"}

	require.NoError(t, svc.EnqueueRetry(context.Background(), req, errors.New("first")))
	require.NoError(t, db.Model(&models.ReconciliationRetry{}).
		Where("gateway_order_id = ?", "order_again").
		Updates(map[string]any{"status": models.RetryStatusExhausted, "attempts": 3}).Error)

	clock = clock.Add(time.Hour)
	require.NoError(t, svc.EnqueueRetry(context.Background(), req, errors.New("second")))

	var retry models.ReconciliationRetry
	require.NoError(t, db.First(&retry, "gateway_order_id = ?", "order_again").Error)
	assert.Equal(t, models.RetryStatusQueued, retry.Status)
	assert.Zero(t, retry.Attempts)
	assert.True(t, retry.NextAttemptAt.After(clock), "next attempt is rescheduled from now")
	assert.Equal(t, "second", retry.LastError)

	require.NoError(t, svc.EnqueueRetry(context.Background(), req, errors.New("third")))
	var again models.ReconciliationRetry
	require.NoError(t, db.First(&again, "gateway_order_id = ?", "order_again").Error)
	assert.True(t, again.NextAttemptAt.Equal(retry.NextAttemptAt), "queued row keeps its schedule")
}
