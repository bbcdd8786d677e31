package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/itbhushan/payform/internal/commission"
	"github.com/itbhushan/payform/internal/gateway"
	"github.com/itbhushan/payform/internal/models"
)

// Outcome is the result of a reconciliation attempt.
type Outcome string

const (
	OutcomePaid             Outcome = "paid"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeNotPaid          Outcome = "not_paid"
)

var (
	// ErrTransactionNotFound means the gateway reports a payment PayForm has no row for.
	ErrTransactionNotFound = errors.New("transaction not found for gateway order")
	// ErrGatewayUnavailable wraps transport failures and 5xx answers from a gateway.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrGatewayRejected wraps 4xx answers from a gateway.
	ErrGatewayRejected = errors.New("gateway rejected request")
	// ErrAmountMismatch means the gateway charged a different amount than the transaction's.
	ErrAmountMismatch = errors.New("paid amount does not match transaction")
	// ErrTransactionNotPending means the gateway reports a payment for a
	// transaction that was closed without being paid.
	ErrTransactionNotPending = errors.New("transaction is not pending")

	errStorage = errors.New("storage failure")
)

// RetryScheduledError is returned when a reconciliation failed in a way that
// the retry worker will pick up later.
type RetryScheduledError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryScheduledError) Error() string {
	return fmt.Sprintf("reconciliation queued for retry: %v", e.Err)
}

func (e *RetryScheduledError) Unwrap() error { return e.Err }

// ReconcileRequest identifies the gateway order to confirm. Gateway is the
// registry name, e.g. "cashfree_link".
type ReconcileRequest struct {
	Gateway        string
	GatewayOrderID string
	FormID         *uuid.UUID
	Email          string
}

// ReconcileResult describes what reconciliation did.
type ReconcileResult struct {
	Outcome       Outcome
	GatewayStatus string
	Transaction   *models.Transaction
}

// RetryPolicy controls the reconciliation retry queue.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
	BatchSize   int
}

// ReconcileService confirms gateway payments and records their commission split.
type ReconcileService struct {
	db       *gorm.DB
	gateways *gateway.Registry
	schedule *commission.Schedule
	telegram *TelegramService
	policy   RetryPolicy
	now      func() time.Time
}

// NewReconcileService wires a ReconcileService.
func NewReconcileService(db *gorm.DB, gateways *gateway.Registry, schedule *commission.Schedule, telegram *TelegramService, policy RetryPolicy) *ReconcileService {
	if policy.Delay <= 0 {
		policy.Delay = 2 * time.Minute
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 10
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = 50
	}
	return &ReconcileService{
		db:       db,
		gateways: gateways,
		schedule: schedule,
		telegram: telegram,
		policy:   policy,
		now:      time.Now,
	}
}

// Reconcile asks the gateway for the order's status and, when paid, moves the
// local transaction from pending to paid with its commission split. Failures
// that may heal on their own are queued and reported as *RetryScheduledError.
func (s *ReconcileService) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	req.Gateway = strings.ToLower(strings.TrimSpace(req.Gateway))
	req.GatewayOrderID = strings.TrimSpace(req.GatewayOrderID)
	if req.GatewayOrderID == "" {
		return nil, errors.New("gateway order id is required")
	}

	res, err := s.apply(ctx, req)
	if err == nil {
		reconciliationsTotal.WithLabelValues(req.Gateway, string(res.Outcome)).Inc()
		return res, nil
	}

	if !retryable(err) {
		reconciliationsTotal.WithLabelValues(req.Gateway, "error").Inc()
		return nil, err
	}

	if qerr := s.EnqueueRetry(ctx, req, err); qerr != nil {
		log.Error().Err(qerr).Str("gateway", req.Gateway).Str("order_id", req.GatewayOrderID).Msg("failed to queue reconciliation retry")
		reconciliationsTotal.WithLabelValues(req.Gateway, "error").Inc()
		return nil, errors.Join(err, qerr)
	}
	reconciliationsTotal.WithLabelValues(req.Gateway, "retry_scheduled").Inc()
	return nil, &RetryScheduledError{Err: err, RetryAfter: s.policy.Delay}
}

func (s *ReconcileService) apply(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	gw, err := s.gateways.Get(req.Gateway)
	if err != nil {
		return nil, err
	}

	status, err := gw.PaymentStatus(ctx, req.GatewayOrderID)
	if err != nil {
		gatewayErrorsTotal.WithLabelValues(gw.Name(), "payment_status").Inc()
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			log.Warn().Str("gateway", gw.Name()).Int("status", gwErr.StatusCode).Str("body", gwErr.Body).Msg("gateway status call failed")
			if gwErr.StatusCode < 500 {
				return nil, fmt.Errorf("%w: %w", ErrGatewayRejected, err)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	if !status.Paid {
		log.Info().Str("gateway", gw.Name()).Str("order_id", req.GatewayOrderID).Str("status", status.Status).Msg("order not paid yet")
		return &ReconcileResult{Outcome: OutcomeNotPaid, GatewayStatus: status.Status}, nil
	}

	txn, err := s.findTransaction(ctx, gw.Provider(), req)
	if err != nil {
		return nil, err
	}

	if req.Email != "" && !strings.EqualFold(req.Email, txn.CustomerEmail) {
		log.Warn().Str("transaction_id", txn.ID.String()).Msg("callback email differs from transaction email")
	}

	if txn.Status == models.TransactionStatusPaid {
		return &ReconcileResult{Outcome: OutcomeAlreadyProcessed, GatewayStatus: status.Status, Transaction: txn}, nil
	}
	if txn.Status != models.TransactionStatusPending {
		return nil, s.paidNotPending(txn, gw.Name(), req.GatewayOrderID)
	}

	if !status.Amount.IsZero() && !status.Amount.Equal(txn.PaymentAmount) {
		log.Error().
			Str("transaction_id", txn.ID.String()).
			Str("expected", txn.PaymentAmount.StringFixed(2)).
			Str("charged", status.Amount.StringFixed(2)).
			Msg("gateway amount mismatch")
		return nil, ErrAmountMismatch
	}

	split, err := s.schedule.Split(txn.PaymentProvider, txn.PaymentAmount)
	if err != nil {
		return nil, fmt.Errorf("split transaction %s: %w", txn.ID, err)
	}

	paidAt := s.now()
	applied := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
			Updates(map[string]any{
				"status":              models.TransactionStatusPaid,
				"gateway_payment_id":  status.PaymentID,
				"gateway_fee":         split.GatewayFee,
				"platform_commission": split.PlatformCommission,
				"net_amount_to_admin": split.NetAmount,
				"paid_at":             paidAt,
				"gateway_payload":     datatypes.JSON(status.Raw),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		record := models.PlatformCommission{
			TransactionID:    txn.ID,
			AdminID:          txn.AdminID,
			FormID:           txn.FormID,
			PaymentProvider:  txn.PaymentProvider,
			GrossAmount:      split.GrossAmount,
			GatewayFee:       split.GatewayFee,
			CommissionAmount: split.PlatformCommission,
			NetAmount:        split.NetAmount,
			CommissionRate:   split.PlatformPercent,
			Currency:         txn.Currency,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errStorage, err)
	}

	if !applied {
		stored, err := s.loadTransaction(ctx, txn.ID)
		if err != nil {
			return nil, err
		}
		if stored.Status != models.TransactionStatusPaid {
			return nil, s.paidNotPending(stored, gw.Name(), req.GatewayOrderID)
		}
		return &ReconcileResult{Outcome: OutcomeAlreadyProcessed, GatewayStatus: status.Status, Transaction: stored}, nil
	}

	txn.Status = models.TransactionStatusPaid
	txn.GatewayPaymentID = status.PaymentID
	txn.GatewayFee = split.GatewayFee
	txn.PlatformCommission = split.PlatformCommission
	txn.NetAmountToAdmin = split.NetAmount
	txn.PaidAt = &paidAt

	commissionRupees.WithLabelValues(txn.PaymentProvider).Add(split.PlatformCommission.InexactFloat64())
	log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("gateway", gw.Name()).
		Str("gross", split.GrossAmount.StringFixed(2)).
		Str("gateway_fee", split.GatewayFee.StringFixed(2)).
		Str("commission", split.PlatformCommission.StringFixed(2)).
		Str("net", split.NetAmount.StringFixed(2)).
		Msg("transaction paid")

	s.resolveRetry(ctx, req)
	s.notifyPaid(txn, split)

	return &ReconcileResult{Outcome: OutcomePaid, GatewayStatus: status.Status, Transaction: txn}, nil
}

func (s *ReconcileService) findTransaction(ctx context.Context, provider string, req ReconcileRequest) (*models.Transaction, error) {
	var txn models.Transaction
	query := s.db.WithContext(ctx).
		Preload("Form").
		Where("payment_provider = ? AND (gateway_order_id = ? OR order_reference = ?)", provider, req.GatewayOrderID, req.GatewayOrderID)
	if req.FormID != nil {
		query = query.Where("form_id = ?", *req.FormID)
	}

	if err := query.First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Str("provider", provider).Str("order_id", req.GatewayOrderID).Msg("paid gateway order has no local transaction")
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: %w", errStorage, err)
	}
	return &txn, nil
}

// paidNotPending logs and alerts on a gateway payment that cannot be applied
// because its transaction left the pending state some other way.
func (s *ReconcileService) paidNotPending(txn *models.Transaction, gatewayName, gatewayOrderID string) error {
	log.Error().
		Str("transaction_id", txn.ID.String()).
		Str("gateway", gatewayName).
		Str("order_id", gatewayOrderID).
		Str("status", txn.Status).
		Msg("gateway reports payment for a transaction that is not pending")

	if s.telegram != nil {
		ref, provider, status, amount := txn.OrderReference, txn.PaymentProvider, txn.Status, txn.PaymentAmount
		go func() {
			if err := s.telegram.NotifyPaidNotPending(ref, provider, gatewayOrderID, status, amount); err != nil {
				log.Warn().Err(err).Str("order_reference", ref).Msg("telegram review notification failed")
			}
		}()
	}
	return fmt.Errorf("%w: transaction %s is %s", ErrTransactionNotPending, txn.ID, txn.Status)
}

func (s *ReconcileService) loadTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).Preload("Form").First(&txn, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", errStorage, err)
	}
	return &txn, nil
}

func (s *ReconcileService) notifyPaid(txn *models.Transaction, split commission.Split) {
	if s.telegram == nil {
		return
	}
	note := PaymentNotification{
		OrderReference:     txn.OrderReference,
		Provider:           txn.PaymentProvider,
		CustomerEmail:      txn.CustomerEmail,
		GrossAmount:        split.GrossAmount,
		GatewayFee:         split.GatewayFee,
		PlatformCommission: split.PlatformCommission,
		NetAmount:          split.NetAmount,
	}
	if txn.Form != nil {
		note.FormTitle = txn.Form.Title
	}
	go func() {
		if err := s.telegram.NotifyPaymentReceived(note); err != nil {
			log.Warn().Err(err).Str("order_reference", note.OrderReference).Msg("telegram payment notification failed")
		}
	}()
}

// EnqueueRetry queues the request for the retry worker. A request already in
// the queue keeps its schedule and attempt count; a resolved or exhausted one
// starts over.
func (s *ReconcileService) EnqueueRetry(ctx context.Context, req ReconcileRequest, cause error) error {
	now := s.now()
	retry := models.ReconciliationRetry{
		Provider:       req.Gateway,
		GatewayOrderID: req.GatewayOrderID,
		FormID:         req.FormID,
		CustomerEmail:  req.Email,
		Status:         models.RetryStatusQueued,
		NextAttemptAt:  now.Add(s.policy.Delay),
		LastError:      cause.Error(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "gateway_order_id"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "status"}, Value: models.RetryStatusQueued},
				{Column: clause.Column{Name: "last_error"}, Value: cause.Error()},
				{Column: clause.Column{Name: "updated_at"}, Value: now},
				{Column: clause.Column{Name: "resolved_at"}, Value: nil},
				keepIfQueued("attempts", 0),
				keepIfQueued("next_attempt_at", retry.NextAttemptAt),
			},
		}).
		Create(&retry).Error
	if err != nil {
		return fmt.Errorf("queue retry: %w", err)
	}

	retryQueueEvents.WithLabelValues("queued").Inc()
	log.Warn().Err(cause).Str("gateway", req.Gateway).Str("order_id", req.GatewayOrderID).Msg("reconciliation queued for retry")
	return nil
}

// keepIfQueued keeps column on a row that is still queued and resets it to
// fresh otherwise.
func keepIfQueued(column string, fresh any) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value: gorm.Expr(
			"CASE WHEN reconciliation_retries.status = ? THEN reconciliation_retries."+column+" ELSE ? END",
			models.RetryStatusQueued, fresh,
		),
	}
}

func (s *ReconcileService) resolveRetry(ctx context.Context, req ReconcileRequest) {
	now := s.now()
	err := s.db.WithContext(ctx).
		Model(&models.ReconciliationRetry{}).
		Where("provider = ? AND gateway_order_id = ? AND status = ?", req.Gateway, req.GatewayOrderID, models.RetryStatusQueued).
		Updates(map[string]any{"status": models.RetryStatusResolved, "resolved_at": now}).Error
	if err != nil {
		log.Warn().Err(err).Str("order_id", req.GatewayOrderID).Msg("failed to resolve queued retry")
	}
}

// RunDueRetries re-runs queued reconciliations whose next attempt is due and
// returns how many it processed.
func (s *ReconcileService) RunDueRetries(ctx context.Context) (int, error) {
	var due []models.ReconciliationRetry
	if err := s.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.RetryStatusQueued, s.now()).
		Order("next_attempt_at").
		Limit(s.policy.BatchSize).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("load due retries: %w", err)
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		s.runRetry(ctx, &due[i])
	}
	return len(due), nil
}

func (s *ReconcileService) runRetry(ctx context.Context, retry *models.ReconciliationRetry) {
	req := ReconcileRequest{
		Gateway:        retry.Provider,
		GatewayOrderID: retry.GatewayOrderID,
		FormID:         retry.FormID,
		Email:          retry.CustomerEmail,
	}
	logger := log.With().Str("gateway", retry.Provider).Str("order_id", retry.GatewayOrderID).Int("attempt", retry.Attempts+1).Logger()

	res, err := s.apply(ctx, req)
	now := s.now()
	attempts := retry.Attempts + 1
	updates := map[string]any{"attempts": attempts}

	switch {
	case err == nil && res.Outcome != OutcomeNotPaid:
		updates["status"] = models.RetryStatusResolved
		updates["resolved_at"] = now
		updates["last_error"] = ""
		retryQueueEvents.WithLabelValues("resolved").Inc()
		reconciliationsTotal.WithLabelValues(retry.Provider, string(res.Outcome)).Inc()
		logger.Info().Str("outcome", string(res.Outcome)).Msg("queued reconciliation resolved")
	default:
		cause := "order not paid"
		if err != nil {
			cause = err.Error()
		}
		updates["last_error"] = cause
		if (err != nil && !retryable(err)) || attempts >= s.policy.MaxAttempts {
			updates["status"] = models.RetryStatusExhausted
			retryQueueEvents.WithLabelValues("exhausted").Inc()
			logger.Error().Str("cause", cause).Msg("reconciliation retry exhausted")
			if s.telegram != nil {
				go func() {
					if nerr := s.telegram.NotifyRetryExhausted(req.Gateway, req.GatewayOrderID, attempts, cause); nerr != nil {
						log.Warn().Err(nerr).Msg("telegram retry notification failed")
					}
				}()
			}
		} else {
			updates["next_attempt_at"] = now.Add(s.policy.Delay)
			retryQueueEvents.WithLabelValues("rescheduled").Inc()
			logger.Warn().Str("cause", cause).Msg("reconciliation retry rescheduled")
		}
	}

	if err := s.db.WithContext(ctx).Model(retry).Updates(updates).Error; err != nil {
		logger.Error().Err(err).Msg("failed to update retry")
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, errStorage)
}

