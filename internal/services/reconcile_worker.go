package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	gormlock "github.com/go-co-op/gocron-gorm-lock/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const retryJobName = "payform_reconcile_retries"

// RetryWorker periodically drains the reconciliation retry queue. The gorm
// locker keeps a single instance running each tick when several servers
// share the database.
type RetryWorker struct {
	scheduler gocron.Scheduler
	service   *ReconcileService
	interval  time.Duration

	mu      sync.Mutex
	started bool
}

// NewRetryWorker builds a worker whose scheduler is locked through db.
func NewRetryWorker(ctx context.Context, db *gorm.DB, service *ReconcileService, interval time.Duration) (*RetryWorker, error) {
	if err := db.WithContext(ctx).AutoMigrate(gormlock.CronJobLock{}); err != nil {
		return nil, fmt.Errorf("migrate cron job locks: %w", err)
	}

	workerName := "payform-" + uuid.NewString()[:8]
	locker, err := gormlock.NewGormLocker(db, workerName, gormlock.WithDefaultJobIdentifier(time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("create gorm locker: %w", err)
	}

	return newRetryWorker(service, interval, gocron.WithDistributedLocker(locker))
}

func newRetryWorker(service *ReconcileService, interval time.Duration, opts ...gocron.SchedulerOption) (*RetryWorker, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &RetryWorker{scheduler: scheduler, service: service, interval: interval}, nil
}

// Start registers the retry job and starts the scheduler.
func (w *RetryWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.tick),
		gocron.WithName(retryJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("create retry job: %w", err)
	}

	w.scheduler.Start()
	w.started = true
	log.Info().Dur("interval", w.interval).Msg("reconciliation retry worker started")
	return nil
}

// Stop shuts the scheduler down, waiting for a running tick to finish.
func (w *RetryWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	w.started = false
	if err := w.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

func (w *RetryWorker) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	n, err := w.service.RunDueRetries(ctx)
	if err != nil {
		log.Error().Err(err).Int("processed", n).Msg("reconciliation retry run failed")
		return
	}
	if n > 0 {
		log.Info().Int("processed", n).Msg("reconciliation retries processed")
	}
}
