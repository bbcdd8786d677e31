package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itbhushan/payform/internal/models"
)

func TestRetryWorkerDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway("cashfree", "cashfree")
	form := seedForm(t, db, "cashfree", "1000")
	seedPending(t, db, form, "cashfree", "order_bg")
	gw.setPaid("order_bg", decimal.NewFromInt(1000))

	svc := newReconciler(db, gw)
	require.NoError(t, svc.EnqueueRetry(context.Background(), ReconcileRequest{Gateway: "cashfree", GatewayOrderID: "order_bg"}, assert.AnError))
	require.NoError(t, db.Model(&models.ReconciliationRetry{}).Where("gateway_order_id = ?", "order_bg").
		Update("next_attempt_at", time.Now().Add(-time.Second)).Error)

	worker, err := newRetryWorker(svc, time.Hour)
	require.NoError(t, err)
	require.NoError(t, worker.Start())
	t.Cleanup(func() { _ = worker.Stop() })

	assert.Eventually(t, func() bool {
		var retry models.ReconciliationRetry
		if err := db.First(&retry, "gateway_order_id = ?", "order_bg").Error; err != nil {
			return false
		}
		return retry.Status == models.RetryStatusResolved
	}, 5*time.Second, 20*time.Millisecond)
}
