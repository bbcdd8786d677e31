package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payform",
		Name:      "reconciliations_total",
		Help:      "Reconciliation attempts by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	commissionRupees = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payform",
		Name:      "platform_commission_rupees_total",
		Help:      "Platform commission recorded on paid transactions.",
	}, []string{"provider"})

	gatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payform",
		Name:      "gateway_errors_total",
		Help:      "Failed calls to payment gateways.",
	}, []string{"gateway", "operation"})

	ordersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payform",
		Name:      "orders_created_total",
		Help:      "Gateway orders opened for form submissions.",
	}, []string{"gateway"})

	retryQueueEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payform",
		Name:      "reconciliation_retry_events_total",
		Help:      "Reconciliation retry queue transitions.",
	}, []string{"event"})
)
