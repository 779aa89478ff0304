package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_created_total",
		Help: "Total number of purchases created",
	}, []string{"channel"})

	PurchasesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_failed_total",
		Help: "Total number of failed purchase creations",
	}, []string{"reason"})

	PurchaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_transitions_total",
		Help: "Total number of committed purchase status changes",
	}, []string{"status"})

	LedgerTxTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_tx_total",
		Help: "Total number of ledger transactions by outcome",
	}, []string{"op", "result"})

	LedgerTxConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_tx_conflicts_total",
		Help: "Total number of optimistic conflicts detected at commit",
	}, []string{"op"})

	LedgerTxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_tx_latency_seconds",
		Help:    "Latency of ledger transactions including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	CashboxSalesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashbox_sales_total",
		Help: "Total number of sales recorded into cashbox sessions",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Total number of purchase notifications by outcome",
	}, []string{"result"})

	BrokerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_total",
		Help: "Total number of Kafka messages by topic and outcome",
	}, []string{"topic", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
