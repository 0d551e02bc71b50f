package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transactions_total",
			Help: "Payment transactions by kind and final status",
		},
		[]string{"kind", "status"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_callbacks_total",
			Help: "Gateway callbacks by outcome",
		},
		[]string{"outcome"}, // applied|duplicate|rejected|unknown_ref|error
	)

	SweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_sweeps_total",
			Help: "Completed sweeper runs",
		},
	)
	SweepSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_settled_total",
			Help: "Transactions settled by the sweeper",
		},
		[]string{"status"},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(CallbacksTotal)
	prometheus.MustRegister(SweepsTotal)
	prometheus.MustRegister(SweepSettledTotal)
	prometheus.MustRegister(WorkerQueueDepth)
}
