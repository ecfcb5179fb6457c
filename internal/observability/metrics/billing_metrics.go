// Package metrics exposes prometheus instruments for the billing engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics captures billing engine health signals.
type BillingMetrics struct {
	invoicesGenerated prometheus.Counter
	invoicesReversed  prometheus.Counter
	paymentsRecorded  *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	reconcileTicks    prometheus.Counter
	reconcileSettled  prometheus.Counter
	reconcileErrors   prometheus.Counter
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto{registerer}

	return &BillingMetrics{
		invoicesGenerated: factory.counter(prometheus.CounterOpts{
			Namespace: "stablebill",
			Name:      "invoices_generated_total",
			Help:      "Invoices produced by the generator.",
		}),
		invoicesReversed: factory.counter(prometheus.CounterOpts{
			Namespace: "stablebill",
			Name:      "invoices_reversed_total",
			Help:      "Invoices deleted by reversal.",
		}),
		paymentsRecorded: factory.counterVec(prometheus.CounterOpts{
			Namespace: "stablebill",
			Name:      "payments_recorded_total",
			Help:      "Payments applied to invoices, by method.",
		}, []string{"method"}),
		webhookEvents: factory.counterVec(prometheus.CounterOpts{
			Namespace: "stablebill",
			Name:      "webhook_events_total",
			Help:      "Inbound gateway events, by processing status.",
		}, []string{"status"}),
		reconcileTicks: factory.counter(prometheus.CounterOpts{
			Namespace: "stablebill",
			Name:      "reconcile_ticks_total",
			Help:      "Reconciliation poller ticks.",
		}),
		reconcileSettled: factory.counter(prometheus.CounterOpts{
			Namespace: "stablebill",
			Name:      "reconcile_settled_total",
			Help:      "Invoices settled by the reconciliation poller.",
		}),
		reconcileErrors: factory.counter(prometheus.CounterOpts{
			Namespace: "stablebill",
			Name:      "reconcile_errors_total",
			Help:      "Per-invoice reconciliation failures.",
		}),
	}
}

type promauto struct {
	registerer prometheus.Registerer
}

func (f promauto) counter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.register(c)
	return c
}

func (f promauto) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	f.register(c)
	return c
}

func (f promauto) histogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	f.register(h)
	return h
}

func (f promauto) register(c prometheus.Collector) {
	err := f.registerer.Register(c)
	if err == nil {
		return
	}
	if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
		panic(err)
	}
}

func (m *BillingMetrics) RecordInvoiceGenerated() {
	if m == nil {
		return
	}
	m.invoicesGenerated.Inc()
}

func (m *BillingMetrics) RecordInvoiceReversed() {
	if m == nil {
		return
	}
	m.invoicesReversed.Inc()
}

func (m *BillingMetrics) RecordPayment(method string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(method).Inc()
}

func (m *BillingMetrics) RecordWebhookEvent(status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(status).Inc()
}

func (m *BillingMetrics) RecordReconcileTick() {
	if m == nil {
		return
	}
	m.reconcileTicks.Inc()
}

func (m *BillingMetrics) RecordReconcileSettled() {
	if m == nil {
		return
	}
	m.reconcileSettled.Inc()
}

func (m *BillingMetrics) RecordReconcileError() {
	if m == nil {
		return
	}
	m.reconcileErrors.Inc()
}
