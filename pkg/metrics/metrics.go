package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics records order lifecycle and stock events.
type SalesMetrics struct {
	created     *prometheus.CounterVec
	completed   prometheus.Counter
	retries     prometheus.Counter
	conflicts   prometheus.Counter
	stockAlerts *prometheus.CounterVec
	feedClients prometheus.Gauge
}

// NewSalesMetrics registers the sales metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewSalesMetrics(reg prometheus.Registerer) *SalesMetrics {
	if reg == nil {
		return &SalesMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_created_total",
		Help: "Sales created, by initial status and payment method.",
	}, []string{"status", "payment_method"})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_completed_total",
		Help: "Pending sales transitioned to completed.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_order_number_retries_total",
		Help: "Order number allocations retried after a uniqueness conflict.",
	})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_order_number_conflicts_total",
		Help: "Sale creations that exhausted order number retries.",
	})
	stockAlerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_alerts_total",
		Help: "Low and out-of-stock crossings.",
	}, []string{"level"})
	feedClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pos_feed_clients",
		Help: "Connected change feed clients.",
	})
	reg.MustRegister(created, completed, retries, conflicts, stockAlerts, feedClients)
	return &SalesMetrics{
		created:     created,
		completed:   completed,
		retries:     retries,
		conflicts:   conflicts,
		stockAlerts: stockAlerts,
		feedClients: feedClients,
	}
}

func (m *SalesMetrics) IncCreated(status, paymentMethod string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(status), normalizeLabel(paymentMethod)).Inc()
}

func (m *SalesMetrics) IncCompleted() {
	if m == nil || m.completed == nil {
		return
	}
	m.completed.Inc()
}

func (m *SalesMetrics) IncOrderNumberRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

func (m *SalesMetrics) IncOrderNumberConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *SalesMetrics) IncStockAlert(level string) {
	if m == nil || m.stockAlerts == nil {
		return
	}
	m.stockAlerts.WithLabelValues(normalizeLabel(level)).Inc()
}

func (m *SalesMetrics) SetFeedClients(n int) {
	if m == nil || m.feedClients == nil {
		return
	}
	m.feedClients.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
