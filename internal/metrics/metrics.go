package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionConsume = "consume"
	DirectionRestore = "restore"
)

// Skip reasons for capacity adjustments.
const (
	SkipNoLink       = "no_link"
	SkipNoEnvelope   = "no_envelope"
	SkipNoTicket     = "no_ticket"
	SkipUnlimited    = "unlimited"
	SkipZeroQuantity = "zero_quantity"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	capacityAdjustments *prometheus.CounterVec
	capacitySkipped     *prometheus.CounterVec
	ordersProcessed     *prometheus.CounterVec
	reportCache         *prometheus.CounterVec
	productsSynced      prometheus.Counter
}

// New registers the service counters on registerer. A nil registerer uses
// the default one.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		capacityAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_capacity_adjustments_total",
			Help: "Ticket capacity changes applied from order status transitions.",
		}, []string{"direction"}),
		capacitySkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_capacity_skipped_lines_total",
			Help: "Order lines skipped while adjusting capacity.",
		}, []string{"direction", "reason"}),
		ordersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_capacity_orders_total",
			Help: "Order status notifications by outcome.",
		}, []string{"direction", "outcome"}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_report_cache_requests_total",
			Help: "Report cache lookups by result.",
		}, []string{"result"}),
		productsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxoffice_products_synced_total",
			Help: "Products written by ticket product sync.",
		}),
	}
	registerer.MustRegister(
		m.capacityAdjustments,
		m.capacitySkipped,
		m.ordersProcessed,
		m.reportCache,
		m.productsSynced,
	)
	return m
}

func (m *Metrics) CapacityAdjusted(direction string) {
	if m == nil {
		return
	}
	m.capacityAdjustments.WithLabelValues(direction).Inc()
}

func (m *Metrics) CapacitySkipped(direction, reason string) {
	if m == nil {
		return
	}
	m.capacitySkipped.WithLabelValues(direction, reason).Inc()
}

func (m *Metrics) OrderProcessed(direction, outcome string) {
	if m == nil {
		return
	}
	m.ordersProcessed.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) ReportCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ProductSynced() {
	if m == nil {
		return
	}
	m.productsSynced.Inc()
}
