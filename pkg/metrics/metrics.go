package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Settlement metrics
	SettlementsTotal   *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	CommissionsTotal   prometheus.Counter
	CommissionAmount   prometheus.Counter

	// Reminder metrics
	RemindersTotal    *prometheus.CounterVec
	ChannelDeliveries *prometheus.CounterVec
	ChannelLatency    *prometheus.HistogramVec
	RunDuration       prometheus.Histogram
}

// New creates a Metrics instance registered on reg. Pass prometheus.DefaultRegisterer
// to expose them on /metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SettlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlements_total",
				Help: "Settlement attempts by outcome",
			},
			[]string{"outcome"},
		),
		SettlementDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Time spent settling one transaction",
			Buckets: prometheus.DefBuckets,
		}),
		CommissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_commissions_total",
			Help: "Total number of affiliate commissions credited",
		}),
		CommissionAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_commission_amount_total",
			Help: "Sum of credited affiliate commissions in minor units",
		}),

		RemindersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminders_total",
				Help: "Reminder evaluations by result",
			},
			[]string{"result"},
		),
		ChannelDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminder_channel_deliveries_total",
				Help: "Channel delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		ChannelLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reminder_channel_latency_seconds",
				Help:    "Channel send latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_run_duration_seconds",
			Help:    "Duration of a full reminder pass",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *Metrics) ObserveSettlement(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(outcome).Inc()
	m.SettlementDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveCommission(amount int64) {
	if m == nil {
		return
	}
	m.CommissionsTotal.Inc()
	m.CommissionAmount.Add(float64(amount))
}

func (m *Metrics) ObserveReminder(result string) {
	if m == nil {
		return
	}
	m.RemindersTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveChannel(channel, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChannelDeliveries.WithLabelValues(channel, result).Inc()
	m.ChannelLatency.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}
