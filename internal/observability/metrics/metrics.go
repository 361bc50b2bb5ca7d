package metrics

import "github.com/prometheus/client_golang/prometheus"

// FunnelMetrics exposes counters/histograms for the checkout funnel.
type FunnelMetrics struct {
	checkoutTotal        *prometheus.CounterVec
	questionnaireTotal   *prometheus.CounterVec
	webhookTotal         *prometheus.CounterVec
	webhookLatency       *prometheus.HistogramVec
	bestEffortFailures   *prometheus.CounterVec
	statusTransitionSkip *prometheus.CounterVec
}

func NewFunnelMetrics(reg prometheus.Registerer) *FunnelMetrics {
	m := &FunnelMetrics{
		checkoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboardpro",
			Subsystem: "checkout",
			Name:      "sessions_total",
			Help:      "Checkout session requests by outcome",
		}, []string{"outcome"}),
		questionnaireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboardpro",
			Subsystem: "questionnaire",
			Name:      "submissions_total",
			Help:      "Questionnaire submissions by outcome",
		}, []string{"outcome"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboardpro",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Stripe webhook deliveries by event type and outcome",
		}, []string{"event_type", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "onboardpro",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of Stripe webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		bestEffortFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboardpro",
			Subsystem: "storage",
			Name:      "best_effort_failures_total",
			Help:      "Swallowed failures of secondary storage writes",
		}, []string{"operation"}),
		statusTransitionSkip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboardpro",
			Subsystem: "payments",
			Name:      "status_writes_skipped_total",
			Help:      "Payment status writes refused by the transition guard or missing a record",
		}, []string{"target_status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checkoutTotal, m.questionnaireTotal, m.webhookTotal, m.webhookLatency, m.bestEffortFailures, m.statusTransitionSkip)
	return m
}

func (m *FunnelMetrics) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.checkoutTotal.WithLabelValues(outcome).Inc()
}

func (m *FunnelMetrics) ObserveQuestionnaire(outcome string) {
	if m == nil {
		return
	}
	m.questionnaireTotal.WithLabelValues(outcome).Inc()
}

func (m *FunnelMetrics) ObserveWebhook(eventType, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, outcome).Inc()
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

// ObserveBestEffortFailure satisfies persist.Observer.
func (m *FunnelMetrics) ObserveBestEffortFailure(operation string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(operation).Inc()
}

func (m *FunnelMetrics) ObserveStatusWriteSkipped(target string) {
	if m == nil {
		return
	}
	m.statusTransitionSkip.WithLabelValues(target).Inc()
}
