package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts order lifecycle activity. A nil receiver is a no-op.
type OrderMetrics struct {
	transitions    *prometheus.CounterVec
	publicSubmits  *prometheus.CounterVec
	totalsMismatch *prometheus.CounterVec
	shareLinks     prometheus.Counter
}

// NewOrderMetrics registers order metrics on reg; a nil reg disables them.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_status_transitions_total",
			Help: "Order status changes by origin and target status.",
		}, []string{"from", "to", "source"}),
		publicSubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_public_submissions_total",
			Help: "Public share-link submissions by result.",
		}, []string{"result"}),
		totalsMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_totals_mismatch_total",
			Help: "Client totals that disagreed with server totals, by field.",
		}, []string{"field"}),
		shareLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_share_links_created_total",
			Help: "Share tokens minted.",
		}),
	}
	reg.MustRegister(m.transitions, m.publicSubmits, m.totalsMismatch, m.shareLinks)
	return m
}

func (m *OrderMetrics) IncTransition(from, to, source string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(label(from), label(to), label(source)).Inc()
}

// IncPublicSubmission records "accepted", "already_filled" or "rejected".
func (m *OrderMetrics) IncPublicSubmission(result string) {
	if m == nil || m.publicSubmits == nil {
		return
	}
	m.publicSubmits.WithLabelValues(label(result)).Inc()
}

func (m *OrderMetrics) IncTotalsMismatch(field string) {
	if m == nil || m.totalsMismatch == nil {
		return
	}
	m.totalsMismatch.WithLabelValues(label(field)).Inc()
}

func (m *OrderMetrics) IncShareLink() {
	if m == nil || m.shareLinks == nil {
		return
	}
	m.shareLinks.Inc()
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
