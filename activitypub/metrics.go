package activitypub

import (
	"github.com/deemkeen/fedcore/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the federation counters. A nil *Metrics records nothing.
type Metrics struct {
	activities  *prometheus.CounterVec
	mutations   *prometheus.CounterVec
	rotations   prometheus.Counter
	deliveries  *prometheus.CounterVec
	digestCache *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedcore",
			Name:      "activities_total",
			Help:      "Inbound activities by type and outcome.",
		}, []string{"type", "outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedcore",
			Name:      "collection_mutations_total",
			Help:      "Collection mutations by collection and outcome.",
		}, []string{"collection", "outcome"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fedcore",
			Name:      "federation_token_rotations_total",
			Help:      "Scheduled rotations of the local federation token.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedcore",
			Name:      "deliveries_total",
			Help:      "Outbound delivery attempts by result.",
		}, []string{"result"}),
		digestCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedcore",
			Name:      "follower_digest_lookups_total",
			Help:      "Follower synchronization digest lookups by cache result.",
		}, []string{"cache"}),
	}
	if reg != nil {
		reg.MustRegister(m.activities, m.mutations, m.rotations, m.deliveries, m.digestCache)
	}
	return m
}

func (m *Metrics) activity(t domain.ActivityType, outcome string) {
	if m == nil {
		return
	}
	m.activities.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) mutation(name domain.CollectionName, outcome domain.MutationOutcome) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(name), outcome.String()).Inc()
}

func (m *Metrics) tokenRotated() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

func (m *Metrics) delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) digestLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.digestCache.WithLabelValues("hit").Inc()
	} else {
		m.digestCache.WithLabelValues("miss").Inc()
	}
}
