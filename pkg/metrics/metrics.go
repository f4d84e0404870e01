// Package metrics exposes Prometheus counters and gauges for the replica
// core's validation and registration pipeline. The teacher's go.mod
// already carries github.com/prometheus/client_golang but never wires it
// up; this package gives it a home.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the counters and gauges a replica process exports.
// Construct one per process with NewRegistry and pass it to
// server.NewReplicaHandlers, whose handlers record the outcomes of
// validate/register/receive_propagated/genesis calls.
type Registry struct {
	ValidationsTotal   *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	PropagationsTotal  *prometheus.CounterVec
	RejectionsTotal    *prometheus.CounterVec
	WalletBalance      *prometheus.GaugeVec
}

// NewRegistry constructs and registers the replica metric set against reg.
// Pass prometheus.DefaultRegisterer for normal process-wide exposition, or
// a fresh prometheus.NewRegistry() in tests to avoid global registration
// collisions across parallel test runs.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		ValidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "at2_replica",
			Name:      "validations_total",
			Help:      "Total number of validate() calls, labelled by outcome.",
		}, []string{"outcome"}),
		RegistrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "at2_replica",
			Name:      "registrations_total",
			Help:      "Total number of register() calls, labelled by outcome.",
		}, []string{"outcome"}),
		PropagationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "at2_replica",
			Name:      "propagations_total",
			Help:      "Total number of receive_propagated()/genesis() calls, labelled by outcome.",
		}, []string{"outcome"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "at2_replica",
			Name:      "rejections_total",
			Help:      "Total number of rejected operations, labelled by reason.",
		}, []string{"reason"}),
		WalletBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "at2_replica",
			Name:      "wallet_balance_nano",
			Help:      "Current wallet balance in nano-units, labelled by wallet id.",
		}, []string{"wallet_id"}),
	}
}

// ObserveOutcome increments the counter matching kind with the given
// outcome label, and additionally records a rejection reason when outcome
// is not "success" or "no_change".
func (r *Registry) ObserveOutcome(kind, outcome string) {
	switch kind {
	case "validate":
		r.ValidationsTotal.WithLabelValues(outcome).Inc()
	case "register":
		r.RegistrationsTotal.WithLabelValues(outcome).Inc()
	case "propagate":
		r.PropagationsTotal.WithLabelValues(outcome).Inc()
	}
	if outcome != "success" && outcome != "no_change" {
		r.RejectionsTotal.WithLabelValues(outcome).Inc()
	}
}

// SetWalletBalance updates the balance gauge for walletID.
func (r *Registry) SetWalletBalance(walletID string, nano uint64) {
	r.WalletBalance.WithLabelValues(walletID).Set(float64(nano))
}
