package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveOutcomeCountsRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveOutcome("validate", "success")
	r.ObserveOutcome("validate", "rejected")
	r.ObserveOutcome("register", "no_change")

	if got := counterValue(t, r.ValidationsTotal.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejected validations = %v, want 1", got)
	}
	if got := counterValue(t, r.RejectionsTotal.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejections_total{reason=rejected} = %v, want 1", got)
	}
	if got := counterValue(t, r.RegistrationsTotal.WithLabelValues("no_change")); got != 1 {
		t.Fatalf("no_change registrations = %v, want 1", got)
	}
}

func TestSetWalletBalance(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.SetWalletBalance("deadbeef", 42)

	var m dto.Metric
	if err := r.WalletBalance.WithLabelValues("deadbeef").Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.GetGauge().GetValue() != 42 {
		t.Fatalf("gauge value = %v, want 42", m.GetGauge().GetValue())
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
