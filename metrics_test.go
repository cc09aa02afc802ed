package geogate

import (
	"testing"
	"time"
)

func TestMetricsCountersAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginAllowed)
	m.Inc(MetricLoginAllowed)
	m.Inc(MetricStepUpIssued)

	if got := m.Value(MetricLoginAllowed); got != 2 {
		t.Fatalf("Value(MetricLoginAllowed) = %d, want 2", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricLoginAllowed] != 2 {
		t.Fatalf("snapshot MetricLoginAllowed = %d, want 2", snap.Counters[MetricLoginAllowed])
	}
	if snap.Counters[MetricStepUpIssued] != 1 {
		t.Fatalf("snapshot MetricStepUpIssued = %d, want 1", snap.Counters[MetricStepUpIssued])
	}
	if snap.Counters[MetricLoginDenied] != 0 {
		t.Fatalf("untouched counter = %d, want 0", snap.Counters[MetricLoginDenied])
	}
}

func TestMetricsDisabledDropsEverything(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginAllowed)
	m.Observe(MetricResolveLatency, 20*time.Millisecond)

	if got := m.Value(MetricLoginAllowed); got != 0 {
		t.Fatalf("disabled metrics recorded a count: %d", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", snap)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricResolveLatency, 3*time.Millisecond)   // bucket 0
	m.Observe(MetricResolveLatency, 20*time.Millisecond)  // bucket 2
	m.Observe(MetricResolveLatency, 40*time.Millisecond)  // bucket 3
	m.Observe(MetricResolveLatency, 42*time.Millisecond)  // bucket 3
	m.Observe(MetricResolveLatency, 800*time.Millisecond) // bucket 7

	buckets := m.Snapshot().Histograms[MetricResolveLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	want := []uint64{1, 0, 1, 2, 0, 0, 0, 1}
	for i, w := range want {
		if buckets[i] != w {
			t.Fatalf("bucket %d = %d, want %d (all: %v)", i, buckets[i], w, buckets)
		}
	}

	// Only the resolve-latency metric carries a histogram.
	m.Observe(MetricLoginAllowed, time.Millisecond)
	if _, ok := m.Snapshot().Histograms[MetricLoginAllowed]; ok {
		t.Fatal("unexpected histogram for a counter-only metric")
	}
}

func TestMetricsHistogramDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Observe(MetricResolveLatency, 20*time.Millisecond)

	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("latency histograms must be opt-in")
	}
}
