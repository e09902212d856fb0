package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserver(t *testing.T) {
	obs := NewPrometheusObserver()

	// Just call methods to ensure no panic
	obs.IncOnline()
	obs.DecOnline()
	obs.RecordPush()
	obs.RecordPublish()
	obs.ObserveUpdateLatency(0.001)
	obs.IncSubscriptions()
	obs.DecSubscriptions()
}

func TestPrometheusObserver_Counts(t *testing.T) {
	obs := NewPrometheusObserver()

	before := testutil.ToFloat64(topicsGauge)
	obs.TopicRegistered()
	if got := testutil.ToFloat64(topicsGauge); got != before+1 {
		t.Errorf("expected topics gauge %v, got %v", before+1, got)
	}

	missesBefore := testutil.ToFloat64(snapshotMisses)
	obs.RecordSnapshot(5, 2)
	if got := testutil.ToFloat64(snapshotMisses); got != missesBefore+2 {
		t.Errorf("expected snapshot misses %v, got %v", missesBefore+2, got)
	}

	failedBefore := testutil.ToFloat64(terminatedCounter.WithLabelValues("failed"))
	obs.TopicTerminated(true)
	if got := testutil.ToFloat64(terminatedCounter.WithLabelValues("failed")); got != failedBefore+1 {
		t.Errorf("expected failed terminations %v, got %v", failedBefore+1, got)
	}
}

func TestNop(t *testing.T) {
	obs := Nop()
	obs.TopicRegistered()
	obs.RecordSnapshot(1, 1)
}
