package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	topicsGauge    prometheus.Gauge
	terminated     *prometheus.CounterVec
	publishCounter prometheus.Counter
	updateLatency  prometheus.Histogram
	subscriptions  prometheus.Gauge
	snapshotKeys   prometheus.Counter
	snapshotMisses prometheus.Counter
	onlineGauge    prometheus.Gauge
	pushCounter    prometheus.Counter
}

var (
	topicsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsehub_topics",
		Help: "Number of registered topics",
	})
	terminatedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_topics_terminated_total",
		Help: "Topics whose transducer stopped, by outcome",
	}, []string{"outcome"})
	publishCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsehub_publish_total",
		Help: "Total number of inputs published to topics",
	})
	updateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsehub_update_latency_seconds",
		Help:    "Time from publish to completion of the engine update",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
	})
	subscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsehub_subscriptions",
		Help: "Number of active prefix subscriptions",
	})
	snapshotKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsehub_snapshot_keys_total",
		Help: "Keys considered by snapshots",
	})
	snapshotMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsehub_snapshot_misses_total",
		Help: "Keys dropped from snapshots after timeout or failure",
	})
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsehub_online_clients",
		Help: "Number of connected stream clients",
	})
	pushCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsehub_push_total",
		Help: "Total number of datapoints pushed to stream clients",
	})
)

func NewPrometheusObserver() HubObserver {
	return &prometheusObserver{
		topicsGauge:    topicsGauge,
		terminated:     terminatedCounter,
		publishCounter: publishCounter,
		updateLatency:  updateLatency,
		subscriptions:  subscriptionsGauge,
		snapshotKeys:   snapshotKeys,
		snapshotMisses: snapshotMisses,
		onlineGauge:    onlineGauge,
		pushCounter:    pushCounter,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) TopicRegistered() {
	p.topicsGauge.Inc()
}

func (p *prometheusObserver) TopicTerminated(failed bool) {
	outcome := "closed"
	if failed {
		outcome = "failed"
	}
	p.terminated.WithLabelValues(outcome).Inc()
}

func (p *prometheusObserver) RecordPublish() {
	p.publishCounter.Inc()
}

func (p *prometheusObserver) ObserveUpdateLatency(seconds float64) {
	p.updateLatency.Observe(seconds)
}

func (p *prometheusObserver) IncSubscriptions() {
	p.subscriptions.Inc()
}

func (p *prometheusObserver) DecSubscriptions() {
	p.subscriptions.Dec()
}

func (p *prometheusObserver) RecordSnapshot(total, missed int) {
	p.snapshotKeys.Add(float64(total))
	p.snapshotMisses.Add(float64(missed))
}

func (p *prometheusObserver) IncOnline() {
	p.onlineGauge.Inc()
}

func (p *prometheusObserver) DecOnline() {
	p.onlineGauge.Dec()
}

func (p *prometheusObserver) RecordPush() {
	p.pushCounter.Inc()
}
