package stepauth

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter in the metrics table.
type MetricID uint16

const (
	// MetricLoginSuccess counts primary logins that produced a session without step-up.
	MetricLoginSuccess MetricID = iota
	// MetricLoginRejected counts primary logins refused by the remote.
	MetricLoginRejected
	// MetricStepUpRequired counts primary logins answered with a challenge.
	MetricStepUpRequired
	// MetricChallengeSuccess counts step-up challenges completed.
	MetricChallengeSuccess
	// MetricChallengeFailure counts step-up answers refused by the remote.
	MetricChallengeFailure
	// MetricChallengeAttemptsExceeded counts challenges aborted for spending their failure budget.
	MetricChallengeAttemptsExceeded
	// MetricTOTPEnrollStarted counts TOTP enrollments begun.
	MetricTOTPEnrollStarted
	// MetricTOTPEnabled counts TOTP enrollments completed.
	MetricTOTPEnabled
	// MetricTOTPDisabled counts TOTP disable operations.
	MetricTOTPDisabled
	// MetricTOTPStatusRefresh counts remote TOTP status polls.
	MetricTOTPStatusRefresh
	// MetricCodeSent counts one-time codes requested over email or SMS.
	MetricCodeSent
	// MetricCodeVerified counts one-time codes accepted by the remote.
	MetricCodeVerified
	// MetricCodeRejected counts one-time codes refused by the remote.
	MetricCodeRejected
	// MetricQuestionConfigured counts security questions configured.
	MetricQuestionConfigured
	// MetricQuestionRejected counts security question submissions refused by the remote.
	MetricQuestionRejected
	// MetricSessionResumed counts sessions restored from the store.
	MetricSessionResumed
	// MetricSessionCleared counts sessions cleared by logout or expiry.
	MetricSessionCleared
	// MetricTransportFailure counts remote calls that failed without a rejection.
	MetricTransportFailure
	// MetricLoginLatency is the login round-trip latency histogram.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the in-process counters. Counters are cache-line padded
// so concurrent flows do not contend on neighbouring slots.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and
// histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metrics table per the given config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to a counter. No-op when metrics are disabled.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only [MetricLoginLatency] carries a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram into plain maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

// bucketBoundsMs are the upper bounds of the latency buckets, in
// milliseconds. The last bucket is open-ended.
var bucketBoundsMs = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range bucketBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
