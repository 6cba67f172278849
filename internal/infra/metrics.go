package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Data access
	barsServed      atomic.Uint64
	storageDegraded atomic.Uint64

	// Order creation
	ordersCreated     atomic.Uint64
	ordersRejected    atomic.Uint64
	cashSubstitutions atomic.Uint64
	sentinelPrices    atomic.Uint64

	// Runner
	sessionsProcessed atomic.Uint64
	errorsTotal       atomic.Uint64
	latencySumNs      atomic.Int64
	latencyCount      atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordBarsServed adds n bars returned by a history query.
func (m *Metrics) RecordBarsServed(n int) {
	if n > 0 {
		m.barsServed.Add(uint64(n))
	}
}

// RecordStorageDegraded records a store read that was served as empty.
func (m *Metrics) RecordStorageDegraded() {
	m.storageDegraded.Add(1)
}

// RecordOrderCreated records an order handed to the submitter.
func (m *Metrics) RecordOrderCreated() {
	m.ordersCreated.Add(1)
}

// RecordOrderRejected records a rejected order intent.
func (m *Metrics) RecordOrderRejected() {
	m.ordersRejected.Add(1)
}

// RecordCashSubstitution records a buy re-sized with the remaining cash.
func (m *Metrics) RecordCashSubstitution() {
	m.cashSubstitutions.Add(1)
}

// RecordSentinelPrice records a cost estimate that used the fallback price.
func (m *Metrics) RecordSentinelPrice() {
	m.sentinelPrices.Add(1)
}

// RecordSession records one processed trading session with latency.
func (m *Metrics) RecordSession(latencyNs int64) {
	m.sessionsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	BarsServed        uint64
	StorageDegraded   uint64
	OrdersCreated     uint64
	OrdersRejected    uint64
	CashSubstitutions uint64
	SentinelPrices    uint64
	SessionsProcessed uint64
	ErrorsTotal       uint64
	AvgLatencyNs      int64
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		BarsServed:        m.barsServed.Load(),
		StorageDegraded:   m.storageDegraded.Load(),
		OrdersCreated:     m.ordersCreated.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		CashSubstitutions: m.cashSubstitutions.Load(),
		SentinelPrices:    m.sentinelPrices.Load(),
		SessionsProcessed: m.sessionsProcessed.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.barsServed.Store(0)
	m.storageDegraded.Store(0)
	m.ordersCreated.Store(0)
	m.ordersRejected.Store(0)
	m.cashSubstitutions.Store(0)
	m.sentinelPrices.Store(0)
	m.sessionsProcessed.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
}
