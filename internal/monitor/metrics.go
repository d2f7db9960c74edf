package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks gateway performance.
type SystemMetrics struct {
	// Latency histograms
	APILatency    *LatencyHistogram
	BridgeLatency *LatencyHistogram

	// Counters
	requestsServed  uint64
	ordersPlaced    uint64
	ticksStreamed   uint64
	errorsCount     uint64
	limitedRejected uint64
	reconnectCount  uint64

	lastUpdate time.Time
}

// LatencyHistogram tracks latency samples with a sliding window and
// lazy stats computation.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency:    NewLatencyHistogram(1000),
		BridgeLatency: NewLatencyHistogram(1000),
		lastUpdate:    time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99. Recomputes only when
// samples have changed since the last call.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementRequests increments the served requests counter.
func (m *SystemMetrics) IncrementRequests() {
	atomic.AddUint64(&m.requestsServed, 1)
}

// IncrementOrders increments the placed orders counter.
func (m *SystemMetrics) IncrementOrders() {
	atomic.AddUint64(&m.ordersPlaced, 1)
}

// IncrementTicks increments the streamed ticks counter.
func (m *SystemMetrics) IncrementTicks() {
	atomic.AddUint64(&m.ticksStreamed, 1)
}

// IncrementErrors increments the error counter.
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// IncrementLimitedRejections counts requests refused in limited mode.
func (m *SystemMetrics) IncrementLimitedRejections() {
	atomic.AddUint64(&m.limitedRejected, 1)
}

// IncrementReconnects counts bridge reconnect cycles.
func (m *SystemMetrics) IncrementReconnects() {
	atomic.AddUint64(&m.reconnectCount, 1)
}

// MetricsSnapshot is a point-in-time metrics view.
type MetricsSnapshot struct {
	APILatency      LatencyStats `json:"api_latency"`
	BridgeLatency   LatencyStats `json:"bridge_latency"`
	RequestsServed  uint64       `json:"requests_served"`
	OrdersPlaced    uint64       `json:"orders_placed"`
	TicksStreamed   uint64       `json:"ticks_streamed"`
	ErrorsCount     uint64       `json:"errors_count"`
	LimitedRejected uint64       `json:"limited_rejected"`
	ReconnectCount  uint64       `json:"reconnect_count"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		APILatency:      m.APILatency.Stats(),
		BridgeLatency:   m.BridgeLatency.Stats(),
		RequestsServed:  atomic.LoadUint64(&m.requestsServed),
		OrdersPlaced:    atomic.LoadUint64(&m.ordersPlaced),
		TicksStreamed:   atomic.LoadUint64(&m.ticksStreamed),
		ErrorsCount:     atomic.LoadUint64(&m.errorsCount),
		LimitedRejected: atomic.LoadUint64(&m.limitedRejected),
		ReconnectCount:  atomic.LoadUint64(&m.reconnectCount),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		Timestamp:       time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
