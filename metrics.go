package jrtos

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime statistics for a [Scheduler]. Metrics are
// designed to be low-overhead and thread-safe. All metrics are optional
// and can be attached to a Scheduler via [WithMetrics]. Ambient feature:
// the original specification has no observability surface; SPEC_FULL.md
// lists metrics.go under the ambient stack, as a cheap dispatch-interval/
// queue-depth/switch-rate window.
//
// Thread Safety:
//   - All Metrics methods are thread-safe and can be called from any goroutine.
//   - LatencyMetrics uses sync.RWMutex (single-writer, multi-reader).
//   - QueueMetrics uses sync.RWMutex (single-writer, multi-reader).
//   - TPSCounter uses atomic operations and mutex for rotation.
//
// Example:
//
//	m := &jrtos.Metrics{}
//	sched, _ := jrtos.NewScheduler(jrtos.WithMetrics(m))
//	// ... run tasks ...
//	m.Latency.Sample()
//	fmt.Printf("switches/sec: %.2f, P99 dispatch latency: %v\n",
//		m.TPS, m.Latency.P99)
type Metrics struct {
	// Latency metrics (has pointer field - put first for alignment)
	Latency LatencyMetrics

	// Queue depth metrics
	Queue QueueMetrics

	mu sync.Mutex

	// TPS is the context-switch rate. The scheduler owns a TPSCounter
	// (10s window, 100ms buckets) and refreshes this field at every
	// dispatch.
	TPS float64
}

// LatencyMetrics tracks the dispatch-interval distribution with
// percentiles: the time between two consecutive run-token hand-offs by
// the scheduler-loop. It does not measure how long an individual task
// waited between its promotion to ACTIVE and its dispatch. Uses the
// P-Square algorithm for O(1) streaming percentile estimation.
type LatencyMetrics struct {
	// Pointer fields first for optimal alignment (betteralign)
	psquare *pSquareMultiQuantile

	// Lock for thread-safe access
	mu sync.RWMutex

	// Legacy sample buffer (kept for exact percentile values with small
	// sample counts, e.g. early in a scheduler's run before the P-Square
	// estimator has enough observations to be meaningful)
	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	// Computed percentiles (cached after Sample() call)
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	// Statistics
	Mean time.Duration
	Sum  time.Duration
}

// sampleSize is the maximum number of latency samples to retain. We keep
// a rolling buffer of 1000 samples to compute percentiles.
const sampleSize = 1000

// Record records one dispatch-latency sample. Called internally by the
// scheduler-loop immediately before handing a task its run token. Uses
// the O(1) P-Square algorithm for streaming percentile updates.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Initialize P-Square estimator on first use (lazy initialization)
	if l.psquare == nil {
		// Track P50 (0.5), P90 (0.9), P95 (0.95), P99 (0.99)
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}

	// Update P-Square estimator with the new sample (O(1))
	l.psquare.Update(float64(duration))

	// Also update legacy sample buffer for exact small-count percentiles
	if l.sampleCount >= sampleSize {
		old := l.samples[l.sampleIdx]
		l.Sum -= old
	}

	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample computes percentiles from collected samples. Should be called
// periodically to refresh the cached percentile fields. Returns the
// number of samples used for computation.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	// For small sample counts (< 5), use exact sorting for exact values.
	if count < 5 || l.psquare == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])

		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)

		return count
	}

	// Use P-Square algorithm for O(1) percentile retrieval.
	// Index 0 = P50, Index 1 = P90, Index 2 = P95, Index 3 = P99
	l.P50 = time.Duration(l.psquare.Quantile(0))
	l.P90 = time.Duration(l.psquare.Quantile(1))
	l.P95 = time.Duration(l.psquare.Quantile(2))
	l.P99 = time.Duration(l.psquare.Quantile(3))
	l.Max = time.Duration(l.psquare.Max())
	l.Mean = l.Sum / time.Duration(count)

	return count
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// QueueMetrics tracks deferred-ring depth statistics for the three
// wake-up pipeline sources §4.6 describes: the task-owned resume rings,
// the scheduler-owned interrupt resume ring, and the wait-wake-up ring.
// Grounded on the teacher's Ingress/Internal/Microtask queue-depth
// tracking, renamed to the scheduler's own deferred-queue taxonomy.
type QueueMetrics struct {
	mu sync.RWMutex

	// Current queue depths
	TaskResumeCurrent      int
	InterruptResumeCurrent int
	WaitWakeupCurrent      int

	// Maximum observed depths
	TaskResumeMax      int
	InterruptResumeMax int
	WaitWakeupMax      int

	// Average depths (exponential moving average with alpha=0.1)
	TaskResumeAvg      float64
	InterruptResumeAvg float64
	WaitWakeupAvg      float64

	taskResumeEMAInitialized      bool
	interruptResumeEMAInitialized bool
	waitWakeupEMAInitialized      bool
}

// UpdateTaskResume updates the task-owned resume ring depth metrics.
func (q *QueueMetrics) UpdateTaskResume(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.TaskResumeCurrent = depth
	if depth > q.TaskResumeMax {
		q.TaskResumeMax = depth
	}
	if !q.taskResumeEMAInitialized {
		q.TaskResumeAvg = float64(depth)
		q.taskResumeEMAInitialized = true
	} else {
		q.TaskResumeAvg = 0.9*q.TaskResumeAvg + 0.1*float64(depth)
	}
}

// UpdateInterruptResume updates the interrupt-owned resume ring depth
// metrics.
func (q *QueueMetrics) UpdateInterruptResume(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.InterruptResumeCurrent = depth
	if depth > q.InterruptResumeMax {
		q.InterruptResumeMax = depth
	}
	if !q.interruptResumeEMAInitialized {
		q.InterruptResumeAvg = float64(depth)
		q.interruptResumeEMAInitialized = true
	} else {
		q.InterruptResumeAvg = 0.9*q.InterruptResumeAvg + 0.1*float64(depth)
	}
}

// UpdateWaitWakeup updates the wait-wake-up ring depth metrics.
func (q *QueueMetrics) UpdateWaitWakeup(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.WaitWakeupCurrent = depth
	if depth > q.WaitWakeupMax {
		q.WaitWakeupMax = depth
	}
	if !q.waitWakeupEMAInitialized {
		q.WaitWakeupAvg = float64(depth)
		q.waitWakeupEMAInitialized = true
	} else {
		q.WaitWakeupAvg = 0.9*q.WaitWakeupAvg + 0.1*float64(depth)
	}
}

// TPSCounter tracks context switches per second with a rolling window.
// Grounded on the teacher's transaction-per-second counter; the
// scheduler-domain unit of work is a context switch (one run-token
// hand-off) rather than a processed loop task, but the rolling-window
// ring-buffer-with-time-based-rotation algorithm is unchanged.
//
// Thread Safety: All methods (Increment, TPS) are thread-safe.
type TPSCounter struct {
	lastRotation atomic.Value // Stores time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// NewTPSCounter creates a new context-switch rate counter with a
// configurable rolling window. windowSize and bucketSize must be
// positive, and bucketSize must not exceed windowSize.
func NewTPSCounter(windowSize, bucketSize time.Duration) *TPSCounter {
	if windowSize <= 0 {
		panic("jrtos: windowSize must be positive (use > 0 duration)")
	}
	if bucketSize <= 0 {
		panic("jrtos: bucketSize must be positive (use > 0 duration)")
	}
	if bucketSize > windowSize {
		panic("jrtos: bucketSize cannot exceed windowSize (use <= windowSize)")
	}

	bucketCount := int(windowSize / bucketSize)
	counter := &TPSCounter{
		buckets:    make([]int64, bucketCount),
		bucketSize: bucketSize,
		windowSize: windowSize,
	}
	counter.lastRotation.Store(time.Now())
	return counter
}

// Increment records one context switch. Thread-safe and O(1). Called
// from the scheduler-loop goroutine once per dispatch.
func (t *TPSCounter) Increment() {
	t.rotate()
	t.mu.Lock()
	t.buckets[len(t.buckets)-1]++
	t.mu.Unlock()
}

// rotate advances the bucket counter if time has passed.
func (t *TPSCounter) rotate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	lastRotation := t.lastRotation.Load().(time.Time)
	elapsed := now.Sub(lastRotation)

	bucketsToAdvanceInt64 := int64(elapsed) / int64(t.bucketSize)

	if bucketsToAdvanceInt64 < 0 {
		bucketsToAdvanceInt64 = int64(len(t.buckets))
	} else if bucketsToAdvanceInt64 > int64(len(t.buckets)) {
		bucketsToAdvanceInt64 = int64(len(t.buckets))
	}

	bucketsToAdvance := int(bucketsToAdvanceInt64)

	if bucketsToAdvance >= len(t.buckets) {
		for i := range t.buckets {
			t.buckets[i] = 0
		}
		t.lastRotation.Store(now)
		return
	}

	if bucketsToAdvance <= 0 {
		return
	}

	copy(t.buckets, t.buckets[bucketsToAdvance:])

	for i := len(t.buckets) - bucketsToAdvance; i < len(t.buckets); i++ {
		t.buckets[i] = 0
	}

	t.lastRotation.Store(lastRotation.Add(time.Duration(bucketsToAdvance) * t.bucketSize))
}

// TPS returns the current context-switch rate.
func (t *TPSCounter) TPS() float64 {
	t.rotate()

	t.mu.Lock()
	defer t.mu.Unlock()

	var sum int64
	for _, count := range t.buckets {
		sum += count
	}

	if sum == 0 {
		return 0
	}

	monitoredDuration := float64(len(t.buckets)) * t.bucketSize.Seconds()
	return float64(sum) / monitoredDuration
}
