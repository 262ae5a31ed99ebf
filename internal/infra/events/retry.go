package events

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/metrics"
)

// ─── Retry Queue ────────────────────────────────────────────────────────────
// Events that fail to publish are re-queued with exponential backoff. A
// min-heap keyed on the next attempt time yields the next event due.

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries int           // Attempts after the first failure before the event is dropped
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
	MaxPending int           // Queue bound; new failures are dropped beyond it
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		MaxPending: 10_000,
	}
}

// RetryEntry tracks a failed event's retry state.
type RetryEntry struct {
	Event     domain.Event
	Attempt   int
	NextRetry time.Time
	Error     string
}

type retryHeap []RetryEntry

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].NextRetry.Before(h[j].NextRetry) }
func (h retryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)        { *h = append(*h, x.(RetryEntry)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Retrying publishes through a sink and re-queues failed events. It
// satisfies domain.Publisher; Publish never fails once an event is queued.
type Retrying struct {
	mu     sync.Mutex
	sink   domain.Publisher
	config RetryConfig
	queue  retryHeap
	now    func() time.Time

	totalRetries   int64
	totalExhausted int64
}

// NewRetrying wraps sink with a retry queue.
func NewRetrying(sink domain.Publisher, cfg RetryConfig) *Retrying {
	return &Retrying{sink: sink, config: cfg, now: time.Now}
}

// Publish tries the sink once and schedules a retry on failure.
func (r *Retrying) Publish(ctx context.Context, e domain.Event) error {
	if err := r.sink.Publish(ctx, e); err != nil {
		r.schedule(RetryEntry{Event: e, Error: err.Error()})
	}
	return nil
}

// schedule queues entry for its next attempt. It returns false once the
// entry has exceeded MaxRetries.
func (r *Retrying) schedule(entry RetryEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Attempt++
	if entry.Attempt > r.config.MaxRetries {
		r.totalExhausted++
		log.Printf("[events] dropping %s after %d attempts: %s", entry.Event.Type, entry.Attempt, entry.Error)
		return false
	}

	// baseDelay * 2^(attempt-1), capped
	delay := r.config.BaseDelay
	for i := 1; i < entry.Attempt; i++ {
		delay *= 2
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
			break
		}
	}
	entry.NextRetry = r.now().Add(delay)

	if r.config.MaxPending > 0 && r.queue.Len() >= r.config.MaxPending {
		r.totalExhausted++
		log.Printf("[events] retry queue full, dropping %s", entry.Event.Type)
		return false
	}
	heap.Push(&r.queue, entry)
	r.totalRetries++
	metrics.EventsRetryPending.Set(float64(r.queue.Len()))
	return true
}

// DrainReady removes and returns every entry whose retry time has passed,
// earliest first.
func (r *Retrying) DrainReady() []RetryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var ready []RetryEntry
	for r.queue.Len() > 0 && !r.queue[0].NextRetry.After(now) {
		ready = append(ready, heap.Pop(&r.queue).(RetryEntry))
	}
	metrics.EventsRetryPending.Set(float64(r.queue.Len()))
	return ready
}

// Flush republishes every due entry once, re-queueing those that fail
// again.
func (r *Retrying) Flush(ctx context.Context) {
	for _, entry := range r.DrainReady() {
		if err := r.sink.Publish(ctx, entry.Event); err != nil {
			entry.Error = err.Error()
			r.schedule(entry)
		}
	}
}

// Run flushes due entries every interval until ctx is cancelled.
func (r *Retrying) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Len returns the number of events pending retry.
func (r *Retrying) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	PendingRetries int   `json:"pending_retries"`
	TotalRetries   int64 `json:"total_retries"`
	TotalExhausted int64 `json:"total_exhausted"`
}

// Stats returns current retry queue statistics.
func (r *Retrying) Stats() RetryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RetryStats{
		PendingRetries: r.queue.Len(),
		TotalRetries:   r.totalRetries,
		TotalExhausted: r.totalExhausted,
	}
}
