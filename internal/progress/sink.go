// Package progress defines the ProgressSink capability passed down the audit pipeline.
package progress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Sink receives progress updates. Percent is in [0,100].
type Sink interface {
	Report(percent int, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(percent int, message string)

func (f SinkFunc) Report(percent int, message string) { f(percent, message) }

// Nop discards every update.
var Nop Sink = SinkFunc(func(int, string) {})

// Throttled forwards an update when the percentage moved by at least minDelta since the
// last forwarded update, or when the limiter (one token per interval) allows it.
// Updates that would move progress backwards are dropped.
type Throttled struct {
	next     Sink
	minDelta int
	limiter  *rate.Limiter

	mu   sync.Mutex
	last int
	sent bool
}

// NewThrottled wraps next. interval <= 0 disables time-based publishing (delta only).
func NewThrottled(next Sink, interval time.Duration, minDelta int) *Throttled {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if minDelta < 0 {
		minDelta = 0
	}
	return &Throttled{
		next:     next,
		minDelta: minDelta,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func (t *Throttled) Report(percent int, message string) {
	t.mu.Lock()
	if t.sent && percent < t.last {
		t.mu.Unlock()
		return
	}
	allowed := t.limiter.Allow()
	publish := !t.sent || allowed || percent-t.last >= t.minDelta
	if publish {
		t.last = percent
		t.sent = true
	}
	t.mu.Unlock()

	if publish {
		t.next.Report(percent, message)
	}
}
