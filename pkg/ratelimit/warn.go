// Package ratelimit provides rate-limited warning logging so that malformed
// or exhausted input cannot flood the log stream during a reconciliation
// pass (spec §7: "All warnings are rate-limited").
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

// Warner rate-limits a single warning call site.
type Warner struct {
	limiter *rate.Limiter
	mu      sync.Mutex
}

// NewWarner returns a Warner allowing at most one log line per period,
// with a small burst to avoid dropping the first warning of a batch.
func NewWarner(perSecond float64, burst int) *Warner {
	return &Warner{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Every1s is the allocator exhaustion cadence documented in spec §7.
func Every1s() *Warner { return NewWarner(1, 1) }

// Every5s is the configuration-error cadence documented in spec §7.
func Every5s() *Warner { return NewWarner(0.2, 1) }

// Warnf logs at klog.Warningf cadence if the limiter allows it; otherwise
// the warning is dropped silently.
func (w *Warner) Warnf(format string, args ...interface{}) {
	w.mu.Lock()
	allow := w.limiter.Allow()
	w.mu.Unlock()
	if allow {
		klog.Warningf(format, args...)
	}
}
