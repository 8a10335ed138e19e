// Package queueid implements the per-chassis queue-id allocator, spec §4.1:
// "Per chassis, a set of used 8-bit queue ids in (MIN+1..MAX). Scans
// linearly for the first free id; rate-limited warning on exhaustion."
package queueid

import (
	"sync"

	"github.com/cubeek/ovn/pkg/ratelimit"
	"github.com/cubeek/ovn/pkg/types"
)

// Allocator tracks used queue ids per chassis name.
type Allocator struct {
	mu     sync.Mutex
	used   map[string]map[int]bool
	warner *ratelimit.Warner
}

func NewAllocator() *Allocator {
	return &Allocator{used: map[string]map[int]bool{}, warner: ratelimit.Every1s()}
}

func (a *Allocator) Reserve(chassis string, id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserveLocked(chassis, id)
}

func (a *Allocator) reserveLocked(chassis string, id int) {
	m, ok := a.used[chassis]
	if !ok {
		m = map[int]bool{}
		a.used[chassis] = m
	}
	m[id] = true
}

// AllocateNext scans linearly from MIN+1 to MAX for the first free id on
// the given chassis. Returns 0 on exhaustion.
func (a *Allocator) AllocateNext(chassis string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.used[chassis]
	for id := types.QueueIDMin + 1; id <= types.QueueIDMax; id++ {
		if m == nil || !m[id] {
			a.reserveLocked(chassis, id)
			return id
		}
	}
	a.warner.Warnf("queue id pool exhausted for chassis %q", chassis)
	return 0
}

func (a *Allocator) Release(chassis string, id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.used[chassis]; ok {
		delete(m, id)
	}
}

// Stats reports the number of allocated ids per chassis (spec §4 "Supplemented
// features": exhaustion counters derivable from inputs).
func (a *Allocator) Stats() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.used))
	for chassis, m := range a.used {
		out[chassis] = len(m)
	}
	return out
}
