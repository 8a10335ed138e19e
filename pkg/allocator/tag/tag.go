// Package tag implements the nested-container tag allocator, spec §4.1:
// "Per parent_name, a bitmap of 1..4095. Pre-marks tag 0 invalid and any
// tags already present on peer ports sharing the parent; on request,
// returns the lowest free tag and commits it to the northbound row."
package tag

import (
	"sync"

	"github.com/cubeek/ovn/pkg/allocator/bitmap"
	"github.com/cubeek/ovn/pkg/ratelimit"
	"github.com/cubeek/ovn/pkg/types"
)

type Allocator struct {
	mu      sync.Mutex
	bitmaps map[string]bitmap.Interface
	warner  *ratelimit.Warner
}

func NewAllocator() *Allocator {
	return &Allocator{bitmaps: map[string]bitmap.Interface{}, warner: ratelimit.Every1s()}
}

func (a *Allocator) bitmapFor(parent string) bitmap.Interface {
	b, ok := a.bitmaps[parent]
	if !ok {
		// one extra slot so offset 0 can be permanently reserved below.
		b = bitmap.NewRoundRobinAllocationMap(types.TagMax+1, "tag:"+parent)
		_, _ = b.(*bitmap.AllocationBitmap).Allocate(0) // tag 0 is always invalid
		a.bitmaps[parent] = b
	}
	return b
}

// PreMark reserves tags already in use by peer ports under the same
// parent_name before any allocation request is served, per spec §4.1.
func (a *Allocator) PreMark(parent string, tags ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bitmapFor(parent)
	for _, t := range tags {
		if t >= types.TagMin && t <= types.TagMax {
			_, _ = b.Allocate(t)
		}
	}
}

// AllocateNext returns the lowest free tag for parent, or 0 on exhaustion.
// The caller is responsible for "committing it to the northbound row"
// (spec §4.1) since this package does not depend on pkg/nb.
func (a *Allocator) AllocateNext(parent string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bitmapFor(parent)
	for t := types.TagMin; t <= types.TagMax; t++ {
		if ok, _ := b.Allocate(t); ok {
			return t
		}
	}
	a.warner.Warnf("tag pool exhausted for parent %q", parent)
	return 0
}

func (a *Allocator) Release(parent string, t int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.bitmaps[parent]; ok {
		b.Release(t)
	}
}
