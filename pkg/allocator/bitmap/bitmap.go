// Package bitmap implements a fixed-size bitmap allocator. It provides the
// same contract the teacher's id and ip/subnet allocators build on
// (`bitmapallocator.NewRoundRobinAllocationMap`, `AllocateNext`, `Allocate`,
// `Release`) — reconstructed here since the bitmap package itself was not
// part of the retrieved reference set, only its call sites.
package bitmap

import (
	"fmt"
	"math/big"
	"sync"
)

// Interface is the contract every caller in this repo depends on.
type Interface interface {
	Allocate(offset int) (bool, error)
	AllocateNext() (int, bool, error)
	Release(offset int)
	Has(offset int) bool
	Free() int
}

// AllocationBitmap is a thread-safe, round-robin-biased allocator over
// [0, max). "Round-robin" means AllocateNext resumes scanning after the
// offset it last handed out rather than always restarting at 0; before its
// first call the scan starts at 0. Only AllocateNext moves that position:
// Allocate and Release leave it unchanged.
type AllocationBitmap struct {
	lock   sync.Mutex
	max    int
	rangeSpec string
	bitmap *big.Int
	last   int
	count  int
}

func NewRoundRobinAllocationMap(max int, rangeSpec string) *AllocationBitmap {
	return &AllocationBitmap{
		max:       max,
		rangeSpec: rangeSpec,
		bitmap:    new(big.Int),
		last:      -1,
	}
}

func (a *AllocationBitmap) Allocate(offset int) (bool, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if offset < 0 || offset >= a.max {
		return false, fmt.Errorf("offset %d out of range [0,%d) for %s", offset, a.max, a.rangeSpec)
	}
	if a.bitmap.Bit(offset) == 1 {
		return false, nil
	}
	a.bitmap.SetBit(a.bitmap, offset, 1)
	a.count++
	return true, nil
}

func (a *AllocationBitmap) AllocateNext() (int, bool, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.count >= a.max {
		return 0, false, nil
	}
	for i := 0; i < a.max; i++ {
		offset := (a.last + 1 + i) % a.max
		if a.bitmap.Bit(offset) == 0 {
			a.bitmap.SetBit(a.bitmap, offset, 1)
			a.count++
			a.last = offset
			return offset, true, nil
		}
	}
	return 0, false, nil
}

func (a *AllocationBitmap) Release(offset int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if offset < 0 || offset >= a.max {
		return
	}
	if a.bitmap.Bit(offset) == 1 {
		a.bitmap.SetBit(a.bitmap, offset, 0)
		a.count--
	}
}

func (a *AllocationBitmap) Has(offset int) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	if offset < 0 || offset >= a.max {
		return false
	}
	return a.bitmap.Bit(offset) == 1
}

func (a *AllocationBitmap) Free() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.max - a.count
}
