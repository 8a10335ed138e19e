// Package tunnelkey implements the tunnel-key allocator described in spec
// §4.1: given a set of in-use integers and a hint, return the smallest
// unused integer strictly above the hint, wrapping at max back to min.
package tunnelkey

import "github.com/cubeek/ovn/pkg/ratelimit"

// Allocate is the pure allocation rule. used need not be sorted or
// contiguous. Returns 0 (and exhausted=true) if [min,max] is fully used.
func Allocate(used map[int]bool, hint, min, max int) (key int, exhausted bool) {
	if max < min {
		return 0, true
	}
	span := max - min + 1
	start := hint + 1
	if start < min || start > max {
		start = min
	}
	for i := 0; i < span; i++ {
		candidate := min + (start-min+i)%span
		if !used[candidate] {
			return candidate, false
		}
	}
	return 0, true
}

// Pool is a stateful convenience wrapper used by the reconcilers: it owns
// the used-set, a per-pool warner, and the [min,max] range, and exposes
// Next(hint) with the exhaustion warning already wired (spec §4.1, §7
// "Allocation exhaustion").
type Pool struct {
	Min, Max int
	used     map[int]bool
	warner   *ratelimit.Warner
	name     string
}

func NewPool(name string, min, max int) *Pool {
	return &Pool{Min: min, Max: max, used: map[int]bool{}, warner: ratelimit.Every1s(), name: name}
}

// Reserve marks key as used without allocating through Next; used by
// reconcilers to pre-seed the pool from a snapshot of SB keys still alive
// (spec §4.2/§4.3 "the union of keys in both").
func (p *Pool) Reserve(key int) {
	if key != 0 {
		p.used[key] = true
	}
}

func (p *Pool) IsUsed(key int) bool { return p.used[key] }

// Next allocates and reserves the next free key above hint, or 0 on
// exhaustion (with a rate-limited warning, spec §7).
func (p *Pool) Next(hint int) int {
	key, exhausted := Allocate(p.used, hint, p.Min, p.Max)
	if exhausted {
		p.warner.Warnf("tunnel key pool %q exhausted (range [%d,%d])", p.name, p.Min, p.Max)
		return 0
	}
	p.used[key] = true
	return key
}

func (p *Pool) Release(key int) { delete(p.used, key) }

// MaxUsed returns the highest reserved key, used to seed a per-datapath
// port-key pool's hint from "the maximum key observed in SB" (spec §4.1).
func (p *Pool) MaxUsed() int {
	max := 0
	for k := range p.used {
		if k > max {
			max = k
		}
	}
	return max
}
