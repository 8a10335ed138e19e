package flows

import "hash/fnv"

// DatapathID is the northbound identity key (opaque 128-bit key, modeled
// here as a string UUID) of the switch or router owning a flow.
type DatapathID string

// Flow is a logical-flow identity tuple plus its non-identity hint field
// (spec §3 "Logical flow"). Identity for deduplication is the five fields
// (Datapath, Stage, Priority, Match, Actions); Hint is diagnostics-only.
type Flow struct {
	Datapath DatapathID
	Stage    Stage
	Priority int
	Match    string
	Actions  string
	Hint     string // originating NB object's full identity as text; not truncated
}

// hash is computed once and cached on Key so equal flows collide on map
// insertion without re-hashing every probe (spec §9 "Flow de-duplication").
type Key struct {
	hash     uint64
	datapath DatapathID
	stage    Stage
	priority int
	match    string
	actions  string
}

func (f Flow) Key() Key {
	h := fnv.New64a()
	h.Write([]byte(f.Datapath))
	h.Write([]byte{byte(f.Stage >> 8), byte(f.Stage)})
	h.Write([]byte(f.Match))
	h.Write([]byte(f.Actions))
	return Key{
		hash:     h.Sum64() ^ uint64(f.Priority),
		datapath: f.Datapath,
		stage:    f.Stage,
		priority: f.Priority,
		match:    f.Match,
		actions:  f.Actions,
	}
}

// Hash returns the cached dedup hash for k.
func (k Key) Hash() uint64 { return k.hash }

// Set is a hash set of flows keyed by their five identity fields. It is the
// in-memory output of the lswitch/lrouter generators and the input to the
// C9 differ.
type Set struct {
	m map[Key]Flow
}

func NewSet() *Set { return &Set{m: make(map[Key]Flow)} }

// Add inserts f; if a flow with the same identity already exists it is
// left unchanged (flows are a set, not a multiset — spec §3).
func (s *Set) Add(f Flow) {
	k := f.Key()
	if _, ok := s.m[k]; !ok {
		s.m[k] = f
	}
}

func (s *Set) Len() int { return len(s.m) }

func (s *Set) All() []Flow {
	out := make([]Flow, 0, len(s.m))
	for _, f := range s.m {
		out = append(out, f)
	}
	return out
}

// Has reports whether a flow with this exact identity is present.
func (s *Set) Has(f Flow) bool {
	_, ok := s.m[f.Key()]
	return ok
}
