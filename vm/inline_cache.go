package vm

// Inline caching for virtual and interface dispatch.
//
// Each invokevirtual/invokeinterface site has its own cache, indexed by
// the instruction's pc within the calling method. Most sites only ever
// see one receiver class, a few see a handful, and the rest fall back to
// the full selection walk.

// CacheState is the state of one call-site cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // no lookup yet
	CacheMonomorphic                   // one receiver class
	CachePolymorphic                   // 2..MaxPICEntries receiver classes
	CacheMegamorphic                   // too many classes; always miss
)

// MaxPICEntries is the capacity of a polymorphic inline cache.
const MaxPICEntries = 6

// InlineCacheEntry maps a receiver class to its selected method.
type InlineCacheEntry struct {
	Class  *Class
	Method *Method
}

// InlineCache is the cache of one call site. It only moves forward:
// Empty, Monomorphic, Polymorphic, Megamorphic.
type InlineCache struct {
	State   CacheState
	Entries [MaxPICEntries]InlineCacheEntry
	Count   int

	Hits   uint64
	Misses uint64
}

// Lookup returns the cached target for receiver, or nil on a miss.
func (ic *InlineCache) Lookup(receiver *Class) *Method {
	if ic.State == CacheMonomorphic || ic.State == CachePolymorphic {
		for i := 0; i < ic.Count; i++ {
			if ic.Entries[i].Class == receiver {
				ic.Hits++
				return ic.Entries[i].Method
			}
		}
	}
	ic.Misses++
	return nil
}

// Update records the target selected for receiver.
func (ic *InlineCache) Update(receiver *Class, m *Method) {
	if m == nil || ic.State == CacheMegamorphic {
		return
	}
	for i := 0; i < ic.Count; i++ {
		if ic.Entries[i].Class == receiver {
			return
		}
	}
	if ic.Count == MaxPICEntries {
		ic.State = CacheMegamorphic
		ic.Entries = [MaxPICEntries]InlineCacheEntry{}
		ic.Count = 0
		return
	}
	ic.Entries[ic.Count] = InlineCacheEntry{Class: receiver, Method: m}
	ic.Count++
	if ic.Count == 1 {
		ic.State = CacheMonomorphic
	} else {
		ic.State = CachePolymorphic
	}
}

// Reset clears the cache back to empty.
func (ic *InlineCache) Reset() {
	*ic = InlineCache{}
}

// InlineCacheTable holds the caches of every call site in one method.
type InlineCacheTable struct {
	caches map[int]*InlineCache
}

// NewInlineCacheTable creates an empty table.
func NewInlineCacheTable() *InlineCacheTable {
	return &InlineCacheTable{caches: make(map[int]*InlineCache)}
}

// GetOrCreate returns the cache for the call site at pc.
func (t *InlineCacheTable) GetOrCreate(pc int) *InlineCache {
	if ic := t.caches[pc]; ic != nil {
		return ic
	}
	ic := &InlineCache{}
	t.caches[pc] = ic
	return ic
}

// Get returns the cache for pc, or nil.
func (t *InlineCacheTable) Get(pc int) *InlineCache {
	return t.caches[pc]
}

// ICStats aggregates inline cache statistics.
type ICStats struct {
	CallSites   int
	Monomorphic int
	Polymorphic int
	Megamorphic int
	Hits        uint64
	Misses      uint64
}

// HitRate returns the hit percentage.
func (s ICStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) * 100 / float64(total)
}

func (t *InlineCacheTable) collect(s *ICStats) {
	for _, ic := range t.caches {
		s.CallSites++
		switch ic.State {
		case CacheMonomorphic:
			s.Monomorphic++
		case CachePolymorphic:
			s.Polymorphic++
		case CacheMegamorphic:
			s.Megamorphic++
		}
		s.Hits += ic.Hits
		s.Misses += ic.Misses
	}
}

// CollectICStats gathers statistics over every method in ct.
func CollectICStats(ct *ClassTable) ICStats {
	var s ICStats
	for _, c := range ct.All() {
		for _, m := range c.Methods {
			if m.caches != nil {
				m.caches.collect(&s)
			}
		}
	}
	return s
}
