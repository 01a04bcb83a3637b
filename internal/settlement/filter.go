package settlement

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	filterCapacity = 1_000_000
	filterFPR      = 0.01
)

// markerFilter is a bloom filter over payment references settled by this
// process. A negative answer lets the engine skip the pre-insert lookup for
// first-time events; a positive answer (which may be a false positive) only
// triggers an extra lookup. Correctness never depends on it — the unique
// constraint does that.
type markerFilter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newMarkerFilter() *markerFilter {
	return &markerFilter{
		filter: bloom.NewWithEstimates(filterCapacity, filterFPR),
	}
}

// maybeSettled reports whether ref may have been settled already. False means
// definitely not settled by this process.
func (f *markerFilter) maybeSettled(ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter.TestString(ref)
}

func (f *markerFilter) add(ref string) {
	f.mu.Lock()
	f.filter.AddString(ref)
	f.mu.Unlock()
}
