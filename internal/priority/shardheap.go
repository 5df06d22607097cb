// Package priority implements the dispatcher's shard priority structure: a
// min-heap ordered by (version ascending, in-flight count ascending),
// directly translating the original's
// std::priority_queue<worker_info*, ..., worker_info_ptr_cmp> (whose
// comparator inverts both fields to turn a max-heap into a min-heap).
//
// No third-party heap/priority-queue package appears anywhere in the
// example pack, so this is built on container/heap — see DESIGN.md.
package priority

import "container/heap"

// Entry tracks one shard's position in the priority structure.
type Entry struct {
	ShardID int
	Version int
	InFlight int

	index int // maintained by container/heap, do not set
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Version != h[j].Version {
		return h[i].Version < h[j].Version
	}
	return h[i].InFlight < h[j].InFlight
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Heap is the dispatcher's shard priority queue: Top() always returns the
// shard that should receive the next packet (lowest version, then lowest
// in-flight count).
type Heap struct {
	h     entryHeap
	byID  map[int]*Entry
}

// New creates an empty shard priority heap.
func New() *Heap {
	return &Heap{byID: make(map[int]*Entry)}
}

// Add inserts a new shard with version and in-flight count both at 0,
// matching worker_info's constructor.
func (p *Heap) Add(shardID int) {
	e := &Entry{ShardID: shardID}
	p.byID[shardID] = e
	heap.Push(&p.h, e)
}

// Top returns the highest-priority shard without removing it. Returns nil
// if the heap is empty.
func (p *Heap) Top() *Entry {
	if len(p.h) == 0 {
		return nil
	}
	return p.h[0]
}

// IncrementInFlight increments the shard's in-flight count and re-heapifies
// — called once per packet dispatched to that shard, mirroring
// tmp_w->num_running_jobs++ in the original's dispatch loop.
func (p *Heap) IncrementInFlight(shardID int) {
	e := p.byID[shardID]
	if e == nil {
		return
	}
	e.InFlight++
	heap.Fix(&p.h, e.index)
}

// Reconcile applies a shard's reported completion delta during a reconcile
// pass: decrements in-flight by completed and bumps the shard's version,
// mirroring:
//
//	tmp_w->num_running_jobs -= return_size;
//	tmp_w->version_number++;
//
// Called once per shard per reconcile pass regardless of completed (even
// 0), so that "every shard has version = previous+1" holds after a full
// pass — a shard with nothing to report still needs its version bumped, or
// it would look perpetually stale relative to shards that did have work
// drain.
func (p *Heap) Reconcile(shardID int, completed int) {
	e := p.byID[shardID]
	if e == nil {
		return
	}
	e.InFlight -= completed
	e.Version++
	heap.Fix(&p.h, e.index)
}

// Snapshot returns a copy of every tracked shard's entry, for Observer
// reporting and tests. Order is unspecified.
func (p *Heap) Snapshot() []Entry {
	out := make([]Entry, 0, len(p.h))
	for _, e := range p.h {
		out = append(out, Entry{ShardID: e.ShardID, Version: e.Version, InFlight: e.InFlight})
	}
	return out
}

// Len returns the number of shards tracked.
func (p *Heap) Len() int { return len(p.h) }
