package gns

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// bgQueries enforces the global bound on outstanding distributed lookups.
// Entries are kept in a min-heap by start time; when the bound is exceeded
// the oldest-started lookup is cancelled, failing that request with
// ErrEvicted. Insertion order does not imply completion order.
type bgQueries struct {
	mu    sync.Mutex
	limit int
	h     bgHeap
}

type bgEntry struct {
	started time.Time
	cancel  context.CancelCauseFunc
	index   int // heap index, -1 once removed
}

type bgHeap []*bgEntry

func (h bgHeap) Len() int            { return len(h) }
func (h bgHeap) Less(i, j int) bool  { return h[i].started.Before(h[j].started) }
func (h bgHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *bgHeap) Push(x any)         { e := x.(*bgEntry); e.index = len(*h); *h = append(*h, e) }
func (h *bgHeap) Pop() (x any)       { old := *h; n := len(old); x = old[n-1]; old[n-1] = nil; *h = old[:n-1]; return }

// add registers a new outstanding lookup, evicting the oldest one first if
// the bound is reached. The eviction always targets the oldest-started
// entry, never the caller's.
func (bg *bgQueries) add(cancel context.CancelCauseFunc) (e *bgEntry) {
	e = &bgEntry{started: time.Now(), cancel: cancel}
	var victim *bgEntry
	bg.mu.Lock()
	if bg.limit > 0 && bg.h.Len() >= bg.limit {
		victim = heap.Pop(&bg.h).(*bgEntry)
		victim.index = -1
	}
	heap.Push(&bg.h, e)
	bg.mu.Unlock()
	if victim != nil {
		victim.cancel(ErrEvicted)
	}
	return
}

// remove drops an entry once its lookup has completed or been cancelled.
// Safe to call for an already evicted entry.
func (bg *bgQueries) remove(e *bgEntry) {
	bg.mu.Lock()
	if e.index >= 0 {
		heap.Remove(&bg.h, e.index)
		e.index = -1
	}
	bg.mu.Unlock()
}

func (bg *bgQueries) outstanding() (n int) {
	bg.mu.Lock()
	n = bg.h.Len()
	bg.mu.Unlock()
	return
}
