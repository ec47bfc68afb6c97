package managed

import (
	"slices"
)

// maybeCollect runs a collection when the pending allocation of n elements
// would cross the threshold and the collector is enabled.
func (rt *Runtime[T]) maybeCollect(n int) {
	if !rt.gcDisabled && rt.sinceGC+n > rt.opts.GCThreshold {
		rt.collect()
	}
	rt.sinceGC += n
}

// Collect forces a full collection. It fails with ErrGCSuspended while the
// collector is disabled.
func (rt *Runtime[T]) Collect() (CollectStats, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return CollectStats{}, err
	}
	if rt.gcDisabled {
		return CollectStats{}, ErrGCSuspended
	}
	return rt.collect(), nil
}

// mark returns the set of objects reachable from the slots of the live frames.
func (rt *Runtime[T]) mark() map[Handle]struct{} {
	marked := make(map[Handle]struct{}, len(rt.objects))
	var stack []Handle
	for _, f := range rt.frames {
		for _, slot := range f.slots {
			if *slot != Nil {
				stack = append(stack, *slot)
			}
		}
	}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := marked[h]; seen {
			continue
		}
		o, ok := rt.objects[h]
		if !ok {
			continue
		}
		marked[h] = struct{}{}
		for _, c := range o.children() {
			if c != Nil {
				stack = append(stack, c)
			}
		}
	}
	return marked
}

// collect marks from the root frames, frees everything unreachable and
// compacts the surviving arrays into fresh chunks in handle order. Every
// surviving array moves, so its generation advances.
func (rt *Runtime[T]) collect() CollectStats {
	marked := rt.mark()

	var cs CollectStats
	cs.Marked = len(marked)
	var arrays []Handle
	for h, o := range rt.objects {
		if _, live := marked[h]; !live {
			delete(rt.objects, h)
			cs.Freed++
			continue
		}
		if o.kind == KindArray {
			arrays = append(arrays, h)
		}
	}
	slices.Sort(arrays)

	old := rt.chunks
	rt.chunks = [][]T{make([]T, rt.opts.ChunkSize)}
	rt.cur, rt.used = 0, 0
	for _, h := range arrays {
		o := rt.objects[h]
		src := old[o.chunk][o.off : o.off+o.n]
		o.chunk, o.off = rt.reserve(o.n)
		copy(rt.storage(o), src)
		o.gen++
		cs.Relocated++
	}
	for _, c := range rt.chunks {
		cs.HeapElems += len(c)
	}

	rt.sinceGC = 0
	rt.stats.Collections++
	rt.stats.Relocations += cs.Relocated
	rt.stats.Freed += cs.Freed
	rt.observer.OnCollect(cs)
	log.Debugf("collect: marked=%d freed=%d relocated=%d heap=%d",
		cs.Marked, cs.Freed, cs.Relocated, cs.HeapElems)
	return cs
}
