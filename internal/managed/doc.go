// Package managed implements the embedded numeric runtime: a garbage-collected
// object heap whose numeric arrays live in chunked storage that the collector
// compacts, so surviving arrays move.
//
// Native code (the driver) never holds runtime objects directly. It holds
// [Handle] values in slots it registers with [Runtime.PushRoots], and it reads
// and writes numeric storage through [Buffer] borrows obtained with
// [ResolveBuffer]:
//
//	var state, q managed.Handle
//	frame, _ := rt.PushRoots(&state, &q)
//	defer frame.Pop()
//	q, _ = rt.Field(state, "q")
//	buf, _ := managed.ResolveBuffer(frame, q)
//	buf.Data[0] = 1
//
// A borrow stays valid while its owner is reachable from a live root frame
// and has not been relocated. Relocation only happens during a collection,
// and collections only happen while the collector is enabled, so callers
// bracket allocation-heavy calls with [Runtime.WithoutGC].
//
// # Thread Safety
//
// A Runtime serializes its own bookkeeping with a mutex, but callers are
// expected to drive it from a single goroutine. Borrowed buffers are not
// synchronized.
package managed
