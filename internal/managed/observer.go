package managed

// CollectStats describes one collection cycle.
type CollectStats struct {
	Marked    int
	Freed     int
	Relocated int
	HeapElems int
}

// Observer receives runtime events. Methods are called with the runtime lock
// held and must not call back into the runtime.
type Observer interface {
	OnPushRoots(depth, slots int)
	OnPopRoots(depth, slots int)
	OnCollect(stats CollectStats)
	OnGCEnable(enabled bool)
}

// NopObserver ignores every event. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) OnPushRoots(int, int)   {}
func (NopObserver) OnPopRoots(int, int)    {}
func (NopObserver) OnCollect(CollectStats) {}
func (NopObserver) OnGCEnable(bool)        {}
