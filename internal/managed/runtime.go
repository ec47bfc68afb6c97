package managed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/san-kum/rbdrive/internal/compute"
	"github.com/san-kum/rbdrive/internal/logging"
)

var log = logging.For("managed")

// active is set while a runtime is initialized; one runtime per process.
var active atomic.Bool

// Active reports whether a runtime is currently initialized in this process.
func Active() bool {
	return active.Load()
}

// Options configures Init. Zero fields fall back to DefaultOptions, and a
// bootstrap image's settings apply before the zero-field fallback.
type Options struct {
	// Threads is the linear-algebra worker count.
	Threads int
	// ImagePath optionally names a bootstrap image to load.
	ImagePath string
	// ChunkSize is the element count of one storage chunk.
	ChunkSize int
	// GCThreshold is the element count allocated between automatic collections.
	GCThreshold int
	Observer    Observer
}

func DefaultOptions() Options {
	return Options{
		Threads:     1,
		ChunkSize:   1 << 12,
		GCThreshold: 1 << 16,
	}
}

// Runtime is the embedded numeric runtime for scalar type T.
type Runtime[T Scalar] struct {
	mu   sync.Mutex
	opts Options
	elem ElemType
	img  *Image

	objects map[Handle]*object
	nextID  Handle

	chunks  [][]T
	cur     int
	used    int
	sinceGC int

	gcDisabled bool
	frames     []*RootFrame[T]

	stats    Stats
	observer Observer

	atExit   []func(code int)
	shutdown sync.Once
	closed   bool
}

// Init brings up the process's runtime: it loads the bootstrap image if one
// is configured and pins the linear-algebra backend's thread count.
func Init[T Scalar](opts Options) (*Runtime[T], error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	elem := ElemTypeOf[T]()
	var img *Image
	if opts.ImagePath != "" {
		var err error
		img, err = ReadImage(opts.ImagePath)
		if err == nil {
			err = img.checkScalar(elem)
		}
		if err != nil {
			active.Store(false)
			return nil, fmt.Errorf("managed: load image: %w", err)
		}
		opts = applyImage(opts, img)
	}
	opts = withDefaults(opts)

	compute.SetThreads(opts.Threads)

	rt := &Runtime[T]{
		opts:     opts,
		elem:     elem,
		img:      img,
		objects:  make(map[Handle]*object),
		nextID:   1,
		chunks:   [][]T{make([]T, opts.ChunkSize)},
		observer: opts.Observer,
	}
	if rt.observer == nil {
		rt.observer = NopObserver{}
	}

	log.Infof("runtime up: scalar=%s threads=%d chunk=%d gc_threshold=%d image=%t",
		elem, opts.Threads, opts.ChunkSize, opts.GCThreshold, img != nil)
	return rt, nil
}

func applyImage(opts Options, img *Image) Options {
	if opts.Threads == 0 {
		opts.Threads = img.Threads
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = img.Heap.ChunkSize
	}
	if opts.GCThreshold == 0 {
		opts.GCThreshold = img.Heap.GCThreshold
	}
	return opts
}

func withDefaults(opts Options) Options {
	d := DefaultOptions()
	if opts.Threads <= 0 {
		opts.Threads = d.Threads
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = d.ChunkSize
	}
	if opts.GCThreshold <= 0 {
		opts.GCThreshold = d.GCThreshold
	}
	return opts
}

// AtExit registers fn to run during Shutdown. Hooks run in reverse order.
func (rt *Runtime[T]) AtExit(fn func(code int)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.atExit = append(rt.atExit, fn)
}

// Shutdown runs the finalization hooks once and releases the runtime. Later
// calls do nothing.
func (rt *Runtime[T]) Shutdown(exitCode int) {
	rt.shutdown.Do(func() {
		rt.mu.Lock()
		hooks := rt.atExit
		live := len(rt.frames)
		rt.closed = true
		rt.objects = nil
		rt.chunks = nil
		rt.frames = nil
		rt.mu.Unlock()

		if live > 0 {
			log.Warningf("shutdown with %d live root frames", live)
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i](exitCode)
		}

		active.Store(false)
		log.Infof("runtime down: exit=%d", exitCode)
	})
}

// Closed reports whether Shutdown has begun.
func (rt *Runtime[T]) Closed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.closed
}

// ElemType returns the runtime's scalar type.
func (rt *Runtime[T]) ElemType() ElemType { return rt.elem }

// Image returns the loaded bootstrap image, or nil.
func (rt *Runtime[T]) Image() *Image { return rt.img }

// Options returns the effective options after image and default resolution.
func (rt *Runtime[T]) Options() Options { return rt.opts }

// Stats returns collector counters and heap occupancy.
func (rt *Runtime[T]) Stats() Stats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s := rt.stats
	s.LiveObjects = len(rt.objects)
	s.Chunks = len(rt.chunks)
	for _, c := range rt.chunks {
		s.HeapElems += len(c)
	}
	return s
}

// EnableGC turns automatic collection on or off and returns the previous setting.
func (rt *Runtime[T]) EnableGC(on bool) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := !rt.gcDisabled
	rt.gcDisabled = !on
	if prev != on {
		rt.observer.OnGCEnable(on)
		log.Debugf("collector enabled=%t", on)
	}
	return prev
}

// GCEnabled reports whether automatic collection is on.
func (rt *Runtime[T]) GCEnabled() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return !rt.gcDisabled
}

// WithoutGC runs fn with the collector suspended and re-enables it on every
// exit path, including a panic in fn. Suspension does not nest.
func (rt *Runtime[T]) WithoutGC(fn func() error) error {
	rt.mu.Lock()
	if err := rt.checkOpen(); err != nil {
		rt.mu.Unlock()
		return err
	}
	if rt.gcDisabled {
		rt.mu.Unlock()
		return ErrGCSuspended
	}
	rt.gcDisabled = true
	rt.observer.OnGCEnable(false)
	rt.mu.Unlock()

	defer rt.EnableGC(true)
	return fn()
}

func (rt *Runtime[T]) checkOpen() error {
	if rt.closed {
		return ErrNotInitialized
	}
	return nil
}
