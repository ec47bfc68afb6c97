package managed

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

type recorder struct {
	NopObserver
	events      []string
	collections int
	suspended   []bool
}

func (r *recorder) OnPushRoots(depth, slots int) {
	r.events = append(r.events, "push")
}

func (r *recorder) OnPopRoots(depth, slots int) {
	r.events = append(r.events, "pop")
}

func (r *recorder) OnCollect(CollectStats) { r.collections++ }

func (r *recorder) OnGCEnable(enabled bool) { r.suspended = append(r.suspended, !enabled) }

func newRuntime(t *testing.T, opts Options) *Runtime[float64] {
	t.Helper()
	rt, err := Init[float64](opts)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { rt.Shutdown(0) })
	return rt
}

func TestInitTwice(t *testing.T) {
	newRuntime(t, Options{})

	if _, err := Init[float32](Options{}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
	if !Active() {
		t.Error("expected runtime to stay active")
	}
}

func TestShutdownRunsHooksOnce(t *testing.T) {
	rt, err := Init[float64](Options{})
	if err != nil {
		t.Fatal(err)
	}

	var order []int
	rt.AtExit(func(code int) { order = append(order, 1) })
	rt.AtExit(func(code int) {
		if code != 3 {
			t.Errorf("expected exit code 3, got %d", code)
		}
		order = append(order, 2)
	})

	rt.Shutdown(3)
	rt.Shutdown(4)

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("expected hooks [2 1], got %v", order)
	}
	if Active() {
		t.Error("expected no active runtime after shutdown")
	}
	if _, err := rt.NewArray(1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestRootFramesLIFO(t *testing.T) {
	rec := &recorder{}
	rt := newRuntime(t, Options{Observer: rec})

	var a, b Handle
	outer, err := rt.PushRoots(&a)
	if err != nil {
		t.Fatal(err)
	}
	inner, err := rt.PushRoots(&b)
	if err != nil {
		t.Fatal(err)
	}
	if rt.RootDepth() != 2 {
		t.Errorf("expected depth 2, got %d", rt.RootDepth())
	}

	if err := outer.Pop(); !errors.Is(err, ErrRootOrder) {
		t.Errorf("expected ErrRootOrder, got %v", err)
	}
	if err := inner.Pop(); err != nil {
		t.Fatal(err)
	}
	if err := inner.Pop(); err != nil {
		t.Errorf("second pop: %v", err)
	}
	if err := outer.Pop(); err != nil {
		t.Fatal(err)
	}

	want := []string{"push", "push", "pop", "pop"}
	if len(rec.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], rec.events[i])
		}
	}
}

func TestCollectFreesUnrooted(t *testing.T) {
	rt := newRuntime(t, Options{})

	var kept Handle
	frame, _ := rt.PushRoots(&kept)
	defer frame.Pop()

	kept, _ = rt.NewArray(8)
	dropped, _ := rt.NewArray(8)

	cs, err := rt.Collect()
	if err != nil {
		t.Fatal(err)
	}
	if cs.Freed != 1 {
		t.Errorf("expected 1 freed, got %d", cs.Freed)
	}
	if _, err := rt.Len(dropped); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle for dropped array, got %v", err)
	}
	if n, err := rt.Len(kept); err != nil || n != 8 {
		t.Errorf("expected kept length 8, got %d (%v)", n, err)
	}
}

func TestStructFieldsRooted(t *testing.T) {
	rt := newRuntime(t, Options{})

	var s Handle
	frame, _ := rt.PushRoots(&s)
	defer frame.Pop()

	q, _ := rt.NewArray(3)
	s, err := rt.NewStruct("Pair", []string{"q"}, []Handle{q})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Collect(); err != nil {
		t.Fatal(err)
	}

	got, err := rt.Field(s, "q")
	if err != nil || got != q {
		t.Errorf("expected field q=%d, got %d (%v)", q, got, err)
	}
	if _, err := rt.Field(s, "v"); !errors.Is(err, ErrNoField) {
		t.Errorf("expected ErrNoField, got %v", err)
	}
	if name, _ := rt.TypeName(s); name != "Pair" {
		t.Errorf("expected type Pair, got %s", name)
	}
}

func TestBufferAliasesStorage(t *testing.T) {
	rt := newRuntime(t, Options{})

	var a Handle
	frame, _ := rt.PushRoots(&a)
	defer frame.Pop()
	a, _ = rt.NewArray(4)

	buf, err := ResolveBuffer(frame, a)
	if err != nil {
		t.Fatal(err)
	}
	if cap(buf.Data) != len(buf.Data) {
		t.Errorf("expected cap == len, got cap %d len %d", cap(buf.Data), len(buf.Data))
	}
	for i := range buf.Data {
		buf.Data[i] = float64(i + 1)
	}

	view, _ := rt.KernelView(a)
	view[0] = 42
	if buf.Data[0] != 42 {
		t.Errorf("expected runtime write to be visible, got %v", buf.Data[0])
	}
	if view[3] != 4 {
		t.Errorf("expected native write to be visible, got %v", view[3])
	}
}

func TestResolveUnwrapsViews(t *testing.T) {
	rt := newRuntime(t, Options{})

	var seg, sym Handle
	frame, _ := rt.PushRoots(&seg, &sym)
	defer frame.Pop()

	arr, _ := rt.NewArray(4)
	seg, err := rt.NewSegmented(arr, []Segment{{0, 1}, {1, 3}})
	if err != nil {
		t.Fatal(err)
	}
	sq, _ := rt.NewArray(9)
	sym, err = rt.NewSymmetric(sq, 3, 'U')
	if err != nil {
		t.Fatal(err)
	}

	b, err := ResolveBuffer(frame, seg)
	if err != nil {
		t.Fatal(err)
	}
	if b.Owner() != arr || b.Len() != 4 {
		t.Errorf("expected owner %d len 4, got %d len %d", arr, b.Owner(), b.Len())
	}
	b, err = ResolveBuffer(frame, sym)
	if err != nil {
		t.Fatal(err)
	}
	if b.Owner() != sq || b.Len() != 9 {
		t.Errorf("expected owner %d len 9, got %d len %d", sq, b.Owner(), b.Len())
	}

	if _, err := rt.NewSegmented(arr, []Segment{{0, 3}, {2, 2}}); err == nil {
		t.Error("expected overlapping segments to fail")
	}
	if _, err := rt.NewSymmetric(sq, 2, 'U'); err == nil {
		t.Error("expected dimension mismatch to fail")
	}
}

func TestResolveRequiresRoot(t *testing.T) {
	rt := newRuntime(t, Options{})

	var slot Handle
	frame, _ := rt.PushRoots(&slot)
	defer frame.Pop()

	loose, _ := rt.NewArray(2)
	if _, err := ResolveBuffer(frame, loose); !errors.Is(err, ErrNotRooted) {
		t.Errorf("expected ErrNotRooted, got %v", err)
	}
}

func TestCollectionInvalidatesBorrow(t *testing.T) {
	rt := newRuntime(t, Options{ChunkSize: 16, GCThreshold: 32})

	var a Handle
	frame, _ := rt.PushRoots(&a)
	defer frame.Pop()

	a, _ = rt.NewArray(4)
	buf, _ := ResolveBuffer(frame, a)
	copy(buf.Data, []float64{1, 2, 3, 4})

	// Crosses the threshold and compacts.
	for range 10 {
		if _, err := rt.NewArray(8); err != nil {
			t.Fatal(err)
		}
	}

	if err := buf.Valid(); !errors.Is(err, ErrBorrowInvalidated) {
		t.Fatalf("expected ErrBorrowInvalidated, got %v", err)
	}
	got, _ := rt.CopyOut(a)
	for i, want := range []float64{1, 2, 3, 4} {
		if got[i] != want {
			t.Errorf("element %d: expected %v after relocation, got %v", i, want, got[i])
		}
	}

	fresh, err := ResolveBuffer(frame, a)
	if err != nil {
		t.Fatal(err)
	}
	if err := fresh.Valid(); err != nil {
		t.Errorf("expected fresh borrow to be valid, got %v", err)
	}
}

func TestWithoutGCKeepsBorrows(t *testing.T) {
	rec := &recorder{}
	rt := newRuntime(t, Options{ChunkSize: 16, GCThreshold: 32, Observer: rec})

	var a Handle
	frame, _ := rt.PushRoots(&a)
	defer frame.Pop()
	a, _ = rt.NewArray(4)
	buf, _ := ResolveBuffer(frame, a)

	err := rt.WithoutGC(func() error {
		for range 10 {
			if _, err := rt.NewArray(8); err != nil {
				return err
			}
		}
		if err := rt.WithoutGC(func() error { return nil }); !errors.Is(err, ErrGCSuspended) {
			t.Errorf("expected nested suspension to fail, got %v", err)
		}
		if _, err := rt.Collect(); !errors.Is(err, ErrGCSuspended) {
			t.Errorf("expected Collect to fail while suspended, got %v", err)
		}
		return buf.Valid()
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.collections != 0 {
		t.Errorf("expected no collections while suspended, got %d", rec.collections)
	}
	if !rt.GCEnabled() {
		t.Error("expected collector re-enabled")
	}
	if len(rec.suspended) != 2 || !rec.suspended[0] || rec.suspended[1] {
		t.Errorf("expected suspend then resume, got %v", rec.suspended)
	}
}

func TestWithoutGCReenablesOnPanic(t *testing.T) {
	rt := newRuntime(t, Options{})

	func() {
		defer func() { recover() }()
		rt.WithoutGC(func() error { panic("boom") })
	}()

	if !rt.GCEnabled() {
		t.Error("expected collector re-enabled after panic")
	}
}

func TestWithoutGCReenablesOnError(t *testing.T) {
	rec := &recorder{}
	rt := newRuntime(t, Options{Observer: rec})
	boom := errors.New("boom")

	if err := rt.WithoutGC(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if !rt.GCEnabled() {
		t.Fatal("expected collector re-enabled after error")
	}
	if err := rt.WithoutGC(func() error { return nil }); err != nil {
		t.Errorf("expected a second suspension to succeed, got %v", err)
	}
	if want := []bool{true, false, true, false}; !slices.Equal(rec.suspended, want) {
		t.Errorf("expected %v, got %v", want, rec.suspended)
	}
}

func TestPopInvalidatesBorrow(t *testing.T) {
	rt := newRuntime(t, Options{})

	var a Handle
	frame, _ := rt.PushRoots(&a)
	a, _ = rt.NewArray(2)
	buf, _ := ResolveBuffer(frame, a)
	frame.Pop()

	if err := buf.Valid(); !errors.Is(err, ErrBorrowInvalidated) {
		t.Errorf("expected ErrBorrowInvalidated, got %v", err)
	}
	if _, err := ResolveBuffer(frame, a); !errors.Is(err, ErrBorrowInvalidated) {
		t.Errorf("expected resolve on popped frame to fail, got %v", err)
	}
}

func TestInitFromImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.img")
	img := NewImage(Float64)
	img.Threads = 3
	img.Heap.ChunkSize = 64
	img.Entrypoints = []string{"b", "a"}
	if err := WriteImage(path, img); err != nil {
		t.Fatal(err)
	}

	rt := newRuntime(t, Options{ImagePath: path})
	if rt.Options().Threads != 3 || rt.Options().ChunkSize != 64 {
		t.Errorf("expected image settings, got %+v", rt.Options())
	}
	if !rt.Image().Exports("a") || rt.Image().Exports("c") {
		t.Errorf("unexpected manifest %v", rt.Image().Entrypoints)
	}
}

func TestInitImageScalarMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.img")
	if err := WriteImage(path, NewImage(Float32)); err != nil {
		t.Fatal(err)
	}

	if _, err := Init[float64](Options{ImagePath: path}); !errors.Is(err, ErrImage) {
		t.Errorf("expected ErrImage, got %v", err)
	}
	if Active() {
		t.Error("expected failed Init to leave no active runtime")
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	if _, err := DecodeImage([]byte("not cbor")); !errors.Is(err, ErrImage) {
		t.Errorf("expected ErrImage, got %v", err)
	}
}

func TestParseElemType(t *testing.T) {
	tests := []struct {
		in   string
		want ElemType
		err  bool
	}{
		{"float64", Float64, false},
		{"Float32", Float32, false},
		{"1", Float64, false},
		{"2", Float32, false},
		{"int", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseElemType(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
