package pipeline

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/rbdrive/internal/compute"
	"github.com/san-kum/rbdrive/internal/dynlib"
	"github.com/san-kum/rbdrive/internal/logging"
	"github.com/san-kum/rbdrive/internal/managed"
	"github.com/san-kum/rbdrive/internal/metrics"
)

var log = logging.For("pipeline")

type Options[T managed.Scalar] struct {
	URDFPath string
	Floating bool

	// Inputs defaults to DefaultSynthetic.
	Inputs InputSource[T]
	// Iterations repeats the three numeric calls on the same buffers. Zero means one.
	Iterations int

	Verify bool
	// Tolerance for verification; zero selects a default for T.
	Tolerance float64

	// Metrics observe every forward dynamics solution. Nil selects metrics.Standard.
	Metrics []metrics.Metric[T]
}

// DefaultTolerance returns the verification tolerance used for scalar type elem.
func DefaultTolerance(elem managed.ElemType) float64 {
	if elem == managed.Float32 {
		return 1e-3
	}
	return 1e-8
}

// StageTiming is the wall time spent reaching a stage.
type StageTiming struct {
	Stage   Stage
	Elapsed time.Duration
}

// Report summarizes a completed run.
type Report struct {
	RunID       string
	Mechanism   string
	Scalar      managed.ElemType
	NQ, NV      int
	Iterations  int
	Timings     []StageTiming
	Collections int
	Relocations int

	Verified  bool
	Residual  float64 // ‖M·vd + c - tau‖∞
	RoundTrip float64 // ‖vd - vd_desired‖∞

	Metrics map[string]float64
	// Copies of the final joint forces and accelerations.
	Tau, Vd []float64
}

// Elapsed returns the time recorded for stage, summed over iterations.
func (r *Report) Elapsed(stage Stage) time.Duration {
	var d time.Duration
	for _, t := range r.Timings {
		if t.Stage == stage {
			d += t.Elapsed
		}
	}
	return d
}

// Pipeline drives one computation sequence against a bound library. The
// runtime must already be initialized; shutting it down stays with the caller.
type Pipeline[T managed.Scalar] struct {
	lib  *dynlib.Library[T]
	rt   *managed.Runtime[T]
	opts Options[T]

	id    string
	stage Stage
	ran   bool

	// Every handle the driver dereferences lives in one root frame.
	mech, state, result           managed.Handle
	q, v, vdDesired, tau          managed.Handle
	vd, mm, bias, wrenches, accel managed.Handle
	frame                         *managed.RootFrame[T]

	bufs   buffers[T]
	report Report
}

type buffers[T managed.Scalar] struct {
	q, v, vdDesired, tau, vd, mm, bias *managed.Buffer[T]
}

func (b *buffers[T]) all() []*managed.Buffer[T] {
	return []*managed.Buffer[T]{b.q, b.v, b.vdDesired, b.tau, b.vd, b.mm, b.bias}
}

func New[T managed.Scalar](lib *dynlib.Library[T], opts Options[T]) *Pipeline[T] {
	if opts.Inputs == nil {
		opts.Inputs = DefaultSynthetic[T]()
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 1
	}
	rt := lib.Runtime()
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance(rt.ElemType())
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Standard(lib.Backend())
	}
	stage := Uninitialized
	if !rt.Closed() {
		stage = RuntimeReady
	}
	return &Pipeline[T]{lib: lib, rt: rt, opts: opts, id: uuid.NewString(), stage: stage}
}

func (p *Pipeline[T]) Stage() Stage  { return p.stage }
func (p *Pipeline[T]) RunID() string { return p.id }

// Run executes the sequence once. Any failure ends the run; nothing is retried.
func (p *Pipeline[T]) Run() (*Report, error) {
	if p.ran {
		return nil, ErrRan
	}
	p.ran = true
	if p.stage != RuntimeReady {
		return nil, &StageError{Stage: RuntimeReady, Err: managed.ErrNotInitialized}
	}

	start := p.rt.Stats()
	p.report = Report{
		RunID:      p.id,
		Scalar:     p.rt.ElemType(),
		Iterations: p.opts.Iterations,
	}

	frame, err := p.rt.PushRoots(
		&p.mech, &p.state, &p.result,
		&p.q, &p.v, &p.vdDesired, &p.tau,
		&p.vd, &p.mm, &p.bias, &p.wrenches, &p.accel,
	)
	if err != nil {
		return nil, &StageError{Stage: MechanismLoaded, Err: err}
	}
	p.frame = frame

	err = p.sequence()
	if perr := p.frame.Pop(); perr != nil && err == nil {
		err = &StageError{Stage: Terminated, Err: perr}
	}
	if err != nil {
		log.Errorf("run %s failed: %v", p.id, err)
		return nil, err
	}
	p.stage = Terminated

	end := p.rt.Stats()
	p.report.Collections = end.Collections - start.Collections
	p.report.Relocations = end.Relocations - start.Relocations
	log.Infof("run %s done: mechanism=%s nq=%d nv=%d collections=%d",
		p.id, p.report.Mechanism, p.report.NQ, p.report.NV, p.report.Collections)
	return &p.report, nil
}

func (p *Pipeline[T]) sequence() error {
	steps := []struct {
		stage Stage
		fn    func() error
	}{
		{MechanismLoaded, p.loadMechanism},
		{Allocated, p.allocate},
		{BuffersBound, p.bindBuffers},
		{InputsReady, p.fillInputs},
	}
	for _, s := range steps {
		if err := p.step(s.stage, s.fn); err != nil {
			return err
		}
	}

	for i := 0; i < p.opts.Iterations; i++ {
		if err := p.step(InverseDynamicsDone, p.inverseDynamics); err != nil {
			return err
		}
		if err := p.step(MassMatrixDone, p.massMatrix); err != nil {
			return err
		}
		if err := p.step(ForwardDynamicsDone, p.forwardDynamics); err != nil {
			return err
		}
	}

	if p.opts.Verify {
		if err := p.verify(); err != nil {
			return &StageError{Stage: ForwardDynamicsDone, Err: err}
		}
	}
	return p.capture()
}

// step runs fn to reach stage and records its wall time.
func (p *Pipeline[T]) step(stage Stage, fn func() error) error {
	t0 := time.Now()
	if err := fn(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	elapsed := time.Since(t0)
	p.report.Timings = append(p.report.Timings, StageTiming{Stage: stage, Elapsed: elapsed})
	p.stage = stage
	log.Debugf("run %s: %s in %s", p.id, stage, elapsed)
	return nil
}

func (p *Pipeline[T]) loadMechanism() error {
	h, err := p.lib.CreateMechanism(p.opts.URDFPath, p.opts.Floating)
	if err != nil {
		return err
	}
	p.mech = h

	if p.report.NQ, err = p.lib.NumPositions(p.mech); err != nil {
		return err
	}
	if p.report.NV, err = p.lib.NumVelocities(p.mech); err != nil {
		return err
	}
	p.report.Mechanism = p.opts.URDFPath
	return nil
}

func (p *Pipeline[T]) allocate() error {
	var err error
	if p.state, err = p.lib.CreateState(p.mech); err != nil {
		return err
	}
	if p.result, err = p.lib.CreateDynamicsResult(p.mech); err != nil {
		return err
	}
	return nil
}

// bindBuffers looks up every quantity and then borrows its storage. All
// allocation happens before the first borrow.
func (p *Pipeline[T]) bindBuffers() error {
	var err error
	if p.q, err = p.lib.Configuration(p.state); err != nil {
		return err
	}
	if p.v, err = p.lib.Velocity(p.state); err != nil {
		return err
	}
	if p.vdDesired, err = p.lib.Similar(p.v); err != nil {
		return err
	}
	if p.tau, err = p.lib.Similar(p.v); err != nil {
		return err
	}
	for _, f := range []struct {
		slot *managed.Handle
		name string
	}{
		{&p.vd, "vd"}, {&p.mm, "massmatrix"}, {&p.bias, "dynamicsbias"},
		{&p.wrenches, "jointwrenches"}, {&p.accel, "accelerations"},
	} {
		if *f.slot, err = p.lib.Field(p.result, f.name); err != nil {
			return err
		}
	}

	nq, nv := p.report.NQ, p.report.NV
	for _, b := range []struct {
		dst  **managed.Buffer[T]
		h    managed.Handle
		name string
		n    int
	}{
		{&p.bufs.q, p.q, "q", nq},
		{&p.bufs.v, p.v, "v", nv},
		{&p.bufs.vdDesired, p.vdDesired, "vd_desired", nv},
		{&p.bufs.tau, p.tau, "tau", nv},
		{&p.bufs.vd, p.vd, "vd", nv},
		{&p.bufs.mm, p.mm, "M", nv * nv},
		{&p.bufs.bias, p.bias, "dynamicsbias", nv},
	} {
		buf, err := managed.ResolveBuffer(p.frame, b.h)
		if err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
		if buf.Len() != b.n {
			return fmt.Errorf("%w: %s has %d elements, want %d", ErrBufferLength, b.name, buf.Len(), b.n)
		}
		*b.dst = buf
	}
	return nil
}

func (p *Pipeline[T]) fillInputs() error {
	b := &p.bufs
	if err := p.opts.Inputs.Fill(b.q.Data, b.v.Data, b.vdDesired.Data, b.tau.Data); err != nil {
		return fmt.Errorf("%s inputs: %w", p.opts.Inputs.Name(), err)
	}
	return p.checkBorrows()
}

func (p *Pipeline[T]) inverseDynamics() error {
	if err := p.lib.InverseDynamics(p.tau, p.wrenches, p.accel, p.state, p.vdDesired); err != nil {
		return err
	}
	return p.checkBorrows()
}

func (p *Pipeline[T]) massMatrix() error {
	if err := p.lib.MassMatrix(p.mm, p.state); err != nil {
		return err
	}
	return p.checkBorrows()
}

// forwardDynamics runs with the collector suspended: the kernel allocates,
// and a collection would relocate the borrowed buffers.
func (p *Pipeline[T]) forwardDynamics() error {
	err := p.rt.WithoutGC(func() error {
		return p.lib.Dynamics(p.result, p.state, p.tau)
	})
	if err != nil {
		return err
	}
	if err := p.checkBorrows(); err != nil {
		return err
	}
	b := &p.bufs
	sample := metrics.Sample[T]{NV: p.report.NV, MassMatrix: b.mm.Data, V: b.v.Data, Tau: b.tau.Data, Vd: b.vd.Data}
	for _, m := range p.opts.Metrics {
		m.Observe(sample)
	}
	return nil
}

// capture copies the outputs out of runtime storage before the roots go away.
func (p *Pipeline[T]) capture() error {
	if err := p.checkBorrows(); err != nil {
		return &StageError{Stage: ForwardDynamicsDone, Err: err}
	}
	p.report.Tau = widen(p.bufs.tau.Data)
	p.report.Vd = widen(p.bufs.vd.Data)
	p.report.Metrics = metrics.Collect(p.opts.Metrics)
	return nil
}

func widen[T managed.Scalar](xs []T) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

func (p *Pipeline[T]) checkBorrows() error {
	var errs []error
	for _, b := range p.bufs.all() {
		if err := b.Valid(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// verify checks the forward dynamics solution against the mass matrix, bias
// and inputs while the borrows are still live.
func (p *Pipeline[T]) verify() error {
	if err := p.checkBorrows(); err != nil {
		return err
	}
	b := &p.bufs
	nv := p.report.NV
	pool := compute.NewVecPool[T](nv)
	y := pool.Get()
	defer pool.Put(y)

	p.lib.Backend().SymMatVec(b.mm.Data, nv, b.vd.Data, y)
	var residual, roundTrip float64
	for i := range nv {
		r := float64(y[i]) + float64(b.bias.Data[i]) - float64(b.tau.Data[i])
		residual = math.Max(residual, math.Abs(r))
		roundTrip = math.Max(roundTrip, math.Abs(float64(b.vd.Data[i]-b.vdDesired.Data[i])))
	}
	p.report.Residual = residual
	p.report.RoundTrip = roundTrip

	tol := p.opts.Tolerance
	if !(residual <= tol) || !(roundTrip <= tol) {
		return fmt.Errorf("%w: residual %g, round trip %g, tolerance %g", ErrVerification, residual, roundTrip, tol)
	}
	p.report.Verified = true
	log.Infof("run %s verified: residual=%g round_trip=%g", p.id, residual, roundTrip)
	return nil
}
