package pipeline_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rbdrive/internal/compute"
	"github.com/san-kum/rbdrive/internal/dynlib"
	"github.com/san-kum/rbdrive/internal/managed"
	"github.com/san-kum/rbdrive/internal/metrics"
	"github.com/san-kum/rbdrive/internal/pipeline"
	"github.com/san-kum/rbdrive/internal/urdf"
)

const pendulumURDF = `<robot name="pendulum">
  <link name="world_anchor"/>
  <link name="bob">
    <inertial>
      <origin xyz="0 0 -0.5"/>
      <mass value="2"/>
      <inertia ixx="0.02" iyy="0.03" izz="0.01"/>
    </inertial>
  </link>
  <joint name="hinge" type="revolute">
    <parent link="world_anchor"/><child link="bob"/><axis xyz="0 1 0"/>
  </joint>
</robot>`

// masslessURDF has a single hinge carrying no inertia, so its mass matrix is
// zero at every configuration.
const masslessURDF = `<robot name="massless">
  <link name="world_anchor"/>
  <link name="ghost"/>
  <joint name="hinge" type="revolute">
    <parent link="world_anchor"/><child link="ghost"/><axis xyz="0 1 0"/>
  </joint>
</robot>`

const armURDF = `<robot name="arm">
  <link name="base">
    <inertial><mass value="4"/><inertia ixx="0.1" iyy="0.1" izz="0.1"/></inertial>
  </link>
  <link name="upper">
    <inertial><origin xyz="0 0 0.3"/><mass value="1.2"/><inertia ixx="0.02" iyy="0.02" izz="0.004"/></inertial>
  </link>
  <link name="fore">
    <inertial><origin xyz="0.1 0 0.2"/><mass value="0.8"/><inertia ixx="0.01" iyy="0.012" izz="0.003"/></inertial>
  </link>
  <joint name="shoulder" type="revolute">
    <origin xyz="0 0 0.1"/><parent link="base"/><child link="upper"/><axis xyz="0 1 0"/>
  </joint>
  <joint name="slide" type="prismatic">
    <origin xyz="0 0 0.6" rpy="0.2 0 0"/><parent link="upper"/><child link="fore"/><axis xyz="0 0 1"/>
  </joint>
</robot>`

// recorder tracks root stack discipline and collector suspension.
type recorder struct {
	managed.NopObserver

	stack              []int
	pushes, pops       int
	outOfOrder         int
	suspended          bool
	suspensions        int
	collections        int
	collectedSuspended int
}

func (r *recorder) OnPushRoots(depth, slots int) {
	r.pushes++
	r.stack = append(r.stack, depth)
}

func (r *recorder) OnPopRoots(depth, slots int) {
	r.pops++
	if len(r.stack) == 0 || r.stack[len(r.stack)-1] != depth {
		r.outOfOrder++
		return
	}
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *recorder) OnCollect(managed.CollectStats) {
	r.collections++
	if r.suspended {
		r.collectedSuspended++
	}
}

func (r *recorder) OnGCEnable(enabled bool) {
	r.suspended = !enabled
	if !enabled {
		r.suspensions++
	}
}

func writeFile(name, body string) string {
	path := filepath.Join(GinkgoT().TempDir(), name)
	Expect(os.WriteFile(path, []byte(body), 0644)).To(Succeed())
	return path
}

func start[T managed.Scalar](opts managed.Options) *dynlib.Library[T] {
	rt, err := managed.Init[T](opts)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { rt.Shutdown(0) })
	lib, err := dynlib.Bind(rt, dynlib.Options{})
	Expect(err).NotTo(HaveOccurred())
	return lib
}

var _ = Describe("Pipeline", func() {
	var rec *recorder

	BeforeEach(func() {
		rec = &recorder{}
	})

	Context("with a single revolute joint", func() {
		var lib *dynlib.Library[float64]

		BeforeEach(func() {
			lib = start[float64](managed.Options{Observer: rec})
		})

		It("runs every stage and round-trips forward dynamics", func() {
			p := pipeline.New(lib, pipeline.Options[float64]{
				URDFPath: writeFile("pendulum.urdf", pendulumURDF),
				Verify:   true,
			})
			Expect(p.Stage()).To(Equal(pipeline.RuntimeReady))

			report, err := p.Run()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Stage()).To(Equal(pipeline.Terminated))
			Expect(report.NQ).To(Equal(1))
			Expect(report.NV).To(Equal(1))
			Expect(report.Verified).To(BeTrue())
			Expect(report.RoundTrip).To(BeNumerically("<", 1e-10))
			Expect(report.Residual).To(BeNumerically("<", 1e-10))
			Expect(report.RunID).To(Equal(p.RunID()))
			Expect(report.Scalar).To(Equal(managed.Float64))

			Expect(report.Vd).To(HaveLen(1))
			Expect(report.Vd[0]).To(BeNumerically("~", 3, 1e-10))
			Expect(report.Tau).To(HaveLen(1))
			// ½ (Iyy + m·l²) v² at v = 2
			Expect(report.Metrics).To(HaveKeyWithValue("kinetic_energy", BeNumerically("~", 1.06, 1e-10)))
			Expect(report.Metrics).To(HaveKeyWithValue("stability", 1.0))
		})

		It("suspends the collector exactly around forward dynamics", func() {
			p := pipeline.New(lib, pipeline.Options[float64]{
				URDFPath:   writeFile("pendulum.urdf", pendulumURDF),
				Iterations: 3,
			})
			report, err := p.Run()
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.suspensions).To(Equal(3))
			Expect(rec.suspended).To(BeFalse())
			Expect(lib.Runtime().GCEnabled()).To(BeTrue())
			Expect(report.Timings).To(HaveLen(4 + 3*3))
		})

		It("pops root frames in reverse push order", func() {
			p := pipeline.New(lib, pipeline.Options[float64]{URDFPath: writeFile("pendulum.urdf", pendulumURDF)})
			_, err := p.Run()
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.pushes).To(BeNumerically(">", 1))
			Expect(rec.pops).To(Equal(rec.pushes))
			Expect(rec.outOfOrder).To(BeZero())
			Expect(rec.stack).To(BeEmpty())
			Expect(lib.Runtime().RootDepth()).To(BeZero())
		})

		It("fails at MechanismLoaded for an unreadable model", func() {
			p := pipeline.New(lib, pipeline.Options[float64]{URDFPath: filepath.Join(GinkgoT().TempDir(), "missing.urdf")})
			_, err := p.Run()

			var se *pipeline.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(pipeline.MechanismLoaded))
			var pe *urdf.ParseError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(p.Stage()).To(Equal(pipeline.RuntimeReady))
			Expect(lib.Runtime().RootDepth()).To(BeZero())
			Expect(lib.Runtime().GCEnabled()).To(BeTrue())
		})

		It("refuses to run twice", func() {
			p := pipeline.New(lib, pipeline.Options[float64]{URDFPath: writeFile("pendulum.urdf", pendulumURDF)})
			_, err := p.Run()
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Run()
			Expect(err).To(MatchError(pipeline.ErrRan))
		})

		It("re-enables the collector when forward dynamics fails", func() {
			p := pipeline.New(lib, pipeline.Options[float64]{
				URDFPath: writeFile("massless.urdf", masslessURDF),
				Verify:   true,
			})
			_, err := p.Run()

			var se *pipeline.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(pipeline.ForwardDynamicsDone))
			Expect(err).To(MatchError(compute.ErrNotPositiveDefinite))
			Expect(p.Stage()).To(Equal(pipeline.MassMatrixDone))
			Expect(rec.suspensions).To(Equal(1))
			Expect(rec.suspended).To(BeFalse())
			Expect(lib.Runtime().GCEnabled()).To(BeTrue())
			Expect(lib.Runtime().RootDepth()).To(BeZero())
		})

		It("keeps the live object count flat across iterations", func() {
			live := &liveObjects{rt: lib.Runtime()}
			p := pipeline.New(lib, pipeline.Options[float64]{
				URDFPath:   writeFile("pendulum.urdf", pendulumURDF),
				Iterations: 50,
				Metrics:    []metrics.Metric[float64]{live},
			})
			_, err := p.Run()
			Expect(err).NotTo(HaveOccurred())

			Expect(live.counts).To(HaveLen(50))
			for _, n := range live.counts {
				Expect(n).To(Equal(live.counts[0]))
			}
		})
	})

	Context("under collector pressure", func() {
		It("collects while allocating and keeps borrows valid through forward dynamics", func() {
			lib := start[float64](managed.Options{Observer: rec, ChunkSize: 8, GCThreshold: 4})
			p := pipeline.New(lib, pipeline.Options[float64]{
				URDFPath:   writeFile("arm.urdf", armURDF),
				Floating:   true,
				Iterations: 2,
				Verify:     true,
			})
			report, err := p.Run()
			Expect(err).NotTo(HaveOccurred())

			Expect(report.NQ).To(Equal(9))
			Expect(report.NV).To(Equal(8))
			Expect(report.Collections).To(BeNumerically(">", 0))
			Expect(rec.collectedSuspended).To(BeZero())
			Expect(report.Verified).To(BeTrue())
		})
	})

	Context("in single precision", func() {
		It("verifies against the float32 tolerance", func() {
			lib := start[float32](managed.Options{Observer: rec})
			p := pipeline.New(lib, pipeline.Options[float32]{
				URDFPath: writeFile("arm.urdf", armURDF),
				Verify:   true,
			})
			report, err := p.Run()
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Scalar).To(Equal(managed.Float32))
			Expect(report.RoundTrip).To(BeNumerically("<=", pipeline.DefaultTolerance(managed.Float32)))
		})
	})
})

// liveObjects samples the runtime's live object count after every forward
// dynamics solution.
type liveObjects struct {
	rt     *managed.Runtime[float64]
	counts []int
}

func (l *liveObjects) Name() string { return "live_objects" }

func (l *liveObjects) Observe(metrics.Sample[float64]) {
	l.counts = append(l.counts, l.rt.Stats().LiveObjects)
}

func (l *liveObjects) Value() float64 {
	if len(l.counts) == 0 {
		return 0
	}
	return float64(l.counts[len(l.counts)-1])
}

func (l *liveObjects) Reset() { l.counts = nil }
