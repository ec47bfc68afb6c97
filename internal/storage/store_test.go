package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/rbdrive/internal/managed"
	"github.com/san-kum/rbdrive/internal/pipeline"
)

func testReport(id string) *pipeline.Report {
	return &pipeline.Report{
		RunID:      id,
		Mechanism:  "arm.urdf",
		Scalar:     managed.Float64,
		NQ:         2,
		NV:         2,
		Iterations: 1,
		Timings: []pipeline.StageTiming{
			{Stage: pipeline.InverseDynamicsDone, Elapsed: 2 * time.Millisecond},
			{Stage: pipeline.InverseDynamicsDone, Elapsed: time.Millisecond},
		},
		Verified: true,
		Metrics:  map[string]float64{"kinetic_energy": 1.5},
		Tau:      []float64{0.25, -3.5},
		Vd:       []float64{3, 3},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testReport("run-a"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID != "run-a" {
		t.Errorf("expected run id run-a, got %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Mechanism != "arm.urdf" || meta.Scalar != "Float64" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Metrics["kinetic_energy"] != 1.5 {
		t.Errorf("expected kinetic energy 1.5, got %f", meta.Metrics["kinetic_energy"])
	}
	if meta.Timings["InverseDynamicsDone"] != 3 {
		t.Errorf("expected 3ms of inverse dynamics, got %f", meta.Timings["InverseDynamicsDone"])
	}

	tau, vd, err := st.LoadOutputs(runID)
	if err != nil {
		t.Fatalf("load outputs failed: %v", err)
	}
	if len(tau) != 2 || tau[1] != -3.5 {
		t.Errorf("unexpected tau %v", tau)
	}
	if len(vd) != 2 || vd[0] != 3 {
		t.Errorf("unexpected vd %v", vd)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	for _, id := range []string{"first", "second"} {
		if _, err := st.Save(testReport(id)); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "first" {
		t.Errorf("expected oldest run first, got %s", runs[0].ID)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runID, err := st.Save(testReport("run-b"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "outputs.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(runDir, "outputs.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "index,tau,vd\n0,0.25,3\n") {
		t.Errorf("unexpected outputs file:\n%s", data)
	}
}

func TestExport(t *testing.T) {
	meta := metadataOf(testReport("run-c"))
	var buf bytes.Buffer
	if err := Export(&buf, &meta); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"id": "run-c"`) {
		t.Errorf("expected indented id field, got:\n%s", buf.String())
	}
}
