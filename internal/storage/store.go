package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/rbdrive/internal/pipeline"
)

const (
	metadataFile = "metadata.json"
	outputsFile  = "outputs.csv"
)

// Store keeps one directory per pipeline run under baseDir.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Mechanism   string             `json:"mechanism"`
	Scalar      string             `json:"scalar"`
	Timestamp   time.Time          `json:"timestamp"`
	NQ          int                `json:"nq"`
	NV          int                `json:"nv"`
	Iterations  int                `json:"iterations"`
	Collections int                `json:"collections"`
	Relocations int                `json:"relocations"`
	Verified    bool               `json:"verified"`
	Residual    float64            `json:"residual,omitempty"`
	RoundTrip   float64            `json:"round_trip,omitempty"`
	Timings     map[string]float64 `json:"timings_ms"`
	Metrics     map[string]float64 `json:"metrics"`
}

func metadataOf(r *pipeline.Report) RunMetadata {
	timings := make(map[string]float64, len(r.Timings))
	for _, t := range r.Timings {
		timings[t.Stage.String()] += float64(t.Elapsed) / float64(time.Millisecond)
	}
	return RunMetadata{
		ID:          r.RunID,
		Mechanism:   r.Mechanism,
		Scalar:      r.Scalar.String(),
		Timestamp:   time.Now(),
		NQ:          r.NQ,
		NV:          r.NV,
		Iterations:  r.Iterations,
		Collections: r.Collections,
		Relocations: r.Relocations,
		Verified:    r.Verified,
		Residual:    r.Residual,
		RoundTrip:   r.RoundTrip,
		Timings:     timings,
		Metrics:     r.Metrics,
	}
}

// Save writes the run's metadata and its final joint forces and
// accelerations. It returns the run id.
func (s *Store) Save(r *pipeline.Report) (string, error) {
	runDir := filepath.Join(s.baseDir, r.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := metadataOf(r)
	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	if err := Export(metaFile, &meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, outputsFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write([]string{"index", "tau", "vd"}); err != nil {
		return "", err
	}
	for i := range r.Tau {
		row := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(r.Tau[i], 'g', -1, 64),
			strconv.FormatFloat(r.Vd[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return r.RunID, nil
}

// List returns the stored runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadOutputs reads back the joint forces and accelerations of a run.
func (s *Store) LoadOutputs(runID string) (tau, vd []float64, err error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, outputsFile))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return []float64{}, []float64{}, nil
	}

	tau = make([]float64, 0, len(records)-1)
	vd = make([]float64, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != 3 {
			return nil, nil, fmt.Errorf("storage: %s: malformed row %v", runID, record)
		}
		t, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, nil, err
		}
		a, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, nil, err
		}
		tau = append(tau, t)
		vd = append(vd, a)
	}
	return tau, vd, nil
}

// Export writes run metadata as indented JSON.
func Export(w io.Writer, meta *RunMetadata) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(meta)
}
