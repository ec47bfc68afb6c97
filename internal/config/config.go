package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rbdrive/internal/managed"
)

const (
	DefaultScalar     = "float64"
	DefaultThreads    = 1
	DefaultIterations = 1
	DefaultQ          = 1.0
	DefaultV          = 2.0
	DefaultVdDesired  = 3.0
	DefaultTau        = 4.0
)

var DefaultGravity = []float64{0, 0, -9.81}

var (
	ErrFormat        = errors.New("config: unsupported file format")
	ErrUnknownPreset = errors.New("config: unknown preset")
	ErrInvalid       = errors.New("config: invalid value")
)

type Config struct {
	Scalar     string       `yaml:"scalar" toml:"scalar"`
	Image      string       `yaml:"image,omitempty" toml:"image,omitempty"`
	Threads    int          `yaml:"threads" toml:"threads"`
	Iterations int          `yaml:"iterations" toml:"iterations"`
	Heap       HeapConfig   `yaml:"heap" toml:"heap"`
	Gravity    []float64    `yaml:"gravity" toml:"gravity"`
	Inputs     InputsConfig `yaml:"inputs" toml:"inputs"`
	Verify     VerifyConfig `yaml:"verify" toml:"verify"`
	Log        LogConfig    `yaml:"log" toml:"log"`
}

// HeapConfig sizes the runtime heap. Zero fields keep the runtime defaults.
type HeapConfig struct {
	ChunkSize   int `yaml:"chunk_size" toml:"chunk_size"`
	GCThreshold int `yaml:"gc_threshold" toml:"gc_threshold"`
}

// InputsConfig holds the constants written into every element of the input buffers.
type InputsConfig struct {
	Q         float64 `yaml:"q" toml:"q"`
	V         float64 `yaml:"v" toml:"v"`
	VdDesired float64 `yaml:"vd_desired" toml:"vd_desired"`
	Tau       float64 `yaml:"tau" toml:"tau"`
}

type VerifyConfig struct {
	Enabled   bool    `yaml:"enabled" toml:"enabled"`
	Tolerance float64 `yaml:"tolerance,omitempty" toml:"tolerance,omitempty"`
}

type LogConfig struct {
	Verbosity int    `yaml:"verbosity" toml:"verbosity"`
	Path      string `yaml:"path,omitempty" toml:"path,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Scalar:     DefaultScalar,
		Threads:    DefaultThreads,
		Iterations: DefaultIterations,
		Gravity:    append([]float64(nil), DefaultGravity...),
		Inputs: InputsConfig{
			Q:         DefaultQ,
			V:         DefaultV,
			VdDesired: DefaultVdDesired,
			Tau:       DefaultTau,
		},
	}
}

type format int

const (
	formatYAML format = iota
	formatTOML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrFormat, path)
}

// Load reads a YAML or TOML file, chosen by extension, over DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInto decodes the file over cfg; keys the file omits keep their value.
func LoadInto(path string, cfg *Config) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch f {
	case formatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	var data []byte
	switch f {
	case formatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		if data, err = yaml.Marshal(cfg); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := managed.ParseElemType(c.Scalar); err != nil {
		return fmt.Errorf("%w: scalar: %v", ErrInvalid, err)
	}
	if len(c.Gravity) != 3 {
		return fmt.Errorf("%w: gravity needs 3 components, got %d", ErrInvalid, len(c.Gravity))
	}
	if c.Threads < 0 {
		return fmt.Errorf("%w: threads %d", ErrInvalid, c.Threads)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("%w: iterations %d", ErrInvalid, c.Iterations)
	}
	if c.Heap.ChunkSize < 0 || c.Heap.GCThreshold < 0 {
		return fmt.Errorf("%w: heap sizes must not be negative", ErrInvalid)
	}
	if c.Verify.Tolerance < 0 {
		return fmt.Errorf("%w: verify tolerance %g", ErrInvalid, c.Verify.Tolerance)
	}
	return nil
}

func (c *Config) ElemType() (managed.ElemType, error) {
	return managed.ParseElemType(c.Scalar)
}

// RuntimeOptions maps the config onto runtime init options.
func (c *Config) RuntimeOptions() managed.Options {
	return managed.Options{
		Threads:     c.Threads,
		ImagePath:   c.Image,
		ChunkSize:   c.Heap.ChunkSize,
		GCThreshold: c.Heap.GCThreshold,
	}
}

// ApplyImage writes the configured thread count and heap sizes into img.
func (c *Config) ApplyImage(img *managed.Image) {
	if c.Threads > 0 {
		img.Threads = c.Threads
	}
	if c.Heap.ChunkSize > 0 {
		img.Heap.ChunkSize = c.Heap.ChunkSize
	}
	if c.Heap.GCThreshold > 0 {
		img.Heap.GCThreshold = c.Heap.GCThreshold
	}
}
