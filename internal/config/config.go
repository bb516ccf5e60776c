// Package config loads witnessgen's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/logging"
	"github.com/roach88/witnessgen/internal/worker"
)

// Blob store backends.
const (
	BlobMem   = "mem"
	BlobFile  = "file"
	BlobLevel = "level"
)

// Prover backends.
const (
	ProverMarker = "marker"
	ProverGnark  = "gnark"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Blobs    BlobConfig     `yaml:"blobs"`
	Prover   ProverConfig   `yaml:"prover"`
	Topology TopologyConfig `yaml:"topology"`
	Worker   WorkerConfig   `yaml:"worker"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig locates the SQLite job database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BlobConfig selects the blob store.
type BlobConfig struct {
	Backend string `yaml:"backend"` // mem, file, level
	Path    string `yaml:"path"`

	// WriteFormat is the format new blobs are written in: cbor or json.
	// Both are always readable.
	WriteFormat string `yaml:"write_format"`
}

// ProverConfig selects the proving backend.
type ProverConfig struct {
	Backend string `yaml:"backend"` // marker, gnark
	KeysDir string `yaml:"keys_dir"`

	// MaxParallelism bounds concurrent sub-circuit proofs within one job.
	MaxParallelism int `yaml:"max_parallelism"`
}

// TopologyConfig overrides aggregation group sizes, keyed by round name.
type TopologyConfig struct {
	GroupSizes map[string]int `yaml:"group_sizes,omitempty"`
}

// WorkerConfig configures the job loop. Durations are Go duration strings.
type WorkerConfig struct {
	Count        int      `yaml:"count"`
	Rounds       []string `yaml:"rounds,omitempty"`
	PollInterval string   `yaml:"poll_interval"`
	MaxAttempts  int      `yaml:"max_attempts"`
	BackoffBase  string   `yaml:"backoff_base"`
	BackoffMax   string   `yaml:"backoff_max"`
	StuckPolicy  string   `yaml:"stuck_policy"` // requeue, manual
	StuckTimeout string   `yaml:"stuck_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	w := worker.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "witnessgen.db"},
		Blobs: BlobConfig{
			Backend:     BlobFile,
			Path:        "blobs",
			WriteFormat: "cbor",
		},
		Prover: ProverConfig{
			Backend:        ProverMarker,
			KeysDir:        "keys",
			MaxParallelism: 4,
		},
		Worker: WorkerConfig{
			Count:        1,
			PollInterval: w.PollInterval.String(),
			MaxAttempts:  w.MaxAttempts,
			BackoffBase:  w.BackoffBase.String(),
			BackoffMax:   w.BackoffMax.String(),
			StuckPolicy:  string(w.StuckPolicy),
			StuckTimeout: w.StuckTimeout.String(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
	}
}

// Load loads configuration from a YAML file over the defaults. A missing
// file yields the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("WITNESSGEN_DB"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("WITNESSGEN_BLOBS"); path != "" {
		c.Blobs.Path = path
	}
	if level := os.Getenv("WITNESSGEN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	switch c.Blobs.Backend {
	case BlobMem:
	case BlobFile, BlobLevel:
		if c.Blobs.Path == "" {
			errs = append(errs, fmt.Errorf("blobs.path is required for the %s backend", c.Blobs.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid blobs.backend %q (valid: mem, file, level)", c.Blobs.Backend))
	}
	if _, err := c.Codec(); err != nil {
		errs = append(errs, err)
	}

	switch c.Prover.Backend {
	case ProverMarker:
	case ProverGnark:
		if c.Prover.KeysDir == "" {
			errs = append(errs, errors.New("prover.keys_dir is required for the gnark backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid prover.backend %q (valid: marker, gnark)", c.Prover.Backend))
	}
	if c.Prover.MaxParallelism < 1 {
		errs = append(errs, errors.New("prover.max_parallelism must be at least 1"))
	}

	if _, err := c.IRTopology(); err != nil {
		errs = append(errs, err)
	}
	if c.Worker.Count < 1 {
		errs = append(errs, errors.New("worker.count must be at least 1"))
	}
	if _, err := c.WorkerConfig(); err != nil {
		errs = append(errs, err)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("invalid logging.format %q (valid: json, console)", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Codec returns the blob codec for the configured write format.
func (c *Config) Codec() (*blob.Codec, error) {
	switch strings.ToLower(c.Blobs.WriteFormat) {
	case "", "cbor":
		return blob.DefaultCodec(), nil
	case "json":
		return blob.NewCodec(blob.FormatJSON, blob.CBORDecoder(), blob.JSONDecoder())
	default:
		return nil, fmt.Errorf("invalid blobs.write_format %q (valid: cbor, json)", c.Blobs.WriteFormat)
	}
}

// IRTopology returns the round graph with configured group sizes applied
// over the defaults.
func (c *Config) IRTopology() (ir.Topology, error) {
	t := ir.DefaultTopology()
	for name, n := range c.Topology.GroupSizes {
		r, err := ir.ParseRound(name)
		if err != nil {
			return ir.Topology{}, fmt.Errorf("topology.group_sizes: %w", err)
		}
		t.GroupSizes[r] = n
	}
	if err := t.Validate(); err != nil {
		return ir.Topology{}, fmt.Errorf("topology: %w", err)
	}
	return t, nil
}

// WorkerConfig converts the worker section.
func (c *Config) WorkerConfig() (worker.Config, error) {
	w := worker.Config{
		MaxAttempts: c.Worker.MaxAttempts,
		StuckPolicy: worker.StuckPolicy(c.Worker.StuckPolicy),
	}
	for _, name := range c.Worker.Rounds {
		r, err := ir.ParseRound(name)
		if err != nil {
			return worker.Config{}, fmt.Errorf("worker.rounds: %w", err)
		}
		w.Rounds = append(w.Rounds, r)
	}
	if len(w.Rounds) == 0 {
		w.Rounds = ir.Rounds()
	}

	durations := []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"poll_interval", c.Worker.PollInterval, &w.PollInterval},
		{"backoff_base", c.Worker.BackoffBase, &w.BackoffBase},
		{"backoff_max", c.Worker.BackoffMax, &w.BackoffMax},
		{"stuck_timeout", c.Worker.StuckTimeout, &w.StuckTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return worker.Config{}, fmt.Errorf("worker.%s: %w", d.name, err)
		}
		*d.out = v
	}

	if err := w.Validate(); err != nil {
		return worker.Config{}, fmt.Errorf("worker: %w", err)
	}
	return w, nil
}
