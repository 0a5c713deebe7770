// Package config provides experiment configuration loading for mendoza.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/mendoza/internal/dynamics"
	"github.com/nvandessel/mendoza/internal/integrate"
	"github.com/nvandessel/mendoza/internal/logging"
	"github.com/nvandessel/mendoza/internal/network"
	"github.com/nvandessel/mendoza/internal/simulation"
)

// DirName is the per-user directory holding config.yaml, runs.db and traces.
const DirName = ".mendoza"

// validate is a singleton validator instance
var validate = validator.New()

// ConfigurationError reports an invalid experiment parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ExperimentConfig contains all mendoza configuration settings.
type ExperimentConfig struct {
	// Network points at the topology source.
	Network NetworkConfig `json:"network" yaml:"network"`

	// Simulation shapes the baseline batch.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Perturbation names the stimuli and how they are applied.
	Perturbation PerturbationConfig `json:"perturbation" yaml:"perturbation"`

	// Solver configures the adaptive integrator.
	Solver SolverConfig `json:"solver" yaml:"solver"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures run persistence.
	Store StoreConfig `json:"store" yaml:"store"`
}

// NetworkConfig locates the node table.
type NetworkConfig struct {
	// Path is a .csv, .yaml or .yml topology file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Observed restricts reported columns to these nodes. Empty reports all.
	Observed []string `json:"observed,omitempty" yaml:"observed,omitempty" validate:"dive,required"`
}

// SimulationConfig holds the span, sampling and rate parameters.
type SimulationConfig struct {
	TStart      float64 `json:"t_start" yaml:"t_start"`
	TEnd        float64 `json:"t_end" yaml:"t_end" validate:"gtfield=TStart"`
	Samples     int     `json:"samples" yaml:"samples" validate:"min=2"`
	Repetitions int     `json:"repetitions" yaml:"repetitions" validate:"min=1,max=100000"`

	// Steepness is the sigmoid h shared by every node.
	Steepness float64 `json:"steepness" yaml:"steepness" validate:"gt=0"`

	// Gamma is the decay rate broadcast to every node unless GammaByNode
	// names the node.
	Gamma       float64            `json:"gamma" yaml:"gamma" validate:"gte=0"`
	GammaByNode map[string]float64 `json:"gamma_by_node,omitempty" yaml:"gamma_by_node,omitempty" validate:"dive,gte=0"`

	// Seed reproduces a run; 0 draws a fresh one.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Workers bounds concurrent integrations; 0 uses every CPU.
	Workers int `json:"workers" yaml:"workers" validate:"min=0"`
}

// PerturbationConfig configures the perturbation runner.
type PerturbationConfig struct {
	Stimuli     []string `json:"stimuli,omitempty" yaml:"stimuli,omitempty" validate:"dive,required"`
	Mode        string   `json:"mode" yaml:"mode" validate:"omitempty,oneof=independent joint"`
	Repetitions int      `json:"repetitions" yaml:"repetitions" validate:"min=1,max=100000"`
}

// SolverConfig configures the integrator.
type SolverConfig struct {
	RelTol   float64       `json:"rtol" yaml:"rtol" validate:"gt=0,lt=1"`
	AbsTol   float64       `json:"atol" yaml:"atol" validate:"gt=0"`
	MaxSteps int           `json:"max_steps" yaml:"max_steps" validate:"min=1"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
}

// LoggingConfig configures mendoza's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the run trace in <dir>/trace.jsonl.
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=info debug trace"`

	// Dir is where trace.jsonl is written. Empty uses ~/.mendoza.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StoreConfig configures the SQLite run store.
type StoreConfig struct {
	// Dir holds runs.db. Empty uses ~/.mendoza.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Disabled skips persistence entirely.
	Disabled bool `json:"disabled" yaml:"disabled"`
}

// Default returns an ExperimentConfig with the reference defaults.
func Default() *ExperimentConfig {
	solver := integrate.DefaultOptions()
	return &ExperimentConfig{
		Simulation: SimulationConfig{
			TStart:      0,
			TEnd:        30,
			Samples:     100,
			Repetitions: 100,
			Steepness:   dynamics.DefaultSteepness,
			Gamma:       1,
		},
		Perturbation: PerturbationConfig{
			Mode:        string(simulation.Independent),
			Repetitions: 1,
		},
		Solver: SolverConfig{
			RelTol:   solver.RelTol,
			AbsTol:   solver.AbsTol,
			MaxSteps: solver.MaxSteps,
			Timeout:  solver.Timeout,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// HomeDir returns ~/.mendoza.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.mendoza/config.yaml -> environment variables
func Load() (*ExperimentConfig, error) {
	config := Default()

	if dir, err := HomeDir(); err == nil {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads path when it is non-empty, else the default locations.
// Environment overrides apply either way.
func LoadPath(path string) (*ExperimentConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Relative
// network and store paths are resolved against the file's directory.
func LoadFromFile(path string) (*ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	base := filepath.Dir(path)
	config.Network.Path = resolveRelative(base, config.Network.Path)
	config.Store.Dir = resolveRelative(base, config.Store.Dir)
	config.Logging.Dir = resolveRelative(base, config.Logging.Dir)

	return config, nil
}

func resolveRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks the configuration independently of any network.
func (c *ExperimentConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if _, err := simulation.ParseMode(c.Perturbation.Mode); err != nil {
		return &ConfigurationError{Field: "perturbation.mode", Reason: err.Error()}
	}
	return nil
}

// formatValidationError turns the first validator failure into a
// ConfigurationError keyed by the YAML field path.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}

	e := validationErrs[0]
	field := yamlPath(e.Namespace())
	param := e.Param()

	switch e.Tag() {
	case "required":
		return &ConfigurationError{Field: field, Reason: "must not be empty"}
	case "min", "gte":
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be at least %s, got %v", param, e.Value())}
	case "gt":
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be greater than %s, got %v", param, e.Value())}
	case "max", "lte":
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be at most %s, got %v", param, e.Value())}
	case "lt":
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be less than %s, got %v", param, e.Value())}
	case "gtfield":
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be after %s", snake(param))}
	case "oneof":
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be one of [%s], got %q", param, e.Value())}
	default:
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("validation failed (%s)", e.Tag())}
	}
}

// yamlPath maps "ExperimentConfig.Simulation.TEnd" to "simulation.t_end".
func yamlPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

var fieldNames = map[string]string{
	"TStart":      "t_start",
	"TEnd":        "t_end",
	"RelTol":      "rtol",
	"AbsTol":      "atol",
	"MaxSteps":    "max_steps",
	"GammaByNode": "gamma_by_node",
}

func snake(s string) string {
	// Slice elements carry an index suffix, e.g. Stimuli[2].
	name, suffix := s, ""
	if i := strings.IndexByte(s, '['); i >= 0 {
		name, suffix = s[:i], s[i:]
	}
	if n, ok := fieldNames[name]; ok {
		return n + suffix
	}
	return strings.ToLower(name) + suffix
}

// CheckNetwork validates the parts of the configuration that depend on the
// compiled network.
func (c *ExperimentConfig) CheckNetwork(m *network.Matrices) error {
	if m == nil || m.Size() == 0 {
		return &ConfigurationError{Field: "network", Reason: "node set is empty"}
	}
	if _, err := c.StimulusIndices(m); err != nil {
		return err
	}
	if _, err := c.ObservedIndices(m); err != nil {
		return err
	}
	_, err := c.Params(m)
	return err
}

// StimulusIndices resolves perturbation.stimuli to node indices, in the
// configured order.
func (c *ExperimentConfig) StimulusIndices(m *network.Matrices) ([]int, error) {
	return resolveNames(m, c.Perturbation.Stimuli, "perturbation.stimuli", "stimulus")
}

// ObservedIndices resolves network.observed to node indices in ascending
// index order. An empty list selects every node.
func (c *ExperimentConfig) ObservedIndices(m *network.Matrices) ([]int, error) {
	if len(c.Network.Observed) == 0 {
		all := make([]int, m.Size())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	idx, err := resolveNames(m, c.Network.Observed, "network.observed", "observed node")
	if err != nil {
		return nil, err
	}
	slices.Sort(idx)
	return slices.Compact(idx), nil
}

func resolveNames(m *network.Matrices, names []string, field, what string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, name := range names {
		i, ok := m.Index(name)
		if !ok {
			return nil, &ConfigurationError{Field: field, Reason: fmt.Sprintf("%s %q is not a node of the network", what, name)}
		}
		out = append(out, i)
	}
	return out, nil
}

// Params returns the rate parameters for m.
func (c *ExperimentConfig) Params(m *network.Matrices) (dynamics.Params, error) {
	gamma := dynamics.UniformGamma(m.Size(), c.Simulation.Gamma)
	for name, g := range c.Simulation.GammaByNode {
		i, ok := m.Index(name)
		if !ok {
			return dynamics.Params{}, &ConfigurationError{
				Field:  "simulation.gamma_by_node",
				Reason: fmt.Sprintf("node %q is not a node of the network", name),
			}
		}
		gamma[i] = g
	}
	p := dynamics.Params{Gamma: gamma, H: c.Simulation.Steepness}
	if err := p.Check(m.Size()); err != nil {
		return dynamics.Params{}, &ConfigurationError{Field: "simulation", Reason: err.Error()}
	}
	return p, nil
}

// Experiment returns the driver settings.
func (c *ExperimentConfig) Experiment() simulation.Experiment {
	return simulation.Experiment{
		TStart:      c.Simulation.TStart,
		TEnd:        c.Simulation.TEnd,
		Samples:     c.Simulation.Samples,
		Repetitions: c.Simulation.Repetitions,
		Seed:        c.Simulation.Seed,
		Workers:     c.Simulation.Workers,
		Solver: integrate.Options{
			RelTol:   c.Solver.RelTol,
			AbsTol:   c.Solver.AbsTol,
			MaxSteps: c.Solver.MaxSteps,
			Timeout:  c.Solver.Timeout,
		},
	}
}

// PerturbationOptions returns the perturbation runner settings.
func (c *ExperimentConfig) PerturbationOptions() simulation.PerturbationOptions {
	mode, _ := simulation.ParseMode(c.Perturbation.Mode)
	return simulation.PerturbationOptions{Mode: mode, Repetitions: c.Perturbation.Repetitions}
}

// TraceDir returns where the run trace is written.
func (c *ExperimentConfig) TraceDir() (string, error) {
	if c.Logging.Dir != "" {
		return c.Logging.Dir, nil
	}
	return HomeDir()
}

// StoreDir returns where runs.db lives.
func (c *ExperimentConfig) StoreDir() (string, error) {
	if c.Store.Dir != "" {
		return c.Store.Dir, nil
	}
	return HomeDir()
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values that fail to parse are ignored.
func applyEnvOverrides(config *ExperimentConfig) {
	if v := os.Getenv("MENDOZA_REPETITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Repetitions = n
		}
	}
	if v := os.Getenv("MENDOZA_STEEPNESS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.Steepness = f
		}
	}
	if v := os.Getenv("MENDOZA_GAMMA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.Gamma = f
		}
	}
	if v := os.Getenv("MENDOZA_T_END"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.TEnd = f
		}
	}
	if v := os.Getenv("MENDOZA_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}
	if v := os.Getenv("MENDOZA_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}
	if v := os.Getenv("MENDOZA_LOG_LEVEL"); v != "" && logging.ValidLevel(v) {
		config.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
}
