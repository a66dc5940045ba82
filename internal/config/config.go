// Package config loads run configurations from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/units"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSolver       = "bdf"
	DefaultTolerance    = 1e-8
	DefaultAbsTolerance = 1e-12
	DefaultFitOrder     = 1
	DefaultOutputDir    = "runs"
)

// Fit series selectors.
const (
	SeriesSpins  = "spins"
	SeriesStates = "states"
	SeriesAll    = "all"
)

type Config struct {
	Name       string                `mapstructure:"name" yaml:"name" toml:"name"`
	Mechanism  mechanism.Description `mapstructure:"mechanism" yaml:"mechanism" toml:"mechanism"`
	Energies   map[string]float64    `mapstructure:"energies" yaml:"energies,omitempty" toml:"energies,omitempty"`
	EnergyUnit string                `mapstructure:"energy_unit" yaml:"energy_unit,omitempty" toml:"energy_unit,omitempty"`
	EnergyFile string                `mapstructure:"energy_file" yaml:"energy_file,omitempty" toml:"energy_file,omitempty"`
	Solver     SolverConfig          `mapstructure:"solver" yaml:"solver" toml:"solver"`
	Fit        FitConfig             `mapstructure:"fit" yaml:"fit" toml:"fit"`
	Output     OutputConfig          `mapstructure:"output" yaml:"output" toml:"output"`
	Strict     bool                  `mapstructure:"strict" yaml:"strict,omitempty" toml:"strict,omitempty"`

	// Results is written back by a finished run.
	Results *Results `mapstructure:"results" yaml:"results,omitempty" toml:"results,omitempty"`

	// dir is the directory of the loaded file; relative paths resolve
	// against it.
	dir string
}

type SolverConfig struct {
	Name                  string  `mapstructure:"name" yaml:"name" toml:"name"`
	Tolerance             float64 `mapstructure:"tolerance" yaml:"tolerance" toml:"tolerance"`
	AbsTolerance          float64 `mapstructure:"abs_tolerance" yaml:"abs_tolerance" toml:"abs_tolerance"`
	Dt                    float64 `mapstructure:"dt" yaml:"dt,omitempty" toml:"dt,omitempty"`
	MaxSteps              int     `mapstructure:"max_steps" yaml:"max_steps,omitempty" toml:"max_steps,omitempty"`
	NegativeTolerance     float64 `mapstructure:"negative_tolerance" yaml:"negative_tolerance,omitempty" toml:"negative_tolerance,omitempty"`
	ConservationTolerance float64 `mapstructure:"conservation_tolerance" yaml:"conservation_tolerance,omitempty" toml:"conservation_tolerance,omitempty"`
}

type FitConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	Order         int    `mapstructure:"order" yaml:"order" toml:"order"`
	Offset        bool   `mapstructure:"offset" yaml:"offset" toml:"offset"`
	MaxIterations int    `mapstructure:"max_iterations" yaml:"max_iterations,omitempty" toml:"max_iterations,omitempty"`
	Series        string `mapstructure:"series" yaml:"series" toml:"series"`
	Workers       int    `mapstructure:"workers" yaml:"workers,omitempty" toml:"workers,omitempty"`
}

type OutputConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir" toml:"dir"`
	Plot      string `mapstructure:"plot" yaml:"plot,omitempty" toml:"plot,omitempty"`
	WriteBack bool   `mapstructure:"write_back" yaml:"write_back,omitempty" toml:"write_back,omitempty"`
}

// Results summarise a run inside the mechanism file it came from.
type Results struct {
	Rates        map[string]map[string]float64 `mapstructure:"rates" yaml:"rates" toml:"rates"`
	Fitting      map[string]FitSummary         `mapstructure:"exponential_fitting" yaml:"exponential_fitting" toml:"exponential_fitting"`
	ProductRatio map[string]float64            `mapstructure:"product_ratio" yaml:"product_ratio,omitempty" toml:"product_ratio,omitempty"`
}

// FitSummary is the slowest time constant of a series and its final value.
// TimeConstant is zero when the fit failed.
type FitSummary struct {
	TimeConstant float64 `mapstructure:"time_constant" yaml:"time_constant,omitempty" toml:"time_constant,omitempty"`
	Fraction     float64 `mapstructure:"fraction" yaml:"fraction" toml:"fraction"`
}

func DefaultConfig() *Config {
	return &Config{
		Solver: SolverConfig{
			Name:         DefaultSolver,
			Tolerance:    DefaultTolerance,
			AbsTolerance: DefaultAbsTolerance,
		},
		Fit: FitConfig{
			Enabled: true,
			Order:   DefaultFitOrder,
			Offset:  true,
			Series:  SeriesSpins,
		},
		Output: OutputConfig{Dir: DefaultOutputDir},
	}
}

// Format is the file syntax, chosen by extension.
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return YAML, nil
	case ".toml":
		return TOML, nil
	}
	return "", fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
}

// ReadDocument reads a file into a generic nested document.
func ReadDocument(path string) (map[string]any, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]any)
	switch format {
	case TOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return raw, nil
}

// Load reads a configuration. Keys missing from the file keep their
// defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	raw, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Decode fills a default configuration from a generic document.
func Decode(raw map[string]any) (*Config, error) {
	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	return WriteDocument(path, cfg)
}

// WriteDocument encodes v in the format given by the extension of path.
func WriteDocument(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case TOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(v); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		if data, err = yaml.Marshal(v); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Solver.Name == "" {
		errs = append(errs, errors.New("config: solver.name is empty"))
	}
	if c.Solver.Tolerance < 0 || c.Solver.AbsTolerance < 0 {
		errs = append(errs, errors.New("config: solver tolerances must not be negative"))
	}
	if c.Fit.Order < 1 {
		errs = append(errs, fmt.Errorf("config: fit.order must be at least 1, got %d", c.Fit.Order))
	}
	switch c.Fit.Series {
	case SeriesSpins, SeriesStates, SeriesAll:
	default:
		errs = append(errs, fmt.Errorf("config: fit.series %q is not one of spins, states, all", c.Fit.Series))
	}
	if _, err := units.ParseEnergyUnit(c.EnergyUnit); err != nil {
		errs = append(errs, fmt.Errorf("config: energy_unit: %w", err))
	}
	return errors.Join(errs...)
}

// Clone deep-copies c through its document form.
func (c *Config) Clone() (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	out.dir = c.dir
	return out, nil
}

// Dir is the directory relative paths resolve against.
func (c *Config) Dir() string { return c.dir }

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}
