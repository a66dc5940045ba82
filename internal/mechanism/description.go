package mechanism

import (
	"github.com/mitchellh/mapstructure"
)

// Description is the declarative mechanism as written in a config file.
// It is decoded from a nested key-value document and validated by Build.
type Description struct {
	Name        string             `mapstructure:"name" yaml:"name" json:"name" toml:"name"`
	Temperature float64            `mapstructure:"temperature" yaml:"temperature,omitempty" json:"temperature,omitempty" toml:"temperature,omitempty"`
	TotalTime   float64            `mapstructure:"total_time" yaml:"total_time" json:"total_time" toml:"total_time"`
	Samples     int                `mapstructure:"samples" yaml:"samples,omitempty" json:"samples,omitempty" toml:"samples,omitempty"`
	TimeUnit    string             `mapstructure:"time_unit" yaml:"time_unit,omitempty" json:"time_unit,omitempty" toml:"time_unit,omitempty"`
	EnergyUnit  string             `mapstructure:"energy_unit" yaml:"energy_unit,omitempty" json:"energy_unit,omitempty" toml:"energy_unit,omitempty"`
	Atoms       int                `mapstructure:"atoms" yaml:"atoms,omitempty" json:"atoms,omitempty" toml:"atoms,omitempty"`
	Spins       []string           `mapstructure:"spins" yaml:"spins,omitempty" json:"spins,omitempty" toml:"spins,omitempty"`
	States      []StateSpec        `mapstructure:"states" yaml:"states" json:"states" toml:"states"`
	Transitions []TransitionSpec   `mapstructure:"transitions" yaml:"transitions" json:"transitions" toml:"transitions"`
	Initial     map[string]float64 `mapstructure:"initial" yaml:"initial,omitempty" json:"initial,omitempty" toml:"initial,omitempty"`
}

type StateSpec struct {
	ID           string   `mapstructure:"id" yaml:"id" json:"id" toml:"id"`
	Name         string   `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty" toml:"name,omitempty"`
	Spin         string   `mapstructure:"spin" yaml:"spin,omitempty" json:"spin,omitempty" toml:"spin,omitempty"`
	Multiplicity int      `mapstructure:"multiplicity" yaml:"multiplicity,omitempty" json:"multiplicity,omitempty" toml:"multiplicity,omitempty"`
	Energy       *float64 `mapstructure:"energy" yaml:"energy,omitempty" json:"energy,omitempty" toml:"energy,omitempty"`
	Population   float64  `mapstructure:"population" yaml:"population,omitempty" json:"population,omitempty" toml:"population,omitempty"`
	Role         string   `mapstructure:"role" yaml:"role,omitempty" json:"role,omitempty" toml:"role,omitempty"`
	Oscillator   *float64 `mapstructure:"oscillator" yaml:"oscillator,omitempty" json:"oscillator,omitempty" toml:"oscillator,omitempty"`
	Sink         bool     `mapstructure:"sink" yaml:"sink,omitempty" json:"sink,omitempty" toml:"sink,omitempty"`
}

type TransitionSpec struct {
	ID          string             `mapstructure:"id" yaml:"id,omitempty" json:"id,omitempty" toml:"id,omitempty"`
	From        string             `mapstructure:"from" yaml:"from" json:"from" toml:"from"`
	To          string             `mapstructure:"to" yaml:"to" json:"to" toml:"to"`
	Via         string             `mapstructure:"via" yaml:"via,omitempty" json:"via,omitempty" toml:"via,omitempty"`
	Theory      string             `mapstructure:"theory" yaml:"theory,omitempty" json:"theory,omitempty" toml:"theory,omitempty"`
	Rate        *float64           `mapstructure:"rate" yaml:"rate,omitempty" json:"rate,omitempty" toml:"rate,omitempty"`
	Temperature *float64           `mapstructure:"temperature" yaml:"temperature,omitempty" json:"temperature,omitempty" toml:"temperature,omitempty"`
	Params      map[string]float64 `mapstructure:"params" yaml:"params,omitempty" json:"params,omitempty" toml:"params,omitempty"`
}

// DecodeDescription decodes a nested key-value document. Unknown keys are
// rejected so that typos surface as validation errors.
func DecodeDescription(raw map[string]any) (Description, error) {
	var desc Description
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &desc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Description{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Description{}, &ValidationError{Field: "description", Reason: err.Error()}
	}
	return desc, nil
}
