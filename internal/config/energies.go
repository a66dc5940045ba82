package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/units"
	"gopkg.in/yaml.v3"
)

// LoadEnergies reads an "id: value" YAML file. An optional "unit" key sets
// the energy unit of every value.
func LoadEnergies(path string) (mechanism.Energies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mechanism.Energies{}, err
	}
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return mechanism.Energies{}, fmt.Errorf("config: energies %s: %w", path, err)
	}

	var unitName string
	if u, ok := raw["unit"]; ok {
		if unitName, ok = u.(string); !ok {
			return mechanism.Energies{}, fmt.Errorf("config: energies %s: unit must be a string", path)
		}
		delete(raw, "unit")
	}
	unit, err := units.ParseEnergyUnit(unitName)
	if err != nil {
		return mechanism.Energies{}, fmt.Errorf("config: energies %s: %w", path, err)
	}

	values := make(map[string]float64, len(raw))
	if err := mapstructure.WeakDecode(raw, &values); err != nil {
		return mechanism.Energies{}, fmt.Errorf("config: energies %s: %w", path, err)
	}
	return mechanism.Energies{Unit: unit, Values: values}, nil
}

// LoadEnergies merges the energy file with the inline table, in J/mol. Inline
// values win.
func (c *Config) LoadEnergies() (mechanism.Energies, error) {
	out := mechanism.Energies{Unit: units.JoulePerMol, Values: make(map[string]float64)}

	if c.EnergyFile != "" {
		file, err := LoadEnergies(c.resolve(c.EnergyFile))
		if err != nil {
			return mechanism.Energies{}, err
		}
		for id, v := range file.Values {
			out.Values[id] = file.Unit.ToJPerMol(v)
		}
	}

	unit, err := units.ParseEnergyUnit(c.EnergyUnit)
	if err != nil {
		return mechanism.Energies{}, err
	}
	for id, v := range c.Energies {
		out.Values[id] = unit.ToJPerMol(v)
	}
	return out, nil
}
