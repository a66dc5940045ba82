// Package units holds the physical constants and unit conversions used by
// the rate theories. Energies travel through the engine in J/mol and rate
// constants in 1/s until they are scaled to a run's time unit.
package units

import (
	"fmt"
	"math"
	"strings"
)

// CODATA 2018 exact and recommended values, SI.
const (
	Boltzmann          = 1.380649e-23    // J/K
	Planck             = 6.62607015e-34  // J s
	HBar               = Planck / (2 * math.Pi)
	Avogadro           = 6.02214076e23   // 1/mol
	GasConstant        = Boltzmann * Avogadro
	ElementaryCharge   = 1.602176634e-19 // C
	ElectronMass       = 9.1093837015e-31
	VacuumPermittivity = 8.8541878128e-12 // F/m
	SpeedOfLight       = 299792458.0      // m/s
)

// Energy conversions into J/mol.
const (
	Hartree2JMol = 2625.4996394799e3
	Kcal2JMol    = 4184.0
	KJ2JMol      = 1000.0
	EV2JMol      = 96485.33212331
)

// DefaultTemperature is used when neither a transition nor the mechanism
// names a temperature.
const DefaultTemperature = 298.15

type EnergyUnit string

const (
	JoulePerMol     EnergyUnit = "j/mol"
	KiloJoulePerMol EnergyUnit = "kj/mol"
	KcalPerMol      EnergyUnit = "kcal/mol"
	Hartree         EnergyUnit = "hartree"
	ElectronVolt    EnergyUnit = "ev"
)

// ParseEnergyUnit accepts the usual spellings; the empty string means J/mol.
func ParseEnergyUnit(s string) (EnergyUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "j/mol", "jmol", "j":
		return JoulePerMol, nil
	case "kj/mol", "kjmol", "kj":
		return KiloJoulePerMol, nil
	case "kcal/mol", "kcalmol", "kcal":
		return KcalPerMol, nil
	case "hartree", "eh", "au":
		return Hartree, nil
	case "ev":
		return ElectronVolt, nil
	}
	return "", fmt.Errorf("units: unknown energy unit %q", s)
}

// ToJPerMol converts v expressed in u.
func (u EnergyUnit) ToJPerMol(v float64) float64 {
	switch u {
	case KiloJoulePerMol:
		return v * KJ2JMol
	case KcalPerMol:
		return v * Kcal2JMol
	case Hartree:
		return v * Hartree2JMol
	case ElectronVolt:
		return v * EV2JMol
	}
	return v
}

// FromJPerMol is the inverse of ToJPerMol.
func (u EnergyUnit) FromJPerMol(v float64) float64 {
	return v / u.ToJPerMol(1)
}

type TimeUnit string

const (
	Second      TimeUnit = "s"
	Millisecond TimeUnit = "ms"
	Microsecond TimeUnit = "us"
	Nanosecond  TimeUnit = "ns"
	Picosecond  TimeUnit = "ps"
	Femtosecond TimeUnit = "fs"
)

func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "s", "sec":
		return Second, nil
	case "ms":
		return Millisecond, nil
	case "us", "µs":
		return Microsecond, nil
	case "ns":
		return Nanosecond, nil
	case "ps":
		return Picosecond, nil
	case "fs":
		return Femtosecond, nil
	}
	return "", fmt.Errorf("units: unknown time unit %q", s)
}

// Seconds is the length of one u in seconds.
func (u TimeUnit) Seconds() float64 {
	switch u {
	case Millisecond:
		return 1e-3
	case Microsecond:
		return 1e-6
	case Nanosecond:
		return 1e-9
	case Picosecond:
		return 1e-12
	case Femtosecond:
		return 1e-15
	}
	return 1
}

// RateIn rescales a rate constant given in 1/s to 1/u.
func RateIn(perSecond float64, u TimeUnit) float64 {
	return perSecond * u.Seconds()
}

// WavelengthToFrequency converts a vacuum wavelength in nm to Hz.
func WavelengthToFrequency(nm float64) float64 {
	return SpeedOfLight / (nm * 1e-9)
}

// GapToFrequency converts an energy gap in J/mol to a photon frequency in Hz.
func GapToFrequency(jPerMol float64) float64 {
	return math.Abs(jPerMol) / Avogadro / Planck
}
