package mechanism

import (
	"fmt"
	"strings"
)

// Theory selects how a transition's rate constant is obtained.
type Theory string

const (
	Explicit   Theory = "explicit"
	Eyring     Theory = "eyring"
	Arrhenius  Theory = "arrhenius"
	Marcus     Theory = "marcus"
	Emission   Theory = "emission"
	Relaxation Theory = "relaxation"
)

// Theories lists every supported theory in a stable order.
var Theories = []Theory{Explicit, Eyring, Arrhenius, Marcus, Emission, Relaxation}

var theoryAliases = map[string]Theory{
	"rate":         Explicit,
	"constant":     Explicit,
	"ts":           Eyring,
	"reaction":     Eyring,
	"fluorescence": Emission,
	"radiative":    Emission,
}

func ParseTheory(s string) (Theory, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Theories {
		if string(t) == key {
			return t, nil
		}
	}
	if t, ok := theoryAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown theory %q", s)
}

// Theory parameter names.
const (
	ParamKappa          = "kappa"
	ParamBarrier        = "barrier"
	ParamPrefactor      = "prefactor"
	ParamActivation     = "activation"
	ParamCoupling       = "coupling"
	ParamReorganization = "reorganization"
	ParamDrivingForce   = "driving_force"
	ParamWavelength     = "wavelength"
	ParamOscillator     = "oscillator"
	ParamG1             = "g1"
	ParamG2             = "g2"
	ParamModes          = "modes"
	ParamAtoms          = "atoms"
	ParamGap            = "gap"
)

// energyOverride is the parameter that, when present, replaces the
// state-energy difference a theory would otherwise need.
var energyOverride = map[Theory]string{
	Eyring:     ParamBarrier,
	Arrhenius:  ParamActivation,
	Marcus:     ParamDrivingForce,
	Emission:   ParamWavelength,
	Relaxation: ParamGap,
}

// NeedsEnergies reports whether a transition of theory t with params must
// read state energies.
func (t Theory) NeedsEnergies(params map[string]float64) bool {
	key, ok := energyOverride[t]
	if !ok {
		return false
	}
	_, overridden := params[key]
	return !overridden
}
