package rates

import (
	"fmt"
	"math"

	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/units"
)

// Input is everything a theory may read. Energies are in J/mol,
// temperature in K. Via is nil unless the transition names one.
type Input struct {
	Transition  mechanism.Transition
	From        mechanism.State
	To          mechanism.State
	Via         *mechanism.State
	Temperature float64
	Atoms       int
}

func (in Input) param(key string) (float64, bool) {
	return in.Transition.Param(key)
}

func (in Input) paramOr(key string, def float64) float64 {
	if v, ok := in.param(key); ok {
		return v
	}
	return def
}

// gap returns E(to) - E(from), or the override parameter when given.
func (in Input) gap(override string) (float64, error) {
	if v, ok := in.param(override); ok {
		return v, nil
	}
	if !in.From.HasEnergy {
		return 0, fmt.Errorf("%w: energy of state %s", ErrMissingParameter, in.From.ID)
	}
	if !in.To.HasEnergy {
		return 0, fmt.Errorf("%w: energy of state %s", ErrMissingParameter, in.To.ID)
	}
	return in.To.Energy - in.From.Energy, nil
}

// TheoryFunc computes a rate constant in 1/s. Implementations are pure.
type TheoryFunc func(Input) (float64, error)

func defaultTheories() map[mechanism.Theory]TheoryFunc {
	return map[mechanism.Theory]TheoryFunc{
		mechanism.Explicit:   explicitRate,
		mechanism.Eyring:     eyringRate,
		mechanism.Arrhenius:  arrheniusRate,
		mechanism.Marcus:     marcusRate,
		mechanism.Emission:   emissionRate,
		mechanism.Relaxation: relaxationRate,
	}
}

func explicitRate(in Input) (float64, error) {
	if in.Transition.HasRate {
		return in.Transition.Rate, nil
	}
	return 0, missing("rate")
}

// eyringRate is k = kappa kB T/h exp(-dG/RT) with dG read from the
// barrier parameter, E(via) - E(from), or E(to) - E(from).
func eyringRate(in Input) (float64, error) {
	var dG float64
	if v, ok := in.param(mechanism.ParamBarrier); ok {
		dG = v
	} else if in.Via != nil {
		if !in.Via.HasEnergy || !in.From.HasEnergy {
			return 0, fmt.Errorf("%w: energies of %s and %s", ErrMissingParameter, in.From.ID, in.Via.ID)
		}
		dG = in.Via.Energy - in.From.Energy
	} else {
		g, err := in.gap(mechanism.ParamBarrier)
		if err != nil {
			return 0, err
		}
		dG = g
	}

	kappa := in.paramOr(mechanism.ParamKappa, 1)
	if kappa <= 0 {
		return 0, fmt.Errorf("%w: kappa %g", ErrNonPhysical, kappa)
	}
	t := in.Temperature
	return kappa * units.Boltzmann * t / units.Planck * math.Exp(-dG/(units.GasConstant*t)), nil
}

func arrheniusRate(in Input) (float64, error) {
	a, ok := in.param(mechanism.ParamPrefactor)
	if !ok {
		return 0, missing(mechanism.ParamPrefactor)
	}
	if a < 0 {
		return 0, fmt.Errorf("%w: prefactor %g", ErrNonPhysical, a)
	}
	ea, err := in.gap(mechanism.ParamActivation)
	if err != nil {
		return 0, err
	}
	return a * math.Exp(-ea/(units.GasConstant*in.Temperature)), nil
}

// marcusRate is the nonadiabatic Marcus expression. Coupling, reorganisation
// energy and driving force are molar on input and converted per molecule.
func marcusRate(in Input) (float64, error) {
	v, ok := in.param(mechanism.ParamCoupling)
	if !ok {
		return 0, missing(mechanism.ParamCoupling)
	}
	lambda, ok := in.param(mechanism.ParamReorganization)
	if !ok {
		return 0, missing(mechanism.ParamReorganization)
	}
	if lambda <= 0 {
		return 0, fmt.Errorf("%w: reorganization energy %g", ErrDegenerate, lambda)
	}
	dG, err := in.gap(mechanism.ParamDrivingForce)
	if err != nil {
		return 0, err
	}

	v /= units.Avogadro
	lambda /= units.Avogadro
	dG /= units.Avogadro
	kT := units.Boltzmann * in.Temperature

	pre := 2 * math.Pi / units.HBar * v * v / math.Sqrt(4*math.Pi*lambda*kT)
	return pre * math.Exp(-(dG+lambda)*(dG+lambda)/(4*lambda*kT)), nil
}

// emissionRate is the Einstein A coefficient
// 2 pi nu^2 e^2 / (eps0 m_e c^3) * g1/g2 * f.
func emissionRate(in Input) (float64, error) {
	var nu float64
	if wl, ok := in.param(mechanism.ParamWavelength); ok {
		if wl <= 0 {
			return 0, fmt.Errorf("%w: wavelength %g nm", ErrDegenerate, wl)
		}
		nu = units.WavelengthToFrequency(wl)
	} else {
		g, err := in.gap(mechanism.ParamWavelength)
		if err != nil {
			return 0, err
		}
		if g >= 0 {
			return 0, fmt.Errorf("%w: emission needs a lower destination, gap %g J/mol", ErrNonPhysical, g)
		}
		nu = units.GapToFrequency(g)
	}

	f, ok := in.param(mechanism.ParamOscillator)
	if !ok {
		if !in.From.HasOscillator {
			return 0, missing(mechanism.ParamOscillator)
		}
		f = in.From.Oscillator
	}
	g1 := in.paramOr(mechanism.ParamG1, 1)
	g2 := in.paramOr(mechanism.ParamG2, 1)
	if g2 == 0 {
		return 0, fmt.Errorf("%w: g2 is zero", ErrDegenerate)
	}

	c := units.SpeedOfLight
	pre := 2 * math.Pi * nu * nu * units.ElementaryCharge * units.ElementaryCharge /
		(units.VacuumPermittivity * units.ElectronMass * c * c * c)
	return pre * g1 / g2 * f, nil
}

// relaxationRate is kB T/h exp(-n dE / ((3N-6) R T)), dE being the excess
// energy released by the relaxation.
func relaxationRate(in Input) (float64, error) {
	var dE float64
	if v, ok := in.param(mechanism.ParamGap); ok {
		dE = v
	} else {
		g, err := in.gap(mechanism.ParamGap)
		if err != nil {
			return 0, err
		}
		dE = -g
	}

	n := in.paramOr(mechanism.ParamModes, 1)
	atoms := float64(in.Atoms)
	if v, ok := in.param(mechanism.ParamAtoms); ok {
		atoms = v
	}
	if atoms == 0 {
		return 0, missing(mechanism.ParamAtoms)
	}
	modes := 3*atoms - 6
	if modes <= 0 {
		return 0, fmt.Errorf("%w: %g atoms leave no vibrational modes", ErrDegenerate, atoms)
	}

	t := in.Temperature
	return units.Boltzmann * t / units.Planck * math.Exp(-(n*dE)/(modes*units.GasConstant*t)), nil
}
