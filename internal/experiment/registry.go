package experiment

import (
	"fmt"
	"slices"

	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/integrators"
)

// Registry maps solver names to constructors. Solvers keep scratch state,
// so every run gets a fresh one.
type Registry struct {
	solvers map[string]func() dynamo.Solver
}

func NewRegistry() *Registry {
	r := &Registry{solvers: make(map[string]func() dynamo.Solver)}

	r.solvers["bdf"] = func() dynamo.Solver { return integrators.NewBDF() }
	r.solvers["expm"] = func() dynamo.Solver { return integrators.NewExpm() }
	r.solvers["rk45"] = func() dynamo.Solver { return integrators.NewRK45() }
	r.solvers["rk4"] = func() dynamo.Solver { return integrators.NewRK4() }
	r.solvers["euler"] = func() dynamo.Solver { return integrators.NewEuler() }

	return r
}

func (r *Registry) Register(name string, fn func() dynamo.Solver) {
	r.solvers[name] = fn
}

func (r *Registry) Factory(name string) (func() dynamo.Solver, error) {
	fn, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver: %s (have %v)", name, r.ListSolvers())
	}
	return fn, nil
}

func (r *Registry) Solver(name string) (dynamo.Solver, error) {
	fn, err := r.Factory(name)
	if err != nil {
		return nil, err
	}
	return fn(), nil
}

func (r *Registry) ListSolvers() []string {
	names := make([]string, 0, len(r.solvers))
	for name := range r.solvers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
