package integrators

import "github.com/san-kum/phokimo/internal/dynamo"

// Euler is the explicit first-order method. It is unconditionally unstable
// once dt exceeds 2/k for the fastest rate and exists for comparison only.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	dx := sys.Derive(x, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
