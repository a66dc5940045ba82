// Package dynamo provides the numerical primitives shared by the kinetics
// solvers.
//
// The package defines the fundamental interfaces and types for integrating
// systems of first-order ordinary differential equations dX/dt = f(X, t):
//
//   - [State]: vector of populations (or any ODE state)
//   - [System]: right-hand side of the ODE system
//   - [Jacobian]: optional analytic Jacobian, used by implicit solvers
//   - [Stepper] and [AdaptiveStepper]: single-step integrators driven by a caller loop
//   - [Propagator]: integrators that produce a whole sample grid themselves
//   - [Metric] and [Observer]: per-sample instrumentation
//
// # Example
//
//	net, _ := network.Build(mech, table, network.Options{})
//	solver := integrators.NewBDF()
//	states, stats, err := solver.Propagate(ctx, net, x0, times, dynamo.DefaultConfig())
//
// # Thread Safety
//
// Steppers keep scratch buffers and are NOT safe for concurrent use.
// Propagators allocate their working state per call and may be shared.
package dynamo
