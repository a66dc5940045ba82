// Package analysis derives summary quantities from kinetics trajectories.
//
//   - [FinalFractions]: spin-manifold shares at the end of the run
//   - [ProductRatio]: percentage split of the final product population
//   - [ProductFractions]: product shares over time
//   - [CrossingTime]: first time a trajectory crosses a level
//   - [NewPortrait]: population of one state against another
//
// All functions read trajectories and never modify them.
package analysis
