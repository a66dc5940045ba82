package integrators

import (
	"context"
	"math"

	"github.com/san-kum/phokimo/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Expm propagates linear systems exactly: x(t+Δ) = exp(KΔ)·x(t).
// The propagator matrix is cached while consecutive sample intervals match,
// so an evenly spaced grid costs a single matrix exponential.
type Expm struct{}

func NewExpm() *Expm {
	return &Expm{}
}

func (e *Expm) Name() string { return "expm" }

func (e *Expm) Propagate(ctx context.Context, sys dynamo.System, x0 dynamo.State, times []float64, cfg dynamo.Config) ([]dynamo.State, dynamo.Stats, error) {
	var stats dynamo.Stats
	if len(times) == 0 {
		return nil, stats, &dynamo.IntegrationError{Solver: e.Name(), Wrapped: dynamo.ErrInvalidSpan}
	}
	lin, ok := sys.(dynamo.Linear)
	if !ok || !lin.IsLinear() {
		return nil, stats, &dynamo.IntegrationError{Solver: e.Name(), Wrapped: dynamo.ErrUnsupported, Detail: "requires a linear system"}
	}
	n := len(x0)
	if sys.StateDim() != n {
		return nil, stats, &dynamo.IntegrationError{Solver: e.Name(), Wrapped: dynamo.ErrDimensionMismatch}
	}

	k := lin.Jacobian(x0, times[0])
	stats.Jacobians++
	stochastic := conserving(k)

	out := make([]dynamo.State, 0, len(times))
	out = append(out, x0.Clone())

	x := mat.NewVecDense(n, x0.Clone())
	var (
		prop   mat.Dense
		lastDt = math.NaN()
	)
	for i := 1; i < len(times); i++ {
		select {
		case <-ctx.Done():
			return nil, stats, dynamo.Fail(e.Name(), stats.Steps, times[i-1], ctx.Err(), "")
		default:
		}

		dt := times[i] - times[i-1]
		if dt < 0 {
			return nil, stats, dynamo.Fail(e.Name(), stats.Steps, times[i-1], dynamo.ErrInvalidSpan, "sample times must increase")
		}
		if math.IsNaN(lastDt) || math.Abs(dt-lastDt) > 1e-12*math.Abs(lastDt) {
			propagator(&prop, k, dt, stochastic)
			stats.Factorization++
			lastDt = dt
		}

		var next mat.VecDense
		next.MulVec(&prop, x)
		x = &next
		stats.Steps++

		y := dynamo.State(x.RawVector().Data).Clone()
		if cfg.ValidateState && !y.IsValid() {
			return nil, stats, dynamo.Fail(e.Name(), stats.Steps, times[i], dynamo.ErrInvalidState, "")
		}
		out = append(out, y)
	}
	return out, stats, nil
}

// propagator sets dst to exp(kΔ). For a conserving k every column of the
// result sums to one; the scaled base step is exponentiated and unit column
// sums are restored after every squaring.
func propagator(dst *mat.Dense, k mat.Matrix, dt float64, conserving bool) {
	var a mat.Dense
	a.Scale(dt, k)
	if !conserving {
		dst.Exp(&a)
		return
	}

	squarings := 0
	if norm := mat.Norm(&a, 1); norm > maxBaseNorm {
		squarings = int(math.Ceil(math.Log2(norm / maxBaseNorm)))
		a.Scale(math.Ldexp(1, -squarings), &a)
	}
	dst.Exp(&a)
	normalizeColumns(dst)

	var sq mat.Dense
	for range squarings {
		sq.Mul(dst, dst)
		dst.Copy(&sq)
		normalizeColumns(dst)
	}
}

const maxBaseNorm = 0.5

// conserving reports whether every column of k sums to zero.
func conserving(k mat.Matrix) bool {
	r, c := k.Dims()
	for j := range c {
		sum, scale := 0.0, 0.0
		for i := range r {
			v := k.At(i, j)
			sum += v
			scale = math.Max(scale, math.Abs(v))
		}
		if math.Abs(sum) > 1e-12*scale {
			return false
		}
	}
	return true
}

// normalizeColumns clears rounding negatives and rescales each column of a
// population propagator to unit sum.
func normalizeColumns(p *mat.Dense) {
	r, c := p.Dims()
	for j := range c {
		sum := 0.0
		for i := range r {
			v := math.Max(p.At(i, j), 0)
			p.Set(i, j, v)
			sum += v
		}
		if sum > 0 {
			for i := range r {
				p.Set(i, j, p.At(i, j)/sum)
			}
		}
	}
}
