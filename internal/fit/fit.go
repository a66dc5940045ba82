package fit

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/phokimo/internal/trajectory"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMaxIterations = 500
	DefaultTolerance     = 1e-12

	// log-rate bounds on the scaled time axis
	minLogRate = -30.0
	maxLogRate = 30.0

	maxDamping = 1e16
	gradTol    = 1e-6

	// resolvable rates: at most this many e-folds between the first two
	// samples, at least this many over the whole span
	maxDecayPerSample = 10.0
	minDecayPerSpan   = 1e-4
)

type Options struct {
	Order  int
	Offset bool

	MaxIterations int
	// Tolerance is the relative parameter step and cost reduction below
	// which the iteration stops.
	Tolerance float64

	// RateHints seed the initial rates, in the inverse time unit of the
	// series. Typically the resolved rate constants of the mechanism.
	RateHints []float64

	Workers int
}

func DefaultOptions() Options {
	return Options{
		Order:         1,
		Offset:        true,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
	}
}

type problem struct {
	model
	label string
	tau   []float64
	y     []float64
	scale float64
}

func (pr *problem) residuals(p, r []float64) float64 {
	cost := 0.0
	for i, t := range pr.tau {
		r[i] = pr.y[i] - pr.eval(p, t)
		cost += r[i] * r[i]
	}
	return 0.5 * cost
}

// Fit fits series with order exponential terms by Levenberg-Marquardt.
func Fit(ctx context.Context, series *trajectory.Trajectory, order int, opts Options) (*Result, error) {
	label := series.Label
	if order < 1 {
		return nil, degenerate(label, order, "order must be at least 1")
	}
	m := model{order: order, offset: opts.Offset}
	n, np := series.Len(), m.size()
	if n <= np {
		return nil, degenerate(label, order, "%d points for %d parameters", n, np)
	}
	for i := range n {
		t, y := series.At(i)
		if math.IsNaN(t) || math.IsInf(t, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, degenerate(label, order, "non-finite sample at index %d", i)
		}
	}
	lo, hi := floats.Min(series.Values), floats.Max(series.Values)
	if hi-lo <= 1e-12*math.Max(1, math.Abs(hi)) {
		return nil, degenerate(label, order, "flat series")
	}
	scale := math.Max(math.Abs(series.Times[0]), math.Abs(series.Times[n-1]))
	if !(scale > 0) {
		return nil, degenerate(label, order, "zero time span")
	}

	pr := &problem{model: m, label: label, y: series.Values, scale: scale, tau: make([]float64, n)}
	for i, t := range series.Times {
		pr.tau[i] = t / scale
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	var (
		best     []float64
		bestCost float64
		bestIter int
		firstErr error
	)
	r := make([]float64, n)
	for _, rates := range pr.starts(opts.RateHints) {
		p, iters, err := pr.solve(ctx, pr.seed(rates), maxIter, tol)
		if err == nil {
			err = pr.resolved(p, iters)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if cost := pr.residuals(p, r); best == nil || cost < bestCost {
			best, bestCost, bestIter = p, cost, iters
		}
	}
	if best == nil {
		return nil, firstErr
	}
	return pr.result(best, bestIter), nil
}

func (pr *problem) solve(ctx context.Context, p []float64, maxIter int, tol float64) ([]float64, int, error) {
	n, np := len(pr.tau), pr.size()
	r := make([]float64, n)
	rTrial := make([]float64, n)
	trial := make([]float64, np)
	jac := mat.NewDense(n, np, nil)

	cost := pr.residuals(p, r)
	floor := 1e-30 * floats.Dot(pr.y, pr.y)
	lambda := 1e-3

	fail := func(iter int, cause error, detail string) error {
		return &ConvergenceError{Label: pr.label, Order: pr.order, Iterations: iter, Wrapped: cause, Detail: detail}
	}

	for iter := 1; iter <= maxIter; iter++ {
		select {
		case <-ctx.Done():
			return nil, iter, fail(iter, ctx.Err(), "")
		default:
		}
		if cost <= floor {
			return p, iter - 1, nil
		}

		for i, t := range pr.tau {
			pr.gradient(p, t, jac.RawRowView(i))
		}
		var a mat.SymDense
		a.SymOuterK(1, jac.T())
		var g mat.VecDense
		g.MulVec(jac.T(), mat.NewVecDense(n, r))

		maxDiag := 0.0
		for i := range np {
			maxDiag = math.Max(maxDiag, a.At(i, i))
		}
		dfloor := 1e-12 * math.Max(maxDiag, 1e-300)

		for {
			damped := mat.NewSymDense(np, nil)
			damped.CopySym(&a)
			for i := range np {
				damped.SetSym(i, i, a.At(i, i)+lambda*math.Max(a.At(i, i), dfloor))
			}

			var chol mat.Cholesky
			var step mat.VecDense
			if ok := chol.Factorize(damped); !ok || chol.SolveVecTo(&step, &g) != nil {
				lambda *= 10
				if lambda > maxDamping {
					return nil, iter, fail(iter, ErrDegenerate, "normal equations are singular")
				}
				continue
			}

			for i := range np {
				trial[i] = p[i] + step.AtVec(i)
			}
			for i := range pr.order {
				trial[2*i+1] = math.Max(minLogRate, math.Min(maxLogRate, trial[2*i+1]))
			}
			trialCost := pr.residuals(trial, rTrial)

			if trialCost < cost {
				small := true
				for i := range np {
					if math.Abs(trial[i]-p[i]) > tol*(math.Abs(p[i])+tol) {
						small = false
						break
					}
				}
				reduced := cost - trialCost
				copy(p, trial)
				copy(r, rTrial)
				cost = trialCost
				lambda = math.Max(lambda/10, 1e-15)
				if small || reduced <= tol*cost || cost <= floor {
					return p, iter, nil
				}
				break
			}

			lambda *= 10
			if lambda > maxDamping {
				if pr.stationary(&a, &g, cost) {
					return p, iter, nil
				}
				return nil, iter, fail(iter, ErrDegenerate, "damping exhausted away from a stationary point")
			}
		}
	}
	return nil, maxIter, fail(maxIter, ErrBudget, "")
}

func (pr *problem) result(p []float64, iters int) *Result {
	res := &Result{
		Label:      pr.label,
		Order:      pr.order,
		Iterations: iters,
		Converged:  true,
	}
	if pr.offset {
		res.Offset = p[2*pr.order]
	}
	for i := range pr.order {
		k := math.Exp(p[2*i+1]) / pr.scale
		res.Terms = append(res.Terms, Term{Amplitude: p[2*i], Rate: k, Lifetime: 1 / k})
	}
	sortTerms(res.Terms)

	fitted := make([]float64, len(pr.tau))
	sq := 0.0
	for i, t := range pr.tau {
		fitted[i] = pr.eval(p, t)
		d := pr.y[i] - fitted[i]
		sq += d * d
	}
	res.RSquared = stat.RSquaredFrom(fitted, pr.y, nil)
	res.RMSE = math.Sqrt(sq / float64(len(pr.y)))
	return res
}

// stationary applies the orthogonality test: every Jacobian column is
// nearly perpendicular to the residual, or the residual is rounding noise.
func (pr *problem) stationary(a *mat.SymDense, g *mat.VecDense, cost float64) bool {
	if cost <= 1e-20*floats.Dot(pr.y, pr.y) {
		return true
	}
	rn := math.Sqrt(2 * cost)
	for i := range g.Len() {
		if d := a.At(i, i); d > 0 && math.Abs(g.AtVec(i))/(math.Sqrt(d)*rn) > gradTol {
			return false
		}
	}
	return true
}

// resolved rejects a solution whose rates the sampling cannot support: a
// term that dies out before the second sample, or one that barely moves
// over the whole span, has an arbitrary lifetime.
func (pr *problem) resolved(p []float64, iters int) error {
	n := len(pr.tau)
	dt := pr.tau[1] - pr.tau[0]
	span := pr.tau[n-1] - pr.tau[0]
	for i := range pr.order {
		lk := p[2*i+1]
		k := math.Exp(lk)
		var detail string
		switch {
		case lk <= minLogRate || lk >= maxLogRate:
			detail = "rate pinned at its bound"
		case k*dt > maxDecayPerSample:
			detail = "decays faster than the sampling interval"
		case k*span < minDecayPerSpan:
			detail = "slower than the sampled span"
		default:
			continue
		}
		return &ConvergenceError{
			Label:      pr.label,
			Order:      pr.order,
			Iterations: iters,
			Wrapped:    ErrDegenerate,
			Detail:     fmt.Sprintf("term %d %s", i+1, detail),
		}
	}
	return nil
}

// starts lists initial rate sets: the hinted rates when given, then decade
// spreads around the 1/e time of the data and one decade either side.
func (pr *problem) starts(hints []float64) [][]float64 {
	k0 := pr.decayRate()
	var out [][]float64
	if r := pr.hinted(hints, k0); r != nil {
		out = append(out, r)
	}
	for _, f := range []float64{1, 0.1, 10} {
		out = append(out, spread(k0*f, pr.order))
	}
	return out
}

// decayRate estimates a rate from the time the series takes to fall from
// its largest excursion to 1/e of it, relative to the final value.
func (pr *problem) decayRate() float64 {
	n := len(pr.y)
	c := 0.0
	if pr.offset {
		c = pr.y[n-1]
	}
	peak := 0
	for i, y := range pr.y {
		if math.Abs(y-c) > math.Abs(pr.y[peak]-c) {
			peak = i
		}
	}
	amp := math.Abs(pr.y[peak] - c)
	for i := peak + 1; i < n; i++ {
		if math.Abs(pr.y[i]-c) <= amp/math.E {
			return 1 / (pr.tau[i] - pr.tau[peak])
		}
	}
	return 1
}

// hinted turns rate hints, in the inverse time unit of the series, into
// scaled starting rates: the hint nearest k0 for one term, else a geometric
// spread between the slowest and fastest hint.
func (pr *problem) hinted(hints []float64, k0 float64) []float64 {
	var scaled []float64
	for _, h := range hints {
		if h > 0 && !math.IsInf(h, 0) {
			scaled = append(scaled, h*pr.scale)
		}
	}
	if len(scaled) == 0 {
		return nil
	}
	lo, hi := slices.Min(scaled), slices.Max(scaled)
	switch {
	case pr.order == 1:
		best := scaled[0]
		for _, h := range scaled[1:] {
			if math.Abs(math.Log(h/k0)) < math.Abs(math.Log(best/k0)) {
				best = h
			}
		}
		return []float64{best}
	case hi > lo:
		rates := make([]float64, pr.order)
		for i := range rates {
			rates[i] = lo * math.Pow(hi/lo, float64(i)/float64(pr.order-1))
		}
		return rates
	}
	return spread(lo, pr.order)
}

// seed fixes the log-rates and solves the amplitudes and the offset, which
// enter linearly, by least squares. A singular design falls back to equal
// amplitudes and the final value as offset.
func (pr *problem) seed(rates []float64) []float64 {
	n := len(pr.tau)
	p := make([]float64, pr.size())
	for i, k := range rates {
		p[2*i+1] = math.Max(minLogRate, math.Min(maxLogRate, math.Log(k)))
	}

	cols := pr.order
	if pr.offset {
		cols++
	}
	x := mat.NewDense(n, cols, nil)
	for i, t := range pr.tau {
		for j := range pr.order {
			x.Set(i, j, math.Exp(-math.Exp(p[2*j+1])*t))
		}
		if pr.offset {
			x.Set(i, pr.order, 1)
		}
	}
	var coef mat.VecDense
	if err := coef.SolveVec(x, mat.NewVecDense(n, pr.y)); err == nil && finite(coef.RawVector().Data) {
		for j := range pr.order {
			p[2*j] = coef.AtVec(j)
		}
		if pr.offset {
			p[2*pr.order] = coef.AtVec(pr.order)
		}
		return p
	}

	c := 0.0
	if pr.offset {
		c = pr.y[n-1]
		p[2*pr.order] = c
	}
	amp := pr.y[0] - c
	if math.Abs(amp) < 1e-12 {
		amp = floats.Max(pr.y) - floats.Min(pr.y)
	}
	for j := range pr.order {
		p[2*j] = amp / float64(pr.order)
	}
	return p
}

// spread places order rates a decade apart, centred on k.
func spread(k float64, order int) []float64 {
	out := make([]float64, order)
	for i := range out {
		out[i] = k * math.Pow(10, float64(i)-float64(order-1)/2)
	}
	return out
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
