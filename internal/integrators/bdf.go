package integrators

import (
	"context"
	"math"

	"github.com/san-kum/phokimo/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// BDF coefficients for the numerical differentiation formulas of
// Shampine & Reichelt (orders 1-5), difference form.
const (
	bdfMaxOrder   = 5
	newtonMaxIter = 4
	bdfMinFactor  = 0.2
	bdfMaxFactor  = 10.0
)

var (
	bdfKappa                         = [bdfMaxOrder + 1]float64{0, -0.1850, -1.0 / 9.0, -0.0823, -0.0415, 0}
	bdfGamma, bdfAlpha, bdfErrorCoef = bdfCoefficients()
)

func bdfCoefficients() (gamma, alpha, errc [bdfMaxOrder + 1]float64) {
	for i := 1; i <= bdfMaxOrder; i++ {
		gamma[i] = gamma[i-1] + 1/float64(i)
	}
	for i := 0; i <= bdfMaxOrder; i++ {
		alpha[i] = (1 - bdfKappa[i]) * gamma[i]
		errc[i] = bdfKappa[i]*gamma[i] + 1/float64(i+1)
	}
	return gamma, alpha, errc
}

// BDF is a variable-order (1-5), variable-step backward differentiation
// integrator with a simplified Newton iteration. It is the default solver:
// kinetic networks routinely mix rates that are many decades apart.
type BDF struct{}

func NewBDF() *BDF {
	return &BDF{}
}

func (b *BDF) Name() string { return "bdf" }

type bdfRun struct {
	sys   dynamo.System
	n     int
	rtol  float64
	atol  float64
	stats *dynamo.Stats

	t      float64
	tBound float64
	hAbs   float64
	order  int
	equal  int

	d  *mat.Dense
	j  *mat.Dense
	lu *mat.LU

	constJac bool
}

func (b *BDF) Propagate(ctx context.Context, sys dynamo.System, x0 dynamo.State, times []float64, cfg dynamo.Config) ([]dynamo.State, dynamo.Stats, error) {
	var stats dynamo.Stats
	if len(times) == 0 {
		return nil, stats, &dynamo.IntegrationError{Solver: b.Name(), Wrapped: dynamo.ErrInvalidSpan}
	}
	n := len(x0)
	if sys.StateDim() != n {
		return nil, stats, &dynamo.IntegrationError{Solver: b.Name(), Wrapped: dynamo.ErrDimensionMismatch}
	}

	out := make([]dynamo.State, 0, len(times))
	out = append(out, x0.Clone())
	if len(times) == 1 {
		return out, stats, nil
	}

	rtol, atol := tolerances(cfg)
	r := &bdfRun{
		sys:    sys,
		n:      n,
		rtol:   rtol,
		atol:   atol,
		stats:  &stats,
		t:      times[0],
		tBound: times[len(times)-1],
		order:  1,
	}

	maxStep := cfg.MaxDt
	if maxStep <= 0 || math.IsNaN(maxStep) {
		maxStep = math.Inf(1)
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = dynamo.DefaultConfig().MaxSteps
	}

	f0 := r.eval(r.t, x0)
	if cfg.Dt > 0 {
		r.hAbs = math.Min(cfg.Dt, r.tBound-r.t)
	} else {
		r.hAbs = r.initialStep(x0, f0, maxStep)
	}

	r.d = mat.NewDense(bdfMaxOrder+3, n, nil)
	copy(r.d.RawRowView(0), x0)
	row1 := r.d.RawRowView(1)
	for i := range row1 {
		row1[i] = f0[i] * r.hAbs
	}

	if lin, ok := sys.(dynamo.Linear); ok && lin.IsLinear() {
		r.j = lin.Jacobian(x0, r.t)
		r.constJac = true
	} else {
		r.j = r.jacobian(r.t, x0)
	}
	stats.Jacobians++

	next := 1
	for next < len(times) {
		select {
		case <-ctx.Done():
			return nil, stats, dynamo.Fail(b.Name(), stats.Steps, r.t, ctx.Err(), "")
		default:
		}
		if stats.Steps >= maxSteps {
			return nil, stats, dynamo.Fail(b.Name(), stats.Steps, r.t, dynamo.ErrStepBudget, "")
		}

		if err := r.step(maxStep, cfg.MinDt); err != nil {
			return nil, stats, dynamo.Fail(b.Name(), stats.Steps, r.t, err, "")
		}

		y := dynamo.State(r.d.RawRowView(0))
		if cfg.ValidateState && !y.IsValid() {
			return nil, stats, dynamo.Fail(b.Name(), stats.Steps, r.t, dynamo.ErrInvalidState, "")
		}

		for next < len(times) && times[next] <= r.t {
			out = append(out, r.interpolate(times[next]))
			next++
		}
	}

	return out, stats, nil
}

func (r *bdfRun) eval(t float64, y dynamo.State) dynamo.State {
	r.stats.Evaluations++
	return r.sys.Derive(y, t)
}

// initialStep follows Hairer, Norsett & Wanner's estimate for a first-order start.
func (r *bdfRun) initialStep(y0, f0 dynamo.State, maxStep float64) float64 {
	interval := r.tBound - r.t
	if r.n == 0 {
		return interval
	}
	scale := make(dynamo.State, r.n)
	for i := range scale {
		scale[i] = r.atol + r.rtol*math.Abs(y0[i])
	}
	d0 := dynamo.RMSNorm(y0, scale)
	d1 := dynamo.RMSNorm(f0, scale)

	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, interval)

	y1 := make(dynamo.State, r.n)
	for i := range y1 {
		y1[i] = y0[i] + h0*f0[i]
	}
	f1 := r.eval(r.t+h0, y1)
	d2 := dynamo.RMSNorm(f1.Sub(f0), scale) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Sqrt(0.01 / math.Max(d1, d2))
	}
	return math.Min(math.Min(100*h0, h1), math.Min(interval, maxStep))
}

func (r *bdfRun) step(maxStep, userMin float64) error {
	t := r.t
	minStep := math.Max(10*math.Abs(math.Nextafter(t, math.Inf(1))-t), userMin)

	hAbs := r.hAbs
	if hAbs > maxStep {
		changeDifferences(r.d, r.order, maxStep/hAbs)
		hAbs = maxStep
		r.equal = 0
	} else if hAbs < minStep {
		changeDifferences(r.d, r.order, minStep/hAbs)
		hAbs = minStep
		r.equal = 0
	}

	order := r.order
	jac := r.j
	lu := r.lu
	currentJac := r.constJac

	var (
		tNew      float64
		yNew, d   dynamo.State
		scale     dynamo.State
		iters     int
		errorNorm float64
	)

	for {
		if hAbs < minStep {
			return dynamo.ErrStepTooSmall
		}

		tNew = t + hAbs
		if tNew > r.tBound {
			tNew = r.tBound
			changeDifferences(r.d, order, (tNew-t)/hAbs)
			r.equal = 0
			lu = nil
		}
		h := tNew - t
		hAbs = h

		yPredict := make(dynamo.State, r.n)
		for k := 0; k <= order; k++ {
			row := r.d.RawRowView(k)
			for i := range yPredict {
				yPredict[i] += row[i]
			}
		}

		scale = make(dynamo.State, r.n)
		for i := range scale {
			scale[i] = r.atol + r.rtol*math.Abs(yPredict[i])
		}

		psi := make(dynamo.State, r.n)
		for k := 1; k <= order; k++ {
			row := r.d.RawRowView(k)
			for i := range psi {
				psi[i] += row[i] * bdfGamma[k]
			}
		}
		for i := range psi {
			psi[i] /= bdfAlpha[order]
		}

		c := h / bdfAlpha[order]
		converged := false
		for !converged {
			if lu == nil {
				lu = r.factorize(jac, c)
			}
			converged, iters, yNew, d = r.newton(tNew, yPredict, c, psi, lu, scale)
			if !converged {
				if currentJac {
					break
				}
				jac = r.jacobian(tNew, yPredict)
				r.stats.Jacobians++
				lu = nil
				currentJac = true
			}
		}

		if !converged {
			r.stats.NewtonFailed++
			hAbs *= 0.5
			changeDifferences(r.d, order, 0.5)
			r.equal = 0
			lu = nil
			continue
		}

		safety := 0.9 * float64(2*newtonMaxIter+1) / float64(2*newtonMaxIter+iters)

		for i := range scale {
			scale[i] = r.atol + r.rtol*math.Abs(yNew[i])
		}
		errorNorm = dynamo.RMSNorm(d.Scale(bdfErrorCoef[order]), scale)

		if errorNorm > 1 {
			factor := math.Max(bdfMinFactor, safety*math.Pow(errorNorm, -1/float64(order+1)))
			hAbs *= factor
			changeDifferences(r.d, order, factor)
			r.equal = 0
			r.stats.Rejected++
			// the factorisation is only an approximation inside the Newton
			// loop, so a stale one is kept after an error-test failure
			continue
		}
		break
	}

	r.stats.Steps++
	r.equal++
	r.t = tNew
	r.hAbs = hAbs
	r.j = jac
	r.lu = lu

	// D^{j+1} y_n = D^j y_n - D^j y_{n-1}, with d = D^{k+1} y_n
	dk1 := r.d.RawRowView(order + 1)
	dk2 := r.d.RawRowView(order + 2)
	for i := range d {
		dk2[i] = d[i] - dk1[i]
		dk1[i] = d[i]
	}
	for k := order; k >= 0; k-- {
		row, below := r.d.RawRowView(k), r.d.RawRowView(k+1)
		for i := range row {
			row[i] += below[i]
		}
	}

	if r.equal < order+1 {
		return nil
	}

	errM := math.Inf(1)
	if order > 1 {
		errM = dynamo.RMSNorm(dynamo.State(r.d.RawRowView(order)).Scale(bdfErrorCoef[order-1]), scale)
	}
	errP := math.Inf(1)
	if order < bdfMaxOrder {
		errP = dynamo.RMSNorm(dynamo.State(r.d.RawRowView(order+2)).Scale(bdfErrorCoef[order+1]), scale)
	}

	norms := [3]float64{errM, errorNorm, errP}
	best, bestFactor := 0, -1.0
	for i, nrm := range norms {
		var f float64
		switch {
		case nrm == 0:
			f = math.Inf(1)
		case math.IsInf(nrm, 1):
			f = 0
		default:
			f = math.Pow(nrm, -1/float64(order+i))
		}
		if f > bestFactor {
			best, bestFactor = i, f
		}
	}

	safety := 0.9 * float64(2*newtonMaxIter+1) / float64(2*newtonMaxIter+iters)
	order += best - 1
	r.order = order

	factor := math.Min(bdfMaxFactor, safety*bestFactor)
	r.hAbs *= factor
	changeDifferences(r.d, order, factor)
	r.equal = 0
	r.lu = nil

	return nil
}

// newton solves the BDF corrector equation with the frozen iteration matrix lu.
func (r *bdfRun) newton(tNew float64, yPredict dynamo.State, c float64, psi dynamo.State, lu *mat.LU, scale dynamo.State) (bool, int, dynamo.State, dynamo.State) {
	tol := math.Max(10*epsilon/r.rtol, math.Min(0.03, math.Sqrt(r.rtol)))

	y := yPredict.Clone()
	d := make(dynamo.State, r.n)
	rhs := mat.NewVecDense(r.n, nil)
	var dy mat.VecDense

	dyNormOld := -1.0
	converged := false
	iters := 0
	for k := 0; k < newtonMaxIter; k++ {
		iters = k + 1
		f := r.eval(tNew, y)
		if !f.IsValid() {
			break
		}
		for i := 0; i < r.n; i++ {
			rhs.SetVec(i, c*f[i]-psi[i]-d[i])
		}
		if err := lu.SolveVecTo(&dy, false, rhs); err != nil {
			if _, ok := err.(mat.Condition); !ok {
				break
			}
		}
		step := dynamo.State(dy.RawVector().Data)
		dyNorm := dynamo.RMSNorm(step, scale)

		rate := -1.0
		if dyNormOld >= 0 {
			rate = dyNorm / dyNormOld
		}
		if rate >= 0 && (rate >= 1 || math.Pow(rate, float64(newtonMaxIter-k))/(1-rate)*dyNorm > tol) {
			break
		}

		for i := range y {
			y[i] += step[i]
			d[i] += step[i]
		}

		if dyNorm == 0 || (rate >= 0 && rate/(1-rate)*dyNorm < tol) {
			converged = true
			break
		}
		dyNormOld = dyNorm
	}
	return converged, iters, y, d
}

func (r *bdfRun) factorize(jac *mat.Dense, c float64) *mat.LU {
	m := mat.NewDense(r.n, r.n, nil)
	m.Scale(-c, jac)
	for i := 0; i < r.n; i++ {
		m.Set(i, i, m.At(i, i)+1)
	}
	var lu mat.LU
	lu.Factorize(m)
	r.stats.Factorization++
	return &lu
}

// jacobian uses the analytic Jacobian when available, forward differences otherwise.
func (r *bdfRun) jacobian(t float64, y dynamo.State) *mat.Dense {
	if j, ok := r.sys.(dynamo.Jacobian); ok {
		return j.Jacobian(y, t)
	}
	f0 := r.eval(t, y)
	jac := mat.NewDense(r.n, r.n, nil)
	yp := y.Clone()
	for col := 0; col < r.n; col++ {
		delta := math.Sqrt(epsilon) * math.Max(1, math.Abs(y[col]))
		yp[col] = y[col] + delta
		f1 := r.eval(t, yp)
		for row := 0; row < r.n; row++ {
			jac.Set(row, col, (f1[row]-f0[row])/delta)
		}
		yp[col] = y[col]
	}
	return jac
}

// interpolate evaluates the BDF interpolating polynomial of the last step.
func (r *bdfRun) interpolate(t float64) dynamo.State {
	y := dynamo.State(r.d.RawRowView(0)).Clone()
	p := 1.0
	for j := 0; j < r.order; j++ {
		shift := r.t - r.hAbs*float64(j)
		denom := r.hAbs * float64(j+1)
		p *= (t - shift) / denom
		row := r.d.RawRowView(j + 1)
		for i := range y {
			y[i] += row[i] * p
		}
	}
	return y
}

// changeDifferences rescales the difference array for a step-size change
// by factor, keeping the interpolating polynomial.
func changeDifferences(d *mat.Dense, order int, factor float64) {
	_, n := d.Dims()
	rm := transformMatrix(order, factor)
	um := transformMatrix(order, 1)

	var ru mat.Dense
	ru.Mul(rm, um)

	block := d.Slice(0, order+1, 0, n).(*mat.Dense)
	var next mat.Dense
	next.Mul(ru.T(), block)
	block.Copy(&next)
}

func transformMatrix(order int, factor float64) *mat.Dense {
	m := mat.NewDense(order+1, order+1, nil)
	for j := 0; j <= order; j++ {
		m.Set(0, j, 1)
	}
	for i := 1; i <= order; i++ {
		for j := 1; j <= order; j++ {
			v := (float64(i) - 1 - factor*float64(j)) / float64(i)
			m.Set(i, j, m.At(i-1, j)*v)
		}
	}
	return m
}

const epsilon = 2.220446049250313e-16
