// Package chart renders mechanisms and trajectories with gonum/plot.
// The output format follows the file extension (png, svg, pdf, eps).
package chart

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/san-kum/phokimo/internal/fit"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/trajectory"
	"github.com/san-kum/phokimo/internal/units"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

var ErrNothingToPlot = errors.New("chart: nothing to plot")

func checkExt(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".eps", ".jpg", ".jpeg", ".tif", ".tiff":
		return nil
	}
	return fmt.Errorf("chart: unsupported image format %q", filepath.Ext(path))
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

func xys(tr *trajectory.Trajectory) plotter.XYs {
	pts := make(plotter.XYs, tr.Len())
	i := 0
	for t, v := range tr.All() {
		pts[i].X, pts[i].Y = t, v
		i++
	}
	return pts
}

func timeLabel(unit string) string {
	if unit == "" {
		unit = "s"
	}
	return "time [" + unit + "]"
}

func lines(p *plot.Plot, series []*trajectory.Trajectory) error {
	for i, tr := range series {
		l, err := plotter.NewLine(xys(tr))
		if err != nil {
			return fmt.Errorf("chart: %s: %w", tr.Label, err)
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(tr.Label, l)
	}
	return nil
}

// Populations plots every state trajectory.
func Populations(set *trajectory.Set, path string) error {
	return series(set.States, set.TimeUnit, "State populations", path)
}

// Spins plots the spin-manifold sums.
func Spins(set *trajectory.Set, path string) error {
	return series(set.Spins, set.TimeUnit, "Spin populations", path)
}

func series(list []*trajectory.Trajectory, unit, title, path string) error {
	if err := checkExt(path); err != nil {
		return err
	}
	if len(list) == 0 {
		return ErrNothingToPlot
	}
	p := newPlot(title, timeLabel(unit), "population")
	if err := lines(p, list); err != nil {
		return err
	}
	return p.Save(Width, Height, path)
}

// FitOverlay draws each fitted series as points with its model curve.
// Series without a fit are drawn as points only.
func FitOverlay(list []*trajectory.Trajectory, fits map[string]*fit.Result, unit, path string) error {
	if err := checkExt(path); err != nil {
		return err
	}
	if len(list) == 0 {
		return ErrNothingToPlot
	}

	p := newPlot("Exponential fits", timeLabel(unit), "population")
	for i, tr := range list {
		pts := xys(tr)
		sc, err := plotter.NewScatter(thin(pts, 60))
		if err != nil {
			return fmt.Errorf("chart: %s: %w", tr.Label, err)
		}
		sc.Color = plotutil.Color(i)
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)

		res := fits[tr.Label]
		if res == nil {
			p.Legend.Add(tr.Label+" (no fit)", sc)
			continue
		}
		curve := make(plotter.XYs, len(pts))
		for k, pt := range pts {
			curve[k].X, curve[k].Y = pt.X, res.Eval(pt.X)
		}
		l, err := plotter.NewLine(curve)
		if err != nil {
			return fmt.Errorf("chart: %s fit: %w", tr.Label, err)
		}
		l.Color = plotutil.Color(i)
		l.Dashes = plotutil.Dashes(1)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("%s τ=%.4g %s", tr.Label, res.Slowest().Lifetime, unit), sc, l)
	}
	return p.Save(Width, Height, path)
}

// thin keeps at most n evenly spaced points so markers stay readable.
func thin(pts plotter.XYs, n int) plotter.XYs {
	if len(pts) <= n {
		return pts
	}
	out := make(plotter.XYs, 0, n)
	step := float64(len(pts)-1) / float64(n-1)
	for i := range n {
		out = append(out, pts[int(float64(i)*step+0.5)])
	}
	return out
}

// EnergyDiagram draws one horizontal level per state with a known energy,
// in kJ/mol, and connects the levels of every transition.
func EnergyDiagram(m *mechanism.Mechanism, path string) error {
	if err := checkExt(path); err != nil {
		return err
	}

	const half = 0.3
	p := newPlot("State energies", "state", "energy [kJ/mol]")
	var (
		labels plotter.XYLabels
		ticks  []plot.Tick
		x      = make(map[int]float64)
	)
	for _, s := range m.States {
		if !s.HasEnergy {
			continue
		}
		pos := float64(len(x))
		x[s.Index] = pos
		e := units.KiloJoulePerMol.FromJPerMol(s.Energy)

		level, err := plotter.NewLine(plotter.XYs{{X: pos - half, Y: e}, {X: pos + half, Y: e}})
		if err != nil {
			return err
		}
		level.Width = vg.Points(3)
		level.Color = plotutil.Color(spinIndex(m, s.Spin))
		p.Add(level)

		labels.XYs = append(labels.XYs, plotter.XY{X: pos, Y: e})
		labels.Labels = append(labels.Labels, s.Name)
		ticks = append(ticks, plot.Tick{Value: pos, Label: s.ID})
	}
	if len(x) == 0 {
		return ErrNothingToPlot
	}

	for _, t := range m.Transitions {
		from, okF := x[t.From]
		to, okT := x[t.To]
		if !okF || !okT {
			continue
		}
		conn, err := plotter.NewLine(plotter.XYs{
			{X: from + half, Y: units.KiloJoulePerMol.FromJPerMol(m.States[t.From].Energy)},
			{X: to - half, Y: units.KiloJoulePerMol.FromJPerMol(m.States[t.To].Energy)},
		})
		if err != nil {
			return err
		}
		conn.Dashes = plotutil.Dashes(2)
		p.Add(conn)
	}

	names, err := plotter.NewLabels(labels)
	if err != nil {
		return err
	}
	p.Add(names)
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Min, p.X.Max = -1, float64(len(x))
	return p.Save(Width, Height, path)
}

func spinIndex(m *mechanism.Mechanism, spin string) int {
	for i, s := range m.Spins() {
		if s == spin {
			return i
		}
	}
	return 0
}
