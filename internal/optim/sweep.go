// Package optim scans mechanism parameters over a grid.
package optim

import (
	"context"
	"fmt"
	"maps"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/experiment"
	"github.com/san-kum/phokimo/internal/report"
	"golang.org/x/sync/errgroup"
)

// Axis is one swept parameter. Param is "temperature", "total_time",
// "rate.<transition>" or "param.<transition>.<key>".
type Axis struct {
	Param  string
	Values []float64
}

// ParseAxis reads "name=v1,v2,..." or "name=start:stop:count". A "log:"
// prefix on a range spaces the values geometrically.
func ParseAxis(spec string) (Axis, error) {
	name, values, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return Axis{}, fmt.Errorf("optim: axis %q: want name=values", spec)
	}
	ax := Axis{Param: strings.TrimSpace(name)}

	logScale := false
	if v, found := strings.CutPrefix(values, "log:"); found {
		values, logScale = v, true
	}

	if parts := strings.Split(values, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || n < 2 {
			return Axis{}, fmt.Errorf("optim: axis %q: bad range", spec)
		}
		if logScale && (lo <= 0 || hi <= 0) {
			return Axis{}, fmt.Errorf("optim: axis %q: log range needs positive bounds", spec)
		}
		for i := range n {
			frac := float64(i) / float64(n-1)
			if logScale {
				ax.Values = append(ax.Values, lo*math.Pow(hi/lo, frac))
			} else {
				ax.Values = append(ax.Values, lo+frac*(hi-lo))
			}
		}
		return ax, nil
	}
	if logScale {
		return Axis{}, fmt.Errorf("optim: axis %q: log: needs a start:stop:count range", spec)
	}

	for _, s := range strings.Split(values, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Axis{}, fmt.Errorf("optim: axis %q: %w", spec, err)
		}
		ax.Values = append(ax.Values, v)
	}
	return ax, nil
}

// Apply sets one swept parameter on cfg.
func Apply(cfg *config.Config, param string, v float64) error {
	desc := &cfg.Mechanism
	switch {
	case param == "temperature":
		desc.Temperature = v
		return nil
	case param == "total_time":
		desc.TotalTime = v
		return nil
	}

	kind, rest, _ := strings.Cut(param, ".")
	switch kind {
	case "rate":
		i, err := transition(cfg, rest)
		if err != nil {
			return err
		}
		desc.Transitions[i].Rate = &v
		return nil
	case "param":
		// transition IDs may contain dots; the key never does
		j := strings.LastIndex(rest, ".")
		if j <= 0 || j == len(rest)-1 {
			return fmt.Errorf("optim: %q: want param.<transition>.<key>", param)
		}
		id, key := rest[:j], rest[j+1:]
		i, err := transition(cfg, id)
		if err != nil {
			return err
		}
		if desc.Transitions[i].Params == nil {
			desc.Transitions[i].Params = make(map[string]float64)
		}
		desc.Transitions[i].Params[key] = v
		return nil
	}
	return fmt.Errorf("optim: unknown parameter %q", param)
}

func transition(cfg *config.Config, id string) (int, error) {
	for i, t := range cfg.Mechanism.Transitions {
		tid := t.ID
		if tid == "" {
			tid = strings.TrimSpace(t.From) + "->" + strings.TrimSpace(t.To)
		}
		if tid == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("optim: no transition %q", id)
}

// Point is the outcome of one grid point. Err is set when the run failed;
// the other points are unaffected.
type Point struct {
	Params       map[string]float64 `json:"params"`
	Fractions    []report.Fraction  `json:"fractions,omitempty"`
	ProductRatio []report.Fraction  `json:"product_ratio,omitempty"`
	HalfLives    map[string]float64 `json:"half_lives,omitempty"`
	Err          error              `json:"-"`
}

// Value looks key up in the product ratio, the spin fractions and the
// half-lives, in that order.
func (p Point) Value(key string) (float64, bool) {
	for _, f := range p.ProductRatio {
		if f.Label == key {
			return f.Value, true
		}
	}
	for _, f := range p.Fractions {
		if f.Label == key {
			return f.Value, true
		}
	}
	v, ok := p.HalfLives[key]
	return v, ok
}

type Sweep struct {
	axes    []Axis
	workers int
}

func NewSweep(axes []Axis, workers int) *Sweep {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Sweep{axes: axes, workers: workers}
}

// grid is the cartesian product of the axes, first axis slowest.
func (s *Sweep) grid() []map[string]float64 {
	out := []map[string]float64{{}}
	for _, ax := range s.axes {
		next := make([]map[string]float64, 0, len(out)*len(ax.Values))
		for _, p := range out {
			for _, v := range ax.Values {
				q := maps.Clone(p)
				q[ax.Param] = v
				next = append(next, q)
			}
		}
		out = next
	}
	return out
}

// Run evaluates every grid point on a copy of base. Points run
// concurrently and come back in grid order.
func (s *Sweep) Run(ctx context.Context, base *config.Config, opts ...experiment.Option) ([]Point, error) {
	if len(s.axes) == 0 {
		return nil, fmt.Errorf("optim: no axes")
	}
	grid := s.grid()
	cfgs := make([]*config.Config, len(grid))
	for i, params := range grid {
		cfg, err := base.Clone()
		if err != nil {
			return nil, err
		}
		for _, ax := range s.axes {
			if err := Apply(cfg, ax.Param, params[ax.Param]); err != nil {
				return nil, err
			}
		}
		cfgs[i] = cfg
	}

	points := make([]Point, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range grid {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			points[i].Params = grid[i]
			run, err := experiment.New(cfgs[i], opts...).Run(gctx)
			if err != nil {
				points[i].Err = err
				return nil
			}
			an := run.Document.Analysis
			points[i].Fractions = an.Fractions
			points[i].ProductRatio = an.ProductRatio
			points[i].HalfLives = an.HalfLives
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// Best returns the successful point with the smallest (or largest) value
// of key.
func Best(points []Point, key string, maximize bool) (Point, bool) {
	var (
		best  Point
		found bool
		bestV float64
	)
	for _, p := range points {
		if p.Err != nil {
			continue
		}
		v, ok := p.Value(key)
		if !ok {
			continue
		}
		if !found || (maximize && v > bestV) || (!maximize && v < bestV) {
			best, bestV, found = p, v, true
		}
	}
	return best, found
}
