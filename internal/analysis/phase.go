package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/phokimo/internal/trajectory"
)

type Point struct {
	X, Y float64
}

// Portrait traces the population of one state against another, e.g. the
// singlet-triplet exchange of an intersystem crossing.
type Portrait struct {
	XLabel, YLabel string
	Points         []Point
}

func NewPortrait(set *trajectory.Set, x, y string) (*Portrait, error) {
	xs, ok := lookup(set, x)
	if !ok {
		return nil, fmt.Errorf("analysis: no trajectory %q", x)
	}
	ys, ok := lookup(set, y)
	if !ok {
		return nil, fmt.Errorf("analysis: no trajectory %q", y)
	}

	p := &Portrait{XLabel: x, YLabel: y, Points: make([]Point, len(set.Times))}
	for k := range set.Times {
		p.Points[k] = Point{X: xs.Values[k], Y: ys.Values[k]}
	}
	return p, nil
}

// lookup prefers a state label and falls back to a spin manifold.
func lookup(set *trajectory.Set, label string) (*trajectory.Trajectory, bool) {
	if tr, ok := set.State(label); ok {
		return tr, true
	}
	return set.Spin(label)
}

// ASCII draws the portrait on a width x height character grid. The y axis
// points up.
func (p *Portrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.05
	minY -= rangeY * 0.05
	rangeX *= 1.1
	rangeY *= 1.1

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}
	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s ↑\n", p.YLabel)
	for _, row := range canvas {
		sb.WriteString("│")
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	sb.WriteString("└" + strings.Repeat("─", width) + "→ " + p.XLabel + "\n")
	return sb.String()
}
