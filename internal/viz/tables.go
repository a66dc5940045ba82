package viz

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/san-kum/phokimo/internal/analysis"
	"github.com/san-kum/phokimo/internal/report"
	"github.com/san-kum/phokimo/internal/trajectory"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(CurrentTheme.Border)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(CurrentTheme.Primary)
			}
			return s
		})
}

// RateTable lists every transition, fastest first.
func RateTable(t report.RateTable) string {
	tb := newTable("id", "from", "to", "theory", "T / K", "k / s⁻¹", "k / "+t.Unit+"⁻¹")
	for _, e := range t.Sorted() {
		tb.Row(e.ID, e.From, e.To, e.Theory, formatNumber(e.Temperature), formatNumber(e.PerSecond), formatNumber(e.K))
	}
	return tb.Render()
}

// FitTable shows one row per fitted term. Failed fits appear with a dash.
func FitTable(fits []report.FitRecord, unit string) string {
	tb := newTable("series", "term", "amplitude", "rate / "+unit+"⁻¹", "τ / "+unit, "offset", "R²")
	for _, f := range fits {
		if !f.OK() {
			tb.Row(f.Label, "-", "-", "-", "-", "-", "-")
			continue
		}
		for i, term := range f.Terms {
			offset, r2 := "", ""
			if i == 0 {
				offset, r2 = formatNumber(f.Offset), fmt.Sprintf("%.6f", f.RSquared)
			}
			tb.Row(f.Label, fmt.Sprint(i+1), formatNumber(term.Amplitude), formatNumber(term.Rate), formatNumber(term.Lifetime), offset, r2)
		}
	}
	return tb.Render()
}

// Fractions renders one labelled bar per entry. Values are fractions of one.
func Fractions(list []analysis.Fraction, width int) string {
	pad := 0
	for _, f := range list {
		pad = max(pad, lipgloss.Width(f.Label))
	}
	var b strings.Builder
	for _, f := range list {
		fmt.Fprintf(&b, "%-*s %s %6.2f%%\n", pad, f.Label, ProgressBar(f.Value, width), 100*f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Sparklines draws one line per trajectory, followed by its final value.
func Sparklines(list []*trajectory.Trajectory, width int) string {
	pad := 0
	for _, tr := range list {
		pad = max(pad, lipgloss.Width(tr.Label))
	}
	var b strings.Builder
	for _, tr := range list {
		fmt.Fprintf(&b, "%-*s %s %s\n", pad, tr.Label, Sparkline(tr.Values, width), MetricValue.Render(formatNumber(tr.Final())))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary renders the headline view of a finished run.
func Summary(doc *report.Document) string {
	md := doc.Metadata
	lines := []string{
		Metric("mechanism", doc.Mechanism.Name),
		Metric("solver", md.Solver),
		Metric("span", fmt.Sprintf("%s %s, %d samples", formatNumber(doc.Mechanism.TotalTime), doc.Mechanism.TimeUnit, doc.Mechanism.Samples)),
		Metric("temperature", formatNumber(doc.Mechanism.Temperature)+" K"),
		Metric("steps", fmt.Sprintf("%d (%d rejected, %d factorizations)", md.Stats.Steps, md.Stats.Rejected, md.Stats.Factorizations)),
		Metric("elapsed", md.Elapsed.String()),
	}
	for _, k := range slices.Sorted(maps.Keys(md.Metrics)) {
		lines = append(lines, Metric(k, formatNumber(md.Metrics[k])))
	}
	out := []string{Box(md.Name, strings.Join(lines, "\n"))}

	if set := doc.Trajectories.Set(); set != nil && len(set.Spins) > 0 {
		out = append(out, Header("Spin manifolds"), Sparklines(set.Spins, 40))
	}
	if len(doc.Analysis.ProductRatio) > 0 {
		ratio := make([]analysis.Fraction, len(doc.Analysis.ProductRatio))
		for i, f := range doc.Analysis.ProductRatio {
			ratio[i] = analysis.Fraction{Label: f.Label, Value: f.Value / 100}
		}
		out = append(out, Header("Product ratio"), Fractions(ratio, 30))
	}
	if len(doc.Fits) > 0 {
		out = append(out, Header("Exponential fits"), FitTable(doc.Fits, doc.Mechanism.TimeUnit))
	}
	if len(doc.Warnings) > 0 {
		var w []string
		for _, warn := range doc.Warnings {
			w = append(w, WarnStyle.Render(fmt.Sprintf("[%s] %s: %s", warn.Kind, warn.Subject, warn.Message)))
		}
		out = append(out, Header("Warnings"), strings.Join(w, "\n"))
	}
	return strings.Join(out, "\n\n")
}
