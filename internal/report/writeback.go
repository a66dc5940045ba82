package report

import (
	"github.com/san-kum/phokimo/internal/config"
)

// Results condenses the document into the summary stored in a mechanism
// file.
func (d *Document) Results() *config.Results {
	res := &config.Results{
		Rates:   d.Rates.Dictionary(),
		Fitting: make(map[string]config.FitSummary, len(d.Fits)),
	}
	for _, f := range d.Fits {
		var sum config.FitSummary
		if f.OK() {
			sum.TimeConstant = f.Terms[0].Lifetime
		}
		if s, ok := d.Trajectories.Series(f.Label); ok {
			sum.Fraction = s.Final()
		}
		res.Fitting[f.Label] = sum
	}
	if len(d.Analysis.ProductRatio) > 0 {
		res.ProductRatio = make(map[string]float64, len(d.Analysis.ProductRatio))
		for _, p := range d.Analysis.ProductRatio {
			res.ProductRatio[p.Label] = p.Value
		}
	}
	return res
}

// WriteBack stores the results section in the mechanism file at path,
// replacing any previous results and keeping everything else.
func WriteBack(path string, d *Document) error {
	raw, err := config.ReadDocument(path)
	if err != nil {
		return err
	}
	raw["results"] = d.Results()
	return config.WriteDocument(path, raw)
}
