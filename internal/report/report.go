// Package report assembles the serialisable record of a run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/san-kum/phokimo/internal/fit"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/rates"
	"gopkg.in/yaml.v3"
)

const Version = "1"

// Warning kinds.
const (
	KindNetwork  = "network"
	KindFit      = "fit"
	KindAnalysis = "analysis"
	KindSolver   = "solver"
)

type Warning struct {
	Kind    string `json:"kind" yaml:"kind"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Message string `json:"message" yaml:"message"`
}

type Metadata struct {
	Name    string             `json:"name" yaml:"name"`
	Solver  string             `json:"solver" yaml:"solver"`
	Created time.Time          `json:"created" yaml:"created"`
	Elapsed time.Duration      `json:"elapsed_ns" yaml:"elapsed_ns"`
	Stats   SolverStats        `json:"stats" yaml:"stats"`
	Metrics map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

type StateRecord struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Spin    string  `json:"spin" yaml:"spin"`
	Role    string  `json:"role" yaml:"role"`
	Energy  float64 `json:"energy,omitempty" yaml:"energy,omitempty"`
	Initial float64 `json:"initial,omitempty" yaml:"initial,omitempty"`
}

type TransitionRecord struct {
	ID     string `json:"id" yaml:"id"`
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Via    string `json:"via,omitempty" yaml:"via,omitempty"`
	Theory string `json:"theory" yaml:"theory"`
}

type MechanismRecord struct {
	Name        string             `json:"name" yaml:"name"`
	Temperature float64            `json:"temperature" yaml:"temperature"`
	TotalTime   float64            `json:"total_time" yaml:"total_time"`
	Samples     int                `json:"samples" yaml:"samples"`
	TimeUnit    string             `json:"time_unit" yaml:"time_unit"`
	States      []StateRecord      `json:"states" yaml:"states"`
	Transitions []TransitionRecord `json:"transitions" yaml:"transitions"`
}

type Analysis struct {
	Fractions    []Fraction         `json:"fractions,omitempty" yaml:"fractions,omitempty"`
	ProductRatio []Fraction         `json:"product_ratio,omitempty" yaml:"product_ratio,omitempty"`
	HalfLives    map[string]float64 `json:"half_lives,omitempty" yaml:"half_lives,omitempty"`
}

// Document is built only from the record types of this package, so the
// serialised form does not change with the solver or fitter internals.
type Document struct {
	Version      string          `json:"version" yaml:"version"`
	Metadata     Metadata        `json:"metadata" yaml:"metadata"`
	Mechanism    MechanismRecord `json:"mechanism" yaml:"mechanism"`
	Rates        RateTable       `json:"rates" yaml:"rates"`
	Trajectories *Trajectories   `json:"trajectories,omitempty" yaml:"trajectories,omitempty"`
	Fits         []FitRecord     `json:"fits,omitempty" yaml:"fits,omitempty"`
	Analysis     Analysis        `json:"analysis" yaml:"analysis"`
	Warnings     []Warning       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// New starts a document for m. The remaining sections are filled by the
// caller as the run proceeds.
func New(name string, m *mechanism.Mechanism, table rates.Table) *Document {
	d := &Document{
		Version:  Version,
		Metadata: Metadata{Name: name, Created: time.Now().UTC()},
		Rates:    NewRateTable(table),
		Mechanism: MechanismRecord{
			Name:        m.Name,
			Temperature: m.Globals.Temperature,
			TotalTime:   m.Globals.TotalTime,
			Samples:     m.Globals.Samples,
			TimeUnit:    string(m.Globals.TimeUnit),
		},
	}
	for _, s := range m.States {
		d.Mechanism.States = append(d.Mechanism.States, StateRecord{
			ID:      s.ID,
			Name:    s.Name,
			Spin:    s.Spin,
			Role:    string(s.Role),
			Energy:  s.Energy,
			Initial: s.Initial,
		})
	}
	for _, t := range m.Transitions {
		rec := TransitionRecord{
			ID:     t.ID,
			From:   m.States[t.From].ID,
			To:     m.States[t.To].ID,
			Theory: string(t.Theory),
		}
		if t.Via >= 0 {
			rec.Via = m.States[t.Via].ID
		}
		d.Mechanism.Transitions = append(d.Mechanism.Transitions, rec)
	}
	return d
}

func (d *Document) Warn(kind, subject string, err error) {
	d.Warnings = append(d.Warnings, Warning{Kind: kind, Subject: subject, Message: err.Error()})
}

// AddFits records every outcome; failed fits keep their label and error
// and become warnings.
func (d *Document) AddFits(outcomes []fit.Outcome) {
	for _, o := range outcomes {
		d.Fits = append(d.Fits, NewFitRecord(o))
		if o.Err != nil {
			d.Warn(KindFit, o.Label, o.Err)
		}
	}
}

// Fit returns the successful fit of label, or nil.
func (d *Document) Fit(label string) *FitRecord {
	for i := range d.Fits {
		if f := &d.Fits[i]; f.Label == label && f.OK() {
			return f
		}
	}
	return nil
}

func (d *Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func (d *Document) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}

// Save writes JSON or YAML by extension.
func (d *Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = d.WriteJSON(f)
	case ".yaml", ".yml":
		err = d.WriteYAML(f)
	default:
		err = fmt.Errorf("report: unsupported extension %q", ext)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &d)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &d)
	default:
		err = fmt.Errorf("report: unsupported extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("report: %s: %w", path, err)
	}
	return &d, nil
}
