package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/rates"
	"github.com/san-kum/phokimo/internal/report"
	"github.com/san-kum/phokimo/internal/trajectory"
)

func document(t *testing.T) *report.Document {
	t.Helper()
	cfg := config.GetPreset("triplet_cascade")
	m, err := mechanism.Build(cfg.Mechanism, mechanism.Energies{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	table, err := rates.NewResolver().ResolveAll(m)
	if err != nil {
		t.Fatalf("rates: %v", err)
	}

	doc := report.New("cascade run", m, table)
	doc.Metadata.Solver = "bdf"
	doc.Metadata.Metrics = map[string]float64{"conservation_drift": 1e-14}
	doc.Trajectories = report.NewTrajectories(trajectory.Build(
		[]float64{0, 5e-5, 1e-4},
		[][]float64{{1, 0, 0, 0, 0}, {0, 0.2, 0.5, 0.29, 0.01}, {0, 1e-300, 0.4, 0.58, 0.02}},
		[]string{"S2", "S1", "T1", "S0", "sink"},
		[]trajectory.Manifold{{Label: "singlet", Members: []int{0, 1, 3}}, {Label: "triplet", Members: []int{2}}, {Label: "sink", Members: []int{4}}},
		4, "s"))
	return doc
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	doc := document(t)
	runID, err := st.Save(doc)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "cascade-run_") {
		t.Errorf("unexpected run id %q", runID)
	}
	for _, name := range []string{metadataFile, populationsFile, spinsFile, reportFile} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Solver != "bdf" {
		t.Errorf("expected solver bdf, got %q", meta.Solver)
	}
	if meta.Sink != "sink" {
		t.Errorf("expected sink label, got %q", meta.Sink)
	}
	if meta.Metrics["conservation_drift"] != 1e-14 {
		t.Errorf("expected drift 1e-14, got %g", meta.Metrics["conservation_drift"])
	}

	set, err := st.LoadTrajectories(runID)
	if err != nil {
		t.Fatalf("load trajectories failed: %v", err)
	}
	if len(set.States) != 5 || len(set.Spins) != 3 {
		t.Fatalf("expected 5 states and 3 spins, got %d and %d", len(set.States), len(set.Spins))
	}
	s1, _ := set.State("S1")
	if s1.Values[2] != 1e-300 {
		t.Errorf("tiny populations must survive the round trip, got %g", s1.Values[2])
	}
	if set.Sink == nil || set.Sink.Final() != 0.02 {
		t.Errorf("sink not restored: %+v", set.Sink)
	}
	triplet, ok := set.Spin("triplet")
	if !ok || triplet.Kind != trajectory.KindSpin {
		t.Error("triplet manifold not restored")
	}

	back, err := st.LoadReport(runID)
	if err != nil {
		t.Fatalf("load report failed: %v", err)
	}
	if len(back.Rates.Entries) != len(doc.Rates.Entries) {
		t.Errorf("rate table not restored")
	}
}

func TestStoreList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty list for a missing dir, got %v %v", runs, err)
	}

	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := st.Save(document(t)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(st.baseDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID == runs[1].ID {
		t.Error("run ids must be unique")
	}
}

func TestSaveWithoutTrajectories(t *testing.T) {
	doc := document(t)
	doc.Trajectories = nil
	if _, err := New(t.TempDir()).Save(doc); err == nil {
		t.Error("expected an error")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	doc := document(t)
	var buf bytes.Buffer
	set := doc.Trajectories.Set()
	if err := WriteCSV(&buf, set.Times, set.Spins); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "time,singlet,triplet,sink\n") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	times, series, err := ReadCSV(&buf, trajectory.KindSpin)
	if err != nil {
		t.Fatal(err)
	}
	if len(times) != 3 || series[0].Values[1] != 0.49 {
		t.Errorf("unexpected round trip: %v %v", times, series[0].Values)
	}

	if _, _, err := ReadCSV(strings.NewReader("t,a\n0,1\n"), trajectory.KindState); err == nil {
		t.Error("expected header error")
	}
	if _, _, err := ReadCSV(strings.NewReader("time,a\n0,x\n"), trajectory.KindState); err == nil {
		t.Error("expected parse error")
	}
}
