package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/phokimo/internal/report"
	"github.com/san-kum/phokimo/internal/trajectory"
)

const (
	metadataFile    = "metadata.json"
	populationsFile = "populations.csv.gz"
	spinsFile       = "spins.csv.gz"
	reportFile      = "report.json"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Solver      string             `json:"solver"`
	TotalTime   float64            `json:"total_time"`
	Samples     int                `json:"samples"`
	TimeUnit    string             `json:"time_unit"`
	Temperature float64            `json:"temperature"`
	States      []string           `json:"states"`
	Sink        string             `json:"sink,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
	Warnings    int                `json:"warnings"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func runID(name string) string {
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-")
	if name == "" {
		name = "run"
	}
	return fmt.Sprintf("%s_%d_%s", name, time.Now().Unix(), uuid.NewString()[:8])
}

// Save writes a run directory for doc and returns its id. The document
// must carry trajectories.
func (s *Store) Save(doc *report.Document) (string, error) {
	set := doc.Trajectories.Set()
	if set == nil {
		return "", errors.New("storage: document has no trajectories")
	}

	id := runID(doc.Metadata.Name)
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          id,
		Name:        doc.Metadata.Name,
		Timestamp:   time.Now(),
		Solver:      doc.Metadata.Solver,
		TotalTime:   doc.Mechanism.TotalTime,
		Samples:     doc.Mechanism.Samples,
		TimeUnit:    set.TimeUnit,
		Temperature: doc.Mechanism.Temperature,
		States:      set.Labels(),
		Metrics:     doc.Metadata.Metrics,
		Warnings:    len(doc.Warnings),
	}
	if set.Sink != nil {
		meta.Sink = set.Sink.Label
	}

	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := ExportCSV(filepath.Join(dir, populationsFile), set.Times, set.States); err != nil {
		return "", err
	}
	if err := ExportCSV(filepath.Join(dir, spinsFile), set.Times, set.Spins); err != nil {
		return "", err
	}
	if err := doc.Save(filepath.Join(dir, reportFile)); err != nil {
		return "", err
	}
	return id, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// List returns the stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadReport(runID string) (*report.Document, error) {
	return report.Load(filepath.Join(s.Dir(runID), reportFile))
}

// LoadTrajectories rebuilds the trajectory set of a stored run.
func (s *Store) LoadTrajectories(runID string) (*trajectory.Set, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	times, states, err := ImportCSV(filepath.Join(s.Dir(runID), populationsFile), trajectory.KindState)
	if err != nil {
		return nil, err
	}
	_, spins, err := ImportCSV(filepath.Join(s.Dir(runID), spinsFile), trajectory.KindSpin)
	if err != nil {
		return nil, err
	}

	set := &trajectory.Set{Times: times, TimeUnit: meta.TimeUnit, States: states, Spins: spins}
	if meta.Sink != "" {
		if tr, ok := set.State(meta.Sink); ok {
			set.Sink = &trajectory.Trajectory{Label: tr.Label, Kind: trajectory.KindSink, Times: tr.Times, Values: tr.Values}
		}
	}
	return set, nil
}
