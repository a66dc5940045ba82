package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConservation(t *testing.T) {
	tests := []struct {
		name    string
		samples []dynamo.State
		drift   float64
		fail    bool
	}{
		{"constant", []dynamo.State{{1, 0}, {0.5, 0.5}, {0, 1}}, 0, false},
		{"tiny drift", []dynamo.State{{1, 0}, {0.5, 0.5 + 1e-9}}, 1e-9, false},
		{"leak", []dynamo.State{{1, 0}, {0.5, 0.4}}, 0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewConservation(0)
			for i, x := range tt.samples {
				m.Observe(x, float64(i))
			}
			assert.InDelta(t, tt.drift, m.Value(), 1e-12)
			if tt.fail {
				assert.ErrorIs(t, m.Err(), dynamo.ErrConservation)
			} else {
				assert.NoError(t, m.Err())
			}
		})
	}
}

func TestConservationReset(t *testing.T) {
	m := NewConservation(1e-3)
	m.Observe(dynamo.State{1}, 0)
	m.Observe(dynamo.State{2}, 1)
	require.Error(t, m.Err())

	m.Reset()
	assert.NoError(t, m.Err())
	assert.Zero(t, m.Value())
}

func TestMinPopulation(t *testing.T) {
	m := NewMinPopulation(1e-8)
	m.Observe(dynamo.State{1, 0}, 0)
	m.Observe(dynamo.State{0.6, 0.4 - 1e-12}, 1)
	m.Observe(dynamo.State{0.5, 0.5}, 2)
	assert.NoError(t, m.Err(), "roundoff-level negativity is tolerated")
	assert.Equal(t, 0.0, m.Value())

	m.Observe(dynamo.State{1.1, -0.1}, 3)
	err := m.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, dynamo.ErrNegativePopulation))
	assert.Contains(t, err.Error(), "t=3")
	assert.Equal(t, 1, m.Violations())
	assert.Equal(t, -0.1, m.Value())
}

func TestGuardsImplementInterface(t *testing.T) {
	var _ dynamo.Guard = NewConservation(0)
	var _ dynamo.Guard = NewMinPopulation(0)
}

func TestCollectorWriteFile(t *testing.T) {
	c := NewCollector()
	c.ObserveRun("demo", "bdf", dynamo.Stats{Steps: 12, Rejected: 2, Evaluations: 40}, 5*time.Millisecond, 1e-12, nil)
	c.ObserveRun("demo", "bdf", dynamo.Stats{Steps: 3}, time.Millisecond, 0, errors.New("boom"))
	c.ObserveFit(true, 0.999)
	c.ObserveFit(false, 0)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if ctr := m.GetCounter(); ctr != nil {
				values[mf.GetName()] += ctr.GetValue()
			}
		}
	}
	assert.Equal(t, 15.0, values["phokimo_solver_steps_total"])
	assert.Equal(t, 2.0, values["phokimo_runs_total"])
	assert.Equal(t, 2.0, values["phokimo_fits_total"])

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, c.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `phokimo_runs_total{outcome="error",solver="bdf"} 1`))
}
