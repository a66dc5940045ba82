package optim

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/san-kum/phokimo/internal/config"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		spec string
		want Axis
	}{
		{"temperature=250,300", Axis{Param: "temperature", Values: []float64{250, 300}}},
		{"rate.isc=0:1:3", Axis{Param: "rate.isc", Values: []float64{0, 0.5, 1}}},
		{"rate.isc=log:1:100:3", Axis{Param: "rate.isc", Values: []float64{1, 10, 100}}},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseAxis(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Param, got.Param)
			assert.InDeltaSlice(t, tt.want.Values, got.Values, 1e-12)
		})
	}

	for _, bad := range []string{"temperature", "=1,2", "t=a,b", "t=1:2:1", "t=log:0:1:3", "t=log:1,2"} {
		_, err := ParseAxis(bad)
		assert.Error(t, err, bad)
	}
}

func TestApply(t *testing.T) {
	cfg := config.GetPreset("isomerization")

	require.NoError(t, Apply(cfg, "temperature", 350))
	require.NoError(t, Apply(cfg, "rate.isc", 1e9))
	require.NoError(t, Apply(cfg, "param.Tp->trans.prefactor", 2e8))
	require.NoError(t, Apply(cfg, "param.twist.kappa", 0.5))

	assert.Equal(t, 350.0, cfg.Mechanism.Temperature)
	assert.Equal(t, 1e9, *cfg.Mechanism.Transitions[1].Rate)
	assert.Equal(t, 2e8, cfg.Mechanism.Transitions[3].Params["prefactor"])
	assert.Equal(t, 0.5, cfg.Mechanism.Transitions[2].Params[mechanism.ParamKappa])

	assert.Error(t, Apply(cfg, "rate.nope", 1))
	assert.Error(t, Apply(cfg, "param.isc", 1))
	assert.Error(t, Apply(cfg, "pressure", 1))
}

func TestSweepRate(t *testing.T) {
	base := config.GetPreset("two_state")
	base.Fit.Enabled = false
	sweep := NewSweep([]Axis{{Param: "rate.A->B", Values: []float64{0.5, 1, 2}}}, 2)

	points, err := sweep.Run(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, points, 3)

	for i, k := range []float64{0.5, 1, 2} {
		require.NoError(t, points[i].Err)
		assert.Equal(t, k, points[i].Params["rate.A->B"])
		hl, ok := points[i].Value("A")
		require.True(t, ok)
		assert.InDelta(t, math.Ln2/k, hl, 1e-3)
	}

	best, ok := Best(points, "A", false)
	require.True(t, ok)
	assert.Equal(t, 2.0, best.Params["rate.A->B"])

	assert.Equal(t, 1.0, *config.GetPreset("two_state").Mechanism.Transitions[0].Rate, "base preset untouched")
}

func TestSweepGridAndFailures(t *testing.T) {
	base := config.GetPreset("two_state")
	base.Fit.Enabled = false
	sweep := NewSweep([]Axis{
		{Param: "total_time", Values: []float64{-1, 5}},
		{Param: "temperature", Values: []float64{200, 300}},
	}, 0)

	points, err := sweep.Run(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, points, 4)
	assert.Equal(t, map[string]float64{"total_time": -1, "temperature": 300}, points[1].Params)
	assert.Error(t, points[0].Err)
	assert.Error(t, points[1].Err)
	assert.NoError(t, points[2].Err)

	_, err = NewSweep(nil, 1).Run(context.Background(), base)
	assert.Error(t, err)
	_, err = NewSweep([]Axis{{Param: "bogus", Values: []float64{1}}}, 1).Run(context.Background(), base)
	assert.Error(t, err)
}
