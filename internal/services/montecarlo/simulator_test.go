package montecarlo

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/internal/models"
)

func positions(ps ...models.Position) models.PositionSet {
	return models.NewPositionSet(ps)
}

func TestStandardNormalConsumesTwoDraws(t *testing.T) {
	a := rand.New(rand.NewSource(7))
	b := rand.New(rand.NewSource(7))

	StandardNormal(a)
	b.Float64()
	b.Float64()

	assert.Equal(t, b.Float64(), a.Float64(), "streams should be aligned after one Box–Muller pair")
}

// fixedUniform replays a fixed list of uniform draws
type fixedUniform struct {
	vals []float64
	i    int
}

func (f *fixedUniform) Float64() float64 {
	v := f.vals[f.i]
	f.i++
	return v
}

func TestStandardNormalBoxMuller(t *testing.T) {
	t.Run("zero first draw does not produce infinity", func(t *testing.T) {
		// u = 1 - 0 = 1 so ln(u) = 0 and Z = 0
		z := StandardNormal(&fixedUniform{vals: []float64{0, 0.3}})
		assert.Equal(t, 0.0, z)
	})

	t.Run("matches the closed form", func(t *testing.T) {
		z := StandardNormal(&fixedUniform{vals: []float64{0.5, 0.25}})
		want := math.Sqrt(-2*math.Log(0.5)) * math.Cos(2*math.Pi*0.25)
		assert.Equal(t, want, z)
	})
}

func TestSimulateGBMZeroVolatility(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		got := SimulateGBM(rng, 100000, 0.10, 0, 1)
		require.Equal(t, 100000*math.Exp(0.10), got)
	}
}

func TestValidate(t *testing.T) {
	valid := models.Position{Ticker: "VTI", Value: 1000, Volatility: 0.2, Drift: 0.05}
	cfg := models.DefaultSimulationConfig()

	tests := []struct {
		name      string
		positions models.PositionSet
		cfg       models.SimulationConfig
		field     string
	}{
		{"empty positions", positions(), cfg, "positions"},
		{"zero value", positions(models.Position{Value: 0, Volatility: 0.2}), cfg, "value"},
		{"negative value", positions(valid, models.Position{Value: -5}), cfg, "value"},
		{"NaN value", positions(models.Position{Value: math.NaN()}), cfg, "value"},
		{"negative volatility", positions(models.Position{Value: 10, Volatility: -0.1}), cfg, "volatility"},
		{"infinite drift", positions(models.Position{Value: 10, Drift: math.Inf(1)}), cfg, "drift"},
		{"zero horizon", positions(valid), models.SimulationConfig{PathCount: 10, HorizonYears: 0}, "horizonYears"},
		{"negative horizon", positions(valid), models.SimulationConfig{PathCount: 10, HorizonYears: -1}, "horizonYears"},
		{"zero paths", positions(valid), models.SimulationConfig{PathCount: 0, HorizonYears: 1}, "pathCount"},
		{"too many paths", positions(valid), models.SimulationConfig{PathCount: models.MaxPathCount + 1, HorizonYears: 1}, "pathCount"},
		{"horizon beyond cap", positions(valid), models.SimulationConfig{PathCount: 10, HorizonYears: models.MaxHorizonYears + 0.5}, "horizonYears"},
		{"huge horizon", positions(valid), models.SimulationConfig{PathCount: 10, HorizonYears: 1e13}, "horizonYears"},
		{"enormous horizon", positions(valid), models.SimulationConfig{PathCount: 10, HorizonYears: 1e300}, "horizonYears"},
		{"infinite horizon", positions(valid), models.SimulationConfig{PathCount: 10, HorizonYears: math.Inf(1)}, "horizonYears"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.positions, tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInputValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	assert.NoError(t, Validate(positions(valid), cfg))
	assert.NoError(t, Validate(positions(valid), models.SimulationConfig{PathCount: models.MaxPathCount, HorizonYears: models.MaxHorizonYears}))
}

func TestRunRejectsHugeHorizonBeforeSampling(t *testing.T) {
	ps := positions(models.Position{Value: 1000, Drift: 0.05, Volatility: 0.2})

	for _, h := range []float64{1e13, 1e300} {
		var result *models.SimulationResult
		var err error
		require.NotPanics(t, func() {
			result, err = New(WithSeed(1)).Run(ps, models.SimulationConfig{PathCount: 10, HorizonYears: h})
		})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrInputValidation)
	}
}

func TestRunRejectsInvalidInputWithoutResult(t *testing.T) {
	sim := New(WithSeed(1))
	result, err := sim.Run(positions(), models.DefaultSimulationConfig())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInputValidation)
}

func TestRunScenarios(t *testing.T) {
	t.Run("single deterministic position", func(t *testing.T) {
		sim := New(WithSeed(42))
		cfg := models.SimulationConfig{PathCount: 1000, HorizonYears: 1}
		result, err := sim.Run(positions(models.Position{Value: 100000, Drift: 0.10}), cfg)
		require.NoError(t, err)

		want := 100000 * math.Exp(0.10)
		assert.InDelta(t, 110517.09, want, 0.01)

		require.Len(t, result.Paths, 1000)
		for i, v := range result.Paths {
			require.Equal(t, want, v, "path %d", i)
		}
		assert.InDelta(t, want, result.Mean, 1e-6)
		assert.Equal(t, want, result.P10)
		assert.Equal(t, want, result.P50)
		assert.Equal(t, want, result.P90)
		assert.Equal(t, 0.0, result.ProbabilityOfLoss)
		assert.Equal(t, 0.0, result.ProbabilityOfDoubling)
		assert.Equal(t, 100000.0, result.TotalInvested)
	})

	t.Run("flat positions end exactly at invested capital", func(t *testing.T) {
		sim := New(WithSeed(42))
		cfg := models.SimulationConfig{PathCount: 500, HorizonYears: 1}
		ps := positions(
			models.Position{Value: 50000},
			models.Position{Value: 50000},
		)
		result, err := sim.Run(ps, cfg)
		require.NoError(t, err)

		assert.Equal(t, 100000.0, result.TotalInvested)
		for _, v := range result.Paths {
			require.Equal(t, 100000.0, v)
		}
		assert.Equal(t, 0.0, result.ProbabilityOfLoss, "100000 is not below 100000")
		assert.Equal(t, 0.0, result.ProbabilityOfDoubling)
	})

	t.Run("negative drift without volatility always loses", func(t *testing.T) {
		sim := New(WithSeed(3))
		cfg := models.SimulationConfig{PathCount: 200, HorizonYears: 2}
		ps := positions(
			models.Position{Value: 30000, Drift: -0.05},
			models.Position{Value: 20000, Drift: 0.01},
		)
		result, err := sim.Run(ps, cfg)
		require.NoError(t, err)

		want := 0.0 + 30000*math.Exp(-0.05*2) + 20000*math.Exp(0.01*2)
		for _, v := range result.Paths {
			require.Equal(t, want, v)
		}
		assert.Equal(t, 100.0, result.ProbabilityOfLoss)
	})
}

func TestRunResultConsistentAcrossHorizons(t *testing.T) {
	ps := positions(
		models.Position{Ticker: "VTI", Value: 60000, Drift: 0.07, Volatility: 0.18},
		models.Position{Ticker: "BND", Value: 30000, Drift: 0.03, Volatility: 0.06},
		models.Position{Ticker: "BTC", Value: 10000, Drift: 0.15, Volatility: 0.8},
	)

	for _, horizon := range models.HorizonChoices {
		cfg := models.SimulationConfig{PathCount: 2000, HorizonYears: horizon}
		result, err := New(WithSeed(11)).Run(ps, cfg)
		require.NoError(t, err)

		assert.Equal(t, ps.TotalInvested(), result.TotalInvested)
		assert.Len(t, result.Paths, cfg.PathCount)

		sorted := SortedCopy(result.Paths)
		assert.True(t, sort.Float64sAreSorted(sorted))
		assert.Equal(t, sorted[0], Percentile(sorted, 0))
		assert.Equal(t, sorted[len(sorted)-1], Percentile(sorted, 1))

		assert.Len(t, result.Buckets, DefaultBucketCount)
		total := 0
		for _, b := range result.Buckets {
			total += b.Count
		}
		assert.Less(t, total, cfg.PathCount, "outcomes above p98 are not bucketed")

		require.NotEmpty(t, result.FanSeries)
		first := result.FanSeries[0]
		assert.Equal(t, models.FanPoint{MonthIndex: 0, P10: result.TotalInvested, P50: result.TotalInvested, P90: result.TotalInvested}, first)
		last := result.FanSeries[len(result.FanSeries)-1]
		assert.Equal(t, Percentile(sorted, 0.5), last.P50)
	}
}

func TestRunMeanConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 100000-path simulation in short mode")
	}

	ps := positions(
		models.Position{Value: 80000, Drift: 0.06, Volatility: 0.2},
		models.Position{Value: 20000, Drift: 0.02, Volatility: 0.05},
	)
	cfg := models.SimulationConfig{PathCount: 100000, HorizonYears: 2}

	result, err := New(WithSeed(2024)).Run(ps, cfg)
	require.NoError(t, err)

	expected := 80000*math.Exp(0.06*2) + 20000*math.Exp(0.02*2)
	assert.InEpsilon(t, expected, result.Mean, 0.05)
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	ps := positions(
		models.Position{Value: 25000, Drift: 0.08, Volatility: 0.3},
		models.Position{Value: 75000, Drift: 0.04, Volatility: 0.1},
	)
	cfg := models.SimulationConfig{PathCount: 3000, HorizonYears: 5}

	first, err := New(WithSeed(99)).Run(ps, cfg)
	require.NoError(t, err)
	second, err := New(WithRand(rand.New(rand.NewSource(99)))).Run(ps, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	other, err := New(WithSeed(100)).Run(ps, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first.Paths, other.Paths)
}

func TestRunDegenerateOutcome(t *testing.T) {
	// exp(-1000) underflows to zero, so every outcome is 0
	ps := positions(models.Position{Value: 1, Drift: -1000})
	result, err := New(WithSeed(1)).Run(ps, models.SimulationConfig{PathCount: 50, HorizonYears: 1})

	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNumericDegeneracy)

	var derr *DegeneracyError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 0.0, derr.Value)
}

func TestRunOverflowIsDegenerate(t *testing.T) {
	// exp(1000) overflows, so every outcome would be +Inf
	ps := positions(
		models.Position{Value: 1000, Drift: 0.05, Volatility: 0.2},
		models.Position{Value: 1, Drift: 1000},
	)
	result, err := New(WithSeed(1)).Run(ps, models.SimulationConfig{PathCount: 25, HorizonYears: 1})

	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrNumericDegeneracy)

	var derr *DegeneracyError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 25, derr.NonFinite)
	assert.Contains(t, err.Error(), "overflowed")
}

func TestCountNonFinite(t *testing.T) {
	assert.Equal(t, 0, countNonFinite([]float64{0, 1, math.MaxFloat64}))
	assert.Equal(t, 2, countNonFinite([]float64{1, math.Inf(1), math.NaN()}))
}

func TestWithBucketCount(t *testing.T) {
	ps := positions(models.Position{Value: 1000, Drift: 0.05, Volatility: 0.2})
	cfg := models.SimulationConfig{PathCount: 100, HorizonYears: 1}

	result, err := New(WithSeed(5), WithBucketCount(10)).Run(ps, cfg)
	require.NoError(t, err)
	assert.Len(t, result.Buckets, 10)

	result, err = New(WithSeed(5), WithBucketCount(0)).Run(ps, cfg)
	require.NoError(t, err)
	assert.Len(t, result.Buckets, DefaultBucketCount)
}
