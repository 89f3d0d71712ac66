// Package montecarlo simulates portfolio outcomes by drawing independent
// Geometric Brownian Motion terminal values for every position.
//
// Positions are treated as uncorrelated: each position draws its own normal
// variate on every path.
package montecarlo

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"homedash/internal/models"
)

// DefaultBucketCount is the number of histogram bars
const DefaultBucketCount = 40

// Simulator runs portfolio simulations. A Simulator owns its random stream
// and is not safe for concurrent use; create one per run (see Runner).
type Simulator struct {
	rng         *rand.Rand
	bucketCount int
	log         zerolog.Logger
}

// Option configures a Simulator
type Option func(*Simulator)

// WithSeed makes the random stream reproducible
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand injects a ready-made random stream
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithBucketCount overrides the histogram bucket count. Values below 1 are ignored.
func WithBucketCount(n int) Option {
	return func(s *Simulator) {
		if n >= 1 {
			s.bucketCount = n
		}
	}
}

// WithLogger sets the logger used for per-run diagnostics
func WithLogger(log zerolog.Logger) Option {
	return func(s *Simulator) {
		s.log = log.With().Str("component", "montecarlo").Logger()
	}
}

// New creates a simulator. Without WithSeed or WithRand the stream is seeded
// from the clock.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		bucketCount: DefaultBucketCount,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// Validate checks positions and config before any sampling happens
func Validate(positions models.PositionSet, cfg models.SimulationConfig) error {
	if positions.Len() == 0 {
		return invalid("positions", "at least one position is required")
	}
	for i := 0; i < positions.Len(); i++ {
		if err := ValidatePosition(positions.At(i)); err != nil {
			return err
		}
	}
	return ValidateConfig(cfg)
}

// ValidatePosition checks a single position's parameters
func ValidatePosition(p models.Position) error {
	name := p.Ticker
	if name == "" {
		name = p.Name
	}
	if !(p.Value > 0) || math.IsInf(p.Value, 1) {
		return invalid("value", "position %q must have a positive value, got %v", name, p.Value)
	}
	if !(p.Volatility >= 0) || math.IsInf(p.Volatility, 1) {
		return invalid("volatility", "position %q must have a non-negative volatility, got %v", name, p.Volatility)
	}
	if math.IsNaN(p.Drift) || math.IsInf(p.Drift, 0) {
		return invalid("drift", "position %q must have a finite drift, got %v", name, p.Drift)
	}
	return nil
}

// ValidateConfig checks the horizon and path count against their bounds
func ValidateConfig(cfg models.SimulationConfig) error {
	if !(cfg.HorizonYears > 0) || math.IsInf(cfg.HorizonYears, 1) {
		return invalid("horizonYears", "must be positive, got %v", cfg.HorizonYears)
	}
	if cfg.HorizonYears > models.MaxHorizonYears {
		return invalid("horizonYears", "must be at most %g, got %v", models.MaxHorizonYears, cfg.HorizonYears)
	}
	if cfg.PathCount < 1 {
		return invalid("pathCount", "must be at least 1, got %d", cfg.PathCount)
	}
	if cfg.PathCount > models.MaxPathCount {
		return invalid("pathCount", "must be at most %d, got %d", models.MaxPathCount, cfg.PathCount)
	}
	return nil
}

// Run simulates cfg.PathCount portfolio outcomes and derives statistics, the
// outcome histogram and the quantile fan. It never returns a partial result.
func (s *Simulator) Run(positions models.PositionSet, cfg models.SimulationConfig) (*models.SimulationResult, error) {
	if err := Validate(positions, cfg); err != nil {
		return nil, err
	}

	start := time.Now()
	totalInvested := positions.TotalInvested()

	paths := s.Aggregate(positions, cfg)
	if n := countNonFinite(paths); n > 0 {
		return nil, &DegeneracyError{NonFinite: n, Value: math.Inf(1)}
	}
	sorted := SortedCopy(paths)
	stats := ComputeStatistics(paths, sorted, totalInvested)

	buckets, err := BuildHistogram(sorted, totalInvested, s.bucketCount)
	if err != nil {
		return nil, err
	}

	fan := BuildFanSeries(sorted, totalInvested, cfg.HorizonYears)

	s.log.Debug().
		Int("positions", positions.Len()).
		Int("paths", cfg.PathCount).
		Float64("horizon_years", cfg.HorizonYears).
		Dur("elapsed", time.Since(start)).
		Msg("Simulation complete")

	return &models.SimulationResult{
		Paths:                 paths,
		Mean:                  stats.Mean,
		P10:                   stats.P10,
		P50:                   stats.P50,
		P90:                   stats.P90,
		ProbabilityOfLoss:     stats.ProbabilityOfLoss,
		ProbabilityOfDoubling: stats.ProbabilityOfDoubling,
		TotalInvested:         totalInvested,
		Buckets:               buckets,
		FanSeries:             fan,
		Config:                cfg,
	}, nil
}

// Aggregate draws cfg.PathCount portfolio terminal values. Each path sums one
// GBM draw per position, in position order. Inputs are assumed valid.
func (s *Simulator) Aggregate(positions models.PositionSet, cfg models.SimulationConfig) []float64 {
	paths := make([]float64, cfg.PathCount)
	for i := range paths {
		total := 0.0
		for j := 0; j < positions.Len(); j++ {
			p := positions.At(j)
			total += SimulateGBM(s.rng, p.Value, p.Drift, p.Volatility, cfg.HorizonYears)
		}
		paths[i] = total
	}
	return paths
}

// countNonFinite returns how many outcomes overflowed to ±Inf or NaN
func countNonFinite(paths []float64) int {
	n := 0
	for _, v := range paths {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			n++
		}
	}
	return n
}
