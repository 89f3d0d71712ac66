package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"homedash/internal/logger"
	"homedash/internal/models"
	"homedash/internal/services/metrics"
	"homedash/internal/services/montecarlo"
)

type runCmd struct {
	positions string
	dataDir   string
	file      string
	horizon   float64
	paths     int
	seed      int64
	buckets   int
	histogram bool
	jsonOut   bool
	verbose   bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "simulate a portfolio and print its outcome distribution" }
func (*runCmd) Usage() string {
	return `simulate run (-positions <file> | -data <dir>) [-horizon <years>] [-paths <n>] [-seed <n>]

  Draws terminal portfolio values under independent Geometric Brownian
  Motion and reports the mean, P10/P50/P90 and the probabilities of loss
  and of doubling. -positions takes a JSON array of positions or a saved
  portfolio document; -data reads the server's stored portfolio and asks
  for the password when storage is encrypted.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.positions, "positions", "", "JSON file with the positions to simulate")
	f.StringVar(&c.dataDir, "data", "", "Server data directory to read the stored portfolio from")
	f.StringVar(&c.file, "file", "settings/portfolio.json", "Portfolio file relative to -data")
	f.Float64Var(&c.horizon, "horizon", 0, "Horizon in years (defaults to the portfolio setting)")
	f.IntVar(&c.paths, "paths", 0, "Number of simulated paths (defaults to the portfolio setting)")
	f.Int64Var(&c.seed, "seed", 0, "Random seed; 0 seeds from the clock")
	f.IntVar(&c.buckets, "buckets", montecarlo.DefaultBucketCount, "Histogram bucket count")
	f.BoolVar(&c.histogram, "histogram", false, "Draw the outcome histogram")
	f.BoolVar(&c.jsonOut, "json", false, "Print the result as JSON")
	f.BoolVar(&c.verbose, "v", false, "Verbose logging")
}

func (c *runCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	positions, cfg, err := c.load(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	cfg = c.apply(cfg)

	result, err := c.simulate(positions, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.WithoutPaths()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	summary := metrics.New().Summarize(positions, cfg.HorizonYears)
	if err := writeReport(os.Stdout, result, summary, c.histogram); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *runCmd) load(log zerolog.Logger) (models.PositionSet, models.SimulationConfig, error) {
	switch {
	case c.positions != "" && c.dataDir != "":
		return models.PositionSet{}, models.SimulationConfig{}, fmt.Errorf("use either -positions or -data, not both")
	case c.positions != "":
		return loadPositionsFile(c.positions)
	case c.dataDir != "":
		return loadStoredPortfolio(c.dataDir, c.file, log)
	default:
		return models.PositionSet{}, models.SimulationConfig{}, fmt.Errorf("one of -positions or -data is required")
	}
}

// apply overrides the loaded settings with any flags that were given
func (c *runCmd) apply(cfg models.SimulationConfig) models.SimulationConfig {
	if c.horizon != 0 {
		cfg.HorizonYears = c.horizon
	}
	if c.paths != 0 {
		cfg.PathCount = c.paths
	}
	return cfg
}

func (c *runCmd) simulate(positions models.PositionSet, cfg models.SimulationConfig, log zerolog.Logger) (*models.SimulationResult, error) {
	seed := c.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Debug().Int64("seed", seed).Int("paths", cfg.PathCount).Float64("horizon_years", cfg.HorizonYears).Msg("Running simulation")

	sim := montecarlo.New(
		montecarlo.WithSeed(seed),
		montecarlo.WithBucketCount(c.buckets),
		montecarlo.WithLogger(log),
	)
	return sim.Run(positions, cfg)
}

type horizonsCmd struct{}

func (*horizonsCmd) Name() string             { return "horizons" }
func (*horizonsCmd) Synopsis() string         { return "list the horizons offered by the dashboard" }
func (*horizonsCmd) Usage() string            { return "simulate horizons\n" }
func (*horizonsCmd) SetFlags(_ *flag.FlagSet) {}

func (*horizonsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	def := models.DefaultSimulationConfig()
	for _, h := range models.HorizonChoices {
		months := int(h*12 + 0.5)
		marker := ""
		if h == def.HorizonYears {
			marker = " (default)"
		}
		fmt.Printf("%5g years  %3d months%s\n", h, months, marker)
	}
	return subcommands.ExitSuccess
}
