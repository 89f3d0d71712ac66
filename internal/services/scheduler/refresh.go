package scheduler

import (
	"github.com/rs/zerolog"

	"homedash/internal/models"
	"homedash/internal/services/montecarlo"
)

// PortfolioSource provides the positions and settings to re-simulate
type PortfolioSource interface {
	Snapshot() (models.PositionSet, models.SimulationConfig, error)
}

// Submitter starts simulation runs
type Submitter interface {
	Submit(positions models.PositionSet, cfg models.SimulationConfig) (uint64, <-chan montecarlo.Outcome)
}

// RefreshJob re-runs the stored portfolio so the committed result tracks
// the saved positions even when nobody is editing them
type RefreshJob struct {
	source PortfolioSource
	runner Submitter
	log    zerolog.Logger
}

// NewRefreshJob creates the portfolio refresh job
func NewRefreshJob(source PortfolioSource, runner Submitter, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		source: source,
		runner: runner,
		log:    log.With().Str("job", "portfolio_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "portfolio_refresh"
}

// Run submits one run and waits for it. An empty portfolio is skipped and a
// run superseded by a newer one is not a failure.
func (j *RefreshJob) Run() error {
	positions, cfg, err := j.source.Snapshot()
	if err != nil {
		return err
	}
	if positions.Len() == 0 {
		j.log.Debug().Msg("No positions; skipping refresh")
		return nil
	}

	runID, ch := j.runner.Submit(positions, cfg)
	outcome := <-ch
	if outcome.Stale {
		j.log.Debug().Uint64("run_id", runID).Msg("Refresh superseded by newer run")
		return nil
	}
	return outcome.Err
}
