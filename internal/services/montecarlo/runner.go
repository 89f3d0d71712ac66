package montecarlo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"homedash/internal/models"
)

// Outcome is delivered once per submitted run
type Outcome struct {
	RunID  uint64
	Result *models.SimulationResult
	Err    error
	Stale  bool // a newer run was submitted before this one finished; nothing was committed
}

// Commit is the latest run whose outcome was accepted into shared state.
// Exactly one of Result and Err is set.
type Commit struct {
	RunID       uint64                   `json:"run_id"`
	Result      *models.SimulationResult `json:"result,omitempty"`
	Err         error                    `json:"-"`
	CommittedAt time.Time                `json:"committed_at"`
}

// Runner executes simulations off the caller's goroutine and keeps the
// outcome of the most recently submitted run. Every Submit takes a new,
// strictly increasing run id; an outcome is committed only while its id is
// still the newest, so a slow earlier run can never overwrite a later one.
// In-flight runs are abandoned, not interrupted.
type Runner struct {
	latest      atomic.Uint64
	seed        func(runID uint64) int64
	bucketCount int
	log         zerolog.Logger

	mu        sync.RWMutex
	committed *Commit
	subs      map[int]chan Commit
	nextSub   int
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithSeedFunc controls the seed each run's random stream starts from
func WithSeedFunc(f func(runID uint64) int64) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.seed = f
		}
	}
}

// WithRunnerBucketCount sets the histogram bucket count used by every run
func WithRunnerBucketCount(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.bucketCount = n
		}
	}
}

// NewRunner creates a runner with clock-based seeds
func NewRunner(log zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		seed: func(runID uint64) int64 {
			return time.Now().UnixNano() + int64(runID)
		},
		bucketCount: DefaultBucketCount,
		log:         log.With().Str("component", "runner").Logger(),
		subs:        make(map[int]chan Commit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit starts a run in a new goroutine and returns its id together with a
// channel that receives exactly one Outcome. The positions snapshot and config
// are owned by the run; runs never share mutable state.
func (r *Runner) Submit(positions models.PositionSet, cfg models.SimulationConfig) (uint64, <-chan Outcome) {
	runID := r.latest.Add(1)
	out := make(chan Outcome, 1)

	go func() {
		defer close(out)

		result, err := r.execute(runID, positions, cfg)

		committed := r.commit(runID, result, err)
		if !committed {
			r.log.Debug().
				Uint64("run_id", runID).
				Uint64("latest", r.latest.Load()).
				Msg("Discarding stale simulation run")
		}

		out <- Outcome{
			RunID:  runID,
			Result: result,
			Err:    err,
			Stale:  !committed,
		}
	}()

	return runID, out
}

// execute runs one simulation. A panic is returned as the run's error since
// nothing above this goroutine could recover it.
func (r *Runner) execute(runID uint64, positions models.PositionSet, cfg models.SimulationConfig) (result *models.SimulationResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Uint64("run_id", runID).Interface("panic", rec).Msg("Simulation panicked")
			result, err = nil, fmt.Errorf("simulation run %d failed: %v", runID, rec)
		}
	}()

	sim := New(
		WithSeed(r.seed(runID)),
		WithBucketCount(r.bucketCount),
		WithLogger(r.log),
	)
	return sim.Run(positions, cfg)
}

// Run submits a run and waits for its outcome or for ctx to end. When ctx
// ends first the run keeps going in the background and may still commit.
func (r *Runner) Run(ctx context.Context, positions models.PositionSet, cfg models.SimulationConfig) (Outcome, error) {
	_, ch := r.Submit(positions, cfg)
	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// LatestRunID returns the id of the most recently submitted run
func (r *Runner) LatestRunID() uint64 {
	return r.latest.Load()
}

// Latest returns the committed outcome, if any run has committed yet
func (r *Runner) Latest() (Commit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.committed == nil {
		return Commit{}, false
	}
	return *r.committed, true
}

// Subscribe returns a channel that receives every future commit. Slow
// subscribers miss commits rather than block the runner. The returned
// function unsubscribes and closes the channel.
func (r *Runner) Subscribe(buffer int) (<-chan Commit, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Commit, buffer)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// commit stores the outcome if runID is still the newest submitted run
func (r *Runner) commit(runID uint64, result *models.SimulationResult, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if runID != r.latest.Load() {
		return false
	}
	if r.committed != nil && r.committed.RunID >= runID {
		return false
	}

	c := Commit{
		RunID:       runID,
		Result:      result,
		Err:         err,
		CommittedAt: time.Now(),
	}
	r.committed = &c

	for _, ch := range r.subs {
		select {
		case ch <- c:
		default:
		}
	}

	if err != nil {
		r.log.Warn().Err(err).Uint64("run_id", runID).Msg("Simulation failed")
	} else {
		r.log.Info().
			Uint64("run_id", runID).
			Float64("p50", result.P50).
			Float64("probability_of_loss", result.ProbabilityOfLoss).
			Msg("Simulation committed")
	}
	return true
}
