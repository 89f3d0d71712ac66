package models

const (
	// DefaultPathCount is the number of simulated portfolio outcomes per run
	DefaultPathCount = 5000

	// DefaultHorizonYears is the horizon used when none is chosen
	DefaultHorizonYears = 1.0

	// MaxPathCount bounds the outcome array a single run allocates
	MaxPathCount = 1_000_000

	// MaxHorizonYears bounds the horizon so the monthly fan stays small
	MaxHorizonYears = 100.0
)

// HorizonChoices are the horizons offered on the risk page (in years)
var HorizonChoices = []float64{0.25, 0.5, 1, 2, 5}

// IsHorizonChoice reports whether h is one of HorizonChoices
func IsHorizonChoice(h float64) bool {
	for _, c := range HorizonChoices {
		if h == c {
			return true
		}
	}
	return false
}

// SimulationConfig controls a single simulation run
type SimulationConfig struct {
	PathCount    int     `json:"path_count"`
	HorizonYears float64 `json:"horizon_years"`
}

// DefaultSimulationConfig returns the default run settings
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		PathCount:    DefaultPathCount,
		HorizonYears: DefaultHorizonYears,
	}
}

// Zone classifies a histogram bucket relative to invested capital
type Zone string

const (
	ZoneLoss     Zone = "loss"     // midpoint below invested capital
	ZoneModerate Zone = "moderate" // up to 1.5x invested capital
	ZoneGain     Zone = "gain"     // 1.5x invested capital and above
)

// BucketDatum is one bar of the outcome distribution chart
type BucketDatum struct {
	Label    string  `json:"label"` // e.g. "$120k"
	Midpoint float64 `json:"midpoint"`
	Count    int     `json:"count"`
	Zone     Zone    `json:"zone"`
}

// FanPoint is one month of the quantile fan chart
type FanPoint struct {
	MonthIndex int     `json:"month_index"`
	P10        float64 `json:"p10"`
	P50        float64 `json:"p50"`
	P90        float64 `json:"p90"`
}

// SimulationResult contains the outcome distribution and everything derived from it
type SimulationResult struct {
	Paths                 []float64     `json:"paths,omitempty"` // Terminal portfolio value per path, in generation order
	Mean                  float64       `json:"mean"`
	P10                   float64       `json:"p10"`
	P50                   float64       `json:"p50"`
	P90                   float64       `json:"p90"`
	ProbabilityOfLoss     float64       `json:"probability_of_loss"`     // % of paths ending below invested capital
	ProbabilityOfDoubling float64       `json:"probability_of_doubling"` // % of paths ending at 2x or more
	TotalInvested         float64       `json:"total_invested"`
	Buckets               []BucketDatum `json:"buckets"`
	FanSeries             []FanPoint    `json:"fan_series"`

	Config SimulationConfig `json:"config"`
}

// WithoutPaths returns a shallow copy with the raw path array dropped
func (r *SimulationResult) WithoutPaths() *SimulationResult {
	cp := *r
	cp.Paths = nil
	return &cp
}

// AccountAllocation is the share of invested capital held in one account
type AccountAllocation struct {
	Account string  `json:"account"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// PortfolioSummary contains deterministic figures computed straight from positions
type PortfolioSummary struct {
	PositionCount      int                 `json:"position_count"`
	TotalInvested      float64             `json:"total_invested"`
	WeightedDrift      float64             `json:"weighted_drift"`
	WeightedVolatility float64             `json:"weighted_volatility"`
	ExpectedTerminal   float64             `json:"expected_terminal"` // Σ value·exp(drift·horizon)
	HorizonYears       float64             `json:"horizon_years"`
	Accounts           []AccountAllocation `json:"accounts"`
}

// RiskPageData is the data returned by the risk overview endpoint
type RiskPageData struct {
	Portfolio *Portfolio        `json:"portfolio"`
	Summary   *PortfolioSummary `json:"summary"`
	Result    *SimulationResult `json:"result,omitempty"`
	RunID     uint64            `json:"run_id,omitempty"`
	Error     string            `json:"error,omitempty"` // Set when the latest run failed
}
