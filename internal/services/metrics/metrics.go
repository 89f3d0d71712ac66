package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"homedash/internal/models"
)

// UnassignedAccount labels positions entered without an account
const UnassignedAccount = "Unassigned"

// Service provides metric calculation functionality
type Service struct{}

// New creates a new metrics service
func New() *Service {
	return &Service{}
}

// Summarize computes the deterministic portfolio figures shown next to the
// simulation: totals, value-weighted parameters and per-account allocation
func (s *Service) Summarize(ps models.PositionSet, horizonYears float64) *models.PortfolioSummary {
	summary := &models.PortfolioSummary{
		PositionCount: ps.Len(),
		HorizonYears:  horizonYears,
		Accounts:      []models.AccountAllocation{},
	}
	if ps.Len() == 0 {
		return summary
	}

	values := make([]float64, ps.Len())
	drifts := make([]float64, ps.Len())
	vols := make([]float64, ps.Len())
	expected := make([]float64, ps.Len())

	byAccount := make(map[string]*models.AccountAllocation)
	for i := 0; i < ps.Len(); i++ {
		p := ps.At(i)
		values[i] = p.Value
		drifts[i] = p.Drift
		vols[i] = p.Volatility
		expected[i] = p.Value * math.Exp(p.Drift*horizonYears)

		account := p.Account
		if account == "" {
			account = UnassignedAccount
		}
		alloc, ok := byAccount[account]
		if !ok {
			alloc = &models.AccountAllocation{Account: account}
			byAccount[account] = alloc
		}
		alloc.Value += p.Value
		alloc.Count++
	}

	total := floats.Sum(values)
	summary.TotalInvested = total
	summary.ExpectedTerminal = floats.Sum(expected)
	if total > 0 {
		summary.WeightedDrift = stat.Mean(drifts, values)
		summary.WeightedVolatility = stat.Mean(vols, values)
	}

	for _, alloc := range byAccount {
		if total > 0 {
			alloc.Percent = alloc.Value * 100 / total
		}
		summary.Accounts = append(summary.Accounts, *alloc)
	}

	// Largest account first
	sort.Slice(summary.Accounts, func(i, j int) bool {
		a, b := summary.Accounts[i], summary.Accounts[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Account < b.Account
	})

	return summary
}

// PercentChange calculates the percentage change between two values
func (s *Service) PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return ((current - previous) / math.Abs(previous)) * 100
}
