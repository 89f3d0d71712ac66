package models

// Position is a single holding as entered by the user
type Position struct {
	ID         string  `json:"id"`
	Ticker     string  `json:"ticker"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`      // Starting capital
	Volatility float64 `json:"volatility"` // Annualized, e.g. 0.18 for 18%
	Drift      float64 `json:"drift"`      // Annualized expected log-return
	Account    string  `json:"account"`    // e.g. "ISA", "401k", "Brokerage"
}

// PositionSet is a read-only snapshot of positions handed to a simulation run.
// The zero value is an empty set.
type PositionSet struct {
	positions []Position
}

// NewPositionSet copies positions into a new snapshot so later edits to the
// caller's slice do not leak into a running simulation.
func NewPositionSet(positions []Position) PositionSet {
	cp := make([]Position, len(positions))
	copy(cp, positions)
	return PositionSet{positions: cp}
}

// Len returns the number of positions
func (ps PositionSet) Len() int {
	return len(ps.positions)
}

// At returns the i-th position
func (ps PositionSet) At(i int) Position {
	return ps.positions[i]
}

// Positions returns a copy of the positions in their original order
func (ps PositionSet) Positions() []Position {
	cp := make([]Position, len(ps.positions))
	copy(cp, ps.positions)
	return cp
}

// TotalInvested returns the sum of starting values
func (ps PositionSet) TotalInvested() float64 {
	total := 0.0
	for _, p := range ps.positions {
		total += p.Value
	}
	return total
}

// Portfolio is the persisted document behind the risk page
type Portfolio struct {
	Positions []Position `json:"positions"`

	// Recently removed (for restore functionality)
	RemovedPositions []Position `json:"removed_positions,omitempty"`

	// Last simulation settings chosen by the user
	HorizonYears float64 `json:"horizon_years"`
	PathCount    int     `json:"path_count"`
}

// DefaultPortfolio returns an empty portfolio with default simulation settings
func DefaultPortfolio() *Portfolio {
	cfg := DefaultSimulationConfig()
	return &Portfolio{
		Positions:        []Position{},
		RemovedPositions: []Position{},
		HorizonYears:     cfg.HorizonYears,
		PathCount:        cfg.PathCount,
	}
}

// Snapshot returns the active positions as an immutable set
func (p *Portfolio) Snapshot() PositionSet {
	return NewPositionSet(p.Positions)
}

// SimulationConfig returns the stored simulation settings, falling back to
// defaults for unset fields
func (p *Portfolio) SimulationConfig() SimulationConfig {
	cfg := DefaultSimulationConfig()
	if p.HorizonYears > 0 {
		cfg.HorizonYears = p.HorizonYears
	}
	if p.PathCount > 0 {
		cfg.PathCount = p.PathCount
	}
	return cfg
}

// FindPosition returns the active position with the given ID
func (p *Portfolio) FindPosition(id string) (Position, bool) {
	for _, pos := range p.Positions {
		if pos.ID == id {
			return pos, true
		}
	}
	return Position{}, false
}
