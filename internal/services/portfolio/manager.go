package portfolio

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"homedash/internal/models"
	"homedash/internal/services/montecarlo"
	"homedash/internal/services/storage"
)

// ErrPositionNotFound is returned when no position has the requested ID
var ErrPositionNotFound = errors.New("position not found")

// Manager handles persistence of the user's positions. Every mutation is a
// load-modify-save under one lock, so concurrent edits never interleave.
type Manager struct {
	store    *storage.Storage
	file     string
	defaults models.SimulationConfig
	mu       sync.RWMutex
	log      zerolog.Logger
}

// NewManager creates a manager for the portfolio document at file, relative
// to the storage base directory
func NewManager(store *storage.Storage, file string, defaults models.SimulationConfig, log zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		file:     file,
		defaults: defaults,
		log:      log.With().Str("component", "portfolio").Logger(),
	}
}

// Load reads the portfolio, returning an empty one if none was saved yet
func (m *Manager) Load() (*models.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.loadInternal()
}

// loadInternal reads the portfolio without acquiring lock (caller must hold lock)
func (m *Manager) loadInternal() (*models.Portfolio, error) {
	p := models.DefaultPortfolio()
	p.HorizonYears = m.defaults.HorizonYears
	p.PathCount = m.defaults.PathCount

	if err := m.store.ReadJSON(m.file, p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	// Ensure slices are initialized
	if p.Positions == nil {
		p.Positions = []models.Position{}
	}
	if p.RemovedPositions == nil {
		p.RemovedPositions = []models.Position{}
	}

	return p, nil
}

// Save writes the portfolio
func (m *Manager) Save(p *models.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saveInternal(p)
}

// saveInternal writes without acquiring lock (caller must hold lock)
func (m *Manager) saveInternal(p *models.Portfolio) error {
	if err := m.store.WriteJSON(m.file, p); err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	return nil
}

// mutate applies fn to the stored portfolio and saves the result
func (m *Manager) mutate(fn func(p *models.Portfolio) error) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.loadInternal()
	if err != nil {
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	if err := m.saveInternal(p); err != nil {
		return nil, err
	}

	return p, nil
}

// Snapshot returns the active positions and saved simulation settings
func (m *Manager) Snapshot() (models.PositionSet, models.SimulationConfig, error) {
	p, err := m.Load()
	if err != nil {
		return models.PositionSet{}, models.SimulationConfig{}, err
	}
	return p.Snapshot(), p.SimulationConfig(), nil
}

// AddPosition validates and appends a position, assigning a new ID
func (m *Manager) AddPosition(pos models.Position) (*models.Portfolio, error) {
	pos = normalize(pos)
	if err := montecarlo.ValidatePosition(pos); err != nil {
		return nil, err
	}
	pos.ID = uuid.New().String()

	p, err := m.mutate(func(p *models.Portfolio) error {
		p.Positions = append(p.Positions, pos)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("id", pos.ID).Str("ticker", pos.Ticker).Float64("value", pos.Value).Msg("Position added")
	return p, nil
}

// UpdatePosition replaces a position's fields, keeping its ID
func (m *Manager) UpdatePosition(id string, pos models.Position) (*models.Portfolio, error) {
	pos = normalize(pos)
	if err := montecarlo.ValidatePosition(pos); err != nil {
		return nil, err
	}
	pos.ID = id

	return m.mutate(func(p *models.Portfolio) error {
		i := indexOf(p.Positions, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrPositionNotFound, id)
		}
		p.Positions[i] = pos
		return nil
	})
}

// AdjustVolatility changes only the volatility of one position
func (m *Manager) AdjustVolatility(id string, volatility float64) (*models.Portfolio, error) {
	return m.mutate(func(p *models.Portfolio) error {
		i := indexOf(p.Positions, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrPositionNotFound, id)
		}
		updated := p.Positions[i]
		updated.Volatility = volatility
		if err := montecarlo.ValidatePosition(updated); err != nil {
			return err
		}
		p.Positions[i] = updated
		return nil
	})
}

// RemovePosition moves a position to the removed list by ID
func (m *Manager) RemovePosition(id string) (*models.Portfolio, error) {
	return m.mutate(func(p *models.Portfolio) error {
		i := indexOf(p.Positions, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrPositionNotFound, id)
		}
		p.RemovedPositions = append(p.RemovedPositions, p.Positions[i])
		p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
		return nil
	})
}

// RestorePosition moves a position back from the removed list
func (m *Manager) RestorePosition(id string) (*models.Portfolio, error) {
	return m.mutate(func(p *models.Portfolio) error {
		i := indexOf(p.RemovedPositions, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrPositionNotFound, id)
		}
		p.Positions = append(p.Positions, p.RemovedPositions[i])
		p.RemovedPositions = append(p.RemovedPositions[:i], p.RemovedPositions[i+1:]...)
		return nil
	})
}

// SetSimulationConfig stores the user's last chosen horizon and path count
func (m *Manager) SetSimulationConfig(cfg models.SimulationConfig) (*models.Portfolio, error) {
	if err := montecarlo.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return m.mutate(func(p *models.Portfolio) error {
		p.HorizonYears = cfg.HorizonYears
		p.PathCount = cfg.PathCount
		return nil
	})
}

func indexOf(positions []models.Position, id string) int {
	for i := range positions {
		if positions[i].ID == id {
			return i
		}
	}
	return -1
}

func normalize(pos models.Position) models.Position {
	pos.Ticker = strings.ToUpper(strings.TrimSpace(pos.Ticker))
	pos.Name = strings.TrimSpace(pos.Name)
	pos.Account = strings.TrimSpace(pos.Account)
	return pos
}
