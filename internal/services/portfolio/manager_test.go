package portfolio

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/internal/models"
	"homedash/internal/services/montecarlo"
	"homedash/internal/services/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Storage) {
	t.Helper()
	store, err := storage.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defaults := models.SimulationConfig{PathCount: 2000, HorizonYears: 2}
	return NewManager(store, "settings/portfolio.json", defaults, zerolog.Nop()), store
}

func TestLoadDefaults(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.Load()
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
	assert.NotNil(t, p.RemovedPositions)
	assert.Equal(t, 2.0, p.HorizonYears)
	assert.Equal(t, 2000, p.PathCount)
}

func TestAddPosition(t *testing.T) {
	m, store := newTestManager(t)

	p, err := m.AddPosition(models.Position{Ticker: " vti ", Name: "Total Market", Value: 10000, Volatility: 0.18, Drift: 0.07, Account: "ISA"})
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)

	pos := p.Positions[0]
	_, err = uuid.Parse(pos.ID)
	assert.NoError(t, err)
	assert.Equal(t, "VTI", pos.Ticker)
	assert.True(t, store.Exists("settings/portfolio.json"))

	// persisted
	reloaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, p.Positions, reloaded.Positions)
}

func TestAddPositionRejectsInvalid(t *testing.T) {
	m, store := newTestManager(t)

	_, err := m.AddPosition(models.Position{Ticker: "BAD", Value: 0})
	assert.ErrorIs(t, err, montecarlo.ErrInputValidation)

	_, err = m.AddPosition(models.Position{Ticker: "BAD", Value: 10, Volatility: -1})
	assert.ErrorIs(t, err, montecarlo.ErrInputValidation)

	assert.False(t, store.Exists("settings/portfolio.json"))
}

func TestUpdateAndAdjust(t *testing.T) {
	m, _ := newTestManager(t)
	p, err := m.AddPosition(models.Position{Ticker: "BND", Value: 5000, Volatility: 0.05, Drift: 0.03})
	require.NoError(t, err)
	id := p.Positions[0].ID

	p, err = m.UpdatePosition(id, models.Position{Ticker: "BND", Value: 6000, Volatility: 0.06, Drift: 0.02, Account: "401k"})
	require.NoError(t, err)
	assert.Equal(t, id, p.Positions[0].ID)
	assert.Equal(t, 6000.0, p.Positions[0].Value)
	assert.Equal(t, "401k", p.Positions[0].Account)

	p, err = m.AdjustVolatility(id, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.Positions[0].Volatility)
	assert.Equal(t, 6000.0, p.Positions[0].Value)

	_, err = m.AdjustVolatility(id, -0.1)
	assert.ErrorIs(t, err, montecarlo.ErrInputValidation)

	_, err = m.UpdatePosition("missing", models.Position{Value: 1})
	assert.ErrorIs(t, err, ErrPositionNotFound)
	_, err = m.AdjustVolatility("missing", 0.1)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestRemoveAndRestore(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.AddPosition(models.Position{Ticker: "A", Value: 1})
	require.NoError(t, err)
	p, err := m.AddPosition(models.Position{Ticker: "B", Value: 2})
	require.NoError(t, err)
	idA := p.Positions[0].ID

	p, err = m.RemovePosition(idA)
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, "B", p.Positions[0].Ticker)
	require.Len(t, p.RemovedPositions, 1)
	assert.Equal(t, idA, p.RemovedPositions[0].ID)

	_, err = m.RemovePosition(idA)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	p, err = m.RestorePosition(idA)
	require.NoError(t, err)
	assert.Len(t, p.Positions, 2)
	assert.Empty(t, p.RemovedPositions)

	_, err = m.RestorePosition(idA)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestSnapshotIsIsolated(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.AddPosition(models.Position{Ticker: "VTI", Value: 100, Drift: 0.05})
	require.NoError(t, err)

	set, cfg, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 2000, cfg.PathCount)

	// later edits do not reach an existing snapshot
	_, err = m.AddPosition(models.Position{Ticker: "BND", Value: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 100.0, set.TotalInvested())
}

func TestSetSimulationConfig(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.SetSimulationConfig(models.SimulationConfig{PathCount: 750, HorizonYears: 5})
	require.NoError(t, err)
	assert.Equal(t, 750, p.PathCount)
	assert.Equal(t, 5.0, p.HorizonYears)

	_, cfg, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, models.SimulationConfig{PathCount: 750, HorizonYears: 5}, cfg)

	_, err = m.SetSimulationConfig(models.SimulationConfig{PathCount: 0, HorizonYears: 1})
	assert.ErrorIs(t, err, montecarlo.ErrInputValidation)
}

func TestEncryptedPortfolio(t *testing.T) {
	m, store := newTestManager(t)
	_, err := m.AddPosition(models.Position{Ticker: "VTI", Value: 100})
	require.NoError(t, err)

	require.NoError(t, store.EnableEncryption("testpassword123"))
	store.Lock()

	_, err = m.Load()
	assert.ErrorIs(t, err, storage.ErrLocked)

	require.NoError(t, store.Unlock("testpassword123"))
	p, err := m.Load()
	require.NoError(t, err)
	assert.Len(t, p.Positions, 1)
}

func TestConcurrentAdds(t *testing.T) {
	m, _ := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AddPosition(models.Position{Ticker: "X", Value: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := m.Load()
	require.NoError(t, err)
	assert.Len(t, p.Positions, 20)
}
