package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/internal/models"
	"homedash/internal/services/portfolio"
	"homedash/internal/services/storage"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(name, []byte(content), 0600))
	return name
}

func TestLoadPositionsFileArray(t *testing.T) {
	name := writeFile(t, `
	[
		{"ticker": "VTI", "value": 60000, "volatility": 0.18, "drift": 0.07},
		{"ticker": "BND", "value": 40000, "volatility": 0.05, "drift": 0.03}
	]`)

	ps, cfg, err := loadPositionsFile(name)
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, 100000.0, ps.TotalInvested())
	assert.Equal(t, models.DefaultSimulationConfig(), cfg)
}

func TestLoadPositionsFilePortfolio(t *testing.T) {
	name := writeFile(t, `{
		"positions": [{"ticker": "VTI", "value": 1000, "volatility": 0.2, "drift": 0.05}],
		"removed_positions": [{"ticker": "OLD", "value": 5}],
		"horizon_years": 5,
		"path_count": 250
	}`)

	ps, cfg, err := loadPositionsFile(name)
	require.NoError(t, err)
	assert.Equal(t, 1, ps.Len())
	assert.Equal(t, "VTI", ps.At(0).Ticker)
	assert.Equal(t, models.SimulationConfig{PathCount: 250, HorizonYears: 5}, cfg)
}

func TestLoadPositionsFileErrors(t *testing.T) {
	_, _, err := loadPositionsFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, _, err = loadPositionsFile(writeFile(t, `[{"ticker": `))
	assert.Error(t, err)
}

func TestLoadStoredPortfolioEncrypted(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir, zerolog.Nop())
	require.NoError(t, err)

	pm := portfolio.NewManager(store, "settings/portfolio.json", models.DefaultSimulationConfig(), zerolog.Nop())
	_, err = pm.AddPosition(models.Position{Ticker: "VTI", Value: 5000, Volatility: 0.2, Drift: 0.06})
	require.NoError(t, err)
	require.NoError(t, store.EnableEncryption("testpassword123"))

	t.Setenv("DASH_PASSWORD", "testpassword123")
	ps, cfg, err := loadStoredPortfolio(dir, "settings/portfolio.json", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, ps.Len())
	assert.Equal(t, 5000.0, ps.TotalInvested())
	assert.Equal(t, models.DefaultPathCount, cfg.PathCount)

	t.Setenv("DASH_PASSWORD", "wrongpassword")
	_, _, err = loadStoredPortfolio(dir, "settings/portfolio.json", zerolog.Nop())
	assert.ErrorIs(t, err, storage.ErrIncorrectPassword)
}

func TestRunCmdLoadRequiresOneSource(t *testing.T) {
	_, _, err := (&runCmd{}).load(zerolog.Nop())
	assert.Error(t, err)

	_, _, err = (&runCmd{positions: "a.json", dataDir: "data"}).load(zerolog.Nop())
	assert.Error(t, err)
}

func TestRunCmdApply(t *testing.T) {
	base := models.SimulationConfig{PathCount: 5000, HorizonYears: 1}

	assert.Equal(t, base, (&runCmd{}).apply(base))
	assert.Equal(t, models.SimulationConfig{PathCount: 100, HorizonYears: 2},
		(&runCmd{horizon: 2, paths: 100}).apply(base))
}

func TestRunCmdSimulateIsSeeded(t *testing.T) {
	ps := models.NewPositionSet([]models.Position{{Ticker: "VTI", Value: 1000, Volatility: 0.2, Drift: 0.05}})
	cfg := models.SimulationConfig{PathCount: 200, HorizonYears: 1}
	c := &runCmd{seed: 11, buckets: 10}

	a, err := c.simulate(ps, cfg, zerolog.Nop())
	require.NoError(t, err)
	b, err := c.simulate(ps, cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, a.Paths, b.Paths)
	assert.Len(t, a.Buckets, 10)

	_, err = c.simulate(ps, models.SimulationConfig{PathCount: 0, HorizonYears: 1}, zerolog.Nop())
	assert.Error(t, err)
}
