package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"homedash/internal/models"
	"homedash/internal/services/portfolio"
	"homedash/internal/services/storage"
)

// loadPositionsFile reads a JSON file holding either a bare array of
// positions or a full portfolio document
func loadPositionsFile(name string) (models.PositionSet, models.SimulationConfig, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return models.PositionSet{}, models.SimulationConfig{}, err
	}

	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var positions []models.Position
		if err := json.Unmarshal(data, &positions); err != nil {
			return models.PositionSet{}, models.SimulationConfig{}, fmt.Errorf("parse %s: %w", name, err)
		}
		return models.NewPositionSet(positions), models.DefaultSimulationConfig(), nil
	}

	var p models.Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return models.PositionSet{}, models.SimulationConfig{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return p.Snapshot(), p.SimulationConfig(), nil
}

// loadStoredPortfolio reads the portfolio the server keeps in dataDir,
// unlocking encrypted storage first
func loadStoredPortfolio(dataDir, file string, log zerolog.Logger) (models.PositionSet, models.SimulationConfig, error) {
	store, err := storage.New(dataDir, log)
	if err != nil {
		return models.PositionSet{}, models.SimulationConfig{}, err
	}
	defer store.Lock()

	if store.IsEncrypted() {
		password, err := readPassword()
		if err != nil {
			return models.PositionSet{}, models.SimulationConfig{}, err
		}
		if err := store.Unlock(password); err != nil {
			return models.PositionSet{}, models.SimulationConfig{}, err
		}
	}

	pm := portfolio.NewManager(store, file, models.DefaultSimulationConfig(), log)
	return pm.Snapshot()
}

// readPassword takes DASH_PASSWORD when set, otherwise prompts on the terminal
func readPassword() (string, error) {
	if password := os.Getenv("DASH_PASSWORD"); password != "" {
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: set DASH_PASSWORD or run from a terminal", storage.ErrLocked)
	}

	fmt.Fprint(os.Stderr, "Storage password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}
