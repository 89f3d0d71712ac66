package system

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"homedash/internal/handlers"
	httputil "homedash/internal/http"
	"homedash/internal/services/montecarlo"
	"homedash/internal/services/storage"
	"homedash/internal/version"
)

var (
	store  *storage.Storage
	runner *montecarlo.Runner
	logger = zerolog.Nop()
)

// Initialize sets up the handler dependencies
func Initialize(s *storage.Storage, rn *montecarlo.Runner, log zerolog.Logger) {
	store = s
	runner = rn
	logger = log.With().Str("component", "system_handlers").Logger()
}

// RegisterRoutes registers health, version and storage routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/health", HandleHealth)
	r.Get("/api/version", HandleVersion)
	r.Get("/storage/status", handleStorageStatus)
	r.Post("/storage/encrypt", handleEncrypt)
	r.Post("/storage/decrypt", handleDecrypt)
	r.Post("/storage/unlock", handleUnlock)
	r.Post("/storage/lock", handleLock)
}

type storageStatus struct {
	Encrypted bool `json:"encrypted"`
	Unlocked  bool `json:"unlocked"`
}

type healthResponse struct {
	Status        string        `json:"status"`
	Version       string        `json:"version"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryPercent float64       `json:"memory_percent"`
	LatestRunID   uint64        `json:"latest_run_id"`
	Storage       storageStatus `json:"storage"`
}

// HandleHealth reports liveness with host load and storage state
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := systemStats()

	resp := healthResponse{
		Status:        "ok",
		Version:       version.Get().Version,
		UptimeSeconds: version.Uptime().Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		LatestRunID:   runner.LatestRunID(),
		Storage:       currentStorageStatus(),
	}
	if !resp.Storage.Unlocked {
		resp.Status = "locked"
	}

	httputil.Respond(w, r, http.StatusOK, resp)
}

// HandleVersion returns build information
func HandleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.Respond(w, r, http.StatusOK, version.Get())
}

// systemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms so the endpoint stays fast.
func systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func currentStorageStatus() storageStatus {
	return storageStatus{
		Encrypted: store.IsEncrypted(),
		Unlocked:  store.IsUnlocked(),
	}
}

func handleStorageStatus(w http.ResponseWriter, r *http.Request) {
	httputil.Respond(w, r, http.StatusOK, currentStorageStatus())
}

func handleEncrypt(w http.ResponseWriter, r *http.Request) {
	if err := store.EnableEncryption(r.FormValue("password")); err != nil {
		respondStorageError(w, err)
		return
	}
	httputil.Respond(w, r, http.StatusOK, currentStorageStatus())
}

func handleDecrypt(w http.ResponseWriter, r *http.Request) {
	if err := store.DisableEncryption(r.FormValue("password")); err != nil {
		respondStorageError(w, err)
		return
	}
	httputil.Respond(w, r, http.StatusOK, currentStorageStatus())
}

func handleUnlock(w http.ResponseWriter, r *http.Request) {
	if err := store.Unlock(r.FormValue("password")); err != nil {
		respondStorageError(w, err)
		return
	}
	httputil.Respond(w, r, http.StatusOK, currentStorageStatus())
}

func handleLock(w http.ResponseWriter, r *http.Request) {
	store.Lock()
	httputil.Respond(w, r, http.StatusOK, currentStorageStatus())
}

// respondStorageError maps storage failures; anything unrecognized is a bad
// request since it comes from the submitted password
func respondStorageError(w http.ResponseWriter, err error) {
	if status := handlers.StatusForError(err); status != http.StatusInternalServerError {
		handlers.Error(w, err)
		return
	}
	httputil.ErrorResponse(w, err.Error(), http.StatusBadRequest)
}
