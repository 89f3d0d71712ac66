package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"homedash/internal/handlers"
	httputil "homedash/internal/http"
	"homedash/internal/services/storage"
)

// maxRestoreSize caps uploaded backup archives
const maxRestoreSize = 50 << 20

var (
	store  *storage.Storage
	logger = zerolog.Nop()
)

// Initialize sets up the backup package with required dependencies
func Initialize(s *storage.Storage, log zerolog.Logger) {
	store = s
	logger = log.With().Str("component", "backup").Logger()
}

// RegisterRoutes registers the backup and restore routes
func RegisterRoutes(r chi.Router) {
	r.Get("/backup", HandleBackup)
	r.Post("/restore", HandleRestore)
}

// HandleBackup streams a zip of every JSON document in the data directory.
// Entries are always decrypted so a backup can be restored anywhere.
func HandleBackup(w http.ResponseWriter, r *http.Request) {
	if !store.IsUnlocked() {
		handlers.Error(w, storage.ErrLocked)
		return
	}

	files, err := store.DataFiles()
	if err != nil {
		httputil.ErrorResponse(w, "Error reading data directory", http.StatusInternalServerError)
		return
	}

	// Generate filename with timestamp
	filename := fmt.Sprintf("homedash_backup_%s.zip", time.Now().Format("20060102_150405"))

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	// Create zip writer directly to the response writer
	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, rel := range files {
		data, err := store.ReadFile(rel)
		if err != nil {
			// Headers are already sent; the archive is cut short
			logger.Error().Err(err).Str("file", rel).Msg("Error creating backup")
			return
		}

		f, err := zw.Create(rel)
		if err != nil {
			logger.Error().Err(err).Str("file", rel).Msg("Error creating backup")
			return
		}
		if _, err := f.Write(data); err != nil {
			logger.Error().Err(err).Str("file", rel).Msg("Error creating backup")
			return
		}
	}

	logger.Info().Int("files", len(files)).Msg("Backup created")
}

type restoreResponse struct {
	Restored int      `json:"restored"`
	Files    []string `json:"files"`
	Skipped  []string `json:"skipped,omitempty"`
}

// HandleRestore writes the JSON documents of an uploaded backup zip back
// through storage, re-encrypting them when encryption is enabled
func HandleRestore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxRestoreSize); err != nil {
		httputil.ErrorResponse(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.ErrorResponse(w, "Error reading file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		httputil.ErrorResponse(w, "Only ZIP backup files are allowed", http.StatusBadRequest)
		return
	}

	// Read the entire file into memory to create a ReaderAt
	content, err := io.ReadAll(file)
	if err != nil {
		httputil.ErrorResponse(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		httputil.ErrorResponse(w, "Invalid ZIP file", http.StatusBadRequest)
		return
	}

	resp := restoreResponse{Files: []string{}}
	for _, zipFile := range zipReader.File {
		if zipFile.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(zipFile.Name), ".json") {
			continue
		}

		data, err := readEntry(zipFile)
		if err != nil || !json.Valid(data) {
			logger.Warn().Err(err).Str("file", zipFile.Name).Msg("Skipping unreadable backup entry")
			resp.Skipped = append(resp.Skipped, zipFile.Name)
			continue
		}

		// storage rejects names that escape the data directory
		if err := store.WriteFile(zipFile.Name, data); err != nil {
			if errors.Is(err, storage.ErrLocked) {
				handlers.Error(w, err)
				return
			}
			logger.Warn().Err(err).Str("file", zipFile.Name).Msg("Skipping backup entry")
			resp.Skipped = append(resp.Skipped, zipFile.Name)
			continue
		}

		resp.Restored++
		resp.Files = append(resp.Files, zipFile.Name)
		logger.Info().Str("file", zipFile.Name).Msg("Restored file")
	}

	if resp.Restored == 0 {
		httputil.ErrorResponse(w, "No JSON files found in backup", http.StatusBadRequest)
		return
	}

	logger.Info().Int("files", resp.Restored).Msg("Restore complete")
	httputil.Respond(w, r, http.StatusOK, resp)
}

func readEntry(zipFile *zip.File) ([]byte, error) {
	rc, err := zipFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
