package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"filippo.io/age"
	"github.com/rs/zerolog"
)

const (
	// ageHeader is the prefix of Age-encrypted files
	ageHeader = "age-encryption.org"

	// markerFile indicates encryption is enabled
	markerFile = ".encrypted"

	// verifyFile is used to validate the password
	verifyFile = ".encryption-verify"

	// verifyMagic is the expected content in the verify file
	verifyMagic = `{"magic":"homedash-encryption-verify","version":1}`
)

var (
	// ErrLocked is returned when an encrypted file is read before Unlock
	ErrLocked = errors.New("storage is locked")
	// ErrIncorrectPassword is returned when the verify file does not decrypt
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrOutsideBase is returned for paths that escape the data directory
	ErrOutsideBase = errors.New("path escapes data directory")
)

// Storage provides transparent encrypted/unencrypted access to the JSON
// documents under one data directory. All paths are relative to that
// directory.
type Storage struct {
	baseDir   string
	encrypted bool
	identity  *age.ScryptIdentity
	recipient *age.ScryptRecipient
	mu        sync.RWMutex
	log       zerolog.Logger
}

// New creates a new Storage instance for the given base directory
func New(baseDir string, log zerolog.Logger) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		baseDir: baseDir,
		log:     log.With().Str("component", "storage").Logger(),
	}

	// Check if encryption is enabled
	if _, err := os.Stat(filepath.Join(baseDir, markerFile)); err == nil {
		s.encrypted = true
		s.log.Info().Msg("Data directory is encrypted; unlock required")
	}

	return s, nil
}

// BaseDir returns the base directory
func (s *Storage) BaseDir() string {
	return s.baseDir
}

// IsEncrypted returns true if the data directory is encrypted
func (s *Storage) IsEncrypted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encrypted
}

// IsUnlocked returns true if files can be read and written
func (s *Storage) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.encrypted || s.identity != nil
}

// Unlock verifies the password and keeps the key in memory
func (s *Storage) Unlock(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.encrypted {
		return nil // Nothing to unlock
	}

	identity, err := s.verifyPassword(password)
	if err != nil {
		return err
	}

	s.identity = identity
	s.recipient, _ = age.NewScryptRecipient(password)
	s.log.Info().Msg("Storage unlocked")

	return nil
}

// Lock clears the encryption key from memory
func (s *Storage) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	s.recipient = nil
	if s.encrypted {
		s.log.Info().Msg("Storage locked")
	}
}

// Path resolves a data-relative path, rejecting anything outside the base
func (s *Storage) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, rel)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// ReadFile reads and, when needed, decrypts a file
func (s *Storage) ReadFile(rel string) ([]byte, error) {
	path, err := s.Path(rel)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isAgeEncrypted(data) {
		if s.identity == nil {
			return nil, ErrLocked
		}
		return decryptData(data, s.identity)
	}

	return data, nil
}

// WriteFile writes a file atomically, encrypting it when encryption is on.
// Writing to an encrypted store that is still locked fails rather than
// leaving a plaintext file behind.
func (s *Storage) WriteFile(rel string, data []byte) error {
	path, err := s.Path(rel)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.encrypted && !isInternal(path) {
		if s.recipient == nil {
			return ErrLocked
		}
		encrypted, err := encryptData(data, s.recipient)
		if err != nil {
			return fmt.Errorf("failed to encrypt: %w", err)
		}
		data = encrypted
	}

	return atomicWrite(path, data)
}

// ReadJSON decodes a JSON document. Missing files report fs.ErrNotExist.
func (s *Storage) ReadJSON(rel string, v interface{}) error {
	data, err := s.ReadFile(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", rel, err)
	}
	return nil
}

// WriteJSON encodes v as indented JSON and writes it
func (s *Storage) WriteJSON(rel string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", rel, err)
	}
	return s.WriteFile(rel, data)
}

// Exists reports whether a data file is present
func (s *Storage) Exists(rel string) bool {
	path, err := s.Path(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Remove deletes a data file; removing a missing file is not an error
func (s *Storage) Remove(rel string) error {
	path, err := s.Path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DataFiles lists the JSON documents under the data directory as sorted,
// slash-separated relative paths
func (s *Storage) DataFiles() ([]string, error) {
	paths, err := s.dataFiles()
	if err != nil {
		return nil, err
	}
	rels := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return nil, err
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	sort.Strings(rels)
	return rels, nil
}

// dataFiles walks the base directory for JSON documents, skipping the
// encryption bookkeeping files
func (s *Storage) dataFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isInternal(path) {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) == ".json" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// atomicWrite writes data to a file atomically using a temp file
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpPath, path)
}

// isInternal returns true for the encryption marker and verify files
func isInternal(path string) bool {
	base := filepath.Base(path)
	return base == markerFile || base == verifyFile
}

// isAgeEncrypted checks if data starts with the Age encryption header
func isAgeEncrypted(data []byte) bool {
	return len(data) > len(ageHeader) && string(data[:len(ageHeader)]) == ageHeader
}
