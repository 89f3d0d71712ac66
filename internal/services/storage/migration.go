package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// MinPasswordLength is the shortest password EnableEncryption accepts
const MinPasswordLength = 8

var (
	ErrAlreadyEncrypted = errors.New("encryption is already enabled")
	ErrNotEncrypted     = errors.New("encryption is not enabled")
)

// EnableEncryption encrypts every data file with the given password. On
// failure already-encrypted files are decrypted again.
func (s *Storage) EnableEncryption(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encrypted {
		return ErrAlreadyEncrypted
	}

	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return fmt.Errorf("failed to create recipient: %w", err)
	}

	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	// Create verification file first
	verifyPath := filepath.Join(s.baseDir, verifyFile)
	encrypted, err := encryptData([]byte(verifyMagic), recipient)
	if err != nil {
		return fmt.Errorf("failed to encrypt verification file: %w", err)
	}
	if err := atomicWrite(verifyPath, encrypted); err != nil {
		return fmt.Errorf("failed to write verification file: %w", err)
	}

	files, err := s.dataFiles()
	if err != nil {
		os.Remove(verifyPath)
		return fmt.Errorf("failed to scan files: %w", err)
	}

	for i, path := range files {
		err := rewriteFile(path, func(data []byte) ([]byte, bool, error) {
			if isAgeEncrypted(data) {
				return nil, false, nil
			}
			out, err := encryptData(data, recipient)
			return out, true, err
		})
		if err != nil {
			s.rollbackEncryption(files[:i], identity)
			os.Remove(verifyPath)
			return fmt.Errorf("failed to encrypt %s: %w", filepath.Base(path), err)
		}
	}

	if err := atomicWrite(filepath.Join(s.baseDir, markerFile), []byte("encrypted")); err != nil {
		s.rollbackEncryption(files, identity)
		os.Remove(verifyPath)
		return fmt.Errorf("failed to create marker file: %w", err)
	}

	s.encrypted = true
	s.identity = identity
	s.recipient = recipient
	s.log.Info().Int("files", len(files)).Msg("Encryption enabled")

	return nil
}

// DisableEncryption decrypts every data file (requires current password)
func (s *Storage) DisableEncryption(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.encrypted {
		return ErrNotEncrypted
	}

	identity, err := s.verifyPassword(password)
	if err != nil {
		return err
	}

	files, err := s.dataFiles()
	if err != nil {
		return fmt.Errorf("failed to scan files: %w", err)
	}

	for _, path := range files {
		err := rewriteFile(path, func(data []byte) ([]byte, bool, error) {
			if !isAgeEncrypted(data) {
				return nil, false, nil
			}
			out, err := decryptData(data, identity)
			return out, true, err
		})
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", filepath.Base(path), err)
		}
	}

	// Remove marker and verification files
	os.Remove(filepath.Join(s.baseDir, markerFile))
	os.Remove(filepath.Join(s.baseDir, verifyFile))

	s.encrypted = false
	s.identity = nil
	s.recipient = nil
	s.log.Info().Int("files", len(files)).Msg("Encryption disabled")

	return nil
}

// rewriteFile replaces a file's content in place when transform reports a change
func rewriteFile(path string, transform func([]byte) ([]byte, bool, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	out, changed, err := transform(data)
	if err != nil || !changed {
		return err
	}

	return atomicWrite(path, out)
}

// rollbackEncryption decrypts files that were encrypted during a failed migration
func (s *Storage) rollbackEncryption(files []string, identity *age.ScryptIdentity) {
	for _, path := range files {
		err := rewriteFile(path, func(data []byte) ([]byte, bool, error) {
			if !isAgeEncrypted(data) {
				return nil, false, nil
			}
			out, err := decryptData(data, identity)
			return out, true, err
		})
		if err != nil {
			s.log.Error().Err(err).Str("file", path).Msg("Rollback failed")
		}
	}
}
