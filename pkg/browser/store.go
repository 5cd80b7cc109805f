package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"
)

// DefaultDeviceName is the device descriptor used for new fingerprints.
const DefaultDeviceName = "Desktop Chrome"

// SessionStore loads and persists the session state blob (cookies and origin
// storage) and its fingerprint sidecar. The store performs no locking;
// concurrent writers to the same path are the caller's responsibility.
type SessionStore struct {
	path string
}

// NewSessionStore creates a store for the state file at path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Path returns the state file path.
func (s *SessionStore) Path() string {
	return s.path
}

// FingerprintPath returns the sidecar path, e.g.
// browser-state.json -> browser-state.json-fingerprint.json.
func (s *SessionStore) FingerprintPath() string {
	return s.path + "-fingerprint.json"
}

// Load returns the saved state, or nil if the file does not exist.
func (s *SessionStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("session state %s is not valid JSON", s.path)
	}
	var shape *storageShape
	if err := json.Unmarshal(data, &shape); err != nil || shape == nil {
		return nil, fmt.Errorf("session state %s is not a cookies/origins object", s.path)
	}
	return data, nil
}

// storageShape is the outline of a storage state document.
type storageShape struct {
	Cookies []map[string]any `json:"cookies"`
	Origins []map[string]any `json:"origins"`
}

// Save atomically overwrites the state file.
func (s *SessionStore) Save(state []byte) error {
	return writeAtomic(s.path, state)
}

// Fingerprint is the client identity kept stable across runs.
type Fingerprint struct {
	DeviceName    string `json:"deviceName"`
	Locale        string `json:"locale"`
	TimezoneID    string `json:"timezoneId"`
	ColorScheme   string `json:"colorScheme"`
	ReducedMotion string `json:"reducedMotion"`
	ForcedColors  string `json:"forcedColors"`
}

// SavedIdentity is the sidecar document.
type SavedIdentity struct {
	Fingerprint  *Fingerprint `json:"fingerprint,omitempty"`
	SearchDomain string       `json:"googleDomain,omitempty"`
}

// NewFingerprint builds a fresh identity. The color scheme follows the
// local clock: dark from 19:00 to 07:00.
func NewFingerprint(locale, timezone string, now time.Time) *Fingerprint {
	scheme := "light"
	if h := now.Hour(); h >= 19 || h < 7 {
		scheme = "dark"
	}
	return &Fingerprint{
		DeviceName:    DefaultDeviceName,
		Locale:        locale,
		TimezoneID:    timezone,
		ColorScheme:   scheme,
		ReducedMotion: "no-preference",
		ForcedColors:  "none",
	}
}

// LoadIdentity reads the sidecar. A missing file yields an empty identity.
func (s *SessionStore) LoadIdentity() (*SavedIdentity, error) {
	data, err := os.ReadFile(s.FingerprintPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &SavedIdentity{}, nil
		}
		return nil, fmt.Errorf("failed to read fingerprint: %w", err)
	}
	var id SavedIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("failed to decode fingerprint: %w", err)
	}
	return &id, nil
}

// SaveIdentity atomically overwrites the sidecar.
func (s *SessionStore) SaveIdentity(id *SavedIdentity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint: %w", err)
	}
	return writeAtomic(s.FingerprintPath(), data)
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// pickDomain chooses one of domains uniformly.
func pickDomain(domains []string) string {
	if len(domains) == 0 {
		return ""
	}
	return domains[rand.IntN(len(domains))]
}
