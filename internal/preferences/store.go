package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AniJ15/timbr/internal/models"
)

// FileStore keeps a single user's preferences as a JSON document on disk
type FileStore struct {
	mu   sync.RWMutex
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Load reads the preferences document. A missing file yields empty
// preferences, which is what a user who never onboarded has.
func (s *FileStore) Load() (models.UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

func (s *FileStore) load() (models.UserPreferences, error) {
	var prefs models.UserPreferences
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("failed to read preferences file: %w", err)
	}

	if err := json.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return prefs, nil
}

// Save writes the preferences document, swapping an inverted price range
func (s *FileStore) Save(prefs models.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(prefs)
}

func (s *FileStore) save(prefs models.UserPreferences) error {
	prefs.SetPriceRange(prefs.MinPrice, prefs.MaxPrice)
	now := s.now()
	if prefs.CreatedAt.IsZero() {
		prefs.CreatedAt = now
	}
	prefs.UpdatedAt = now

	data, err := json.MarshalIndent(prefs, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create preferences directory: %w", err)
		}
	}

	// Write to a sibling file first so readers never see a partial document
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace preferences file: %w", err)
	}
	return nil
}

// SaveLocation records a resolved location without touching other fields
func (s *FileStore) SaveLocation(location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.load()
	if err != nil {
		return err
	}
	if prefs.Location == location {
		return nil
	}
	prefs.Location = location
	return s.save(prefs)
}
