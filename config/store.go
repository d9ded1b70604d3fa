package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// OnChangeListener receives the new config after a reload.
// Called without the store's mutex held.
type OnChangeListener interface {
	OnConfigChange(cfg Config)
}

// Store holds the current Config, backed by dataDir/config.json. A missing or
// corrupted file falls back to defaults rather than failing startup.
type Store struct {
	path string

	dataMu sync.RWMutex
	data   Config

	listenerMu sync.RWMutex
	listener   OnChangeListener
}

// NewStore loads existing config from disk or uses defaults.
func NewStore(dataDir string) (*Store, error) {
	s := &Store{
		path: filepath.Join(dataDir, "config.json"),
		data: Default(),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path, for the watcher.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get() Config {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.data
}

func (s *Store) SetOnChangeListener(l OnChangeListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listener = l
}

// Update validates, persists, and applies a new config.
func (s *Store) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.dataMu.Lock()
	if err := s.save(cfg); err != nil {
		s.dataMu.Unlock()
		return err
	}
	s.data = cfg
	s.dataMu.Unlock()

	s.notify(cfg)
	return nil
}

// Reload re-reads the backing file, for use after an external edit.
// Invalid contents leave the current config in place.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.dataMu.Lock()
	changed := cfg != s.data
	s.data = cfg
	s.dataMu.Unlock()

	if changed {
		s.notify(cfg)
	}
	return nil
}

func (s *Store) notify(cfg Config) {
	s.listenerMu.RLock()
	l := s.listener
	s.listenerMu.RUnlock()
	if l != nil {
		l.OnConfigChange(cfg)
	}
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		// Fall back to default for corrupted JSON
		return nil
	}
	if err := cfg.Validate(); err != nil {
		// Fall back to default for invalid values
		return nil
	}

	s.data = cfg
	return nil
}

func (s *Store) save(cfg Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file then rename
	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.path)
}
