package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the attribute file format.
const StateVersion = 1

// fileState is the on-disk layout: attributes grouped by gateway
// hardware identifier.
type fileState struct {
	// Version is the file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Gateways maps hardware identifiers to their attributes.
	Gateways map[string]map[string]string `json:"gateways,omitempty"`
}

// FileStore is an AttributeStore backed by one JSON file. Every Set
// writes through to disk; reads are served from memory.
type FileStore struct {
	mu    sync.Mutex
	path  string
	attrs map[string]map[string]string
}

// NewFileStore creates a store backed by path, loading any existing
// state. A missing file starts empty.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		attrs: make(map[string]map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Gateways != nil {
		s.attrs = state.Gateways
	}
	return s, nil
}

// Get returns the attribute value for a gateway, if set.
func (s *FileStore) Get(mac, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[mac][key]
	return v, ok
}

// Set stores an attribute value and writes the file.
func (s *FileStore) Set(mac, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.attrs[mac]
	if !ok {
		m = make(map[string]string)
		s.attrs[mac] = m
	}
	if m[key] == value {
		return nil
	}
	m[key] = value
	return s.saveLocked()
}

// Clear removes the state file and forgets all attributes.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attrs = make(map[string]map[string]string)
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state := fileState{
		Version:  StateVersion,
		SavedAt:  time.Now(),
		Gateways: s.attrs,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
