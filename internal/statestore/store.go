// Package statestore persists the small amount of operator state that must
// survive restarts: the custom session directory, when one is set.
package statestore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// State is the on-disk document.
type State struct {
	CustomSessionDir string `toml:"custom_session_dir,omitempty"`
}

// Store reads and writes State at a fixed path.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted state, or a zero State when the file does not
// exist yet.
func (s *Store) Load() (State, error) {
	var st State
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	if err := toml.Unmarshal(data, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Save writes st, creating parent directories as needed. The file is written
// to a temp sibling and renamed so readers never see a partial document.
func (s *Store) Save(st State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(st)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// SetCustomSessionDir persists dir as the custom session directory.
func (s *Store) SetCustomSessionDir(dir string) error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	st.CustomSessionDir = dir
	return s.Save(st)
}

// ClearCustomSessionDir removes any persisted custom session directory.
func (s *Store) ClearCustomSessionDir() error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	if st.CustomSessionDir == "" {
		return nil
	}
	st.CustomSessionDir = ""
	return s.Save(st)
}
