// Package watchlist keeps named symbol lists in a JSON file that can be
// edited by hand and hot-reloaded while the service runs.
package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store keeps named symbol lists backed by a single JSON file. The file
// holds a flat object mapping list names to symbol arrays.
type Store struct {
	path  string
	mu    sync.RWMutex
	lists map[string][]string
}

// NewStore opens the watchlist file at path, creating the parent
// directory if needed. An empty path defaults to
// ~/.finsight/watchlists.json. A missing file is an empty store; a
// corrupt file is an error.
func NewStore(path string) (*Store, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".finsight", "watchlists.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create watchlist directory: %w", err)
	}

	s := &Store{
		path:  path,
		lists: make(map[string][]string),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Int("lists", len(s.lists)).Msg("Watchlist store opened")

	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the backing file. A missing file resets the store to
// empty.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.lists = make(map[string][]string)
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read watchlist file: %w", err)
	}

	var lists map[string][]string
	if err := json.Unmarshal(data, &lists); err != nil {
		return fmt.Errorf("failed to parse watchlist file: %w", err)
	}
	if lists == nil {
		lists = make(map[string][]string)
	}

	s.mu.Lock()
	s.lists = lists
	s.mu.Unlock()

	return nil
}

// Get returns a copy of the named list.
func (s *Store) Get(name string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols, ok := s.lists[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), symbols...), true
}

// All returns a copy of every list.
func (s *Store) All() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.lists))
	for name, symbols := range s.lists {
		out[name] = append([]string(nil), symbols...)
	}
	return out
}

// Names returns the list names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.lists))
	for name := range s.lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Put stores a named list and persists the file.
func (s *Store) Put(name string, symbols []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("watchlist name cannot be empty")
	}

	cleaned := normalizeSymbols(symbols)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists[name] = cleaned
	if err := s.persist(); err != nil {
		return err
	}

	log.Debug().Str("name", name).Int("symbols", len(cleaned)).Msg("Watchlist saved")

	return nil
}

// Remove deletes a named list and persists the file.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[name]; !ok {
		return fmt.Errorf("watchlist not found: %s", name)
	}

	delete(s.lists, name)
	if err := s.persist(); err != nil {
		return err
	}

	log.Debug().Str("name", name).Msg("Watchlist removed")

	return nil
}

// persist writes the lists atomically via a temp file and rename.
// Callers must hold the write lock.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.lists, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watchlists: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write watchlist file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace watchlist file: %w", err)
	}

	return nil
}

// normalizeSymbols trims entries, drops empties and keeps the first
// occurrence of each symbol.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	return out
}
