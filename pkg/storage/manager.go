package storage

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Manager hands out one EventCache per timeline API, so events from
// different servers never mix.
type Manager struct {
	storageDir string
	caches     map[string]*EventCache
	mu         sync.RWMutex
}

// NewManager returns a manager keeping databases under storageDir.
func NewManager(storageDir string) *Manager {
	return &Manager{
		storageDir: storageDir,
		caches:     make(map[string]*EventCache),
	}
}

// CacheName derives the database name for an API base URL.
func CacheName(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	name := strings.ToLower(u.Host)
	if p := strings.Trim(u.Path, "/"); p != "" {
		name += "_" + p
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, name)
}

// GetCache returns the cache for apiURL, opening it on first use.
func (m *Manager) GetCache(apiURL string) (*EventCache, error) {
	name := CacheName(apiURL)

	m.mu.RLock()
	c, ok := m.caches[name]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[name]; ok {
		return c, nil
	}

	if err := os.MkdirAll(m.storageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	c, err := OpenEventCache(filepath.Join(m.storageDir, name+".db"))
	if err != nil {
		return nil, fmt.Errorf("opening cache for %s: %w", apiURL, err)
	}
	m.caches[name] = c
	return c, nil
}

// OpenCaches lists the names of the caches opened so far.
func (m *Manager) OpenCaches() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every open cache.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, c := range m.caches {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
		delete(m.caches, name)
	}
	return firstErr
}
