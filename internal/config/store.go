package config

import "sync/atomic"

// Store holds the active configuration snapshot. Reads are lock-free; a hot
// reload swaps the whole pointer so a request never observes a partially
// updated config.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore returns a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Load returns the active snapshot.
func (s *Store) Load() *Config {
	return s.current.Load()
}

// Swap installs a new snapshot.
func (s *Store) Swap(cfg *Config) {
	if cfg == nil {
		return
	}
	s.current.Store(cfg)
}
