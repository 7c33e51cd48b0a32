// Package snapshot persists the local cart snapshot that survives restarts
// and offline periods. Local storage is best-effort, never a source of truth:
// a missing or unreadable snapshot loads as an empty cart.
package snapshot

import (
	"sync"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

type Store interface {
	// Load returns the last saved cart, or an empty cart if nothing usable
	// is stored. A corrupt snapshot is not an error.
	Load() (domain.Cart, error)
	// Save overwrites the previous snapshot. No history is kept.
	Save(cart domain.Cart) error
	// Clear removes the snapshot so the next Load returns an empty cart.
	Clear() error
}

// MemStore keeps the snapshot in memory. Used in tests and as a fallback when
// no snapshot path is configured.
type MemStore struct {
	mu   sync.Mutex
	cart *domain.Cart
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil {
		return domain.EmptyCart(""), nil
	}
	return *s.cart, nil
}

func (s *MemStore) Save(cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = &cart
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = nil
	return nil
}
