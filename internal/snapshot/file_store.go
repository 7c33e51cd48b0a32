package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

// record is the on-disk shape: lines plus the checkout fields. Derived totals
// are deliberately not stored; Load recomputes them, so a tampered file can
// never smuggle in a stale total.
type record struct {
	Lines           []domain.CartLine    `json:"lines"`
	ShippingAddress domain.Address       `json:"shippingAddress"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
}

// FileStore persists the snapshot as a single JSON file, written atomically
// via a temp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.EmptyCart(""), nil
		}
		return domain.EmptyCart(""), fmt.Errorf("failed to read snapshot: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Printf("discarding corrupt cart snapshot at %s: %v", s.path, err)
		return domain.EmptyCart(""), nil
	}

	cart := domain.Cart{
		Lines:           rec.Lines,
		ShippingAddress: rec.ShippingAddress,
		PaymentMethod:   rec.PaymentMethod,
	}
	return cart.Repriced(), nil
}

func (s *FileStore) Save(cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record{
		Lines:           cart.Lines,
		ShippingAddress: cart.ShippingAddress,
		PaymentMethod:   cart.PaymentMethod,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cart-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}
