package memory

import (
	"context"
	"sync"

	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/repository"
)

// Store keeps the encoded record in memory. It does not survive a restart.
type Store struct {
	mu   sync.Mutex
	data []byte
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Load(ctx context.Context) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return repository.Decode(s.data)
}

func (s *Store) Save(ctx context.Context, identity models.Identity) error {
	data, err := repository.Encode(identity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *Store) Erase(ctx context.Context) error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}

// SetRaw stores raw bytes as-is, bypassing encoding.
func (s *Store) SetRaw(data []byte) {
	s.mu.Lock()
	s.data = append([]byte(nil), data...)
	s.mu.Unlock()
}

// Raw returns the stored bytes, or nil.
func (s *Store) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	return append([]byte(nil), s.data...)
}
