package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/repository"
)

// Store keeps the record in Redis under <prefix>pi_user, without expiry.
type Store struct {
	client redis.Cmdable
	key    string
}

func NewStore(client redis.Cmdable, prefix string) *Store {
	return &Store{client: client, key: prefix + repository.Key}
}

func (s *Store) Key() string { return s.key }

func (s *Store) Load(ctx context.Context) (*models.Identity, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return repository.Decode(data)
}

func (s *Store) Save(ctx context.Context, identity models.Identity) error {
	data, err := repository.Encode(identity)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

func (s *Store) Erase(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to erase identity: %w", err)
	}
	return nil
}
