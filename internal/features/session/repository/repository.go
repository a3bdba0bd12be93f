package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pi-storefront/internal/features/session/models"
)

// Key is the single well-known key of the persisted identity.
const Key = "pi_user"

// ErrMalformed is returned by Load when the stored record cannot be used.
var ErrMalformed = errors.New("persisted identity is malformed")

type Store interface {
	// Load returns (nil, nil) when nothing is stored.
	Load(ctx context.Context) (*models.Identity, error)

	// Save replaces the stored record.
	Save(ctx context.Context, identity models.Identity) error

	// Erase removes the record. Erasing an absent record is not an error.
	Erase(ctx context.Context) error
}

// Encode serializes an identity for storage.
func Encode(identity models.Identity) ([]byte, error) {
	data, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal identity: %w", err)
	}
	return data, nil
}

// Decode parses a stored record, wrapping ErrMalformed for unusable content.
func Decode(data []byte) (*models.Identity, error) {
	var identity models.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &identity, nil
}
