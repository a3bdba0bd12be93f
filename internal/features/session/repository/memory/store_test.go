package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"pi-storefront/internal/features/session/repository"
	"pi-storefront/internal/features/session/repository/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store { return NewStore() })
}

func TestMalformedRecord(t *testing.T) {
	s := NewStore()
	for _, raw := range []string{"{", `"text"`, `{"subject_id":""}`, `{"subject_id":"u1","role":"root"}`} {
		s.SetRaw([]byte(raw))
		got, err := s.Load(context.Background())
		assert.ErrorIs(t, err, repository.ErrMalformed, raw)
		assert.Nil(t, got)
	}
}
