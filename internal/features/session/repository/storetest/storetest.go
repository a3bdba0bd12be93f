// Package storetest holds the behaviour every repository.Store must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/repository"
)

// Run exercises save/load/erase round trips against a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty load", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("save then load", func(t *testing.T) {
		s := newStore(t)
		wallet := "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
		want := models.Identity{SubjectID: "u1", DisplayName: "a", Role: models.RoleSeller, WalletAddress: &wallet}
		require.NoError(t, s.Save(ctx, want))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, want.Equal(*got))
	})

	t.Run("empty wallet round trips", func(t *testing.T) {
		s := newStore(t)
		empty := ""
		want := models.Identity{SubjectID: "u1", Role: models.RoleCustomer, WalletAddress: &empty}
		require.NoError(t, s.Save(ctx, want))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.WalletAddress, "empty wallet must not collapse to null")
		assert.True(t, want.Equal(*got))
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, models.Identity{SubjectID: "u1", Role: models.RoleCustomer}))
		require.NoError(t, s.Save(ctx, models.Identity{SubjectID: "u2", Role: models.RoleAdmin}))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "u2", got.SubjectID)
		assert.Equal(t, models.RoleAdmin, got.Role)
	})

	t.Run("erase", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, models.Identity{SubjectID: "u1", Role: models.RoleCustomer}))
		require.NoError(t, s.Erase(ctx))
		require.NoError(t, s.Erase(ctx))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
