package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/repository"
	"pi-storefront/internal/features/session/repository/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return NewStore(filepath.Join(t.TempDir(), "nested", "session.json"))
	})
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	got, err := NewStore(path).Load(context.Background())
	assert.ErrorIs(t, err, repository.ErrMalformed)
	assert.Nil(t, got)
}

func TestLoadCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pi_user":{"subject_id":7}}`), 0o600))

	_, err := NewStore(path).Load(context.Background())
	assert.ErrorIs(t, err, repository.ErrMalformed)
}

func TestSaveOverwritesCorruptFileAndKeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark"}`), 0o600))

	s := NewStore(path)
	require.NoError(t, s.Save(ctx, models.Identity{SubjectID: "u1", Role: models.RoleCustomer}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"theme":"dark"`)
	assert.Contains(t, string(data), `"pi_user"`)

	require.NoError(t, s.Erase(ctx))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(data))

	require.NoError(t, os.WriteFile(path, []byte("{{"), 0o600))
	require.NoError(t, s.Save(ctx, models.Identity{SubjectID: "u2", Role: models.RoleAdmin}))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u2", got.SubjectID)
}
