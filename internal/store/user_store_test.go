package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/fgsamples/internal/domain"
)

func TestUserStore(t *testing.T) {
	store := NewUserStore(openTestDocstore(t))
	ctx := context.Background()

	_, err := store.Get(ctx, "MQTKAJANG01")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SetPasswordHash(ctx, "MQTKAJANG01", "hash-1"))
	require.NoError(t, store.SetPasswordHash(ctx, "MQTKAJANG01", "hash-2"))

	u, err := store.Get(ctx, "MQTKAJANG01")
	require.NoError(t, err)
	assert.Equal(t, "MQTKAJANG01", u.ID)
	assert.Equal(t, "hash-2", u.PasswordHash)
}
