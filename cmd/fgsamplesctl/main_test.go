package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/fgsamples/internal/config"
	"github.com/vbonduro/fgsamples/internal/docstore"
	"github.com/vbonduro/fgsamples/internal/store"
)

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fg.db")
	t.Setenv("DOCSTORE_BACKEND", "sqlite")
	t.Setenv("DB_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(strings.NewReader(stdin), &out).Run(append([]string{"fgsamplesctl"}, args...))
	return out.String(), err
}

func passwordHash(t *testing.T, userID string) string {
	t.Helper()
	var hash string
	require.NoError(t, withDocstore(func(ctx context.Context, _ *config.Config, ds docstore.Store) error {
		u, err := store.NewUserStore(ds).Get(ctx, userID)
		if err != nil {
			return err
		}
		hash = u.PasswordHash
		return nil
	}))
	return hash
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := run(t, "s3cret\n", "hash-password")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestHashPasswordRequiresInput(t *testing.T) {
	_, err := run(t, "", "hash-password")
	assert.Error(t, err)
}

func TestUserAddAndPasswd(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "", "user", "add", "--password", "first", "MQTKAJANG01")
	require.NoError(t, err)
	assert.Contains(t, out, "site kajang")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(passwordHash(t, "mqtkajang01")), []byte("first")))

	_, err = run(t, "", "user", "add", "--password", "again", "mqtkajang01")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "second\n", "user", "passwd", "mqtkajang01")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(passwordHash(t, "mqtkajang01")), []byte("second")))
}

func TestUserPasswdUnknownUser(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "", "user", "passwd", "--password", "x", "mqtsubang09")
	assert.ErrorContains(t, err, "does not exist")
}

func TestUserAddRejectsUnknownSite(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "", "user", "add", "--password", "x", "penang01")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite document store is up to date")
}
