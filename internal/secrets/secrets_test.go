package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Env(t *testing.T) {
	t.Setenv("TEST_SECRET_VALUE", "s3cr3t")

	r := NewResolver()

	got, err := r.Resolve(context.Background(), "env:TEST_SECRET_VALUE")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got)
}

func TestResolver_EnvMissing(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	_, err := r.Resolve(context.Background(), "env:TEST_SECRET_DOES_NOT_EXIST")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestResolver_EnvEmptyName(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	_, err := r.Resolve(context.Background(), "env:")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestResolver_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("  file-secret\n"), 0o600))

	r := NewResolver()

	got, err := r.Resolve(context.Background(), "file:"+path)
	require.NoError(t, err)
	assert.Equal(t, "file-secret", got)
}

func TestResolver_FileMissing(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	_, err := r.Resolve(context.Background(), "file:"+filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestResolver_Literal(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	got, err := r.Resolve(context.Background(), "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", got)
}

func TestResolver_Empty(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	got, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolver_VaultWithoutProvider(t *testing.T) {
	t.Parallel()

	r := NewResolver()

	_, err := r.Resolve(context.Background(), "vault:secret/gateway/idp#clientSecret")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestResolver_Close(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	assert.NoError(t, r.Close())
}
