package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Requires a reachable database; set LIVENOTES_TEST_DATABASE_URL to run.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("LIVENOTES_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LIVENOTES_TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := "test-" + uuid.NewString()

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, key, []byte("one")))
	require.NoError(t, s.Set(ctx, key, []byte("two")))

	value, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", string(value))
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, migrate(context.Background(), s.pool))
}
