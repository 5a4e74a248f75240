package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetDel(t *testing.T) {
	store, err := NewMemoryStore(128)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.Get(ctx, "captcha:k1")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "captcha:k1", "AB12", time.Minute))
	got, err := store.Get(ctx, "captcha:k1")
	require.NoError(t, err)
	assert.Equal(t, "AB12", got)

	require.NoError(t, store.Del(ctx, "captcha:k1"))
	_, err = store.Get(ctx, "captcha:k1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreIncr(t *testing.T) {
	store, err := NewMemoryStore(128)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "login_rate:1.2.3.4", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
