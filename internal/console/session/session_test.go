package session

import (
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/console/client"
	"vectorAdmin/internal/console/storage"
	"vectorAdmin/internal/console/store"
	"vectorAdmin/internal/server"
)

type fixture struct {
	client  *client.Client
	storage *storage.Memory
	store   *store.Store
	session *Session
	changes []State
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := server.MockConfig(config.Default())
	cfg.API.SimulatedLatency = 0
	srv, err := server.New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	f := &fixture{
		storage: storage.NewMemory(),
		store:   store.New(store.InitialState()),
		now:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	f.client = client.New(client.Options{Storage: f.storage, Handler: srv.Router})
	f.session = New(f.client, f.store,
		WithClock(func() time.Time { return f.now }),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithStateHook(func(_, to State) { f.changes = append(f.changes, to) }),
	)
	return f
}

func TestLoginPersistsSession(t *testing.T) {
	f := newFixture(t)
	state, err := f.session.Login(context.Background(), "admin", "123", "", true)
	require.NoError(t, err)
	assert.Equal(t, Authenticated, state)

	token, ok := f.storage.Get(storage.KeyToken)
	require.True(t, ok)
	assert.NotEmpty(t, token)
	_, ok = f.storage.Get(storage.KeyUserInfo)
	assert.True(t, ok)
	raw, ok := f.storage.Get(storage.KeyRememberMe)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(f.now.Add(7*24*time.Hour).UnixMilli(), 10), raw)

	user := f.store.State().User
	require.NotNil(t, user)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, "admin", user.Role)
}

func TestLoginWithoutRememberMeDropsExpiry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.storage.Set(storage.KeyRememberMe, "1"))
	_, err := f.session.Login(context.Background(), "editor", "123", "", false)
	require.NoError(t, err)
	_, ok := f.storage.Get(storage.KeyRememberMe)
	assert.False(t, ok)
}

func TestLoginFailureKeepsAnonymous(t *testing.T) {
	f := newFixture(t)
	state, err := f.session.Login(context.Background(), "admin", "wrong", "", false)
	require.Error(t, err)
	assert.Equal(t, Anonymous, state)
	assert.Nil(t, f.store.State().User)
	assert.NotContains(t, f.changes, Authenticated)
}

func TestRestoreVerifiesWithServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Login(ctx, "viewer", "123", "", true)
	require.NoError(t, err)

	// 模拟重启：新的 store 与 session，共用同一份本地存储
	f.store = store.New(store.InitialState())
	restored := New(f.client, f.store, WithClock(func() time.Time { return f.now.Add(24 * time.Hour) }))
	state, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, Authenticated, state)
	require.NotNil(t, f.store.State().User)
	assert.Equal(t, "viewer", f.store.State().User.Username)
	paths := make([]string, 0)
	for _, m := range restored.Menus() {
		paths = append(paths, m.Path)
	}
	assert.Equal(t, []string{"/dashboard", "/vector-search", "/kb/retrieval"}, paths)
}

func TestRestoreAfterExpiryStaysAnonymous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Login(ctx, "viewer", "123", "", true)
	require.NoError(t, err)

	late := New(f.client, store.New(store.InitialState()), WithClock(func() time.Time { return f.now.Add(8 * 24 * time.Hour) }))
	state, err := late.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, Anonymous, state)
	_, ok := f.storage.Get(storage.KeyToken)
	assert.False(t, ok)
}

func TestRestoreWithRevokedTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.storage.Set(storage.KeyToken, "forged"))
	require.NoError(t, f.storage.Set(storage.KeyUserInfo, `{"username":"admin"}`))
	require.NoError(t, f.storage.Set(storage.KeyRememberMe, strconv.FormatInt(f.now.Add(time.Hour).UnixMilli(), 10)))

	state, err := f.session.Restore(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, Anonymous, state)
	_, ok := f.storage.Get(storage.KeyRememberMe)
	assert.False(t, ok)
}

func TestUnauthorizedResponseExpiresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Login(ctx, "admin", "123", "", true)
	require.NoError(t, err)

	require.NoError(t, f.storage.Set(storage.KeyToken, "tampered"))
	_, err = f.client.Get(ctx, "/vectors", nil, nil)
	require.ErrorIs(t, err, client.ErrUnauthorized)

	assert.Equal(t, []State{Authenticated, Expired, Anonymous}, f.changes)
	assert.Equal(t, Anonymous, f.session.State())
	assert.Nil(t, f.store.State().User)
	_, ok := f.storage.Get(storage.KeyRememberMe)
	assert.False(t, ok)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Login(ctx, "admin", "123", "", true)
	require.NoError(t, err)

	f.session.Logout(ctx)
	assert.Equal(t, Anonymous, f.session.State())
	assert.Nil(t, f.store.State().User)
	for _, key := range []string{storage.KeyToken, storage.KeyUserInfo, storage.KeyRememberMe} {
		_, ok := f.storage.Get(key)
		assert.False(t, ok, key)
	}
}
