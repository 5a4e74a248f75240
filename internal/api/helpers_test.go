package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/cache"
	"vectorAdmin/internal/config"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/notify"
	"vectorAdmin/internal/sysinfo"
	"vectorAdmin/internal/tasks"
	"vectorAdmin/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSampler struct{}

func (fakeSampler) Resources(context.Context) (sysinfo.Resources, error) {
	return sysinfo.Resources{CPU: 45, Memory: 60, Disk: 30}, nil
}

func (fakeSampler) Nodes(context.Context) ([]sysinfo.Node, error) {
	return []sysinfo.Node{{IP: "192.168.1.1", Hostname: "node-1", Status: "active", Load: "40%"}}, nil
}

type fakeReloader struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeReloader) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeReloader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExports struct {
	objects map[string][]byte
}

func (f *fakeExports) UploadBytes(_ context.Context, key string, data []byte, _ string) error {
	f.objects[key] = data
	return nil
}

func (f *fakeExports) GeneratePresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.local/vectoradmin/" + key + "?X-Amz-Signature=test", nil
}

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	enqueuer *tasks.InlineEnqueuer
	reloader *fakeReloader
	hub      *notify.MemoryHub
	authSvc  *auth.AuthService
	tokens   map[string]string
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			RememberMeTTL:         7 * 24 * time.Hour,
			LoginRateLimitPerHour: 100,
			LoginLockThreshold:    5,
			LoginLockTTL:          time.Minute,
			CaptchaTTL:            time.Minute,
		},
	}
}

// newTestServer 启动基于内存 SQLite 的完整路由，并写入种子数据。
func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	db, err := database.InitDatabase(config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: database.MemoryDSN(t.Name())})
	require.NoError(t, err)
	require.NoError(t, database.Seed(context.Background(), db))

	store, err := cache.NewMemoryStore(1000)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	authSvc, err := auth.NewEphemeralAuthService(time.Hour, 24*time.Hour)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	hub := notify.NewMemoryHub()
	enqueuer := tasks.NewInlineEnqueuer(worker.NewServeMux(db, logger), logger)
	t.Cleanup(enqueuer.Wait)
	reloader := &fakeReloader{}

	deps := Deps{
		Config:    testConfig(),
		DB:        db,
		Auth:      authSvc,
		Cache:     store,
		Hub:       hub,
		Notifier:  notify.NewNotifier(db, hub, logger),
		Enqueuer:  enqueuer,
		Scheduler: reloader,
		Sampler:   fakeSampler{},
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router, err := NewRouter(deps)
	require.NoError(t, err)

	return &testServer{
		router:   router,
		db:       db,
		enqueuer: enqueuer,
		reloader: reloader,
		hub:      hub,
		authSvc:  authSvc,
		tokens:   map[string]string{},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

// login 以种子账号登录并缓存令牌。
func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	if token, ok := s.tokens[username]; ok {
		return token
	}
	_, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": username,
		"password": database.DefaultPassword,
	})
	require.Equal(t, http.StatusOK, env.Code, env.Message)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	s.tokens[username] = data.Token
	return data.Token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
