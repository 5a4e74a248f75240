package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/console/storage"
)

func writeEnvelope(w http.ResponseWriter, code int, data any, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "data": data, "message": message})
}

func fakeAPI() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/echo", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]string{
			"auth":   r.Header.Get("Authorization"),
			"status": r.URL.Query().Get("status"),
		}, "ok")
	})
	mux.HandleFunc("POST /api/echo", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, http.StatusOK, body, "ok")
	})
	mux.HandleFunc("GET /api/private", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, nil, "Unauthorized")
	})
	mux.HandleFunc("DELETE /api/conflict", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRequestID, r.Header.Get(HeaderRequestID))
		writeEnvelope(w, http.StatusConflict, nil, "名称已存在")
	})
	mux.HandleFunc("GET /api/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	mux.HandleFunc("GET /api/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="vectors.csv"`)
		_, _ = w.Write([]byte("id,title\n"))
	})
	return mux
}

func TestMockTransportInjectsToken(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyToken, "abc"))
	c := New(Options{Storage: st, Handler: fakeAPI()})

	var out map[string]string
	env, err := c.Get(context.Background(), "/echo", Params{"status": "error"}, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, env.Code)
	assert.Equal(t, "Bearer abc", out["auth"])
	assert.Equal(t, "error", out["status"])

	var echoed map[string]any
	_, err = c.Post(context.Background(), "/echo", map[string]any{"title": "kb"}, &echoed)
	require.NoError(t, err)
	assert.Equal(t, "kb", echoed["title"])
}

func TestUnauthorizedClearsStorage(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyToken, "abc"))
	require.NoError(t, st.Set(storage.KeyUserInfo, "{}"))
	require.NoError(t, st.Set(storage.KeyTheme, "{}"))
	calls := 0
	c := New(Options{Storage: st, Handler: fakeAPI(), OnUnauthorized: func() { calls++ }})

	_, err := c.Get(context.Background(), "/private", nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)

	_, ok := st.Get(storage.KeyToken)
	assert.False(t, ok)
	_, ok = st.Get(storage.KeyUserInfo)
	assert.False(t, ok)
	_, ok = st.Get(storage.KeyTheme)
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestNonOKEnvelopeBecomesAPIError(t *testing.T) {
	c := New(Options{Handler: fakeAPI()})

	_, err := c.Delete(context.Background(), "/conflict", map[string]any{"ids": []string{"a"}}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Code)
	assert.Equal(t, "名称已存在", apiErr.Message)
	assert.True(t, strings.HasPrefix(apiErr.RequestID, "console-"))
	assert.Contains(t, err.Error(), apiErr.RequestID)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	_, err = c.Get(context.Background(), "/broken", nil, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Code)
}

func TestRealTransportAndDownload(t *testing.T) {
	srv := httptest.NewServer(fakeAPI())
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL + "/api/"})

	env, err := c.Get(context.Background(), "/echo", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", env.Message)

	file, err := c.Download(context.Background(), "/export", Params{"ids": "vec_1"})
	require.NoError(t, err)
	assert.Equal(t, "vectors.csv", file.Name)
	assert.Equal(t, "id,title\n", string(file.Data))
	assert.Empty(t, file.Link)
}

func TestCanceledContext(t *testing.T) {
	c := New(Options{Handler: fakeAPI()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "/echo", nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}
