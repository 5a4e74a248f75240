package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/database"
)

func TestLoginSuccessAndFailure(t *testing.T) {
	s := newTestServer(t)

	_, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "admin", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, env.Code)
	assert.Equal(t, "用户名或密码错误", env.Message)

	_, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "admin", "password": database.DefaultPassword, "rememberMe": true,
	})
	require.Equal(t, http.StatusOK, env.Code)
	resp := decode[loginResponse](t, env.Data)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Positive(t, resp.RememberExpiresAt)
	assert.Equal(t, "admin", resp.User.Username)

	var logs []database.SystemLog
	require.NoError(t, s.db.Where("type = ? AND module = ?", database.LogTypeLogin, "auth").Find(&logs).Error)
	statuses := map[string]int{}
	for _, l := range logs {
		statuses[l.Status]++
	}
	assert.Equal(t, 1, statuses[database.LogSuccess])
	assert.Equal(t, 1, statuses[database.LogFailure])
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.db.Model(&database.User{}).Where("id = ?", "3").Update("status", database.UserInactive).Error)

	_, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "viewer", "password": database.DefaultPassword,
	})
	assert.Equal(t, http.StatusForbidden, env.Code)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 5; i++ {
		s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "editor", "password": "bad"})
	}
	_, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "editor", "password": database.DefaultPassword,
	})
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
}

func TestCaptchaRequiredLogin(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Config.Auth.CaptchaRequired = true
		d.Captcha = auth.NewCaptchaService(d.Cache, d.Config.Auth.CaptchaTTL)
		d.Captcha.Generate = func(int) (string, error) { return "AB12", nil }
	})

	issue := func() auth.Captcha {
		_, env := s.do(t, http.MethodGet, "/api/auth/captcha", "", nil)
		require.Equal(t, http.StatusOK, env.Code)
		c := decode[auth.Captcha](t, env.Data)
		assert.Contains(t, c.Image, "data:image/svg+xml;base64,")
		return c
	}

	c := issue()
	_, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "admin", "password": database.DefaultPassword, "key": c.Key, "captcha": "zzzz",
	})
	assert.Equal(t, http.StatusBadRequest, env.Code)

	// 验证码只能使用一次
	_, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "admin", "password": database.DefaultPassword, "key": c.Key, "captcha": "AB12",
	})
	assert.Equal(t, http.StatusBadRequest, env.Code)

	c = issue()
	_, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "admin", "password": database.DefaultPassword, "key": c.Key, "captcha": "ab12",
	})
	assert.Equal(t, http.StatusOK, env.Code)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "admin", "password": database.DefaultPassword,
	})
	first := decode[loginResponse](t, env.Data)

	_, env = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": first.RefreshToken})
	require.Equal(t, http.StatusOK, env.Code)
	second := decode[loginResponse](t, env.Data)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, env = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/auth/logout", second.Token, map[string]any{"refreshToken": second.RefreshToken})
	require.Equal(t, http.StatusOK, env.Code)
	_, env = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": second.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, env.Code)
}

func TestMeFiltersMenusByRole(t *testing.T) {
	s := newTestServer(t)

	_, env := s.do(t, http.MethodGet, "/api/auth/me", s.login(t, "viewer"), nil)
	require.Equal(t, http.StatusOK, env.Code)
	var me struct {
		User  database.User   `json:"user"`
		Menus []database.Menu `json:"menus"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "viewer", me.User.Username)
	paths := make([]string, 0, len(me.Menus))
	for _, m := range me.Menus {
		paths = append(paths, m.Path)
	}
	assert.Equal(t, []string{"/dashboard", "/vector-search", "/kb/retrieval"}, paths)

	_, env = s.do(t, http.MethodGet, "/api/auth/me", s.login(t, "admin"), nil)
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Len(t, me.Menus, 11)
}

func TestMeWithoutTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, env.Code)
}

func TestMenuTreeNestsChildren(t *testing.T) {
	parent := uint(1)
	tree := menuTree([]database.Menu{
		{ID: 2, Name: "child", ParentID: &parent, Sort: 2},
		{ID: 1, Name: "root", Sort: 1},
		{ID: 3, Name: "other", Sort: 0},
	})
	require.Len(t, tree, 2)
	assert.Equal(t, "other", tree[0].Name)
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, "child", tree[1].Children[0].Name)
}

func TestProfileUpdateAndPassword(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "editor")

	_, env := s.do(t, http.MethodPut, "/api/profile", token, map[string]any{"phone": "123", "age": 40, "role": "admin"})
	require.Equal(t, http.StatusOK, env.Code)

	var user database.User
	require.NoError(t, s.db.First(&user, "id = ?", "2").Error)
	assert.Equal(t, "123", user.Phone)
	assert.Equal(t, 40, user.Age)
	assert.Equal(t, "editor", user.Role)

	_, env = s.do(t, http.MethodPut, "/api/profile/password", token, map[string]any{"oldPassword": "nope", "newPassword": "abcd"})
	assert.Equal(t, http.StatusBadRequest, env.Code)
	_, env = s.do(t, http.MethodPut, "/api/profile/password", token, map[string]any{"oldPassword": database.DefaultPassword, "newPassword": "abcd"})
	require.Equal(t, http.StatusOK, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "editor", "password": "abcd"})
	assert.Equal(t, http.StatusOK, env.Code)
}
