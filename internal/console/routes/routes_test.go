package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vectorAdmin/internal/console/store"
)

func TestResolve(t *testing.T) {
	admin := &store.User{Username: "admin", Role: "admin"}
	editor := &store.User{Username: "editor", Role: "editor"}
	viewer := &store.User{Username: "viewer", Role: "viewer"}

	cases := []struct {
		name     string
		path     string
		user     *store.User
		redirect string
	}{
		{"anonymous to login", "/dashboard", nil, PathLogin},
		{"login is public", "/login", nil, ""},
		{"404 is public", "/404", nil, ""},
		{"root goes to dashboard", "/", viewer, PathDashboard},
		{"unknown path", "/nowhere", admin, PathNotFound},
		{"unknown path anonymous", "/nowhere", nil, PathNotFound},
		{"viewer blocked from vector", "/vector", viewer, PathForbidden},
		{"editor allowed vector", "/vector", editor, ""},
		{"viewer allowed search", "/vector-search", viewer, ""},
		{"editor blocked from settings", "/settings/users", editor, PathForbidden},
		{"admin settings subpath", "/settings/logs", admin, ""},
		{"hash form", "#/kb/config?tab=1", editor, ""},
		{"trailing slash", "/profile/", viewer, ""},
		{"log audit admin only", "/log-audit", editor, PathForbidden},
		{"unknown role", "/dashboard", &store.User{Role: "guest"}, ""},
		{"unknown role gated", "/kb/config", &store.User{Role: "guest"}, PathForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Resolve(tc.path, tc.user)
			assert.Equal(t, tc.redirect, d.Redirect)
			assert.Equal(t, tc.redirect == "", d.Allowed())
		})
	}
}

func TestSearchMenus(t *testing.T) {
	assert.Nil(t, SearchMenus("  "))

	hits := SearchMenus("知识库")
	assert.Equal(t, []MenuEntry{{"知识库配置", "/kb/config"}, {"知识库检索", "/kb/retrieval"}}, hits)

	assert.Len(t, SearchMenus("管理"), 4)
	assert.Empty(t, SearchMenus("zzz"))
}
