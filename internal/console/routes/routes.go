// Package routes 是控制台的路由表与访问判定。
package routes

import (
	"strings"

	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/console/store"
)

// 固定路由。
const (
	PathLogin     = "/login"
	PathDashboard = "/dashboard"
	PathForbidden = "/403"
	PathNotFound  = "/404"
)

// Route 一条路由。Roles 为空表示所有登录用户可访问；Prefix 为真时匹配其下所有子路径。
type Route struct {
	Path   string
	Title  string
	Roles  []auth.Role
	Public bool
	Prefix bool
}

var (
	writers = []auth.Role{auth.RoleAdmin, auth.RoleEditor}
	admins  = []auth.Role{auth.RoleAdmin}
)

// Table 全部路由，顺序即匹配顺序。
var Table = []Route{
	{Path: PathLogin, Title: "登录", Public: true},
	{Path: PathDashboard, Title: "仪表盘"},
	{Path: "/vector", Title: "向量管理", Roles: writers},
	{Path: "/vector-search", Title: "向量搜索"},
	{Path: "/kb/config", Title: "知识库配置", Roles: writers},
	{Path: "/kb/retrieval", Title: "知识库检索"},
	{Path: "/tools/llm-clean", Title: "大模型输出清洁", Roles: writers},
	{Path: "/log-audit", Title: "日志审计", Roles: admins},
	{Path: "/settings", Title: "系统设置", Roles: admins, Prefix: true},
	{Path: "/profile", Title: "个人中心"},
	{Path: PathForbidden, Title: "无权访问", Public: true},
	{Path: PathNotFound, Title: "页面不存在", Public: true},
}

// Decision Resolve 的结果。Redirect 非空时应跳转到该路径。
type Decision struct {
	Route    *Route
	Redirect string
}

// Allowed 是否直接放行。
func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// Match 查找路径对应的路由。
func Match(path string) (*Route, bool) {
	path = normalize(path)
	for i := range Table {
		r := &Table[i]
		if r.Path == path || (r.Prefix && strings.HasPrefix(path, r.Path+"/")) {
			return r, true
		}
	}
	return nil, false
}

// Resolve 判定 user 能否访问 path。user 为 nil 表示未登录。
// 根路径跳转到仪表盘，未知路径跳转 404，未登录跳转登录页，角色不符跳转 403。
func Resolve(path string, user *store.User) Decision {
	if normalize(path) == "/" {
		return Decision{Redirect: PathDashboard}
	}
	route, ok := Match(path)
	if !ok {
		return Decision{Redirect: PathNotFound}
	}
	if route.Public {
		return Decision{Route: route}
	}
	if user == nil {
		return Decision{Route: route, Redirect: PathLogin}
	}
	if !auth.Role(user.Role).Allowed(route.Roles...) {
		return Decision{Route: route, Redirect: PathForbidden}
	}
	return Decision{Route: route}
}

func normalize(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "#")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// MenuEntry 顶栏全局搜索的候选项。
type MenuEntry struct {
	Title string
	Path  string
}

var searchable = []MenuEntry{
	{"仪表盘", "/dashboard"},
	{"向量管理", "/vector"},
	{"向量搜索", "/vector-search"},
	{"知识库配置", "/kb/config"},
	{"知识库检索", "/kb/retrieval"},
	{"大模型输出清洁", "/tools/llm-clean"},
	{"菜单管理", "/settings/menus"},
	{"用户管理", "/settings/users"},
	{"角色管理", "/settings/roles"},
	{"系统安全", "/settings/security"},
	{"系统日志", "/settings/logs"},
	{"个人中心", "/profile"},
}

// SearchMenus 按标题做不区分大小写的包含匹配；空查询返回 nil。
func SearchMenus(query string) []MenuEntry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var out []MenuEntry
	for _, entry := range searchable {
		if strings.Contains(strings.ToLower(entry.Title), query) {
			out = append(out, entry)
		}
	}
	return out
}
