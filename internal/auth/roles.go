package auth

import (
	"fmt"
	"slices"
	"strings"
)

// Role 账号角色。
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole 解析角色字符串，忽略大小写与首尾空白。
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Allowed 未声明角色要求时放行，否则要求 r 在列表中。
func (r Role) Allowed(required ...Role) bool {
	if len(required) == 0 {
		return true
	}
	return slices.Contains(required, r)
}

// RolesOf 将字符串列表转为角色列表，跳过未知取值。
func RolesOf(values []string) []Role {
	roles := make([]Role, 0, len(values))
	for _, v := range values {
		if r, err := ParseRole(v); err == nil {
			roles = append(roles, r)
		}
	}
	return roles
}
