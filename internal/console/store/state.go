// Package store 是控制台的全局状态：主题、当前用户、后台任务与通知。
// 所有变更通过 Dispatch 提交 Action，由纯函数 Reduce 计算新状态。
package store

import (
	"time"
)

// ThemeMode 主题模式。
type ThemeMode string

const (
	ThemeLight  ThemeMode = "light"
	ThemeDark   ThemeMode = "dark"
	ThemeSystem ThemeMode = "system"
)

// PageTransition 页面切换动画。
type PageTransition string

const (
	TransitionFade  PageTransition = "fade"
	TransitionSlide PageTransition = "slide"
	TransitionScale PageTransition = "scale"
	TransitionNone  PageTransition = "none"
)

// User 当前登录用户，与 /auth/me 返回的字段一致。
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	Avatar    string     `json:"avatar,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	Age       int        `json:"age,omitempty"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

// 任务状态，与服务端一致。
const (
	TaskInProgress = "In Progress"
	TaskCompleted  = "Completed"
	TaskFailed     = "Failed"
)

// Task 后台任务。
type Task struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	StartTime time.Time `json:"startTime"`
}

// Notification 通知中心条目。
type Notification struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Type    string    `json:"type"`
	Read    bool      `json:"read"`
	Time    time.Time `json:"time"`
}

// AppState 全局状态。
type AppState struct {
	ThemeMode      ThemeMode
	PrimaryColor   string
	FontSize       int
	PageTransition PageTransition
	User           *User
	Tasks          []Task
	Notifications  []Notification
}

// InitialState 默认浅色主题、蓝色主色、16px 字号、淡入动画。
func InitialState() AppState {
	return AppState{
		ThemeMode:      ThemeLight,
		PrimaryColor:   "#2563eb",
		FontSize:       16,
		PageTransition: TransitionFade,
	}
}

// UnreadCount 未读通知数。
func (s AppState) UnreadCount() int {
	n := 0
	for _, note := range s.Notifications {
		if !note.Read {
			n++
		}
	}
	return n
}

// Authenticated 是否有当前用户。
func (s AppState) Authenticated() bool {
	return s.User != nil
}
