package database

import (
	"time"

	"gorm.io/datatypes"

	"vectorAdmin/internal/vector"
)

// User 表示控制台账号。用户名与邮箱不做唯一约束。
type User struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	Username     string     `gorm:"index;size:64" json:"username"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Email        string     `gorm:"size:255" json:"email"`
	Role         string     `gorm:"size:32;index" json:"role"`
	Status       string     `gorm:"size:16" json:"status"`
	Avatar       string     `gorm:"size:255" json:"avatar,omitempty"`
	Phone        string     `gorm:"size:32" json:"phone,omitempty"`
	Gender       string     `gorm:"size:16" json:"gender,omitempty"`
	Age          int        `json:"age,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

const (
	UserActive   = "active"
	UserInactive = "inactive"
)

// Role 角色及其权限标签，"all" 表示全部权限。
type Role struct {
	ID          string                      `gorm:"primaryKey;size:64" json:"id"`
	Name        string                      `gorm:"size:64" json:"name"`
	Description string                      `gorm:"size:255" json:"description"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"`
	CreatedAt   time.Time                   `json:"-"`
	UpdatedAt   time.Time                   `json:"-"`
}

// Menu 侧边栏菜单项，Roles 为可见角色列表。
type Menu struct {
	ID       uint                        `gorm:"primaryKey" json:"id"`
	Name     string                      `gorm:"size:64" json:"name"`
	Path     string                      `gorm:"size:128" json:"path"`
	Visible  bool                        `json:"visible"`
	Roles    datatypes.JSONSlice[string] `json:"roles"`
	ParentID *uint                       `json:"parentId,omitempty"`
	Sort     int                         `json:"sort"`
	Children []Menu                      `gorm:"-" json:"children,omitempty"`
}

// IPRecord 访问控制名单。
type IPRecord struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	IP          string     `gorm:"size:64;index" json:"ip"`
	Location    string     `gorm:"size:128" json:"location"`
	Status      string     `gorm:"size:16" json:"status"`
	AccessCount int64      `json:"accessCount"`
	LastAccess  *time.Time `json:"lastAccess"`
}

const (
	IPAllowed = "allowed"
	IPBlocked = "blocked"
)

// SystemLog 审计日志。
type SystemLog struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Action    string    `gorm:"size:64" json:"action"`
	Module    string    `gorm:"size:64" json:"module"`
	Type      string    `gorm:"size:16;index" json:"type"`
	User      string    `gorm:"size:64" json:"user"`
	IP        string    `gorm:"size:64" json:"ip"`
	Details   string    `gorm:"type:text" json:"details"`
	Status    string    `gorm:"size:16;index" json:"status"`
	Timestamp time.Time `gorm:"column:logged_at;index" json:"timestamp"`
}

const (
	LogTypeLogin     = "login"
	LogTypeOperation = "operation"
	LogTypeError     = "error"

	LogSuccess = "success"
	LogFailure = "failure"
)

// Setting 键值形式的系统配置。
type Setting struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"size:1024" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SettingLogRetentionDays 日志保留天数。
const SettingLogRetentionDays = "log.retention_days"

// SettingKBConfig 知识库检索配置（JSON）。
const SettingKBConfig = "kb.config"

// VectorItem 向量集。
type VectorItem struct {
	ID             string                                    `gorm:"primaryKey;size:64" json:"id"`
	Title          string                                    `gorm:"size:255;index" json:"title"`
	Content        string                                    `gorm:"type:text" json:"content"`
	Dimensions     int                                       `json:"dimensions"`
	Source         string                                    `gorm:"size:255" json:"source"`
	Status         vector.Status                             `gorm:"size:16;index" json:"status"`
	IsMultiTable   bool                                      `json:"isMultiTable"`
	SelectedFields datatypes.JSONSlice[vector.SelectedField] `json:"selectedFields"`
	JoinRules      datatypes.JSONType[*vector.JoinRules]     `json:"joinRules"`
	IndexConfig    datatypes.JSONType[vector.IndexConfig]    `json:"indexConfig"`
	IsEnabled      bool                                      `json:"isEnabled"`
	CronConfig     datatypes.JSONType[vector.CronConfig]     `json:"cronConfig"`
	CreatedAt      time.Time                                 `json:"createdAt"`
	UpdatedAt      time.Time                                 `json:"updatedAt"`
	CreatedBy      string                                    `gorm:"size:64" json:"createdBy"`
	UpdatedBy      string                                    `gorm:"size:64" json:"updatedBy"`
}

// Task 状态取值。
const (
	TaskPending    = "Pending"
	TaskInProgress = "In Progress"
	TaskCompleted  = "Completed"
	TaskFailed     = "Failed"
)

// BackgroundTask 后台任务，进度 0-100。
type BackgroundTask struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	Status    string    `gorm:"size:16;index" json:"status"`
	Progress  int       `json:"progress"`
	StartTime time.Time `json:"startTime"`
	VectorID  string    `gorm:"size:64;index" json:"vectorId,omitempty"`
	UserID    string    `gorm:"size:64;index" json:"userId,omitempty"`
}

// Notification 站内通知。
type Notification struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"userId"`
	Title     string    `gorm:"size:255" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Type      string    `gorm:"size:16" json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"time"`
}

const (
	NotifySuccess = "success"
	NotifyInfo    = "info"
	NotifyWarning = "warning"
	NotifyError   = "error"
)

// CatalogDatabase 向导可选的数据源。
type CatalogDatabase struct {
	ID   string `gorm:"primaryKey;size:64" json:"id"`
	Name string `gorm:"size:128" json:"name"`
	Type string `gorm:"size:32" json:"type"`
}

// CatalogTable 数据源下的表。没有主键的表不能被选中。
type CatalogTable struct {
	ID            string `gorm:"primaryKey;size:64" json:"id"`
	DatabaseID    string `gorm:"size:64;index" json:"databaseId"`
	Name          string `gorm:"size:128" json:"name"`
	Rows          int64  `json:"rows"`
	HasPrimaryKey bool   `json:"hasPrimaryKey"`
}

// CatalogField 表字段，字段 ID 在表内唯一。
type CatalogField struct {
	TableID string `gorm:"primaryKey;size:64" json:"tableId"`
	ID      string `gorm:"primaryKey;size:64" json:"id"`
	Name    string `gorm:"size:128" json:"name"`
	Type    string `gorm:"size:32" json:"type"`
}

// AllModels 返回需要迁移的全部模型。
func AllModels() []any {
	return []any{
		&User{},
		&Role{},
		&Menu{},
		&IPRecord{},
		&SystemLog{},
		&Setting{},
		&VectorItem{},
		&BackgroundTask{},
		&Notification{},
		&CatalogDatabase{},
		&CatalogTable{},
		&CatalogField{},
	}
}
