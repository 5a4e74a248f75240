package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/vector"
)

// DefaultPassword 种子账号的初始密码。
const DefaultPassword = "123"

// NewID 生成带前缀的短 ID，例如 vec_1a2b3c4d5e6f。
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Seed 写入演示数据。每张表仅在为空时写入，可重复执行。
func Seed(ctx context.Context, db *gorm.DB) error {
	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	steps := []struct {
		model any
		rows  any
	}{
		{&User{}, seedUsers(hash, now)},
		{&Role{}, seedRoles()},
		{&Menu{}, seedMenus()},
		{&IPRecord{}, seedIPs(now)},
		{&VectorItem{}, seedVectors(now)},
		{&BackgroundTask{}, seedTasks(now)},
		{&SystemLog{}, seedLogs(now)},
		{&Setting{}, []Setting{{Key: SettingLogRetentionDays, Value: "30"}}},
		{&CatalogDatabase{}, seedDatabases()},
		{&CatalogTable{}, seedTables()},
		{&CatalogField{}, seedFields()},
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, step := range steps {
			var count int64
			if err := tx.Model(step.model).Count(&count).Error; err != nil {
				return fmt.Errorf("count %T: %w", step.model, err)
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(step.rows).Error; err != nil {
				return fmt.Errorf("seed %T: %w", step.model, err)
			}
		}
		return nil
	})
}

func seedUsers(hash string, now time.Time) []User {
	return []User{
		{ID: "1", Username: "admin", PasswordHash: hash, Email: "admin@vector.com", Role: "admin", Status: UserActive, Avatar: "AD", Phone: "13800000001", Gender: "male", Age: 30, LastLogin: &now},
		{ID: "2", Username: "editor", PasswordHash: hash, Email: "editor@vector.com", Role: "editor", Status: UserActive, Avatar: "ED", Phone: "13900000002", Gender: "female", Age: 28, LastLogin: &now},
		{ID: "3", Username: "viewer", PasswordHash: hash, Email: "viewer@vector.com", Role: "viewer", Status: UserActive, Avatar: "VI", Phone: "13700000003", Gender: "other", Age: 25, LastLogin: &now},
	}
}

func seedRoles() []Role {
	return []Role{
		{ID: "1", Name: "超级管理员", Description: "拥有所有权限", Permissions: []string{"all"}},
		{ID: "2", Name: "编辑人员", Description: "负责数据维护", Permissions: []string{"vector.read", "vector.write"}},
		{ID: "3", Name: "只读访客", Description: "仅供查看", Permissions: []string{"vector.read"}},
	}
}

func seedMenus() []Menu {
	all := []string{"admin", "editor", "viewer"}
	writers := []string{"admin", "editor"}
	admin := []string{"admin"}
	return []Menu{
		{ID: 1, Name: "仪表盘", Path: "/dashboard", Visible: true, Roles: all, Sort: 1},
		{ID: 2, Name: "向量管理", Path: "/vector", Visible: true, Roles: writers, Sort: 2},
		{ID: 3, Name: "向量搜索", Path: "/vector-search", Visible: true, Roles: all, Sort: 3},
		{ID: 4, Name: "知识库配置", Path: "/kb/config", Visible: true, Roles: writers, Sort: 4},
		{ID: 5, Name: "知识库检索", Path: "/kb/retrieval", Visible: true, Roles: all, Sort: 5},
		{ID: 6, Name: "大模型输出清洁", Path: "/tools/llm-clean", Visible: true, Roles: writers, Sort: 6},
		{ID: 7, Name: "菜单管理", Path: "/settings/menus", Visible: true, Roles: admin, Sort: 7},
		{ID: 8, Name: "角色管理", Path: "/settings/roles", Visible: true, Roles: admin, Sort: 8},
		{ID: 9, Name: "用户管理", Path: "/settings/users", Visible: true, Roles: admin, Sort: 9},
		{ID: 10, Name: "系统安全", Path: "/settings/security", Visible: true, Roles: admin, Sort: 10},
		{ID: 11, Name: "系统日志", Path: "/settings/logs", Visible: true, Roles: admin, Sort: 11},
	}
}

func seedIPs(now time.Time) []IPRecord {
	return []IPRecord{
		{ID: "1", IP: "192.168.1.10", Location: "内部网络", Status: IPAllowed, AccessCount: 1200, LastAccess: &now},
		{ID: "2", IP: "202.100.20.5", Location: "北京", Status: IPBlocked, AccessCount: 5, LastAccess: &now},
	}
}

func seedVectors(now time.Time) []VectorItem {
	items := make([]VectorItem, 0, 12)
	for i := 0; i < 12; i++ {
		item := VectorItem{
			ID:           fmt.Sprintf("vec_%d", i+1),
			Title:        fmt.Sprintf("企业知识库_Wiki_%d", i+1),
			Content:      "Mock content...",
			Dimensions:   1536,
			Source:       "PDF: manual.pdf",
			Status:       vector.StatusIndexed,
			IsMultiTable: i%3 == 0,
			SelectedFields: []vector.SelectedField{
				{TableID: "t1", FieldID: "title", Name: "title"},
				{TableID: "t1", FieldID: "content", Name: "content"},
			},
			IndexConfig: datatypes.NewJSONType(vector.DefaultIndexConfig()),
			IsEnabled:   true,
			CronConfig:  datatypes.NewJSONType(vector.CronConfig{}),
			CreatedAt:   now.Add(-time.Duration(i) * 24 * time.Hour),
			UpdatedAt:   now,
			CreatedBy:   "admin",
			UpdatedBy:   "admin",
		}
		if i%2 == 0 {
			item.Source = "MySQL: products"
		}
		if i%5 == 0 {
			item.Status = vector.StatusError
		}
		if item.IsMultiTable {
			item.JoinRules = datatypes.NewJSONType(&vector.JoinRules{
				Type:         vector.JoinOneToOne,
				LeftTableID:  "t1",
				RightTableID: "t2",
				Conditions:   []vector.JoinCondition{{LeftFieldID: "id", RightFieldID: "user_id"}},
			})
		}
		items = append(items, item)
	}
	return items
}

func seedTasks(now time.Time) []BackgroundTask {
	return []BackgroundTask{
		{ID: "t1", Name: "索引构建: Wiki_Base", Status: TaskInProgress, Progress: 45, StartTime: now, UserID: "1"},
	}
}

func seedLogs(now time.Time) []SystemLog {
	logs := make([]SystemLog, 0, 20)
	for i := 0; i < 20; i++ {
		entry := SystemLog{
			ID:        fmt.Sprintf("log_%d", i),
			Action:    "VECTOR_UPDATE",
			Module:    "Core",
			Type:      LogTypeOperation,
			User:      "admin",
			IP:        "127.0.0.1",
			Details:   "Mock Log Details...",
			Status:    LogSuccess,
			Timestamp: now.Add(-time.Duration(i) * 100 * time.Second),
		}
		if i%2 == 0 {
			entry.Action = "LOGIN"
		}
		if i%5 == 0 {
			entry.Type = LogTypeError
			entry.Status = LogFailure
		}
		logs = append(logs, entry)
	}
	return logs
}

func seedDatabases() []CatalogDatabase {
	return []CatalogDatabase{
		{ID: "db1", Name: "Product DB (MySQL)", Type: "mysql"},
		{ID: "db2", Name: "User Logs (Mongo)", Type: "mongo"},
	}
}

func seedTables() []CatalogTable {
	return []CatalogTable{
		{ID: "t1", DatabaseID: "db1", Name: "users", Rows: 1000, HasPrimaryKey: true},
		{ID: "t2", DatabaseID: "db1", Name: "orders", Rows: 5000, HasPrimaryKey: true},
		{ID: "t3", DatabaseID: "db1", Name: "logs_temp", Rows: 0, HasPrimaryKey: false},
		{ID: "t4", DatabaseID: "db2", Name: "access_logs", Rows: 20000, HasPrimaryKey: true},
	}
}

func seedFields() []CatalogField {
	var fields []CatalogField
	for _, table := range []string{"t1", "t2", "t3", "t4"} {
		fields = append(fields,
			CatalogField{TableID: table, ID: "f1", Name: "id", Type: "INT"},
			CatalogField{TableID: table, ID: "f2", Name: "username", Type: "VARCHAR"},
			CatalogField{TableID: table, ID: "f3", Name: "bio", Type: "TEXT"},
		)
	}
	return fields
}
