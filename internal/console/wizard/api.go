package wizard

import (
	"context"
	"fmt"

	"vectorAdmin/internal/console/client"
	"vectorAdmin/internal/console/store"
	"vectorAdmin/internal/vector"
)

// Database 可选数据源。
type Database struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table 数据源下的表。没有主键的表不能参与向量化。
type Table struct {
	ID            string `json:"id"`
	DatabaseID    string `json:"databaseId"`
	Name          string `json:"name"`
	Rows          int    `json:"rows"`
	HasPrimaryKey bool   `json:"hasPrimaryKey"`
}

// Field 表字段。
type Field struct {
	ID      string `json:"id"`
	TableID string `json:"tableId"`
	Name    string `json:"name"`
	Type    string `json:"type"`
}

// CreateRequest 提交给 POST /vectors 的内容。
type CreateRequest struct {
	Title          string                 `json:"title"`
	DatabaseID     string                 `json:"databaseId"`
	SelectedFields []vector.SelectedField `json:"selectedFields"`
	JoinRules      *vector.JoinRules      `json:"joinRules,omitempty"`
	IndexConfig    *vector.IndexConfig    `json:"indexConfig,omitempty"`
	TaskID         string                 `json:"taskId,omitempty"`
}

// CreateResult 服务端返回的任务与向量集 ID。
type CreateResult struct {
	TaskID   string `json:"taskId"`
	VectorID string `json:"vectorId"`
}

// API 向导依赖的服务端能力。
type API interface {
	CheckName(ctx context.Context, title string) (bool, error)
	Databases(ctx context.Context) ([]Database, error)
	Tables(ctx context.Context, dbID string) ([]Table, error)
	Fields(ctx context.Context, tableID string) ([]Field, error)
	Create(ctx context.Context, req CreateRequest) (CreateResult, error)
	RegisterTask(ctx context.Context, name string, progress int) (store.Task, error)
}

type clientAPI struct {
	c *client.Client
}

// NewClientAPI 基于请求门面的 API 实现。
func NewClientAPI(c *client.Client) API {
	return clientAPI{c: c}
}

func (a clientAPI) CheckName(ctx context.Context, title string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if _, err := a.c.Post(ctx, "/vectors/check-name", map[string]string{"title": title}, &out); err != nil {
		return false, fmt.Errorf("check name: %w", err)
	}
	return out.Exists, nil
}

func (a clientAPI) Databases(ctx context.Context) ([]Database, error) {
	var out []Database
	if _, err := a.c.Get(ctx, "/vectors/wizard/databases", nil, &out); err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return out, nil
}

func (a clientAPI) Tables(ctx context.Context, dbID string) ([]Table, error) {
	var out []Table
	if _, err := a.c.Get(ctx, "/vectors/wizard/tables", client.Params{"dbId": dbID}, &out); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out, nil
}

func (a clientAPI) Fields(ctx context.Context, tableID string) ([]Field, error) {
	var out []Field
	if _, err := a.c.Get(ctx, "/vectors/wizard/fields", client.Params{"tableId": tableID}, &out); err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return out, nil
}

func (a clientAPI) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	var out CreateResult
	if _, err := a.c.Post(ctx, "/vectors", req, &out); err != nil {
		return CreateResult{}, fmt.Errorf("create vector: %w", err)
	}
	return out, nil
}

func (a clientAPI) RegisterTask(ctx context.Context, name string, progress int) (store.Task, error) {
	var out store.Task
	if _, err := a.c.Post(ctx, "/tasks", map[string]any{"name": name, "progress": progress}, &out); err != nil {
		return store.Task{}, fmt.Errorf("register task: %w", err)
	}
	return out, nil
}
