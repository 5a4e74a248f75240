package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/database"
	"vectorAdmin/internal/vector"
)

func TestVectorListFiltersAndPaginates(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "editor")

	cases := []struct {
		query     string
		wantLen   int
		wantTotal int64
	}{
		{"", 10, 12},
		{"?page=2", 2, 12},
		{"?pageSize=5&page=3", 2, 12},
		{"?status=error", 3, 3},
		{"?status=all&keyword=Wiki_1", 4, 4},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			_, env := s.do(t, http.MethodGet, "/api/vectors"+tc.query, token, nil)
			require.Equal(t, http.StatusOK, env.Code)
			page := decode[Page[database.VectorItem]](t, env.Data)
			assert.Len(t, page.List, tc.wantLen)
			assert.Equal(t, tc.wantTotal, page.Total)
		})
	}
}

func TestVectorListKeywordIsLiteral(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "editor")

	_, env := s.do(t, http.MethodPost, "/api/vectors", token, map[string]any{
		"title": "WikiX1_KB", "selectedFields": singleTableFields(),
	})
	require.Equal(t, http.StatusOK, env.Code, env.Message)
	s.enqueuer.Wait()

	cases := []struct {
		keyword string
		want    int64
	}{
		{"Wiki_1", 4},
		{"WikiX1", 1},
		{"%", 0},
		{"_", 13},
		{`\`, 0},
	}
	for _, tc := range cases {
		_, env = s.do(t, http.MethodGet, "/api/vectors?keyword="+url.QueryEscape(tc.keyword), token, nil)
		require.Equal(t, http.StatusOK, env.Code)
		assert.Equal(t, tc.want, decode[Page[database.VectorItem]](t, env.Data).Total, tc.keyword)
	}
}

func TestVectorRoutesRequireWriterRole(t *testing.T) {
	s := newTestServer(t)
	viewer := s.login(t, "viewer")

	_, env := s.do(t, http.MethodGet, "/api/vectors", viewer, nil)
	assert.Equal(t, http.StatusForbidden, env.Code)

	_, env = s.do(t, http.MethodGet, "/api/vectors/simple-list", viewer, nil)
	require.Equal(t, http.StatusOK, env.Code)
	assert.Len(t, decode[[]simpleVector](t, env.Data), 12)
}

func TestVectorGetAndNotFound(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin")

	_, env := s.do(t, http.MethodGet, "/api/vectors/vec_1", token, nil)
	require.Equal(t, http.StatusOK, env.Code)
	item := decode[database.VectorItem](t, env.Data)
	require.NotNil(t, item.JoinRules.Data())
	assert.Equal(t, vector.JoinOneToOne, item.JoinRules.Data().Type)

	_, env = s.do(t, http.MethodGet, "/api/vectors/vec_404", token, nil)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func singleTableFields() []vector.SelectedField {
	return []vector.SelectedField{{TableID: "t1", FieldID: "f1", Name: "id"}, {TableID: "t1", FieldID: "f2", Name: "username"}}
}

func TestVectorCreateStartsIndexTask(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "editor")

	_, env := s.do(t, http.MethodPost, "/api/vectors", token, map[string]any{
		"title":          "New_KB",
		"databaseId":     "db1",
		"selectedFields": singleTableFields(),
	})
	require.Equal(t, http.StatusOK, env.Code, env.Message)
	resp := decode[createVectorResponse](t, env.Data)
	s.enqueuer.Wait()

	var item database.VectorItem
	require.NoError(t, s.db.First(&item, "id = ?", resp.VectorID).Error)
	assert.Equal(t, vector.StatusPending, item.Status)
	assert.Equal(t, "Product DB (MySQL) (users)", strings.TrimPrefix(item.Source, "DB: "))
	assert.Equal(t, "editor", item.CreatedBy)
	assert.False(t, item.IsMultiTable)
	assert.Nil(t, item.JoinRules.Data())
	assert.Equal(t, vector.IndexHNSW, item.IndexConfig.Data().IndexType)

	var task database.BackgroundTask
	require.NoError(t, s.db.First(&task, "id = ?", resp.TaskID).Error)
	assert.Equal(t, database.TaskInProgress, task.Status)
	assert.Equal(t, vector.IndexTaskName("New_KB"), task.Name)
	assert.Equal(t, "2", task.UserID)
	assert.Equal(t, item.ID, task.VectorID)

	// 同名冲突
	_, env = s.do(t, http.MethodPost, "/api/vectors", token, map[string]any{
		"title": "New_KB", "selectedFields": singleTableFields(),
	})
	assert.Equal(t, http.StatusConflict, env.Code)
}

func TestVectorCreateValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin")

	multi := []vector.SelectedField{{TableID: "t1", FieldID: "f1"}, {TableID: "t2", FieldID: "f1"}}
	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad title", map[string]any{"title": "has space", "selectedFields": singleTableFields()}},
		{"no fields", map[string]any{"title": "ok_name"}},
		{"multi without join", map[string]any{"title": "ok_name", "selectedFields": multi}},
		{"join same table", map[string]any{"title": "ok_name", "selectedFields": multi, "joinRules": map[string]any{
			"type": "one_to_one", "leftTableId": "t1", "rightTableId": "t1",
			"conditions": []map[string]string{{"leftFieldId": "f1", "rightFieldId": "f1"}},
		}}},
		{"bad index", map[string]any{"title": "ok_name", "selectedFields": singleTableFields(), "indexConfig": map[string]any{"indexType": "lsh"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, env := s.do(t, http.MethodPost, "/api/vectors", token, tc.body)
			assert.Equal(t, http.StatusBadRequest, env.Code)
		})
	}

	// 历史格式：字符串形式的关联规则
	_, env := s.do(t, http.MethodPost, "/api/vectors", token, map[string]any{
		"title":          "Joined",
		"selectedFields": multi,
		"joinRules":      `{"type":"one_to_many","leftTableId":"t1","rightTableId":"t2","conditions":[{"leftFieldId":"f1","rightFieldId":"f1"}]}`,
	})
	require.Equal(t, http.StatusOK, env.Code, env.Message)
	resp := decode[createVectorResponse](t, env.Data)
	var item database.VectorItem
	require.NoError(t, s.db.First(&item, "id = ?", resp.VectorID).Error)
	assert.True(t, item.IsMultiTable)
	assert.Equal(t, vector.JoinOneToMany, item.JoinRules.Data().Type)
}

func TestVectorCreateLinksBackgroundTask(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin")

	_, env := s.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"name": "索引构建: Bg_KB", "progress": 40})
	require.Equal(t, http.StatusOK, env.Code)
	registered := decode[database.BackgroundTask](t, env.Data)
	assert.Equal(t, database.TaskInProgress, registered.Status)

	_, env = s.do(t, http.MethodPost, "/api/vectors", token, map[string]any{
		"title": "Bg_KB", "selectedFields": singleTableFields(), "taskId": registered.ID,
	})
	require.Equal(t, http.StatusOK, env.Code)
	resp := decode[createVectorResponse](t, env.Data)
	assert.Equal(t, registered.ID, resp.TaskID)
	s.enqueuer.Wait()

	var task database.BackgroundTask
	require.NoError(t, s.db.First(&task, "id = ?", registered.ID).Error)
	assert.Equal(t, resp.VectorID, task.VectorID)
	assert.Equal(t, 40, task.Progress)

	var count int64
	require.NoError(t, s.db.Model(&database.BackgroundTask{}).Where("vector_id = ?", resp.VectorID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestVectorCreateRejectsUnlinkableTask(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin")
	editor := s.login(t, "editor")

	_, env := s.do(t, http.MethodPost, "/api/tasks", admin, map[string]any{"name": "索引构建: Admin_KB", "progress": 10})
	require.Equal(t, http.StatusOK, env.Code)
	adminTask := decode[database.BackgroundTask](t, env.Data)

	// 他人的任务
	_, env = s.do(t, http.MethodPost, "/api/vectors", editor, map[string]any{
		"title": "Editor_KB", "selectedFields": singleTableFields(), "taskId": adminTask.ID,
	})
	assert.Equal(t, http.StatusConflict, env.Code)

	// 已关联向量集的任务
	_, env = s.do(t, http.MethodPost, "/api/tasks", editor, map[string]any{"name": "索引构建: vec_1", "vectorId": "vec_1"})
	require.Equal(t, http.StatusOK, env.Code)
	linked := decode[database.BackgroundTask](t, env.Data)
	_, env = s.do(t, http.MethodPost, "/api/vectors", editor, map[string]any{
		"title": "Editor_KB", "selectedFields": singleTableFields(), "taskId": linked.ID,
	})
	assert.Equal(t, http.StatusConflict, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/vectors", editor, map[string]any{
		"title": "Editor_KB", "selectedFields": singleTableFields(), "taskId": "t_missing",
	})
	assert.Equal(t, http.StatusConflict, env.Code)

	var count int64
	require.NoError(t, s.db.Model(&database.VectorItem{}).Where("title = ?", "Editor_KB").Count(&count).Error)
	assert.Zero(t, count)
	var stillLinked, untouched database.BackgroundTask
	require.NoError(t, s.db.First(&stillLinked, "id = ?", linked.ID).Error)
	assert.Equal(t, "vec_1", stillLinked.VectorID)
	require.NoError(t, s.db.First(&untouched, "id = ?", adminTask.ID).Error)
	assert.Empty(t, untouched.VectorID)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, *asynq.Task) error {
	return errors.New("redis unavailable")
}

func TestVectorCreateEnqueueFailureMarksError(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Enqueuer = failingEnqueuer{} })
	token := s.login(t, "editor")

	_, env := s.do(t, http.MethodPost, "/api/vectors", token, map[string]any{
		"title": "Lost_KB", "selectedFields": singleTableFields(),
	})
	require.Equal(t, http.StatusInternalServerError, env.Code)

	var item database.VectorItem
	require.NoError(t, s.db.First(&item, "title = ?", "Lost_KB").Error)
	assert.Equal(t, vector.StatusError, item.Status)
	var task database.BackgroundTask
	require.NoError(t, s.db.First(&task, "vector_id = ?", item.ID).Error)
	assert.Equal(t, database.TaskFailed, task.Status)
}

func TestVectorUpdateTitleStatusAndDelete(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin")

	_, env := s.do(t, http.MethodPut, "/api/vectors/vec_2", token, map[string]any{"title": "Renamed_2", "status": "error"})
	require.Equal(t, http.StatusOK, env.Code)
	_, env = s.do(t, http.MethodPut, "/api/vectors/vec_2/status", token, map[string]any{"isEnabled": false})
	require.Equal(t, http.StatusOK, env.Code)

	var item database.VectorItem
	require.NoError(t, s.db.First(&item, "id = ?", "vec_2").Error)
	assert.Equal(t, "Renamed_2", item.Title)
	assert.Equal(t, vector.StatusIndexed, item.Status)
	assert.False(t, item.IsEnabled)

	_, env = s.do(t, http.MethodPut, "/api/vectors/vec_2/status", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, env.Code)

	_, env = s.do(t, http.MethodDelete, "/api/vectors/vec_2", token, nil)
	require.Equal(t, http.StatusOK, env.Code)
	_, env = s.do(t, http.MethodDelete, "/api/vectors/vec_2", token, nil)
	assert.Equal(t, http.StatusNotFound, env.Code)

	_, env = s.do(t, http.MethodDelete, "/api/vectors", token, map[string]any{"ids": []string{"vec_3", "vec_4", "missing"}})
	require.Equal(t, http.StatusOK, env.Code)
	var total int64
	require.NoError(t, s.db.Model(&database.VectorItem{}).Count(&total).Error)
	assert.EqualValues(t, 9, total)
	assert.GreaterOrEqual(t, s.reloader.Calls(), 3)

	// 写操作留下审计日志
	var audits int64
	require.NoError(t, s.db.Model(&database.SystemLog{}).Where("type = ? AND module = ?", database.LogTypeOperation, "vectors").Count(&audits).Error)
	assert.EqualValues(t, 6, audits)
}

func TestVectorSyncConfigAndCheckName(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "editor")

	_, env := s.do(t, http.MethodPost, "/api/vectors/vec_1/sync-config", token, map[string]any{"enabled": true, "expression": "not cron"})
	assert.Equal(t, http.StatusBadRequest, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/vectors/vec_1/sync-config", token, map[string]any{"enabled": true, "expression": "0 */2 * * *"})
	require.Equal(t, http.StatusOK, env.Code)
	var item database.VectorItem
	require.NoError(t, s.db.First(&item, "id = ?", "vec_1").Error)
	assert.Equal(t, vector.CronConfig{Enabled: true, Expression: "0 */2 * * *"}, item.CronConfig.Data())
	assert.Equal(t, 1, s.reloader.Calls())

	_, env = s.do(t, http.MethodPost, "/api/vectors/check-name", token, map[string]any{"title": "企业知识库_Wiki_1"})
	assert.JSONEq(t, `{"exists":true}`, string(env.Data))
	_, env = s.do(t, http.MethodPost, "/api/vectors/check-name", token, map[string]any{"title": "Unused"})
	assert.JSONEq(t, `{"exists":false}`, string(env.Data))
}

func TestVectorExportStreamsCSV(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin")

	w, _ := s.do(t, http.MethodGet, "/api/vectors/export?ids=vec_1,vec_2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	body := bytes.TrimPrefix(w.Body.Bytes(), []byte("\ufeff"))
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
}

func TestVectorExportUploadsToStorage(t *testing.T) {
	exports := &fakeExports{objects: map[string][]byte{}}
	s := newTestServer(t, func(d *Deps) { d.Exports = exports })
	token := s.login(t, "admin")

	_, env := s.do(t, http.MethodPost, "/api/vectors/export", token, map[string]any{"ids": []string{"vec_5"}})
	require.Equal(t, http.StatusOK, env.Code)
	resp := decode[exportResponse](t, env.Data)
	assert.True(t, strings.HasPrefix(resp.ObjectKey, "exports/admin/"))
	assert.Contains(t, resp.URL, resp.ObjectKey)
	assert.Contains(t, string(exports.objects[resp.ObjectKey]), "vec_5")
}

func TestWizardCatalog(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "editor")

	_, env := s.do(t, http.MethodGet, "/api/vectors/wizard/databases", token, nil)
	assert.Len(t, decode[[]database.CatalogDatabase](t, env.Data), 2)

	_, env = s.do(t, http.MethodGet, "/api/vectors/wizard/tables?dbId=db1", token, nil)
	tables := decode[[]database.CatalogTable](t, env.Data)
	require.Len(t, tables, 3)
	assert.False(t, tables[2].HasPrimaryKey)

	_, env = s.do(t, http.MethodGet, "/api/vectors/wizard/fields?tableId=t2", token, nil)
	assert.Len(t, decode[[]database.CatalogField](t, env.Data), 3)

	_, env = s.do(t, http.MethodGet, "/api/vectors/wizard/fields", token, nil)
	assert.Equal(t, http.StatusBadRequest, env.Code)
}

func TestVectorStatusToggleLeavesOtherFieldsUntouched(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "editor")

	var before database.VectorItem
	require.NoError(t, s.db.First(&before, "id = ?", "vec_2").Error)

	_, env := s.do(t, http.MethodPut, "/api/vectors/vec_2/status", token, map[string]any{"isEnabled": !before.IsEnabled})
	require.Equal(t, http.StatusOK, env.Code, env.Message)

	var after database.VectorItem
	require.NoError(t, s.db.First(&after, "id = ?", "vec_2").Error)
	assert.Equal(t, !before.IsEnabled, after.IsEnabled)

	after.IsEnabled = before.IsEnabled
	assert.Equal(t, before, after)
}
