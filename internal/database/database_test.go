package database

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/vector"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDatabase(config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: MemoryDSN(t.Name()),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestSeedIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, db))
	require.NoError(t, Seed(ctx, db))

	counts := map[any]int64{
		&User{}:            3,
		&Role{}:            3,
		&Menu{}:            11,
		&IPRecord{}:        2,
		&VectorItem{}:      12,
		&BackgroundTask{}:  1,
		&SystemLog{}:       20,
		&CatalogDatabase{}: 2,
	}
	for model, want := range counts {
		var got int64
		require.NoError(t, db.Model(model).Count(&got).Error)
		assert.Equal(t, want, got, "%T", model)
	}
}

func TestSeedVectorsCarryStructuredJoinRules(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Seed(context.Background(), db))

	var multi VectorItem
	require.NoError(t, db.First(&multi, "id = ?", "vec_1").Error)
	assert.True(t, multi.IsMultiTable)
	assert.Equal(t, vector.StatusError, multi.Status)
	rules := multi.JoinRules.Data()
	require.NotNil(t, rules)
	assert.Equal(t, vector.JoinOneToOne, rules.Type)
	require.Len(t, rules.Conditions, 1)

	var single VectorItem
	require.NoError(t, db.First(&single, "id = ?", "vec_2").Error)
	assert.False(t, single.IsMultiTable)
	assert.Nil(t, single.JoinRules.Data())
	assert.Equal(t, "PDF: manual.pdf", single.Source)
}

func TestSeedPasswordsAreHashed(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Seed(context.Background(), db))

	var admin User
	require.NoError(t, db.First(&admin, "username = ?", "admin").Error)
	assert.NotEqual(t, DefaultPassword, admin.PasswordHash)
	assert.NotEmpty(t, admin.PasswordHash)
}

func TestAuditCallbacksFillActor(t *testing.T) {
	db := newTestDB(t)
	ctx := WithActor(context.Background(), "editor")

	item := VectorItem{
		ID:          "vec_audit",
		Title:       "audit_demo",
		Status:      vector.StatusPending,
		IndexConfig: datatypes.NewJSONType(vector.DefaultIndexConfig()),
	}
	require.NoError(t, db.WithContext(ctx).Create(&item).Error)

	var stored VectorItem
	require.NoError(t, db.First(&stored, "id = ?", item.ID).Error)
	assert.Equal(t, "editor", stored.CreatedBy)
	assert.Equal(t, "editor", stored.UpdatedBy)

	adminCtx := WithActor(context.Background(), "admin")
	require.NoError(t, db.WithContext(adminCtx).Model(&VectorItem{}).
		Where("id = ?", item.ID).Updates(map[string]any{"title": "renamed"}).Error)

	require.NoError(t, db.First(&stored, "id = ?", item.ID).Error)
	assert.Equal(t, "renamed", stored.Title)
	assert.Equal(t, "editor", stored.CreatedBy)
	assert.Equal(t, "admin", stored.UpdatedBy)
}

func TestAuditSkipsWithoutActor(t *testing.T) {
	db := newTestDB(t)
	item := VectorItem{ID: "vec_anon", Title: "anon", CreatedBy: "system"}
	require.NoError(t, db.Create(&item).Error)

	var stored VectorItem
	require.NoError(t, db.First(&stored, "id = ?", item.ID).Error)
	assert.Equal(t, "system", stored.CreatedBy)
	assert.Empty(t, stored.UpdatedBy)
}

func TestContainsPattern(t *testing.T) {
	cases := map[string]string{
		"kb":     "%kb%",
		"Wiki_1": `%Wiki\_1%`,
		"100%":   `%100\%%`,
		`a\b`:    `%a\\b%`,
		"知识库":    "%知识库%",
	}
	for in, want := range cases {
		assert.Equal(t, want, ContainsPattern(in), in)
	}
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	db := newTestDB(t)
	var buf bytes.Buffer
	quiet := db.Session(&gorm.Session{Logger: NewGormLogger(slog.NewTextHandler(&buf, nil))})

	var user User
	err := quiet.First(&user, "id = ?", "missing").Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	var n int
	require.Error(t, quiet.Raw("SELECT count(*) FROM no_such_table").Scan(&n).Error)
	assert.Contains(t, buf.String(), "no_such_table")
}
