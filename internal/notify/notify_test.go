package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDatabase(config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: database.MemoryDSN(t.Name()),
	})
	require.NoError(t, err)
	return db
}

func TestMemoryHubDeliversToSubscriber(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, unsubscribe, err := hub.Subscribe(ctx, "1")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, hub.Publish(ctx, "1", []byte("hello")))
	require.NoError(t, hub.Publish(ctx, "2", []byte("other user")))

	select {
	case got := <-ch:
		assert.Equal(t, "hello", string(got))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected message %q", got)
	default:
	}
}

func TestMemoryHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewMemoryHub()
	_, unsubscribe, err := hub.Subscribe(context.Background(), "1")
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	require.NoError(t, hub.Publish(context.Background(), "1", []byte("dropped")))
}

func TestNotifierPersistsAndPublishes(t *testing.T) {
	db := newTestDB(t)
	hub := NewMemoryHub()
	notifier := NewNotifier(db, hub, nil)
	ctx := context.Background()

	ch, unsubscribe, err := hub.Subscribe(ctx, "1")
	require.NoError(t, err)
	defer unsubscribe()

	record, err := notifier.Notify(ctx, "1", "后台任务完成", `任务 "demo" 已成功执行完毕。`, database.NotifySuccess)
	require.NoError(t, err)

	var stored database.Notification
	require.NoError(t, db.First(&stored, "id = ?", record.ID).Error)
	assert.False(t, stored.Read)
	assert.Equal(t, database.NotifySuccess, stored.Type)

	select {
	case payload := <-ch:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, MessageNotification, msg.Type)
		require.NotNil(t, msg.Notification)
		assert.Equal(t, record.ID, msg.Notification.ID)
	case <-time.After(time.Second):
		t.Fatal("notification not published")
	}
}
