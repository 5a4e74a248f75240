package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/console/store"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/vector"
)

func fixedStep(n int) Option {
	return WithStep(func() int { return n })
}

func TestRandomStepWithinBounds(t *testing.T) {
	step := RandomStep(5, 15)
	for i := 0; i < 500; i++ {
		v := step()
		require.GreaterOrEqual(t, v, 5)
		require.LessOrEqual(t, v, 15)
	}
}

func TestAppStoreTickAdvancesAndCompletes(t *testing.T) {
	s := store.New(store.InitialState())
	s.Dispatch(store.AddTask{Task: store.Task{ID: "a", Name: "alpha", Status: store.TaskInProgress, Progress: 50}})
	s.Dispatch(store.AddTask{Task: store.Task{ID: "b", Name: "beta", Status: store.TaskInProgress, Progress: 90}})
	s.Dispatch(store.AddTask{Task: store.Task{ID: "c", Name: "gamma", Status: store.TaskCompleted, Progress: 100}})

	ticker := New(NewAppStore(s), time.Second, fixedStep(15))
	require.NoError(t, ticker.Tick(context.Background()))

	state := s.State()
	byID := map[string]store.Task{}
	for _, task := range state.Tasks {
		byID[task.ID] = task
	}
	assert.Equal(t, 65, byID["a"].Progress)
	assert.Equal(t, store.TaskInProgress, byID["a"].Status)
	assert.Equal(t, 100, byID["b"].Progress)
	assert.Equal(t, store.TaskCompleted, byID["b"].Status)

	require.Len(t, state.Notifications, 1)
	assert.Equal(t, CompletedTitle, state.Notifications[0].Title)
	assert.Equal(t, `任务 "beta" 已成功执行完毕。`, state.Notifications[0].Message)

	// 已完成的任务不再产生通知
	require.NoError(t, ticker.Tick(context.Background()))
	require.NoError(t, ticker.Tick(context.Background()))
	require.NoError(t, ticker.Tick(context.Background()))
	assert.Len(t, s.State().Notifications, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := store.New(store.InitialState())
	s.Dispatch(store.AddTask{Task: store.Task{ID: "a", Name: "alpha", Status: store.TaskInProgress}})
	ticker := New(NewAppStore(s), 5*time.Millisecond, fixedStep(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ticker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return s.State().Tasks[0].Status == store.TaskCompleted
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Len(t, s.State().Notifications, 1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	notified []string
	updates  int
}

func (r *recordingNotifier) Notify(_ context.Context, userID, title, message, kind string) (*database.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, userID+"|"+message)
	return &database.Notification{UserID: userID, Title: title, Message: message, Type: kind}, nil
}

func (r *recordingNotifier) TaskUpdated(context.Context, database.BackgroundTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDatabase(config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: database.MemoryDSN(t.Name()),
	})
	require.NoError(t, err)
	return db
}

func TestGormStoreCompletesOnceAndIndexesVector(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&database.VectorItem{ID: "vec_x", Title: "x", Status: vector.StatusPending}).Error)
	require.NoError(t, db.Create(&database.BackgroundTask{
		ID: "t_x", Name: "索引构建: x", Status: database.TaskInProgress, Progress: 95,
		StartTime: time.Now(), VectorID: "vec_x", UserID: "2",
	}).Error)
	require.NoError(t, db.Create(&database.BackgroundTask{
		ID: "t_y", Name: "other", Status: database.TaskInProgress, Progress: 10, StartTime: time.Now(),
	}).Error)

	notifier := &recordingNotifier{}
	gormStore := NewGormStore(db, notifier)
	ticker := New(gormStore, time.Second, fixedStep(7))
	require.NoError(t, ticker.Tick(context.Background()))

	var done database.BackgroundTask
	require.NoError(t, db.First(&done, "id = ?", "t_x").Error)
	assert.Equal(t, database.TaskCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)

	var other database.BackgroundTask
	require.NoError(t, db.First(&other, "id = ?", "t_y").Error)
	assert.Equal(t, 17, other.Progress)

	var vec database.VectorItem
	require.NoError(t, db.First(&vec, "id = ?", "vec_x").Error)
	assert.Equal(t, vector.StatusIndexed, vec.Status)

	assert.Equal(t, []string{`2|任务 "索引构建: x" 已成功执行完毕。`}, notifier.notified)

	// 并发场景下重复完成同一个任务不会再次通知
	require.NoError(t, gormStore.Complete(context.Background(), Task{ID: "t_x", Name: "索引构建: x", UserID: "2"}))
	assert.Len(t, notifier.notified, 1)
}
