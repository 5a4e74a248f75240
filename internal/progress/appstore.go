package progress

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vectorAdmin/internal/console/store"
)

// AppStore 让控制台在本地推进全局状态中的任务，完成时向通知中心追加一条记录。
type AppStore struct {
	store *store.Store
	now   func() time.Time
}

func NewAppStore(s *store.Store) *AppStore {
	return &AppStore{store: s, now: time.Now}
}

func (a *AppStore) InProgress(_ context.Context) ([]Task, error) {
	state := a.store.State()
	tasks := make([]Task, 0, len(state.Tasks))
	for _, t := range state.Tasks {
		if t.Status != store.TaskInProgress {
			continue
		}
		tasks = append(tasks, Task{ID: t.ID, Name: t.Name, Progress: t.Progress})
	}
	return tasks, nil
}

func (a *AppStore) Advance(_ context.Context, task Task, progress int) error {
	a.store.Dispatch(store.UpdateTask{ID: task.ID, Progress: &progress})
	return nil
}

func (a *AppStore) Complete(_ context.Context, task Task) error {
	full := 100
	status := store.TaskCompleted
	a.store.Dispatch(store.UpdateTask{ID: task.ID, Progress: &full, Status: &status})
	a.store.Dispatch(store.AddNotification{Notification: store.Notification{
		ID:      uuid.NewString(),
		Title:   CompletedTitle,
		Message: CompletedMessage(task.Name),
		Type:    "success",
		Time:    a.now(),
	}})
	return nil
}
