package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/console/storage"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestReduceDoesNotMutateInput(t *testing.T) {
	state := InitialState()
	state.Tasks = []Task{{ID: "t1", Name: "a", Status: TaskInProgress, Progress: 10}}
	state.Notifications = []Notification{{ID: "n1"}}

	next := Reduce(state, UpdateTask{ID: "t1", Progress: intPtr(40)})
	assert.Equal(t, 10, state.Tasks[0].Progress)
	assert.Equal(t, 40, next.Tasks[0].Progress)
	assert.Equal(t, TaskInProgress, next.Tasks[0].Status)

	read := Reduce(state, MarkAllRead{})
	assert.False(t, state.Notifications[0].Read)
	assert.True(t, read.Notifications[0].Read)
}

func TestReduceTasksAndNotifications(t *testing.T) {
	state := InitialState()
	state = Reduce(state, AddTask{Task: Task{ID: "t1", Status: TaskInProgress}})
	state = Reduce(state, AddTask{Task: Task{ID: "t2", Status: TaskInProgress}})
	require.Len(t, state.Tasks, 2)
	assert.Equal(t, "t2", state.Tasks[0].ID)

	state = Reduce(state, UpdateTask{ID: "t1", Progress: intPtr(100), Status: strPtr(TaskCompleted)})
	assert.Equal(t, TaskCompleted, state.Tasks[1].Status)
	assert.Equal(t, 100, state.Tasks[1].Progress)

	state = Reduce(state, AddNotification{Notification: Notification{ID: "n1"}})
	state = Reduce(state, AddNotification{Notification: Notification{ID: "n2"}})
	assert.Equal(t, 2, state.UnreadCount())
	state = Reduce(state, MarkAllRead{})
	assert.Equal(t, 0, state.UnreadCount())
	state = Reduce(state, ClearNotifications{})
	assert.Empty(t, state.Notifications)
}

func TestReduceSession(t *testing.T) {
	state := Reduce(InitialState(), SetUser{User: User{ID: "1", Role: "admin"}})
	require.True(t, state.Authenticated())
	state = Reduce(state, Logout{})
	assert.False(t, state.Authenticated())
}

func TestPersistSettingsOnlyOnThemeChange(t *testing.T) {
	st := storage.NewMemory()
	s := New(InitialState())
	s.Subscribe(PersistSettings(st))

	s.Dispatch(AddTask{Task: Task{ID: "t1"}})
	_, ok := st.Get(storage.KeyTheme)
	assert.False(t, ok)

	s.Dispatch(SetThemeMode{Mode: ThemeDark})
	raw, ok := st.Get(storage.KeyTheme)
	require.True(t, ok)
	assert.JSONEq(t, `{"mode":"dark","color":"#2563eb","fontSize":16,"pageTransition":"fade"}`, raw)
}

func TestLoadSettings(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyTheme, `{"mode":"system","color":"#ff0000","fontSize":18,"pageTransition":"slide"}`))
	state := LoadSettings(st, InitialState())
	assert.Equal(t, ThemeSystem, state.ThemeMode)
	assert.Equal(t, "#ff0000", state.PrimaryColor)
	assert.Equal(t, 18, state.FontSize)
	assert.Equal(t, TransitionSlide, state.PageTransition)

	require.NoError(t, st.Set(storage.KeyTheme, `{broken`))
	assert.Equal(t, InitialState(), LoadSettings(st, InitialState()))
}

type recordingApplier struct {
	dark     []bool
	colors   []string
	fontSize []int
}

func (r *recordingApplier) ApplyDark(dark bool)        { r.dark = append(r.dark, dark) }
func (r *recordingApplier) ApplyPrimaryColor(c string) { r.colors = append(r.colors, c) }
func (r *recordingApplier) ApplyFontSize(px int)       { r.fontSize = append(r.fontSize, px) }

func TestApplyThemeResolvesSystemMode(t *testing.T) {
	applier := &recordingApplier{}
	osDark := true
	s := New(InitialState())
	s.Subscribe(ApplyTheme(applier, func() bool { return osDark }))

	s.Dispatch(SetThemeMode{Mode: ThemeSystem})
	s.Dispatch(SetThemeMode{Mode: ThemeLight})
	s.Dispatch(SetFontSize{Size: 20})

	assert.Equal(t, []bool{true, false}, applier.dark)
	assert.Equal(t, []int{20}, applier.fontSize)
	assert.Empty(t, applier.colors)
}

func TestDispatchConcurrent(t *testing.T) {
	s := New(InitialState())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispatch(AddNotification{Notification: Notification{ID: "n"}})
		}()
	}
	wg.Wait()
	assert.Len(t, s.State().Notifications, 50)
}

func TestUnsubscribe(t *testing.T) {
	s := New(InitialState())
	calls := 0
	cancel := s.Subscribe(func(_, _ AppState, _ Action) { calls++ })
	s.Dispatch(MarkAllRead{})
	cancel()
	s.Dispatch(MarkAllRead{})
	assert.Equal(t, 1, calls)
}
