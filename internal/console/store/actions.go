package store

// Action 是封闭的状态变更指令集合。
type Action interface {
	isAction()
}

type SetThemeMode struct{ Mode ThemeMode }
type SetPrimaryColor struct{ Color string }
type SetFontSize struct{ Size int }
type SetPageTransition struct{ Transition PageTransition }
type SetUser struct{ User User }
type Logout struct{}
type AddTask struct{ Task Task }

// UpdateTask 局部更新，nil 字段保持不变。
type UpdateTask struct {
	ID       string
	Progress *int
	Status   *string
}

type AddNotification struct{ Notification Notification }
type MarkAllRead struct{}
type ClearNotifications struct{}

func (SetThemeMode) isAction()       {}
func (SetPrimaryColor) isAction()    {}
func (SetFontSize) isAction()        {}
func (SetPageTransition) isAction()  {}
func (SetUser) isAction()            {}
func (Logout) isAction()             {}
func (AddTask) isAction()            {}
func (UpdateTask) isAction()         {}
func (AddNotification) isAction()    {}
func (MarkAllRead) isAction()        {}
func (ClearNotifications) isAction() {}

// Reduce 计算新状态，不修改入参（切片总是复制）。
func Reduce(state AppState, action Action) AppState {
	next := state
	switch a := action.(type) {
	case SetThemeMode:
		next.ThemeMode = a.Mode
	case SetPrimaryColor:
		next.PrimaryColor = a.Color
	case SetFontSize:
		next.FontSize = a.Size
	case SetPageTransition:
		next.PageTransition = a.Transition
	case SetUser:
		u := a.User
		next.User = &u
	case Logout:
		next.User = nil
	case AddTask:
		next.Tasks = append(append(make([]Task, 0, len(state.Tasks)+1), a.Task), state.Tasks...)
	case UpdateTask:
		next.Tasks = make([]Task, len(state.Tasks))
		copy(next.Tasks, state.Tasks)
		for i := range next.Tasks {
			if next.Tasks[i].ID != a.ID {
				continue
			}
			if a.Progress != nil {
				next.Tasks[i].Progress = *a.Progress
			}
			if a.Status != nil {
				next.Tasks[i].Status = *a.Status
			}
		}
	case AddNotification:
		next.Notifications = append(append(make([]Notification, 0, len(state.Notifications)+1), a.Notification), state.Notifications...)
	case MarkAllRead:
		next.Notifications = make([]Notification, len(state.Notifications))
		for i, n := range state.Notifications {
			n.Read = true
			next.Notifications[i] = n
		}
	case ClearNotifications:
		next.Notifications = nil
	}
	return next
}
