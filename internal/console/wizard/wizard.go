// Package wizard 实现新建向量集的分步向导：命名、选择数据源、选择字段、
// 配置多表关联（仅多表时）、确认并执行，执行中可以转入后台。
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"vectorAdmin/internal/console/store"
	"vectorAdmin/internal/vector"
)

// Step 向导步骤。
type Step int

const (
	StepName Step = iota
	StepSelectSource
	StepSelectFields
	StepConfigureJoin
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepName:
		return "name"
	case StepSelectSource:
		return "select-source"
	case StepSelectFields:
		return "select-fields"
	case StepConfigureJoin:
		return "configure-join"
	case StepConfirm:
		return "confirm"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Status 执行状态。
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusBackground Status = "background"
	StatusFailed     Status = "failed"
)

// 本地进度动画参数。
const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultDuration     = 2500 * time.Millisecond
	ProgressStep        = 5
)

var (
	ErrInvalidTitle   = errors.New("title must contain only letters, digits and underscores")
	ErrNameExists     = errors.New("vector title already exists")
	ErrStepIncomplete = errors.New("current step is incomplete")
	ErrNoPrimaryKey   = errors.New("table has no primary key")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownField   = errors.New("unknown field")
	ErrBusy           = errors.New("wizard is processing")
	ErrNotProcessing  = errors.New("wizard is not processing")
	ErrClosed         = errors.New("wizard is closed")
)

// Summary 确认页展示的内容。
type Summary struct {
	Title       string
	Database    string
	Tables      []string
	FieldCount  int
	JoinRules   *vector.JoinRules
	IndexConfig vector.IndexConfig
}

// Wizard 并发安全；Start 与 RunInBackground 之后的工作在内部协程中完成。
type Wizard struct {
	api          API
	store        *store.Store
	clock        Clock
	logger       *slog.Logger
	tickInterval time.Duration
	duration     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	step     Step
	title    string
	dbID     string
	tables   []Table
	selected []string
	fields   map[string][]Field
	picked   map[string][]string
	join     vector.JoinRules
	advanced *vector.IndexConfig

	status   Status
	progress int
	creating bool
	stop     chan struct{}
	timerEnd chan struct{}
	result   *CreateResult
	err      error
	closed   bool
	taskID   string
}

type Option func(*Wizard)

// WithStore 转入后台时向全局状态登记任务与通知。
func WithStore(s *store.Store) Option {
	return func(w *Wizard) { w.store = s }
}

func WithClock(c Clock) Option {
	return func(w *Wizard) { w.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wizard) { w.logger = logger }
}

// WithTiming 调整进度动画的节拍与总时长。
func WithTiming(tick, total time.Duration) Option {
	return func(w *Wizard) {
		w.tickInterval = tick
		w.duration = total
	}
}

// New 创建向导。向导持有自己的会话 context，Close 时取消。
func New(api API, opts ...Option) *Wizard {
	w := &Wizard{
		api:          api,
		clock:        realClock{},
		logger:       slog.Default(),
		tickInterval: DefaultTickInterval,
		duration:     DefaultDuration,
		fields:       map[string][]Field{},
		picked:       map[string][]string{},
		status:       StatusIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Progress 当前显示的进度。
func (w *Wizard) Progress() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}

// Result 创建结果；尚未完成时返回 nil。
func (w *Wizard) Result() (*CreateResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.err
}

// Tables 当前数据源下的表。
func (w *Wizard) Tables() []Table {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.tables)
}

// Fields 已加载的某张表的字段。
func (w *Wizard) Fields(tableID string) []Field {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.fields[tableID])
}

// editable 要求未关闭且不在执行中，调用方持有锁。
// 执行失败后停留在原步骤，可以修改后重新开始。
func (w *Wizard) editable() error {
	if w.closed {
		return ErrClosed
	}
	switch w.status {
	case StatusIdle, StatusFailed:
		return nil
	}
	return ErrBusy
}

func (w *Wizard) SetTitle(title string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.title = title
	return nil
}

// CanAdvance 当前步骤是否满足前进条件，不发起请求。
func (w *Wizard) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stepComplete() == nil
}

func (w *Wizard) stepComplete() error {
	switch w.step {
	case StepName:
		if vector.ValidateTitle(w.title) != nil {
			return ErrInvalidTitle
		}
	case StepSelectSource:
		if len(w.selected) == 0 {
			return fmt.Errorf("%w: no table selected", ErrStepIncomplete)
		}
	case StepSelectFields:
		for _, id := range w.selected {
			if len(w.picked[id]) == 0 {
				return fmt.Errorf("%w: table %s has no field selected", ErrStepIncomplete, id)
			}
		}
	case StepConfigureJoin:
		if err := w.join.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrStepIncomplete, err)
		}
	case StepConfirm:
		return fmt.Errorf("%w: confirm step has no next", ErrStepIncomplete)
	}
	return nil
}

// Next 校验当前步骤后前进。命名步骤先本地校验，再向服务端确认名称未被占用；
// 任一失败都停留在原步骤。
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if err := w.editable(); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := w.stepComplete(); err != nil {
		w.mu.Unlock()
		return err
	}
	step, title := w.step, w.title
	w.mu.Unlock()

	if step == StepName {
		exists, err := w.api.CheckName(ctx, title)
		if err != nil {
			return err
		}
		if exists {
			return ErrNameExists
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if w.step != step {
		return nil
	}
	switch step {
	case StepName:
		w.step = StepSelectSource
	case StepSelectSource:
		w.step = StepSelectFields
	case StepSelectFields:
		if len(w.selected) > 1 {
			w.prepareJoin()
			w.step = StepConfigureJoin
		} else {
			w.step = StepConfirm
		}
	case StepConfigureJoin:
		w.step = StepConfirm
	}
	return nil
}

// prepareJoin 首次进入关联配置时填入默认值。
func (w *Wizard) prepareJoin() {
	if !w.join.Type.Valid() {
		w.join.Type = vector.JoinOneToOne
	}
	if !slices.Contains(w.selected, w.join.LeftTableID) {
		w.join.LeftTableID = w.selected[0]
	}
	if !slices.Contains(w.selected, w.join.RightTableID) || w.join.RightTableID == w.join.LeftTableID {
		for _, id := range w.selected {
			if id != w.join.LeftTableID {
				w.join.RightTableID = id
				break
			}
		}
	}
	if len(w.join.Conditions) == 0 {
		w.join.Conditions = []vector.JoinCondition{{}}
	}
}

// Back 返回上一步；单表时确认页直接回到字段选择。
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	switch w.step {
	case StepSelectSource:
		w.step = StepName
	case StepSelectFields:
		w.step = StepSelectSource
	case StepConfigureJoin:
		w.step = StepSelectFields
	case StepConfirm:
		if len(w.selected) > 1 {
			w.step = StepConfigureJoin
		} else {
			w.step = StepSelectFields
		}
	}
	return nil
}

// Databases 列出可选数据源。
func (w *Wizard) Databases(ctx context.Context) ([]Database, error) {
	return w.api.Databases(ctx)
}

// SelectDatabase 加载该数据源的表，并清空已选的表、字段与关联配置。
func (w *Wizard) SelectDatabase(ctx context.Context, dbID string) error {
	w.mu.Lock()
	err := w.editable()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	tables, err := w.api.Tables(ctx, dbID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.dbID = dbID
	w.tables = tables
	w.selected = nil
	w.fields = map[string][]Field{}
	w.picked = map[string][]string{}
	w.join = vector.JoinRules{}
	return nil
}

func (w *Wizard) table(id string) (Table, bool) {
	for _, t := range w.tables {
		if t.ID == id {
			return t, true
		}
	}
	return Table{}, false
}

// ToggleTable 选中或取消一张表。选中时加载其字段，无主键的表不可选。
func (w *Wizard) ToggleTable(ctx context.Context, tableID string) error {
	w.mu.Lock()
	if err := w.editable(); err != nil {
		w.mu.Unlock()
		return err
	}
	t, ok := w.table(tableID)
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTable, tableID)
	}
	if !t.HasPrimaryKey {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, t.Name)
	}
	if i := slices.Index(w.selected, tableID); i >= 0 {
		w.selected = slices.Delete(w.selected, i, i+1)
		delete(w.picked, tableID)
		w.mu.Unlock()
		return nil
	}
	_, loaded := w.fields[tableID]
	w.mu.Unlock()

	var fields []Field
	if !loaded {
		var err error
		if fields, err = w.api.Fields(ctx, tableID); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if _, ok := w.table(tableID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, tableID)
	}
	if !loaded {
		w.fields[tableID] = fields
	}
	if !slices.Contains(w.selected, tableID) {
		w.selected = append(w.selected, tableID)
	}
	return nil
}

// ToggleField 选中或取消字段，表必须已被选中。
func (w *Wizard) ToggleField(tableID, fieldID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if !slices.Contains(w.selected, tableID) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, tableID)
	}
	if !slices.ContainsFunc(w.fields[tableID], func(f Field) bool { return f.ID == fieldID }) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, tableID, fieldID)
	}
	picked := w.picked[tableID]
	if i := slices.Index(picked, fieldID); i >= 0 {
		w.picked[tableID] = slices.Delete(slices.Clone(picked), i, i+1)
		return nil
	}
	w.picked[tableID] = append(slices.Clone(picked), fieldID)
	return nil
}

// SelectAllFields 选中表的全部字段。
func (w *Wizard) SelectAllFields(tableID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if !slices.Contains(w.selected, tableID) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, tableID)
	}
	all := make([]string, 0, len(w.fields[tableID]))
	for _, f := range w.fields[tableID] {
		all = append(all, f.ID)
	}
	w.picked[tableID] = all
	return nil
}

func (w *Wizard) SetJoinType(t vector.JoinType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if !t.Valid() {
		return vector.ErrJoinType
	}
	w.join.Type = t
	return nil
}

// SetJoinTables 设置左右表，两者都必须是已选中的表。
func (w *Wizard) SetJoinTables(left, right string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	for _, id := range []string{left, right} {
		if !slices.Contains(w.selected, id) {
			return fmt.Errorf("%w: %s", ErrUnknownTable, id)
		}
	}
	w.join.LeftTableID = left
	w.join.RightTableID = right
	return nil
}

// AddCondition 追加一条空的关联条件。
func (w *Wizard) AddCondition() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.join.Conditions = append(slices.Clone(w.join.Conditions), vector.JoinCondition{})
	return nil
}

func (w *Wizard) SetCondition(i int, leftField, rightField string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if i < 0 || i >= len(w.join.Conditions) {
		return fmt.Errorf("condition %d out of range", i)
	}
	conds := slices.Clone(w.join.Conditions)
	conds[i] = vector.JoinCondition{LeftFieldID: leftField, RightFieldID: rightField}
	w.join.Conditions = conds
	return nil
}

func (w *Wizard) RemoveCondition(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if i < 0 || i >= len(w.join.Conditions) {
		return fmt.Errorf("condition %d out of range", i)
	}
	w.join.Conditions = slices.Delete(slices.Clone(w.join.Conditions), i, i+1)
	return nil
}

// SetAdvanced 设置高级索引参数。
func (w *Wizard) SetAdvanced(cfg vector.IndexConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()
	w.advanced = &cfg
	return nil
}

// Summary 汇总当前选择。
func (w *Wizard) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Summary{Title: w.title, Database: w.dbID, IndexConfig: vector.DefaultIndexConfig()}
	for _, id := range w.selected {
		name := id
		if t, ok := w.table(id); ok {
			name = t.Name
		}
		s.Tables = append(s.Tables, name)
		s.FieldCount += len(w.picked[id])
	}
	if len(w.selected) > 1 {
		join := w.join
		join.Conditions = slices.Clone(w.join.Conditions)
		s.JoinRules = &join
	}
	if w.advanced != nil {
		s.IndexConfig = *w.advanced
	}
	return s
}

// request 构造创建请求，调用方持有锁。
func (w *Wizard) request() CreateRequest {
	req := CreateRequest{Title: w.title, DatabaseID: w.dbID, TaskID: w.taskID}
	for _, tableID := range w.selected {
		names := map[string]string{}
		for _, f := range w.fields[tableID] {
			names[f.ID] = f.Name
		}
		for _, fieldID := range w.picked[tableID] {
			req.SelectedFields = append(req.SelectedFields, vector.SelectedField{
				TableID: tableID,
				FieldID: fieldID,
				Name:    names[fieldID],
			})
		}
	}
	if len(w.selected) > 1 {
		join := w.join
		join.Conditions = slices.Clone(w.join.Conditions)
		req.JoinRules = &join
	}
	if w.advanced != nil {
		cfg := *w.advanced
		req.IndexConfig = &cfg
	}
	return req
}

// Start 在确认页开始执行：本地进度每个节拍加 5，到达预设时长后调用创建接口。
// 立即返回，结果通过 Wait 与 Result 获取。
func (w *Wizard) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if w.step != StepConfirm {
		return fmt.Errorf("%w: start requires the confirm step", ErrStepIncomplete)
	}
	w.status = StatusProcessing
	w.progress = 0
	w.result, w.err = nil, nil
	w.stop = make(chan struct{})
	w.timerEnd = make(chan struct{})

	w.wg.Add(1)
	go w.run(ctx, w.stop, w.timerEnd)
	return nil
}

func (w *Wizard) run(ctx context.Context, stop, timerEnd chan struct{}) {
	defer w.wg.Done()
	ticks, stopTicker := w.clock.Ticker(w.tickInterval)
	deadline := w.clock.After(w.duration)

	finished := func() bool {
		for {
			select {
			case <-stop:
				return false
			case <-w.ctx.Done():
				return false
			case <-ctx.Done():
				return false
			case <-ticks:
				w.mu.Lock()
				w.progress = min(w.progress+ProgressStep, 100)
				w.mu.Unlock()
			case <-deadline:
				return true
			}
		}
	}()
	stopTicker()

	w.mu.Lock()
	if !finished || w.status != StatusProcessing {
		if w.status == StatusProcessing {
			w.status = StatusFailed
			w.err = context.Cause(ctx)
			if w.err == nil {
				w.err = ErrClosed
			}
		}
		w.mu.Unlock()
		close(timerEnd)
		return
	}
	w.creating = true
	req := w.request()
	w.mu.Unlock()
	close(timerEnd)

	res, err := w.api.Create(w.ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.creating = false
	if w.ctx.Err() != nil {
		return
	}
	if err != nil {
		w.status = StatusFailed
		w.err = err
		return
	}
	w.status = StatusCompleted
	w.progress = 100
	w.result = &res
}

// RunInBackground 停止本地进度，以当前进度登记后台任务并关闭向导；
// 创建请求在向导的会话 context 中继续执行。
func (w *Wizard) RunInBackground(ctx context.Context) (store.Task, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return store.Task{}, ErrClosed
	}
	if w.status != StatusProcessing || w.creating {
		w.mu.Unlock()
		return store.Task{}, ErrNotProcessing
	}
	w.status = StatusBackground
	close(w.stop)
	timerEnd := w.timerEnd
	w.mu.Unlock()
	<-timerEnd

	w.mu.Lock()
	progress, title := w.progress, w.title
	w.mu.Unlock()

	task, err := w.api.RegisterTask(ctx, vector.IndexTaskName(title), progress)
	if err != nil {
		w.mu.Lock()
		w.status = StatusFailed
		w.err = err
		w.mu.Unlock()
		return store.Task{}, err
	}

	w.mu.Lock()
	w.taskID = task.ID
	w.closed = true
	req := w.request()
	w.mu.Unlock()

	if w.store != nil {
		w.store.Dispatch(store.AddTask{Task: task})
		w.store.Dispatch(store.AddNotification{Notification: store.Notification{
			ID:      "n_" + task.ID,
			Title:   "任务已转入后台",
			Message: fmt.Sprintf("%s 将在后台继续执行", task.Name),
			Type:    "info",
			Time:    time.Now(),
		}})
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		res, err := w.api.Create(w.ctx, req)

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.ctx.Err() != nil {
			w.logger.Debug("background create discarded after close", slog.String("task_id", task.ID))
			return
		}
		if err != nil {
			w.err = err
			w.logger.Warn("background create failed", slog.String("task_id", task.ID), slog.Any("error", err))
			if w.store != nil {
				w.store.Dispatch(store.AddNotification{Notification: store.Notification{
					ID:      "n_err_" + task.ID,
					Title:   "任务创建失败",
					Message: err.Error(),
					Type:    "error",
					Time:    time.Now(),
				}})
			}
			return
		}
		w.result = &res
	}()
	return task, nil
}

// Close 取消向导的会话 context；之后到达的结果被丢弃。
func (w *Wizard) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cancel()
}

// Wait 等待内部协程全部结束。
func (w *Wizard) Wait() {
	w.wg.Wait()
}
