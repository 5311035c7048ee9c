package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Storage is the durable persistence contract the Manager wraps. A
// transient I/O error from any method is propagated to the caller; the
// Manager rolls back the corresponding in-memory change on failure.
type Storage interface {
	Save(ctx context.Context, task *Task) error
	Load(ctx context.Context, id string) (*Task, error)
	LoadAll(ctx context.Context) ([]*Task, error)
	Update(ctx context.Context, id string, apply func(*Task)) (*Task, error)
	Delete(ctx context.Context, id string) error
}

// Listener receives the post-update Task snapshot on every state change.
type Listener func(task *Task)

// Unsubscribe removes a previously registered Listener.
type Unsubscribe func()

// Manager is the single in-process authority for Task state. It wraps a
// Storage with an in-memory map, enforces the parent/child and dependency
// invariants, and fans changes out to subscribers without holding its
// write lock across the fan-out.
type Manager struct {
	storage Storage
	logger  Logger

	mu    sync.RWMutex
	tasks map[string]*Task

	listenerMu     sync.Mutex
	perTask        map[string]map[int]chan *Task
	global         map[int]chan *Task
	nextListenerID int
	wg             sync.WaitGroup

	initialized bool
}

// NewManager constructs a Manager over the given storage. Initialize must
// be called exactly once before any other method.
func NewManager(storage Storage, logger Logger) *Manager {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Manager{
		storage: storage,
		logger:  logger,
		tasks:   make(map[string]*Task),
		perTask: make(map[string]map[int]chan *Task),
		global:  make(map[int]chan *Task),
	}
}

// Initialize loads all tasks from storage into memory. Must be called
// exactly once before any other Manager operation; a second call is an
// error.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return fmt.Errorf("manager: already initialized")
	}
	m.mu.Unlock()

	all, err := m.storage.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("manager: initialize: %w", err)
	}

	m.mu.Lock()
	for _, t := range all {
		m.tasks[t.ID] = t
	}
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// CreateTask assigns a fresh id and startTime, persists the task, and, if
// ParentID is set, atomically appends its id to the parent's Subtasks.
func (m *Manager) CreateTask(ctx context.Context, in TaskCreate) (*Task, error) {
	m.mu.Lock()

	var parent *Task
	if in.ParentID != "" {
		p, ok := m.tasks[in.ParentID]
		if !ok {
			m.mu.Unlock()
			return nil, NewTaskNotFoundError(in.ParentID)
		}
		parent = p
		for _, dep := range in.Dependencies {
			found := false
			for _, sib := range parent.Subtasks {
				if sib == dep {
					found = true
					break
				}
			}
			if !found {
				m.mu.Unlock()
				return nil, NewValidationError(
					fmt.Sprintf("dependency %q is not a sibling subtask of parent %q", dep, in.ParentID), nil)
			}
		}
	}

	task := newTask(in)

	if err := m.storage.Save(ctx, task); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("manager: create task: %w", err)
	}

	m.tasks[task.ID] = task
	if parent != nil {
		parent.Subtasks = append(parent.Subtasks, task.ID)
		if err := m.storage.Save(ctx, parent); err != nil {
			// Roll back the in-memory insertion on both sides.
			delete(m.tasks, task.ID)
			parent.Subtasks = parent.Subtasks[:len(parent.Subtasks)-1]
			m.mu.Unlock()
			return nil, fmt.Errorf("manager: persist parent subtasks: %w", err)
		}
	}

	snapshot := task.Clone()
	var parentSnapshot *Task
	if parent != nil {
		parentSnapshot = parent.Clone()
	}
	m.mu.Unlock()

	m.notify(snapshot)
	if parentSnapshot != nil {
		m.notify(parentSnapshot)
	}
	return snapshot, nil
}

// AddSubtask is equivalent to CreateTask with ParentID set to parentID.
func (m *Manager) AddSubtask(ctx context.Context, parentID string, in TaskCreate) (*Task, error) {
	in.ParentID = parentID
	return m.CreateTask(ctx, in)
}

// GetTask returns a clone of the task, or nil if it does not exist.
func (m *Manager) GetTask(id string) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id].Clone()
}

// GetSubtasks returns the parent's children in insertion order.
func (m *Manager) GetSubtasks(parentID string) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parent, ok := m.tasks[parentID]
	if !ok {
		return nil
	}
	out := make([]*Task, 0, len(parent.Subtasks))
	for _, id := range parent.Subtasks {
		if t, ok := m.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// GetTasksByStatus returns every task currently in the given status.
func (m *Manager) GetTasksByStatus(status Status) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// GetAllTasks returns every task the Manager currently holds.
func (m *Manager) GetAllTasks() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// UpdateTask applies a partial update. If status transitions to a
// terminal state and endTime is unset, endTime is set to now. On a
// storage failure the Manager reverts to the pre-update snapshot so the
// in-memory map and storage stay consistent.
func (m *Manager) UpdateTask(ctx context.Context, id string, apply func(*Task)) (*Task, error) {
	m.mu.Lock()

	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, NewTaskNotFoundError(id)
	}

	before := task.Clone()
	apply(task)

	if task.Status.IsTerminal() && task.EndTime == nil {
		now := time.Now().UTC()
		task.EndTime = &now
	}

	if err := m.storage.Save(ctx, task); err != nil {
		m.tasks[id] = before
		m.mu.Unlock()
		return nil, fmt.Errorf("manager: update task: %w", err)
	}

	snapshot := task.Clone()
	m.mu.Unlock()

	m.notify(snapshot)
	return snapshot, nil
}

// DeleteTask removes the task and all descendants, cascading atomically,
// and updates the parent's Subtasks list.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()

	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	toDelete := m.collectDescendants(id)

	for _, dID := range toDelete {
		if err := m.storage.Delete(ctx, dID); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("manager: delete task %q: %w", dID, err)
		}
	}

	var parentSnapshot *Task
	if task.ParentID != "" {
		if parent, ok := m.tasks[task.ParentID]; ok {
			filtered := parent.Subtasks[:0:0]
			for _, sub := range parent.Subtasks {
				if sub != id {
					filtered = append(filtered, sub)
				}
			}
			parent.Subtasks = filtered
			if err := m.storage.Save(ctx, parent); err != nil {
				m.mu.Unlock()
				return fmt.Errorf("manager: persist parent after delete: %w", err)
			}
			parentSnapshot = parent.Clone()
		}
	}

	for _, dID := range toDelete {
		delete(m.tasks, dID)
	}
	m.mu.Unlock()

	if parentSnapshot != nil {
		m.notify(parentSnapshot)
	}
	return nil
}

// collectDescendants returns id plus every transitive subtask id.
// Caller must hold m.mu.
func (m *Manager) collectDescendants(id string) []string {
	var out []string
	var walk func(string)
	walk = func(cur string) {
		out = append(out, cur)
		t, ok := m.tasks[cur]
		if !ok {
			return
		}
		for _, sub := range t.Subtasks {
			walk(sub)
		}
	}
	walk(id)
	return out
}

// SetTaskStatus is a convenience wrapper over UpdateTask for a bare
// status/progress transition.
func (m *Manager) SetTaskStatus(ctx context.Context, id string, status Status, progress ...float64) (*Task, error) {
	return m.UpdateTask(ctx, id, func(t *Task) {
		t.Status = status
		if len(progress) > 0 {
			t.Progress = progress[0]
		}
	})
}

// CompleteTask marks a task completed with an optional result and
// progress (defaults to 1.0).
func (m *Manager) CompleteTask(ctx context.Context, id string, result interface{}, progress ...float64) (*Task, error) {
	p := 1.0
	if len(progress) > 0 {
		p = progress[0]
	}
	return m.UpdateTask(ctx, id, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = p
		t.Result = result
	})
}

// FailTask marks a task failed with the given error and optional progress.
func (m *Manager) FailTask(ctx context.Context, id string, taskErr error, progress ...float64) (*Task, error) {
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}
	return m.UpdateTask(ctx, id, func(t *Task) {
		t.Status = StatusFailed
		if len(progress) > 0 {
			t.Progress = progress[0]
		}
		t.Error = msg
	})
}

// Subscribe registers a per-task listener, invoked on every state change
// to taskID. Delivery runs on a dedicated goroutine per subscriber so a
// slow or panicking listener cannot block the writer or other listeners.
func (m *Manager) Subscribe(taskID string, cb Listener) Unsubscribe {
	ch := make(chan *Task, 64)
	m.listenerMu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	if m.perTask[taskID] == nil {
		m.perTask[taskID] = make(map[int]chan *Task)
	}
	m.perTask[taskID][id] = ch
	m.listenerMu.Unlock()

	m.wg.Add(1)
	go m.dispatchLoop(ch, cb)

	return func() {
		m.listenerMu.Lock()
		if subs, ok := m.perTask[taskID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(m.perTask, taskID)
			}
		}
		m.listenerMu.Unlock()
	}
}

// SubscribeToAll registers a listener invoked on every change to every task.
func (m *Manager) SubscribeToAll(cb Listener) Unsubscribe {
	ch := make(chan *Task, 64)
	m.listenerMu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.global[id] = ch
	m.listenerMu.Unlock()

	m.wg.Add(1)
	go m.dispatchLoop(ch, cb)

	return func() {
		m.listenerMu.Lock()
		if c, ok := m.global[id]; ok {
			delete(m.global, id)
			close(c)
		}
		m.listenerMu.Unlock()
	}
}

// dispatchLoop drains one subscriber's channel, invoking cb with a panic
// guard so one listener's failure can never affect another's delivery or
// ordering.
func (m *Manager) dispatchLoop(ch chan *Task, cb Listener) {
	defer m.wg.Done()
	for task := range ch {
		m.invokeListener(cb, task)
	}
}

func (m *Manager) invokeListener(cb Listener, task *Task) {
	var err error
	defer func() {
		if err != nil {
			m.logger.Error(context.Background(), "manager: listener panicked",
				F("taskId", task.ID), F("panic", fmt.Sprintf("%v", GetPanicValue(err))))
		}
	}()
	defer recoverPanic(&err, "manager.invokeListener")
	cb(task)
}

// notify fans a snapshot out to the task's per-task subscribers and every
// global subscriber. It never holds m.mu: callers must have already
// released it. Per-task ordering is preserved because each subscriber has
// its own buffered channel drained by exactly one goroutine in receive
// order.
func (m *Manager) notify(snapshot *Task) {
	m.listenerMu.Lock()
	var targets []chan *Task
	if subs, ok := m.perTask[snapshot.ID]; ok {
		for _, ch := range subs {
			targets = append(targets, ch)
		}
	}
	for _, ch := range m.global {
		targets = append(targets, ch)
	}
	m.listenerMu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- snapshot:
		default:
			m.logger.Warn(context.Background(), "manager: listener channel full, dropping notification",
				F("taskId", snapshot.ID))
		}
	}
}
