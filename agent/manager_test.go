package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeStorage is an in-memory Storage test double. It intentionally lives
// in-package (rather than reusing store.MemoryStore) so these tests don't
// create an import cycle: store imports agent.
type fakeStorage struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	failSave  bool
	failCount int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{tasks: make(map[string]*Task)}
}

func (f *fakeStorage) Save(_ context.Context, task *Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave && f.failCount > 0 {
		f.failCount--
		return fmt.Errorf("simulated storage failure")
	}
	f.tasks[task.ID] = task.Clone()
	return nil
}

func (f *fakeStorage) Load(_ context.Context, id string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id].Clone(), nil
}

func (f *fakeStorage) LoadAll(_ context.Context) ([]*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (f *fakeStorage) Update(_ context.Context, id string, apply func(*Task)) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	clone := t.Clone()
	apply(clone)
	f.tasks[id] = clone
	return clone.Clone(), nil
}

func (f *fakeStorage) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeStorage) {
	t.Helper()
	storage := newFakeStorage()
	m := NewManager(storage, nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return m, storage
}

func TestManager_Initialize_RejectsSecondCall(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Initialize(context.Background()); err == nil {
		t.Fatal("expected an error from a second Initialize call")
	}
}

func TestManager_CreateTask(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	task, err := m.CreateTask(ctx, TaskCreate{Name: "root"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected a non-empty id")
	}
	if task.Status != StatusPending {
		t.Errorf("expected default status pending, got %s", task.Status)
	}
	if got := m.GetTask(task.ID); got == nil || got.Name != "root" {
		t.Errorf("GetTask did not return the created task")
	}
}

func TestManager_CreateTask_ParentNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateTask(context.Background(), TaskCreate{Name: "child", ParentID: "missing"})
	if err == nil {
		t.Fatal("expected an error for a missing parent")
	}
}

func TestManager_CreateTask_BidirectionalConsistency(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent, err := m.CreateTask(ctx, TaskCreate{Name: "parent"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := m.AddSubtask(ctx, parent.ID, TaskCreate{Name: "child"})
	if err != nil {
		t.Fatalf("add subtask: %v", err)
	}

	reloadedParent := m.GetTask(parent.ID)
	if len(reloadedParent.Subtasks) != 1 || reloadedParent.Subtasks[0] != child.ID {
		t.Errorf("expected parent.Subtasks = [%s], got %v", child.ID, reloadedParent.Subtasks)
	}
	if child.ParentID != parent.ID {
		t.Errorf("expected child.ParentID = %s, got %s", parent.ID, child.ParentID)
	}
}

func TestManager_CreateTask_DependencyMustBeSibling(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	parent, _ := m.CreateTask(ctx, TaskCreate{Name: "parent"})
	_, err := m.CreateTask(ctx, TaskCreate{Name: "orphan"})
	if err != nil {
		t.Fatalf("create orphan: %v", err)
	}

	_, err = m.AddSubtask(ctx, parent.ID, TaskCreate{Name: "bad-dep", Dependencies: []string{"not-a-sibling"}})
	if err == nil {
		t.Fatal("expected an error for a non-sibling dependency")
	}
}

func TestManager_UpdateTask_SetsEndTimeOnTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	task, _ := m.CreateTask(ctx, TaskCreate{Name: "t"})
	if task.EndTime != nil {
		t.Fatal("expected nil EndTime on creation")
	}

	updated, err := m.UpdateTask(ctx, task.ID, func(tk *Task) { tk.Status = StatusCompleted })
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.EndTime == nil {
		t.Error("expected EndTime to be set on terminal transition")
	}
}

func TestManager_UpdateTask_StorageFailureRollsBack(t *testing.T) {
	storage := newFakeStorage()
	m := NewManager(storage, nil)
	ctx := context.Background()
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	task, err := m.CreateTask(ctx, TaskCreate{Name: "t"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	storage.failSave = true
	storage.failCount = 1
	if _, err := m.UpdateTask(ctx, task.ID, func(tk *Task) { tk.Name = "renamed" }); err == nil {
		t.Fatal("expected an error from the simulated storage failure")
	}

	if got := m.GetTask(task.ID); got.Name != "t" {
		t.Errorf("expected in-memory state to roll back to %q, got %q", "t", got.Name)
	}
}

func TestManager_DeleteTask_Cascades(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	p, _ := m.CreateTask(ctx, TaskCreate{Name: "P"})
	a, _ := m.AddSubtask(ctx, p.ID, TaskCreate{Name: "A"})
	_, _ = m.AddSubtask(ctx, p.ID, TaskCreate{Name: "B"})
	a1, _ := m.AddSubtask(ctx, a.ID, TaskCreate{Name: "A1"})

	if err := m.DeleteTask(ctx, a.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	if m.GetTask(a.ID) != nil {
		t.Error("expected A to be deleted")
	}
	if m.GetTask(a1.ID) != nil {
		t.Error("expected A1 to cascade-delete")
	}
	parent := m.GetTask(p.ID)
	if len(parent.Subtasks) != 1 || parent.Subtasks[0] == a.ID {
		t.Errorf("expected P.Subtasks to no longer contain A, got %v", parent.Subtasks)
	}
}

func TestManager_GetSubtasks_InsertionOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	p, _ := m.CreateTask(ctx, TaskCreate{Name: "P"})
	first, _ := m.AddSubtask(ctx, p.ID, TaskCreate{Name: "first"})
	second, _ := m.AddSubtask(ctx, p.ID, TaskCreate{Name: "second"})

	subs := m.GetSubtasks(p.ID)
	if len(subs) != 2 || subs[0].ID != first.ID || subs[1].ID != second.ID {
		t.Errorf("expected insertion order [first, second], got %v", subs)
	}
}

func TestManager_CompleteAndFailTask(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	t1, _ := m.CreateTask(ctx, TaskCreate{Name: "ok"})
	completed, err := m.CompleteTask(ctx, t1.ID, "done")
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if completed.Status != StatusCompleted || completed.Result != "done" || completed.Progress != 1.0 {
		t.Errorf("unexpected completed task: %+v", completed)
	}

	t2, _ := m.CreateTask(ctx, TaskCreate{Name: "bad"})
	failed, err := m.FailTask(ctx, t2.ID, fmt.Errorf("boom"))
	if err != nil {
		t.Fatalf("FailTask failed: %v", err)
	}
	if failed.Status != StatusFailed || failed.Error != "boom" {
		t.Errorf("unexpected failed task: %+v", failed)
	}
}

func TestManager_Subscribe_OrderedDelivery(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	task, _ := m.CreateTask(ctx, TaskCreate{Name: "t"})

	var mu sync.Mutex
	var received []float64
	done := make(chan struct{})

	unsub := m.Subscribe(task.ID, func(tk *Task) {
		mu.Lock()
		received = append(received, tk.Progress)
		if len(received) == 2 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsub()

	if _, err := m.SetTaskStatus(ctx, task.ID, StatusRunning, 0.5); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if _, err := m.SetTaskStatus(ctx, task.ID, StatusRunning, 0.9); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener notifications")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 || received[0] != 0.5 || received[1] != 0.9 {
		t.Errorf("expected ordered delivery [0.5, 0.9], got %v", received)
	}
}

func TestManager_Subscribe_PanicIsolation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	task, _ := m.CreateTask(ctx, TaskCreate{Name: "t"})

	var mu sync.Mutex
	var secondReceived int
	done := make(chan struct{})

	unsubPanicky := m.Subscribe(task.ID, func(tk *Task) {
		panic("listener one always panics")
	})
	defer unsubPanicky()

	unsubSecond := m.Subscribe(task.ID, func(tk *Task) {
		mu.Lock()
		secondReceived++
		if secondReceived == 2 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsubSecond()

	if _, err := m.SetTaskStatus(ctx, task.ID, StatusRunning, 0.3); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if _, err := m.SetTaskStatus(ctx, task.ID, StatusRunning, 0.6); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the second listener")
	}

	persisted := m.GetTask(task.ID)
	if persisted.Progress != 0.6 {
		t.Errorf("expected persisted progress 0.6 despite the panicking listener, got %v", persisted.Progress)
	}
}

func TestManager_SubscribeToAll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[string]bool)
	done := make(chan struct{})

	unsub := m.SubscribeToAll(func(tk *Task) {
		mu.Lock()
		seen[tk.ID] = true
		if len(seen) == 2 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsub()

	a, _ := m.CreateTask(ctx, TaskCreate{Name: "a"})
	b, _ := m.CreateTask(ctx, TaskCreate{Name: "b"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for global listener")
	}

	mu.Lock()
	defer mu.Unlock()
	if !seen[a.ID] || !seen[b.ID] {
		t.Errorf("expected the global listener to see both tasks, got %v", seen)
	}
}
