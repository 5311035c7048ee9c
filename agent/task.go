package agent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPendingPlanning Status = "pending_planning"
	StatusPlanned         Status = "planned"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
	StatusPlanningFailed  Status = "planning_failed"
)

// IsTerminal reports whether a Task in this status will never transition
// again outside of an explicit administrative reset.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the central entity of the runtime: a unit of work, either the
// root of a plan or one of its subtasks.
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	ParentID     string   `json:"parentId,omitempty"`
	Subtasks     []string `json:"subtasks"`
	Dependencies []string `json:"dependencies"`

	AssignedTools []string `json:"assignedTools"`

	Artifacts []map[string]interface{} `json:"artifacts"`
	Metadata  map[string]interface{}   `json:"metadata,omitempty"`

	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`

	// RetryAttempt counts how many times this task has been re-planned.
	// Not required by any invariant in this runtime.
	RetryAttempt int `json:"retryAttempt,omitempty"`

	// CostEstimate carries through LLM token-usage bookkeeping when a task
	// was produced by the Planner. Optional, defaults to zero.
	CostEstimate float64 `json:"costEstimate,omitempty"`
}

// TaskCreate carries the fields accepted by CreateTask/AddSubtask.
type TaskCreate struct {
	Name          string
	Description   string
	ParentID      string
	Dependencies  []string
	AssignedTools []string
	Metadata      map[string]interface{}
	Status        Status  // defaults to StatusPending
	Progress      float64 // defaults to 0.0
}

// newTask builds a fresh Task from a TaskCreate, assigning id and startTime.
func newTask(in TaskCreate) *Task {
	status := in.Status
	if status == "" {
		status = StatusPending
	}
	return &Task{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		Status:        status,
		Progress:      in.Progress,
		StartTime:     time.Now().UTC(),
		ParentID:      in.ParentID,
		Subtasks:      []string{},
		Dependencies:  append([]string{}, in.Dependencies...),
		AssignedTools: append([]string{}, in.AssignedTools...),
		Artifacts:     []map[string]interface{}{},
		Metadata:      in.Metadata,
	}
}

// Clone returns a deep-enough copy for safe handout to listeners/callers
// without sharing slice/map backing arrays with the manager's cache.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Subtasks = append([]string{}, t.Subtasks...)
	clone.Dependencies = append([]string{}, t.Dependencies...)
	clone.AssignedTools = append([]string{}, t.AssignedTools...)
	clone.Artifacts = append([]map[string]interface{}{}, t.Artifacts...)
	if t.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	if t.EndTime != nil {
		endTime := *t.EndTime
		clone.EndTime = &endTime
	}
	return &clone
}
