package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/taipm/agentrun/agent/tools"
)

// Strategy selects how the Executor runs subtasks that share a
// dependency level (i.e. have no ordering constraint between them).
type Strategy int

const (
	// Sequential runs every ready subtask one at a time, in insertion
	// order, regardless of level size.
	Sequential Strategy = iota
	// Parallel runs every subtask in a ready level concurrently.
	Parallel
	// Adaptive runs single-subtask levels sequentially (skipping the
	// goroutine/WaitGroup overhead) and multi-subtask levels in
	// parallel. This is the default.
	Adaptive
)

// ParamDeriver derives a subtask's tool invocation parameters. Executor
// calls it once per subtask, immediately before dispatch.
type ParamDeriver interface {
	DeriveParams(ctx context.Context, task *Task) (map[string]interface{}, error)
}

// StaticParamExecutor is the shipped ParamDeriver: it derives parameters
// purely from plan metadata set at subtask-creation time, with no
// secondary LLM turn. If Metadata["params"] is present it is used
// verbatim; otherwise the subtask's planning thought (its Description) is
// passed through as the sole "thought" parameter, which is sufficient for
// tools whose single parameter is free-text.
type StaticParamExecutor struct{}

// DeriveParams implements ParamDeriver.
func (StaticParamExecutor) DeriveParams(_ context.Context, task *Task) (map[string]interface{}, error) {
	if task.Metadata != nil {
		if params, ok := task.Metadata["params"].(map[string]interface{}); ok {
			return params, nil
		}
	}
	return map[string]interface{}{"thought": task.Description}, nil
}

// SecondaryTurnExecutor is the alternative ParamDeriver hinted at by the
// Open Question but not implemented here: a deployment could instead
// invoke a secondary LLM conversation per subtask and feed its output
// through the Response Processor to extract a native or inline-markup
// tool call, using that call's parsed params instead of static metadata.
// It is declared as a documented extension point only; StaticParamExecutor
// is what ships.
type SecondaryTurnExecutor interface {
	ParamDeriver
}

// toolExecutor is the narrow slice of tools.Registry the Executor
// depends on.
type toolExecutor interface {
	ExecuteTool(ctx context.Context, toolID, methodName string, params map[string]interface{}) *tools.ToolInvocation
}

// EventPublisher forwards a best-effort notification for one task event.
// Failures are logged, never fatal to plan execution — matching the
// notification channel's best-effort delivery contract.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, taskID string, event map[string]interface{}) error
}

// Executor walks a main task's subtasks in dependency order, dispatching
// each one's assigned tool through the registry and updating state via
// Manager as it goes.
type Executor struct {
	manager  *Manager
	registry toolExecutor
	deriver  ParamDeriver
	strategy Strategy
	events   EventPublisher
	logger   Logger

	// MaxParallelism bounds how many subtasks in one dependency level run
	// concurrently under Parallel/Adaptive. Zero means unbounded.
	MaxParallelism int
}

// NewExecutor constructs an Executor. deriver may be nil, defaulting to
// StaticParamExecutor{}. events may be nil, in which case no notification
// is published.
func NewExecutor(manager *Manager, registry toolExecutor, deriver ParamDeriver, strategy Strategy, events EventPublisher, logger Logger) *Executor {
	if deriver == nil {
		deriver = StaticParamExecutor{}
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Executor{
		manager:  manager,
		registry: registry,
		deriver:  deriver,
		strategy: strategy,
		events:   events,
		logger:   logger,
	}
}

// Run executes every subtask of mainTaskID respecting dependencies, then
// transitions the main task to completed (all subtasks succeeded) or
// failed (any subtask failed irrecoverably). Cancellation of ctx
// transitions the main task, and any subtask that had started running,
// to cancelled.
func (e *Executor) Run(ctx context.Context, mainTaskID string) error {
	main := e.manager.GetTask(mainTaskID)
	if main == nil {
		return NewTaskNotFoundError(mainTaskID)
	}

	subtasks := e.manager.GetSubtasks(mainTaskID)
	levels, err := topologicalLevels(subtasks)
	if err != nil {
		if _, failErr := e.manager.FailTask(ctx, mainTaskID, err); failErr != nil {
			return fmt.Errorf("executor: mark main task failed: %w", failErr)
		}
		return err
	}

	if _, err := e.manager.SetTaskStatus(ctx, mainTaskID, StatusRunning); err != nil {
		return fmt.Errorf("executor: mark main task running: %w", err)
	}
	e.publish(ctx, mainTaskID, "PlanStatus", map[string]interface{}{"status": string(StatusRunning)})

	total := len(subtasks)
	completed := 0
	anyFailed := false

	for _, level := range levels {
		if ctx.Err() != nil {
			e.cancelRemaining(context.Background(), mainTaskID, level)
			return ctx.Err()
		}

		results := e.runLevel(ctx, level)
		for _, ok := range results {
			completed++
			if !ok {
				anyFailed = true
			}
		}

		if total > 0 {
			progress := float64(completed) / float64(total)
			if _, err := e.manager.UpdateTask(ctx, mainTaskID, func(t *Task) {
				if t.Status == StatusRunning {
					t.Progress = progress
				}
			}); err != nil {
				e.logger.Warn(ctx, "executor: failed to update main task progress", F("error", err.Error()))
			}
		}

		if ctx.Err() != nil {
			e.cancelRemaining(context.Background(), mainTaskID, nil)
			return ctx.Err()
		}
	}

	if anyFailed {
		failure := errors.New("one or more subtasks failed")
		_, err := e.manager.FailTask(ctx, mainTaskID, failure, 1.0)
		e.publish(ctx, mainTaskID, "PlanStatus", map[string]interface{}{"status": string(StatusFailed)})
		if err != nil {
			return fmt.Errorf("executor: mark main task failed: %w", err)
		}
		return failure
	}

	_, err = e.manager.CompleteTask(ctx, mainTaskID, nil, 1.0)
	e.publish(ctx, mainTaskID, "PlanStatus", map[string]interface{}{"status": string(StatusCompleted)})
	return err
}

// runLevel executes every subtask in a ready dependency level according
// to e.strategy, returning one success/failure bool per subtask.
func (e *Executor) runLevel(ctx context.Context, level []*Task) []bool {
	useParallel := e.strategy == Parallel || (e.strategy == Adaptive && len(level) > 1)
	if !useParallel {
		results := make([]bool, len(level))
		for i, sub := range level {
			results[i] = e.runSubtask(ctx, sub)
		}
		return results
	}

	limit := e.MaxParallelism
	if limit <= 0 || limit > len(level) {
		limit = len(level)
	}
	sem := make(chan struct{}, limit)
	results := make([]bool, len(level))
	var wg sync.WaitGroup
	for i, sub := range level {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sub *Task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.runSubtask(ctx, sub)
		}(i, sub)
	}
	wg.Wait()
	return results
}

// blockedDependency reports the first dependency of sub that has not
// reached a terminal-successful state: a subtask may only start once
// every dependency is StatusCompleted. It reads each
// dependency's live status from the Manager rather than trusting the
// static graph shape, so a dependency that failed or was cancelled after
// topologicalLevels ran is still caught.
func (e *Executor) blockedDependency(sub *Task) (depID string, depStatus Status, blocked bool) {
	for _, id := range sub.Dependencies {
		dep := e.manager.GetTask(id)
		if dep == nil {
			return id, "", true
		}
		if dep.Status != StatusCompleted {
			return id, dep.Status, true
		}
	}
	return "", "", false
}

// failBlockedSubtask marks sub failed without dispatching its tool,
// because a dependency of it did not complete successfully.
func (e *Executor) failBlockedSubtask(ctx context.Context, sub *Task, depID string, depStatus Status) bool {
	status := string(depStatus)
	if depStatus == "" {
		status = "missing"
	}
	err := fmt.Errorf("dependency %q did not complete successfully (status: %s)", depID, status)
	e.publish(ctx, sub.ID, "PlanStatus", map[string]interface{}{"status": string(StatusFailed), "message": err.Error()})
	if _, ferr := e.manager.FailTask(ctx, sub.ID, err); ferr != nil {
		e.logger.Error(ctx, "executor: failed to mark subtask failed for blocked dependency", F("taskId", sub.ID), F("error", ferr.Error()))
	}
	return false
}

// runSubtask dispatches one subtask's assigned tool and reports whether
// it completed successfully. A subtask whose dependency did not complete
// successfully is failed outright, never dispatched.
func (e *Executor) runSubtask(ctx context.Context, sub *Task) bool {
	if depID, depStatus, blocked := e.blockedDependency(sub); blocked {
		return e.failBlockedSubtask(ctx, sub, depID, depStatus)
	}

	if _, err := e.manager.SetTaskStatus(ctx, sub.ID, StatusRunning); err != nil {
		e.logger.Error(ctx, "executor: failed to mark subtask running", F("taskId", sub.ID), F("error", err.Error()))
		return false
	}

	if len(sub.AssignedTools) == 0 {
		_, _ = e.manager.FailTask(ctx, sub.ID, fmt.Errorf("subtask has no assigned tool"))
		return false
	}

	toolID, methodName, ok := tools.SplitLLMFacingName(sub.AssignedTools[0])
	if !ok {
		_, _ = e.manager.FailTask(ctx, sub.ID, fmt.Errorf("assigned tool %q is not a valid <toolId>__<methodName> identifier", sub.AssignedTools[0]))
		return false
	}

	params, err := e.deriver.DeriveParams(ctx, sub)
	if err != nil {
		_, _ = e.manager.FailTask(ctx, sub.ID, fmt.Errorf("derive params: %w", err))
		return false
	}

	e.publish(ctx, sub.ID, "ToolStarted", map[string]interface{}{
		"toolId": toolID, "methodName": methodName, "params": params,
	})

	inv := e.registry.ExecuteTool(ctx, toolID, methodName, params)

	if _, err := e.manager.UpdateTask(ctx, sub.ID, func(t *Task) {
		t.Artifacts = append(t.Artifacts, inv.AsArtifact())
	}); err != nil {
		e.logger.Warn(ctx, "executor: failed to append invocation artifact", F("taskId", sub.ID), F("error", err.Error()))
	}

	if ctx.Err() != nil {
		e.publish(context.Background(), sub.ID, "ToolFailed", map[string]interface{}{"invocationId": inv.InvocationID, "error": ctx.Err().Error()})
		_, _ = e.manager.UpdateTask(context.Background(), sub.ID, func(t *Task) {
			t.Status = StatusCancelled
		})
		return false
	}

	if inv.Status == tools.InvocationFailed {
		e.publish(ctx, sub.ID, "ToolFailed", map[string]interface{}{"invocationId": inv.InvocationID, "error": inv.Error})
		_, _ = e.manager.FailTask(ctx, sub.ID, errors.New(inv.Error))
		return false
	}

	e.publish(ctx, sub.ID, "ToolCompleted", map[string]interface{}{"invocationId": inv.InvocationID, "result": inv.Result})
	_, _ = e.manager.CompleteTask(ctx, sub.ID, inv.Result)
	return true
}

// cancelRemaining transitions the main task and every subtask in level
// (plus any not-yet-reached subtasks, when level is nil) to cancelled.
// Uses a detached context since the caller's ctx is already done.
func (e *Executor) cancelRemaining(ctx context.Context, mainTaskID string, level []*Task) {
	_, _ = e.manager.UpdateTask(ctx, mainTaskID, func(t *Task) {
		t.Status = StatusCancelled
	})
	if level == nil {
		level = e.manager.GetSubtasks(mainTaskID)
	}
	for _, sub := range level {
		if sub.Status == StatusRunning || sub.Status == StatusPending {
			_, _ = e.manager.UpdateTask(ctx, sub.ID, func(t *Task) {
				t.Status = StatusCancelled
			})
		}
	}
}

func (e *Executor) publish(ctx context.Context, taskID, kind string, fields map[string]interface{}) {
	if e.events == nil {
		return
	}
	event := map[string]interface{}{"type": kind}
	for k, v := range fields {
		event[k] = v
	}
	if err := e.events.PublishTaskEvent(ctx, taskID, event); err != nil {
		e.logger.Warn(ctx, "executor: failed to publish event", F("taskId", taskID), F("error", err.Error()))
	}
}

// topologicalLevels groups subtasks into dependency-respecting waves via
// Kahn's algorithm: level 0 holds every subtask with no (in-set)
// dependencies, level 1 holds subtasks whose dependencies all lie in
// level 0, and so on. Insertion order is preserved within a level.
// Dependencies on ids outside this subtask set are ignored, per the
// sibling-scoped dependency invariant. Returns an error if a cycle is
// detected.
//
// This only shapes the static wave ordering; it says nothing about
// whether a dependency actually succeeded. runSubtask's blockedDependency
// check is what enforces the "terminal-successful" half of that
// requirement, since a dependency's outcome is only known once its own
// wave has actually run.
func topologicalLevels(subtasks []*Task) ([][]*Task, error) {
	byID := make(map[string]*Task, len(subtasks))
	for _, t := range subtasks {
		byID[t.ID] = t
	}

	indegree := make(map[string]int, len(subtasks))
	dependents := make(map[string][]string)
	for _, t := range subtasks {
		indegree[t.ID] = 0
	}
	for _, t := range subtasks {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				continue
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	visited := make(map[string]bool, len(subtasks))
	var levels [][]*Task
	remaining := len(subtasks)

	for remaining > 0 {
		var level []*Task
		for _, t := range subtasks {
			if !visited[t.ID] && indegree[t.ID] == 0 {
				level = append(level, t)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("executor: dependency cycle detected among subtasks")
		}
		for _, t := range level {
			visited[t.ID] = true
			remaining--
			for _, dependent := range dependents[t.ID] {
				indegree[dependent]--
			}
		}
		levels = append(levels, level)
	}

	return levels, nil
}
