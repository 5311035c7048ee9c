// Package response implements the Response Processor: it converts an LLM
// response — either a finite non-streaming object or a lazy sequence of
// stream chunks — into a lazy sequence of Event values, dispatching tool
// invocations through a Registry-shaped executor along the way.
//
// Two tool-call forms are parsed: native function-call deltas (accumulated
// per slot index as a streaming chunk arrives) and inline-markup tags
// embedded in the assistant's free text. Both converge on the same
// ToolStarted -> ToolCompleted|ToolFailed event triple.
package response

import "github.com/taipm/agentrun/agent/tools"

// EventKind discriminates the tagged Event variants.
type EventKind string

const (
	EventAssistantText EventKind = "assistant_text"
	EventToolStarted   EventKind = "tool_started"
	EventToolCompleted EventKind = "tool_completed"
	EventToolFailed    EventKind = "tool_failed"
	EventPlanStatus    EventKind = "plan_status"
	EventFinish        EventKind = "finish"
)

// Event is one item of the lazy sequence the Processor yields. Only the
// fields relevant to Kind are populated; this mirrors the base
// specification's tagged-variant Event without requiring a sum type.
type Event struct {
	Kind EventKind

	// AssistantText fields.
	Content string
	Final   bool

	// ToolStarted / ToolCompleted / ToolFailed fields.
	InvocationID string
	ToolID       string
	MethodName   string
	Params       map[string]interface{}
	Result       interface{}
	Error        string

	// PlanStatus fields.
	TaskID  string
	Status  string
	Message string

	// Finish fields.
	Reason string
}

// AssistantTextEvent builds an EventAssistantText fragment.
func AssistantTextEvent(content string, final bool) Event {
	return Event{Kind: EventAssistantText, Content: content, Final: final}
}

// ToolStartedEvent builds an EventToolStarted from an invocation that has
// just been dispatched (its Result/Error are not yet known).
func ToolStartedEvent(inv *tools.ToolInvocation) Event {
	return Event{
		Kind:         EventToolStarted,
		InvocationID: inv.InvocationID,
		ToolID:       inv.ToolID,
		MethodName:   inv.MethodName,
		Params:       inv.Params,
	}
}

// ToolResultEvent builds an EventToolCompleted or EventToolFailed from a
// finished invocation, matching its terminal status.
func ToolResultEvent(inv *tools.ToolInvocation) Event {
	if inv.Status == tools.InvocationFailed {
		return Event{Kind: EventToolFailed, InvocationID: inv.InvocationID, Error: inv.Error}
	}
	return Event{Kind: EventToolCompleted, InvocationID: inv.InvocationID, Result: inv.Result}
}

// ToolFailedEvent builds an EventToolFailed directly from a parse error,
// for invocations that never reached dispatch (e.g. malformed arguments).
func ToolFailedEvent(invocationID, errMsg string) Event {
	return Event{Kind: EventToolFailed, InvocationID: invocationID, Error: errMsg}
}

// PlanStatusEvent builds an EventPlanStatus.
func PlanStatusEvent(taskID, status, message string) Event {
	return Event{Kind: EventPlanStatus, TaskID: taskID, Status: status, Message: message}
}

// FinishEvent builds the terminal EventFinish, emitted exactly once per
// processed response.
func FinishEvent(reason string) Event {
	return Event{Kind: EventFinish, Reason: reason}
}
