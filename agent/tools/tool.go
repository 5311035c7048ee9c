package tools

import (
	"context"
	"fmt"
	"time"
)

// ParamSourceKind identifies where an inline-markup parameter value is
// extracted from within a parsed tag.
type ParamSourceKind string

const (
	// ParamFromAttribute reads the value from an attribute on the tag itself.
	ParamFromAttribute ParamSourceKind = "attribute"
	// ParamFromElement reads the text content of a nested element at Path.
	ParamFromElement ParamSourceKind = "element"
	// ParamFromContent reads the entire inner text of the tag.
	ParamFromContent ParamSourceKind = "content"
)

// ParamSource describes how to extract one parameter's value from an
// inline-markup invocation.
type ParamSource struct {
	Kind ParamSourceKind
	// Path is the relative path to a nested element. Only meaningful when
	// Kind is ParamFromElement.
	Path string
}

// InlineMarkupSchema documents a tag name a method can be invoked through
// when embedded in an LLM's free-text response, e.g.
// <execute_python_code code='print(1)'/>.
type InlineMarkupSchema struct {
	Tag     string
	Params  map[string]ParamSource
	Example string
}

// FunctionSchema is the OpenAPI-shaped, LLM-facing description of a single
// method. Name is the composite "<toolId>__<methodName>" identifier; it is
// filled in by the registry, not by the tool itself.
type FunctionSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Handler executes one method invocation with its extracted parameters.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Method is one callable operation a Tool exposes.
type Method struct {
	Name         string
	Description  string
	Parameters   map[string]interface{}
	InlineMarkup *InlineMarkupSchema
	Handler      Handler
}

// Tool is a registered capability exposing one or more named methods. A
// concrete tool is an independent value registered by identifier; no
// runtime class hierarchy is required.
type Tool interface {
	ToolID() string
	Methods() []Method
}

// InvocationStatus is the lifecycle state of a ToolInvocation.
type InvocationStatus string

const (
	InvocationStarted   InvocationStatus = "started"
	InvocationCompleted InvocationStatus = "completed"
	InvocationFailed    InvocationStatus = "failed"
)

// ToolInvocation is a transient record of a single tool call. It is never
// persisted as its own entity; callers that want a durable trace convert it
// to an artifact via AsArtifact and append it to a Task's Artifacts.
type ToolInvocation struct {
	InvocationID string
	ToolID       string
	MethodName   string
	Params       map[string]interface{}
	Status       InvocationStatus
	Result       interface{}
	Error        string
	StartTime    time.Time
	EndTime      *time.Time
}

// Complete marks the invocation as completed with the given result.
func (ti *ToolInvocation) Complete(result interface{}) {
	now := time.Now().UTC()
	ti.Status = InvocationCompleted
	ti.Result = result
	ti.EndTime = &now
}

// Fail marks the invocation as failed with the given error.
func (ti *ToolInvocation) Fail(err error) {
	now := time.Now().UTC()
	ti.Status = InvocationFailed
	if err != nil {
		ti.Error = err.Error()
	}
	ti.EndTime = &now
}

// AsArtifact renders the invocation as the opaque record shape a Task's
// Artifacts list stores.
func (ti *ToolInvocation) AsArtifact() map[string]interface{} {
	artifact := map[string]interface{}{
		"invocationId": ti.InvocationID,
		"toolId":       ti.ToolID,
		"methodName":   ti.MethodName,
		"params":       ti.Params,
		"status":       string(ti.Status),
		"startTime":    ti.StartTime,
	}
	if ti.EndTime != nil {
		artifact["endTime"] = *ti.EndTime
	}
	if ti.Result != nil {
		artifact["result"] = ti.Result
	}
	if ti.Error != "" {
		artifact["error"] = ti.Error
	}
	return artifact
}

// LLMFacingName forms the composite identifier the LLM is expected to
// return for a given tool/method pair.
func LLMFacingName(toolID, methodName string) string {
	return fmt.Sprintf("%s__%s", toolID, methodName)
}

// SplitLLMFacingName splits a composite "<toolId>__<methodName>" name on
// the first "__" separator. ok is false if the separator is absent.
func SplitLLMFacingName(name string) (toolID, methodName string, ok bool) {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == '_' && name[i+1] == '_' {
			return name[:i], name[i+2:], true
		}
	}
	return "", "", false
}
