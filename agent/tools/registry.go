// Package tools implements the tool registry and orchestrator: a directory
// of named, callable capabilities exposed to an LLM through two schema
// forms (OpenAPI-shaped function schemas and inline-markup tag mappings),
// plus the dispatcher that actually invokes a method by name.
package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMethodTimeout is the Timeout a new Registry starts with, and the
// bound ExecuteTool uses when Timeout is not positive. It applies whether or
// not the caller's context has a deadline; an earlier caller deadline wins.
const DefaultMethodTimeout = 30 * time.Second

// Registry indexes registered Tools by id and dispatches invocations. It is
// effectively read-only after startup: registration is expected during
// initialization only, so the read path takes a shared lock and the rare
// write path (RegisterTool, LoadToolsFromDirectory) takes an exclusive one.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	methods map[string]map[string]Method // toolID -> methodName -> Method

	// Timeout bounds each ExecuteTool call. Defaults to DefaultMethodTimeout.
	Timeout time.Duration
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		methods: make(map[string]map[string]Method),
		Timeout: DefaultMethodTimeout,
	}
}

// RegisterTool indexes a tool by its ToolID. Duplicate registration, an
// empty id, or a method/tool id containing "__" (which would break the
// <toolId>__<methodName> composite name) is an error.
func (r *Registry) RegisterTool(t Tool) error {
	if t == nil {
		return fmt.Errorf("tools: cannot register a nil tool")
	}
	id := t.ToolID()
	if id == "" {
		return fmt.Errorf("tools: tool id must not be empty")
	}
	if strings.Contains(id, "__") {
		return fmt.Errorf("tools: tool id %q must not contain \"__\"", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[id]; exists {
		return fmt.Errorf("tools: tool %q already registered", id)
	}

	methodIndex := make(map[string]Method)
	for _, m := range t.Methods() {
		if strings.Contains(m.Name, "__") {
			return fmt.Errorf("tools: method name %q on tool %q must not contain \"__\"", m.Name, id)
		}
		if _, dup := methodIndex[m.Name]; dup {
			return fmt.Errorf("tools: duplicate method %q on tool %q", m.Name, id)
		}
		methodIndex[m.Name] = m
	}

	r.tools[id] = t
	r.methods[id] = methodIndex
	return nil
}

// GetToolSchemasForLLM yields one FunctionSchema per registered method,
// named "<toolId>__<methodName>" — the sole identifier the LLM is expected
// to return to invoke it.
func (r *Registry) GetToolSchemasForLLM() []FunctionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]FunctionSchema, 0)
	for toolID, methods := range r.methods {
		for _, m := range methods {
			schemas = append(schemas, FunctionSchema{
				Name:        LLMFacingName(toolID, m.Name),
				Description: m.Description,
				Parameters:  m.Parameters,
			})
		}
	}
	return schemas
}

// GetInlineMarkupSchemasForLLM returns human-readable documentation of
// every registered tag name and its parameter mapping, suitable for
// injection into an LLM system prompt.
func (r *Registry) GetInlineMarkupSchemasForLLM() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for toolID, methods := range r.methods {
		for _, m := range methods {
			if m.InlineMarkup == nil {
				continue
			}
			ims := m.InlineMarkup
			fmt.Fprintf(&b, "Tag <%s> invokes %s.%s.\n", ims.Tag, toolID, m.Name)
			for param, src := range ims.Params {
				switch src.Kind {
				case ParamFromAttribute:
					fmt.Fprintf(&b, "  - %s: attribute\n", param)
				case ParamFromElement:
					fmt.Fprintf(&b, "  - %s: element at %q\n", param, src.Path)
				case ParamFromContent:
					fmt.Fprintf(&b, "  - %s: tag content\n", param)
				}
			}
			if ims.Example != "" {
				fmt.Fprintf(&b, "  Example: %s\n", ims.Example)
			}
		}
	}
	return b.String()
}

// lookup returns the method registered for (toolID, methodName), or an
// error describing exactly which part of the identifier was unknown —
// the error strings are part of the orchestrator's contract and are
// matched verbatim by callers and tests.
func (r *Registry) lookup(toolID, methodName string) (Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods, ok := r.methods[toolID]
	if !ok {
		return Method{}, fmt.Errorf("Tool with ID '%s' not found", toolID)
	}
	m, ok := methods[methodName]
	if !ok {
		return Method{}, fmt.Errorf("Method '%s' not found on tool '%s'", methodName, toolID)
	}
	return m, nil
}

// ExecuteTool looks up the tool and method, then invokes it with params.
// The returned ToolInvocation's status is "completed" on normal return and
// "failed" on any error or panic recovered from the handler; exceptions
// are never propagated to the caller as a Go error. Concurrent invocations
// of the same or different tools run in parallel with no serialization
// imposed by the registry itself.
func (r *Registry) ExecuteTool(ctx context.Context, toolID, methodName string, params map[string]interface{}) *ToolInvocation {
	inv := &ToolInvocation{
		InvocationID: uuid.NewString(),
		ToolID:       toolID,
		MethodName:   methodName,
		Params:       params,
		Status:       InvocationStarted,
		StartTime:    time.Now().UTC(),
	}

	method, err := r.lookup(toolID, methodName)
	if err != nil {
		inv.Fail(err)
		return inv
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultMethodTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := r.invokeWithRecovery(callCtx, method, params)
	if err != nil {
		inv.Fail(err)
		return inv
	}
	inv.Complete(result)
	return inv
}

// invokeWithRecovery runs the handler on a goroutine so a hang is bounded
// by ctx's deadline, and converts any recovered panic into an error rather
// than crashing the orchestrator. This package cannot import agent (agent
// already imports tools, for Executor's ExecuteTool dependency), so it
// cannot share agent.PanicError/recoverPanic; this is an independent,
// package-local equivalent of that same pattern.
func (r *Registry) invokeWithRecovery(ctx context.Context, method Method, params map[string]interface{}) (result interface{}, err error) {
	done := make(chan struct{})

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("tool %q panicked: %v\n%s", method.Name, rec, debug.Stack())
			}
			close(done)
		}()
		result, err = method.Handler(ctx, params)
	}()

	select {
	case <-done:
		return result, err
	case <-ctx.Done():
		return nil, fmt.Errorf("tool %q timed out: %w", method.Name, ctx.Err())
	}
}

// InlineBinding pairs a registered inline-markup tag with the tool/method
// it invokes.
type InlineBinding struct {
	Tag        string
	ToolID     string
	MethodName string
	Schema     InlineMarkupSchema
}

// InlineMarkupBindings returns every registered method that declares an
// InlineMarkupSchema, for the Response Processor to build its tag scanner
// from.
func (r *Registry) InlineMarkupBindings() []InlineBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []InlineBinding
	for toolID, methods := range r.methods {
		for _, m := range methods {
			if m.InlineMarkup == nil {
				continue
			}
			out = append(out, InlineBinding{
				Tag:        m.InlineMarkup.Tag,
				ToolID:     toolID,
				MethodName: m.Name,
				Schema:     *m.InlineMarkup,
			})
		}
	}
	return out
}

// Get returns the tool registered under id, if any.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// ToolIDs returns every registered tool's identifier, for inclusion in a
// planner prompt.
func (r *Registry) ToolIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}
