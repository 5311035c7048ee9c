package response

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/taipm/agentrun/agent"
	"github.com/taipm/agentrun/agent/tools"
)

// ToolExecutor dispatches a parsed tool invocation. *tools.Registry
// satisfies this directly.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, toolID, methodName string, params map[string]interface{}) *tools.ToolInvocation
}

// pendingInvocation is a fully parsed tool call waiting for post-stream
// dispatch (Config.ExecuteOnStream == false).
type pendingInvocation struct {
	toolID string
	method string
	params map[string]interface{}
}

// Processor turns an LLM response into the Event sequence described in
// the response package doc comment, dispatching through a ToolExecutor.
type Processor struct {
	cfg            Config
	executor       ToolExecutor
	inlineBindings []tools.InlineBinding
	logger         agent.Logger
}

// NewProcessor builds a Processor. inlineBindings is typically
// registry.InlineMarkupBindings(); executor is typically the same
// registry.
func NewProcessor(cfg Config, executor ToolExecutor, inlineBindings []tools.InlineBinding, logger agent.Logger) *Processor {
	if logger == nil {
		logger = &agent.NoopLogger{}
	}
	return &Processor{cfg: cfg, executor: executor, inlineBindings: inlineBindings, logger: logger}
}

// ProcessStream consumes a streaming response and returns the Event
// channel, closed once the input channel closes or ctx is canceled.
// Every tool invocation yields exactly one ToolStarted, followed by at
// most one ToolCompleted or ToolFailed (none follows a ToolStarted when
// Config.ExecuteTools is false). A single Finish event is emitted last.
//
// Assistant text fragments are forwarded as they resolve from the inline
// scanner; Final is always false here since no fragment is known to be
// the response's last until the stream itself ends.
func (p *Processor) ProcessStream(ctx context.Context, chunks <-chan Chunk) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		emit := func(e Event) {
			select {
			case out <- e:
			case <-ctx.Done():
			}
		}

		slots := map[int]*slotAccumulator{}
		var order []int
		lastIdx := -1
		var buffered []pendingInvocation
		scanner := newInlineScanner(p.inlineBindings)
		lastFinish := "stop"

	loop:
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					break loop
				}
				if chunk.FinishReason != "" {
					lastFinish = chunk.FinishReason
				}

				if chunk.ContentDelta != "" {
					if p.cfg.InlineMarkupToolCalling {
						p.handleScanItems(ctx, scanner.Feed(chunk.ContentDelta), emit, &buffered)
					} else {
						emit(AssistantTextEvent(chunk.ContentDelta, false))
					}
				}

				if p.cfg.NativeToolCalling {
					for _, tc := range chunk.ToolCalls {
						acc, exists := slots[tc.Index]
						if !exists {
							acc = &slotAccumulator{}
							slots[tc.Index] = acc
							order = append(order, tc.Index)
						}
						if tc.ID != "" {
							acc.id = tc.ID
						}
						if tc.Name != "" {
							acc.name = tc.Name
						}
						if tc.ArgumentsDelta != "" {
							acc.argsBuf = append(acc.argsBuf, tc.ArgumentsDelta...)
						}
						// A new slot index starting means the previous one
						// received its last fragment.
						if lastIdx != -1 && lastIdx != tc.Index {
							p.finalizeSlot(ctx, slots[lastIdx], emit, &buffered)
						}
						lastIdx = tc.Index
					}
					if chunk.FinishReason == "tool_calls" {
						for _, idx := range order {
							p.finalizeSlot(ctx, slots[idx], emit, &buffered)
						}
					}
				}
			}
		}

		if p.cfg.InlineMarkupToolCalling {
			if tail := scanner.Flush(); len(tail) > 0 {
				p.handleScanItems(ctx, tail, emit, &buffered)
			}
		}
		if p.cfg.NativeToolCalling {
			for _, idx := range order {
				p.finalizeSlot(ctx, slots[idx], emit, &buffered)
			}
		}

		for _, pend := range buffered {
			p.dispatch(ctx, pend.toolID, pend.method, pend.params, emit)
		}

		emit(FinishEvent(lastFinish))
	}()

	return out
}

// ProcessMessage synthesizes the same Event sequence ProcessStream would
// produce, treating the whole non-streaming message as a single chunk.
func (p *Processor) ProcessMessage(ctx context.Context, msg Message) []Event {
	var events []Event
	emit := func(e Event) { events = append(events, e) }
	var buffered []pendingInvocation

	if msg.Content != "" {
		if p.cfg.InlineMarkupToolCalling {
			scanner := newInlineScanner(p.inlineBindings)
			items := scanner.Feed(msg.Content)
			items = append(items, scanner.Flush()...)
			p.handleScanItems(ctx, items, emit, &buffered)
			// The whole message is already in hand, so its last prose
			// fragment is known to be the final one.
			for i := len(events) - 1; i >= 0; i-- {
				if events[i].Kind == EventAssistantText {
					events[i].Final = true
					break
				}
			}
		} else {
			emit(AssistantTextEvent(msg.Content, true))
		}
	}

	if p.cfg.NativeToolCalling {
		for _, tc := range msg.ToolCalls {
			toolID, method, ok := tools.SplitLLMFacingName(tc.Name)
			if !ok {
				p.logger.Warn(ctx, "response: malformed tool-call name", agent.F("name", tc.Name))
				emit(Event{Kind: EventToolFailed, InvocationID: uuid.NewString(), Error: fmt.Sprintf("malformed tool name %q", tc.Name)})
				continue
			}
			params, err := decodeArguments(tc.Arguments)
			if err != nil {
				emit(Event{Kind: EventToolFailed, InvocationID: uuid.NewString(), Error: err.Error()})
				continue
			}
			p.route(ctx, toolID, method, params, emit, &buffered)
		}
	}

	for _, pend := range buffered {
		p.dispatch(ctx, pend.toolID, pend.method, pend.params, emit)
	}

	events = append(events, FinishEvent("stop"))
	return events
}

// finalizeSlot parses a completed native tool-call slot's accumulated
// arguments and routes it for dispatch. It is a no-op if the slot was
// already finalized.
func (p *Processor) finalizeSlot(ctx context.Context, acc *slotAccumulator, emit func(Event), buffered *[]pendingInvocation) {
	if acc == nil || acc.dispatched {
		return
	}
	acc.dispatched = true

	toolID, method, ok := tools.SplitLLMFacingName(acc.name)
	if !ok {
		p.logger.Warn(ctx, "response: malformed tool-call name", agent.F("name", acc.name))
		emit(Event{Kind: EventToolFailed, InvocationID: uuid.NewString(), Error: fmt.Sprintf("malformed tool name %q", acc.name)})
		return
	}
	params, err := decodeArguments(string(acc.argsBuf))
	if err != nil {
		emit(Event{Kind: EventToolFailed, InvocationID: uuid.NewString(), Error: err.Error()})
		return
	}
	p.route(ctx, toolID, method, params, emit, buffered)
}

// decodeArguments parses a tool call's JSON argument string, treating an
// empty string as an empty argument set rather than a parse error.
func decodeArguments(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid tool-call arguments JSON: %w", err)
	}
	return params, nil
}

// handleScanItems turns inline-scanner output into Events: plain text is
// forwarded as AssistantText, parse errors become a standalone
// ToolFailed, and successfully parsed tags are routed for dispatch.
func (p *Processor) handleScanItems(ctx context.Context, items []scanItem, emit func(Event), buffered *[]pendingInvocation) {
	for _, it := range items {
		switch it.kind {
		case itemText:
			if it.text != "" {
				emit(AssistantTextEvent(it.text, false))
			}
		case itemTag:
			if it.err != nil {
				emit(Event{Kind: EventToolFailed, InvocationID: uuid.NewString(), Error: it.err.Error()})
				continue
			}
			p.route(ctx, it.toolID, it.method, it.params, emit, buffered)
		}
	}
}

// route applies the ExecuteTools/ExecuteOnStream configuration to a
// successfully parsed invocation: parse-only mode reports ToolStarted
// and stops there, ExecuteOnStream dispatches immediately, and otherwise
// the invocation is buffered for dispatch once the response ends.
func (p *Processor) route(ctx context.Context, toolID, method string, params map[string]interface{}, emit func(Event), buffered *[]pendingInvocation) {
	if !p.cfg.ExecuteTools {
		emit(Event{Kind: EventToolStarted, InvocationID: uuid.NewString(), ToolID: toolID, MethodName: method, Params: params})
		return
	}
	if p.cfg.ExecuteOnStream {
		p.dispatch(ctx, toolID, method, params, emit)
		return
	}
	*buffered = append(*buffered, pendingInvocation{toolID: toolID, method: method, params: params})
}

// dispatch emits ToolStarted, invokes the executor, and emits the
// matching ToolCompleted or ToolFailed. The Processor assigns the
// invocation id itself so the triple shares one id regardless of what id
// the executor's own ToolInvocation carries internally.
func (p *Processor) dispatch(ctx context.Context, toolID, method string, params map[string]interface{}, emit func(Event)) {
	invID := uuid.NewString()
	emit(Event{Kind: EventToolStarted, InvocationID: invID, ToolID: toolID, MethodName: method, Params: params})

	inv := p.executor.ExecuteTool(ctx, toolID, method, params)
	if inv.Status == tools.InvocationFailed {
		emit(Event{Kind: EventToolFailed, InvocationID: invID, Error: inv.Error})
		return
	}
	emit(Event{Kind: EventToolCompleted, InvocationID: invID, Result: inv.Result})
}
