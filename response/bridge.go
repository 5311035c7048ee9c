package response

import (
	"context"

	"github.com/taipm/agentrun/agent"
)

// FromCompletionResponse converts a provider-agnostic, already-complete
// agent.CompletionResponse (the shape every agent.LLMAdapter's Complete
// method returns) into the Message ProcessMessage expects.
func FromCompletionResponse(resp *agent.CompletionResponse) Message {
	msg := Message{Content: resp.Content}
	if len(resp.ToolCalls) == 0 {
		return msg
	}
	msg.ToolCalls = make([]ToolCall, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		msg.ToolCalls[i] = ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
	}
	return msg
}

// StreamAdapter drives an agent.LLMAdapter's streaming call and exposes
// it as the Chunk sequence ProcessStream consumes, wiring a live provider
// stream to the Processor end to end. Content fragments are forwarded as
// they arrive from the provider; any tool calls on the adapter's final
// CompletionResponse are delivered on a terminal chunk carrying the
// response's finish reason. Inline-markup tags embedded in the prose
// therefore parse incrementally, while native tool calls finalize at
// stream end. The OpenAI and Gemini adapters' Stream methods return
// content (and, for Gemini, usage and finish reason) but no tool calls,
// so with them no native tool call reaches this path.
//
// The chunk channel closes when the provider stream ends or ctx is
// canceled. The error channel carries at most one value: the stream
// error, if any, available after the chunk channel closes.
func StreamAdapter(ctx context.Context, llm agent.LLMAdapter, req *agent.CompletionRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := llm.Stream(ctx, req, func(delta string) {
			if delta == "" {
				return
			}
			select {
			case chunks <- Chunk{ContentDelta: delta}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errs <- err
			return
		}

		final := Chunk{FinishReason: resp.FinishReason}
		if final.FinishReason == "" {
			final.FinishReason = "stop"
		}
		for i, tc := range resp.ToolCalls {
			final.ToolCalls = append(final.ToolCalls, ToolCallDelta{
				Index:          i,
				ID:             tc.ID,
				Name:           tc.Name,
				ArgumentsDelta: tc.Arguments,
			})
		}
		if len(final.ToolCalls) > 0 {
			final.FinishReason = "tool_calls"
		}
		select {
		case chunks <- final:
		case <-ctx.Done():
		}
	}()

	return chunks, errs
}
