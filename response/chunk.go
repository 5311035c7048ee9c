package response

// Chunk is one element of a streaming LLM response, shaped after the
// accumulator pattern OpenAI's streaming chat-completion client uses: a
// sparse, integer-indexed ToolCalls slice where any field may be empty on
// a given chunk (only the first chunk for a slot carries its Id/Name;
// every chunk contributes an ArgumentsDelta fragment of the JSON-encoded
// argument string).
type Chunk struct {
	// ContentDelta is the fragment of assistant prose this chunk adds, if
	// any.
	ContentDelta string
	// ToolCalls holds zero or more partial tool-call deltas, indexed by
	// their slot.
	ToolCalls []ToolCallDelta
	// FinishReason is set on the terminal chunk of a choice, e.g. "stop"
	// or "tool_calls".
	FinishReason string
}

// ToolCallDelta is one fragment of one tool-call slot within a streaming
// Chunk.
type ToolCallDelta struct {
	// Index identifies the slot this fragment belongs to. Multiple
	// chunks may contribute to the same Index.
	Index int
	// ID is the tool call's id, present on the first chunk for this slot.
	ID string
	// Name is the LLM-facing "<toolId>__<methodName>" name, present on
	// the first chunk for this slot.
	Name string
	// ArgumentsDelta is a fragment of the JSON-encoded arguments string.
	ArgumentsDelta string
}

// Message is a complete, non-streaming LLM response: the whole content
// plus every tool call already fully formed (no further accumulation
// needed).
type Message struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolCall is one fully-formed tool call extracted from a non-streaming
// Message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// slotAccumulator tracks one tool-call slot's id/name/argsBuffer across
// however many streaming chunks contribute to it.
type slotAccumulator struct {
	id        string
	name      string
	argsBuf   []byte
	dispatched bool
}
