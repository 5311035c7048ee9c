package response

// InlineMarkupResultStrategy controls how a tool result parsed from
// inline markup is re-inserted into the conversation transcript by the
// caller that owns the message history. The Processor itself never reads
// the strategy; applying it to an actual transcript is the caller's
// responsibility, since the transcript is state the Processor does not
// hold.
type InlineMarkupResultStrategy string

const (
	// ResultAsAssistantMessage re-inserts the tool result as if the
	// assistant had said it.
	ResultAsAssistantMessage InlineMarkupResultStrategy = "assistant_message"
	// ResultAsUserMessage re-inserts the tool result as a user turn
	// (i.e. as an "observation" fed back to the model).
	ResultAsUserMessage InlineMarkupResultStrategy = "user_message"
	// ResultSeparate keeps the tool result out of the transcript
	// entirely, available only through the Event sequence.
	ResultSeparate InlineMarkupResultStrategy = "separate"
)

// Config toggles the Processor's behavior, mirroring the base
// specification's five ProcessorConfig options.
type Config struct {
	// NativeToolCalling processes function-call deltas emitted by the LLM.
	NativeToolCalling bool
	// InlineMarkupToolCalling processes tagged-markup tool calls embedded
	// in the model's text.
	InlineMarkupToolCalling bool
	// ExecuteTools actually invokes the orchestrator; false means
	// parse-only (tool calls are still reported as ToolStarted but never
	// dispatched, and no ToolCompleted/ToolFailed follows).
	ExecuteTools bool
	// ExecuteOnStream dispatches a tool as soon as its invocation is
	// fully parsed from the stream. false defers every dispatch until the
	// stream finishes.
	ExecuteOnStream bool
	// InlineMarkupResultStrategy controls how tool results parsed from
	// inline markup should be re-inserted into the transcript by the
	// caller.
	InlineMarkupResultStrategy InlineMarkupResultStrategy
}

// DefaultConfig returns the common configuration: both tool-call forms
// enabled, executed as soon as parsed, results reported separately from
// the transcript.
func DefaultConfig() Config {
	return Config{
		NativeToolCalling:          true,
		InlineMarkupToolCalling:    true,
		ExecuteTools:               true,
		ExecuteOnStream:            true,
		InlineMarkupResultStrategy: ResultSeparate,
	}
}
