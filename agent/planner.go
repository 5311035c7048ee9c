package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PlannerLLM is the narrow dependency the Planner needs from an LLM
// client: a single JSON-mode completion call. MultiProvider satisfies
// this interface via its Ask method.
type PlannerLLM interface {
	Ask(ctx context.Context, message string) (string, error)
}

// PlanStep is one entry of the {plan: [...]} JSON document the LLM is
// asked to return.
type PlanStep struct {
	ToolIdentifier string `json:"tool_identifier"`
	Thought        string `json:"thought"`
}

// planDocument is the top-level shape the Planner parses the LLM's
// response into.
type planDocument struct {
	Plan []PlanStep `json:"plan"`
}

// maxPlanAttempts bounds the Planner's retry budget: three attempts
// total, i.e. two additional retries after an initial failure.
const maxPlanAttempts = 3

// maxSubtaskNameLength is where a subtask's truncated name is cut, with
// an ellipsis appended if truncation occurred.
const maxSubtaskNameLength = 100

// Planner decomposes a free-text task description into a validated plan
// of subtasks, persisted under a newly created main task via Manager.
type Planner struct {
	manager  *Manager
	llm      PlannerLLM
	registry toolIDLister
	limiter  RateLimiter
	logger   Logger

	// Cache, when non-nil, is consulted before calling the LLM and
	// populated after a successful decomposition, so an identical
	// description (plus context) is not re-decomposed within the cache's
	// TTL. Nil (the default) disables caching entirely; PlanCache's own
	// methods are nil-receiver safe, so leaving this unset costs nothing.
	Cache *PlanCache
}

// toolIDLister is the slice of tools.Registry the Planner depends on: the
// list of identifiers available for assignment. Declared narrowly here so
// this package never imports tools (which would create a cycle, since
// tools must stay free of agent).
type toolIDLister interface {
	ToolIDs() []string
}

// NewPlanner constructs a Planner. limiter may be nil, in which case the
// LLM call is not rate limited.
func NewPlanner(manager *Manager, llm PlannerLLM, registry toolIDLister, limiter RateLimiter, logger Logger) *Planner {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Planner{manager: manager, llm: llm, registry: registry, limiter: limiter, logger: logger}
}

// Plan creates a main task with status pending_planning, decomposes
// description (plus optional context) into a plan via the LLM, and
// creates one child subtask per plan step. On success the main task
// transitions to planned with progress 0.1. On exhaustion of the retry
// budget it transitions to planning_failed with error "No subtasks
// generated."
func (p *Planner) Plan(ctx context.Context, description, taskContext string) (*Task, error) {
	main, err := p.manager.CreateTask(ctx, TaskCreate{
		Name:        truncateThought(description),
		Description: description,
		Status:      StatusPendingPlanning,
	})
	if err != nil {
		return nil, fmt.Errorf("planner: create main task: %w", err)
	}

	plan, planErr := p.decompose(ctx, description, taskContext)
	if planErr != nil {
		msg := planErr.Error()
		var coded *CodedError
		if errors.As(planErr, &coded) {
			msg = coded.Message
		}
		failed, err := p.manager.UpdateTask(ctx, main.ID, func(t *Task) {
			t.Status = StatusPlanningFailed
			t.Error = msg
		})
		if err != nil {
			return nil, fmt.Errorf("planner: mark planning_failed: %w", err)
		}
		return failed, planErr
	}

	for _, step := range plan.Plan {
		_, err := p.manager.AddSubtask(ctx, main.ID, TaskCreate{
			Name:          truncateThought(step.Thought),
			Description:   step.Thought,
			AssignedTools: []string{step.ToolIdentifier},
		})
		if err != nil {
			failErr := fmt.Errorf("planner: create subtask: %w", err)
			failed, updErr := p.manager.UpdateTask(ctx, main.ID, func(t *Task) {
				t.Status = StatusPlanningFailed
				t.Error = failErr.Error()
			})
			if updErr != nil {
				return nil, fmt.Errorf("planner: mark planning_failed after subtask error: %w", updErr)
			}
			return failed, failErr
		}
	}

	return p.manager.UpdateTask(ctx, main.ID, func(t *Task) {
		t.Status = StatusPlanned
		t.Progress = 0.1
	})
}

// cacheKey combines description and taskContext into the single string
// PlanCache hashes, so a cache hit requires both to match, not just the
// description.
func cacheKey(description, taskContext string) string {
	return description + "\x00" + taskContext
}

// decompose calls the LLM in JSON-output mode, stripping code fences and
// retrying with a corrective message up to maxPlanAttempts total times.
// A populated p.Cache is consulted first and populated on success, so an
// identical (description, taskContext) pair is not re-decomposed within
// the cache's TTL.
func (p *Planner) decompose(ctx context.Context, description, taskContext string) (*planDocument, error) {
	key := cacheKey(description, taskContext)
	if cached, ok := p.Cache.Get(ctx, "planner", key); ok {
		if doc, err := parsePlanResponse(cached); err == nil && len(doc.Plan) > 0 {
			return doc, nil
		}
		p.logger.Warn(ctx, "planner: discarding unusable cached plan", F("description", description))
	}

	prompt := p.buildPrompt(description, taskContext)

	var lastErr error
	for attempt := 1; attempt <= maxPlanAttempts; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, "planner"); err != nil {
				return nil, NewLLMRateLimitError(err)
			}
		}

		if attempt > 1 {
			prompt = prompt + "\n\nYour previous response was invalid: " + lastErr.Error() +
				"\nRespond again with ONLY a JSON object of the exact shape {\"plan\": [{\"tool_identifier\": string, \"thought\": string}]}."
		}

		raw, err := p.llm.Ask(ctx, prompt)
		if err != nil {
			lastErr = err
			p.logger.Warn(ctx, "planner: LLM call failed", F("attempt", attempt), F("error", err.Error()))
			continue
		}

		doc, err := parsePlanResponse(raw)
		if err != nil {
			lastErr = err
			p.logger.Warn(ctx, "planner: plan response invalid", F("attempt", attempt), F("error", err.Error()))
			continue
		}
		if len(doc.Plan) == 0 {
			lastErr = ErrPlanEmpty
			p.logger.Warn(ctx, "planner: LLM returned an empty plan", F("attempt", attempt))
			continue
		}

		if err := p.Cache.Set(ctx, "planner", key, raw); err != nil {
			p.logger.Warn(ctx, "planner: failed to cache plan", F("error", err.Error()))
		}
		return doc, nil
	}

	return nil, NewPlanEmptyError()
}

// buildPrompt assembles the fixed system instruction, the list of
// available tool identifiers, and the user's description/context.
func (p *Planner) buildPrompt(description, taskContext string) string {
	var toolIDs []string
	if p.registry != nil {
		toolIDs = p.registry.ToolIDs()
	}

	var b strings.Builder
	b.WriteString("You are a task planner. Decompose the user's request into a sequence of tool ")
	b.WriteString("invocations. Respond with ONLY a JSON object of the exact shape: ")
	b.WriteString(`{"plan": [{"tool_identifier": string, "thought": string}]}`)
	b.WriteString(". Each tool_identifier must be one of the available tools. Do not wrap the JSON ")
	b.WriteString("in markdown code fences or add any other text.\n\n")

	b.WriteString("Available tools: ")
	b.WriteString(strings.Join(toolIDs, ", "))
	b.WriteString("\n\n")

	b.WriteString("Request: ")
	b.WriteString(description)
	if taskContext != "" {
		b.WriteString("\n\nContext: ")
		b.WriteString(taskContext)
	}
	return b.String()
}

// parsePlanResponse strips defensive code-fence markers and parses the
// remaining text as a planDocument.
func parsePlanResponse(raw string) (*planDocument, error) {
	cleaned := stripCodeFence(raw)

	var doc planDocument
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, NewPlanMalformedError(err)
	}
	for _, step := range doc.Plan {
		if step.ToolIdentifier == "" {
			return nil, NewPlanMalformedError(fmt.Errorf("plan step missing tool_identifier"))
		}
	}
	return &doc, nil
}

// stripCodeFence removes a surrounding ```json ... ``` or ``` ... ```
// fence if present, defensively tolerating LLMs that wrap JSON output in
// markdown regardless of being told not to.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx != -1 {
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "json" || firstLine == "" {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// truncateThought caps a subtask's name at maxSubtaskNameLength
// characters, suffixing an ellipsis when truncation occurred.
func truncateThought(thought string) string {
	runes := []rune(thought)
	if len(runes) <= maxSubtaskNameLength {
		return thought
	}
	return string(runes[:maxSubtaskNameLength]) + "..."
}
