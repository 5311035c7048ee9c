package agent

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type fakeLLM struct {
	responses []string
	calls     int
	errs      []error
}

func (f *fakeLLM) Ask(_ context.Context, _ string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], err
	}
	return f.responses[len(f.responses)-1], err
}

type fakeToolIDs []string

func (f fakeToolIDs) ToolIDs() []string { return []string(f) }

func newTestPlanner(t *testing.T, llm PlannerLLM) (*Planner, *Manager) {
	t.Helper()
	m, _ := newTestManager(t)
	p := NewPlanner(m, llm, fakeToolIDs{"WebSearch__search"}, nil, nil)
	return p, m
}

func TestPlanner_HappyPath(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"plan": [{"tool_identifier": "WebSearch__search", "thought": "Find hotels"}, {"tool_identifier": "WebSearch__search", "thought": "Find restaurants"}]}`,
	}}
	p, m := newTestPlanner(t, llm)

	main, err := p.Plan(context.Background(), "Search hotels in Valencia then search restaurants", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if main.Status != StatusPlanned {
		t.Errorf("expected status planned, got %s", main.Status)
	}
	if main.Progress != 0.1 {
		t.Errorf("expected progress 0.1, got %v", main.Progress)
	}

	subs := m.GetSubtasks(main.ID)
	if len(subs) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(subs))
	}
	if subs[0].Description != "Find hotels" || subs[1].Description != "Find restaurants" {
		t.Errorf("unexpected subtask descriptions: %+v / %+v", subs[0], subs[1])
	}
	if subs[0].AssignedTools[0] != "WebSearch__search" {
		t.Errorf("expected assigned tool WebSearch__search, got %v", subs[0].AssignedTools)
	}
	if len(subs[0].Dependencies) != 0 {
		t.Errorf("expected empty dependencies, got %v", subs[0].Dependencies)
	}
	if llm.calls != 1 {
		t.Errorf("expected exactly one LLM call, got %d", llm.calls)
	}
}

func TestPlanner_JSONCorruption_ExhaustsRetries(t *testing.T) {
	llm := &fakeLLM{responses: []string{"not json", "not json", "not json"}}
	p, _ := newTestPlanner(t, llm)

	main, err := p.Plan(context.Background(), "do something", "")
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if main.Status != StatusPlanningFailed {
		t.Errorf("expected status planning_failed, got %s", main.Status)
	}
	if main.Error != "No subtasks generated." {
		t.Errorf("expected error %q, got %q", "No subtasks generated.", main.Error)
	}
	if llm.calls != maxPlanAttempts {
		t.Errorf("expected exactly %d LLM calls, got %d", maxPlanAttempts, llm.calls)
	}
}

func TestPlanner_EmptyPlan_IsTreatedAsFailure(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"plan": []}`, `{"plan": []}`, `{"plan": []}`}}
	p, _ := newTestPlanner(t, llm)

	main, err := p.Plan(context.Background(), "do something", "")
	if err == nil {
		t.Fatal("expected an error for an empty plan")
	}
	if main.Status != StatusPlanningFailed {
		t.Errorf("expected status planning_failed, got %s", main.Status)
	}
}

func TestPlanner_RecoversAfterCorrectiveRetry(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"not json",
		`{"plan": [{"tool_identifier": "WebSearch__search", "thought": "Find hotels"}]}`,
	}}
	p, _ := newTestPlanner(t, llm)

	main, err := p.Plan(context.Background(), "Search hotels", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if main.Status != StatusPlanned {
		t.Errorf("expected status planned, got %s", main.Status)
	}
	if llm.calls != 2 {
		t.Errorf("expected exactly 2 LLM calls, got %d", llm.calls)
	}
}

func TestPlanner_CodeFenceStripped(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"```json\n{\"plan\": [{\"tool_identifier\": \"WebSearch__search\", \"thought\": \"Find hotels\"}]}\n```",
	}}
	p, _ := newTestPlanner(t, llm)

	main, err := p.Plan(context.Background(), "Search hotels", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if main.Status != StatusPlanned {
		t.Errorf("expected status planned, got %s", main.Status)
	}
}

func TestPlanner_LLMErrorIsRetried(t *testing.T) {
	llm := &fakeLLM{
		responses: []string{"", `{"plan": [{"tool_identifier": "WebSearch__search", "thought": "Find hotels"}]}`},
		errs:      []error{fmt.Errorf("transient network error"), nil},
	}
	p, _ := newTestPlanner(t, llm)

	main, err := p.Plan(context.Background(), "Search hotels", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if main.Status != StatusPlanned {
		t.Errorf("expected status planned, got %s", main.Status)
	}
}

func TestPlanner_CacheAvoidsRedecomposingIdenticalDescription(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"plan": [{"tool_identifier": "WebSearch__search", "thought": "Find hotels"}]}`,
	}}
	p, m := newTestPlanner(t, llm)
	p.Cache = NewPlanCache(NewMemoryCache(10, time.Minute), time.Minute)

	first, err := p.Plan(context.Background(), "Search hotels in Valencia", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if first.Status != StatusPlanned {
		t.Fatalf("expected status planned, got %s", first.Status)
	}
	if llm.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call after the first Plan, got %d", llm.calls)
	}

	second, err := p.Plan(context.Background(), "Search hotels in Valencia", "")
	if err != nil {
		t.Fatalf("second Plan failed: %v", err)
	}
	if second.Status != StatusPlanned {
		t.Errorf("expected status planned, got %s", second.Status)
	}
	if llm.calls != 1 {
		t.Errorf("expected the LLM not to be called again for an identical description, got %d calls", llm.calls)
	}

	subs := m.GetSubtasks(second.ID)
	if len(subs) != 1 || subs[0].AssignedTools[0] != "WebSearch__search" {
		t.Errorf("expected the cached plan's subtask to be recreated, got %+v", subs)
	}

	if _, err := p.Plan(context.Background(), "Search restaurants in Valencia", ""); err != nil {
		t.Fatalf("Plan for a different description failed: %v", err)
	}
	if llm.calls != 2 {
		t.Errorf("expected a different description to miss the cache, got %d calls", llm.calls)
	}
}

func TestTruncateThought(t *testing.T) {
	short := "a short thought"
	if got := truncateThought(short); got != short {
		t.Errorf("expected short thought unchanged, got %q", got)
	}

	long := ""
	for i := 0; i < 150; i++ {
		long += "x"
	}
	truncated := truncateThought(long)
	if len([]rune(truncated)) != maxSubtaskNameLength+3 {
		t.Errorf("expected truncated length %d, got %d", maxSubtaskNameLength+3, len([]rune(truncated)))
	}
	if truncated[len(truncated)-3:] != "..." {
		t.Errorf("expected truncated thought to end with an ellipsis, got %q", truncated)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.input); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
