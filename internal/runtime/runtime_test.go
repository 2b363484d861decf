package runtime

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// recordingHooks captures hook invocations and answers questions from a queue.
type recordingHooks struct {
	history   []protocol.Turn
	answers   []string
	askErr    error
	questions []string
	toolUses  []ToolEvent
	started   int
}

func (h *recordingHooks) OnSessionStart(ctx context.Context, ticketID string) ([]protocol.Turn, error) {
	h.started++
	return h.history, nil
}

func (h *recordingHooks) OnUserPromptSubmit(ctx context.Context, ticketID, question string) (string, error) {
	h.questions = append(h.questions, question)
	if h.askErr != nil {
		return "", h.askErr
	}
	if len(h.answers) == 0 {
		return "", errors.New("no scripted answer")
	}
	answer := h.answers[0]
	h.answers = h.answers[1:]
	return answer, nil
}

func (h *recordingHooks) OnPostToolUse(ctx context.Context, ticketID string, event ToolEvent) error {
	h.toolUses = append(h.toolUses, event)
	return nil
}

func TestScripted_RunsAllSteps(t *testing.T) {
	hooks := &recordingHooks{answers: []string{"use staging"}}
	rt := &Scripted{
		Steps: []Step{
			{Kind: StepTool, Tool: ToolEvent{Name: "shell", Content: "ls"}},
			{Kind: StepAsk, Question: "Which environment?"},
			{Kind: StepTool, Tool: ToolEvent{Name: "deploy", Content: "done"}},
		},
		Summary: "deployed to staging",
	}

	summary, err := rt.Run(context.Background(), &protocol.Ticket{ID: "t-1"}, hooks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary != "deployed to staging" {
		t.Errorf("summary = %q", summary)
	}
	if hooks.started != 1 {
		t.Errorf("session started %d times", hooks.started)
	}
	if len(hooks.questions) != 1 || hooks.questions[0] != "Which environment?" {
		t.Errorf("questions = %v", hooks.questions)
	}
	if len(hooks.toolUses) != 2 {
		t.Errorf("tool uses = %d", len(hooks.toolUses))
	}
	if len(rt.Answers) != 1 || rt.Answers[0] != "use staging" {
		t.Errorf("answers = %v", rt.Answers)
	}
}

func TestScripted_AskErrorAborts(t *testing.T) {
	hooks := &recordingHooks{askErr: errors.New("timed out waiting for user response")}
	rt := &Scripted{
		Steps: []Step{
			{Kind: StepAsk, Question: "Proceed?"},
			{Kind: StepTool, Tool: ToolEvent{Name: "deploy"}},
		},
	}

	_, err := rt.Run(context.Background(), &protocol.Ticket{ID: "t-1"}, hooks)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(hooks.toolUses) != 0 {
		t.Error("steps after the failed ask should not run")
	}
}

func TestScripted_FailStep(t *testing.T) {
	rt := &Scripted{Steps: []Step{{Kind: StepFail, Message: "disk full"}}}

	_, err := rt.Run(context.Background(), &protocol.Ticket{ID: "t-1"}, &recordingHooks{})
	if err == nil {
		t.Fatal("expected error")
	}
}

// scriptedProvider returns canned chat responses in order.
type scriptedProvider struct {
	responses []*protocol.ChatResponse
	requests  []protocol.ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func TestLLM_AskThenComplete(t *testing.T) {
	prov := &scriptedProvider{responses: []*protocol.ChatResponse{
		{ToolCalls: []protocol.ToolCall{{
			ID: "tu_1", Name: "ask_user",
			Arguments: map[string]any{"question": "Which region?"},
		}}},
		{ToolCalls: []protocol.ToolCall{{
			ID: "tu_2", Name: "complete",
			Arguments: map[string]any{"summary": "shipped to eu-west"},
		}}},
	}}
	hooks := &recordingHooks{answers: []string{"eu-west"}}
	rt := NewLLM(prov, slog.New(slog.DiscardHandler))

	summary, err := rt.Run(context.Background(), &protocol.Ticket{ID: "t-1", Name: "ship it"}, hooks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary != "shipped to eu-west" {
		t.Errorf("summary = %q", summary)
	}
	if len(hooks.questions) != 1 || hooks.questions[0] != "Which region?" {
		t.Errorf("questions = %v", hooks.questions)
	}

	// The second request must carry the tool result back to the model.
	second := prov.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.Content != "eu-west" || last.ToolCallID != "tu_1" {
		t.Errorf("tool result message = %+v", last)
	}
}

func TestLLM_AskTimeoutAborts(t *testing.T) {
	prov := &scriptedProvider{responses: []*protocol.ChatResponse{
		{ToolCalls: []protocol.ToolCall{{
			ID: "tu_1", Name: "ask_user",
			Arguments: map[string]any{"question": "Proceed?"},
		}}},
	}}
	hooks := &recordingHooks{askErr: errors.New("timed out waiting for user response")}
	rt := NewLLM(prov, slog.New(slog.DiscardHandler))

	_, err := rt.Run(context.Background(), &protocol.Ticket{ID: "t-1"}, hooks)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLLM_MaxIterations(t *testing.T) {
	// A model that never calls a tool exhausts the iteration cap.
	prov := &scriptedProvider{responses: []*protocol.ChatResponse{
		{Content: "thinking..."},
		{Content: "still thinking..."},
	}}
	hooks := &recordingHooks{}
	rt := NewLLM(prov, slog.New(slog.DiscardHandler))
	rt.MaxIterations = 2

	_, err := rt.Run(context.Background(), &protocol.Ticket{ID: "t-1"}, hooks)
	if err == nil {
		t.Fatal("expected max iterations error")
	}
}

func TestHistoryMessages_Replay(t *testing.T) {
	msgs := historyMessages([]protocol.Turn{
		{Role: protocol.RoleAgentQuestion, Content: "Proceed?"},
		{Role: protocol.RoleUserResponse, Content: "yes"},
		{Role: protocol.RoleToolCall, ToolName: "shell", Content: "ok"},
	})
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != "assistant" || msgs[1].Role != "user" || msgs[2].Role != "user" {
		t.Errorf("roles = %s/%s/%s", msgs[0].Role, msgs[1].Role, msgs[2].Role)
	}
}
