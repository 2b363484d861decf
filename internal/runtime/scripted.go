package runtime

import (
	"context"
	"fmt"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// StepKind selects what a scripted step does.
type StepKind int

const (
	// StepAsk poses a question and blocks on the answer.
	StepAsk StepKind = iota
	// StepTool records a tool execution.
	StepTool
	// StepFail aborts the run with an error.
	StepFail
)

// Step is one action in a scripted run.
type Step struct {
	Kind     StepKind
	Question string // StepAsk
	Tool     ToolEvent
	Message  string // StepFail
}

// Scripted is a deterministic runtime that replays a fixed step list. It
// drives the full hook surface without an LLM behind it, which makes it the
// runtime of choice for tests and local development.
type Scripted struct {
	Steps   []Step
	Summary string

	// Answers collects what OnUserPromptSubmit returned for each StepAsk,
	// in order.
	Answers []string
}

func (s *Scripted) Run(ctx context.Context, t *protocol.Ticket, hooks Hooks) (string, error) {
	if _, err := hooks.OnSessionStart(ctx, t.ID); err != nil {
		return "", fmt.Errorf("scripted runtime: session start: %w", err)
	}

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch step.Kind {
		case StepAsk:
			answer, err := hooks.OnUserPromptSubmit(ctx, t.ID, step.Question)
			if err != nil {
				return "", fmt.Errorf("scripted runtime: step %d: %w", i, err)
			}
			s.Answers = append(s.Answers, answer)
		case StepTool:
			if err := hooks.OnPostToolUse(ctx, t.ID, step.Tool); err != nil {
				return "", fmt.Errorf("scripted runtime: step %d: %w", i, err)
			}
		case StepFail:
			return "", fmt.Errorf("scripted runtime: %s", step.Message)
		}
	}

	summary := s.Summary
	if summary == "" {
		summary = "completed"
	}
	return summary, nil
}
