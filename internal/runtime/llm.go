package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Greesan/babysitter/internal/provider"
	"github.com/Greesan/babysitter/pkg/protocol"
)

const defaultMaxIterations = 30

const systemPrompt = `You are an autonomous worker processing a ticket. Work through the
task step by step. When you need a decision or information only the human
operator can give, call ask_user and wait for the answer. When the task is
finished, call complete with a short summary. Never call complete before the
work is actually done.`

// LLM drives a chat provider through the tool loop: the model works on the
// ticket, calls ask_user when it needs the human, and calls complete to
// finish.
type LLM struct {
	Provider      provider.Provider
	Logger        *slog.Logger
	MaxIterations int
}

func NewLLM(p provider.Provider, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{Provider: p, Logger: logger, MaxIterations: defaultMaxIterations}
}

func toolDefinitions() []protocol.ToolDefinition {
	return []protocol.ToolDefinition{
		{
			Name:        "ask_user",
			Description: "Ask the human operator a question and block until they answer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "The question to put to the operator.",
					},
				},
				"required": []string{"question"},
			},
		},
		{
			Name:        "complete",
			Description: "Mark the ticket finished. Call this exactly once, when the work is done.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary": map[string]any{
						"type":        "string",
						"description": "One-paragraph summary of what was done.",
					},
				},
				"required": []string{"summary"},
			},
		},
	}
}

func (l *LLM) Run(ctx context.Context, t *protocol.Ticket, hooks Hooks) (string, error) {
	history, err := hooks.OnSessionStart(ctx, t.ID)
	if err != nil {
		return "", fmt.Errorf("llm runtime: session start: %w", err)
	}

	messages := []protocol.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Ticket %s: %s", t.ID, t.Name)},
	}
	messages = append(messages, historyMessages(history)...)

	maxIter := l.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	for i := 0; i < maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("llm runtime: %w", err)
		}

		resp, err := l.Provider.Chat(ctx, protocol.ChatRequest{
			Messages: messages,
			Tools:    toolDefinitions(),
		})
		if err != nil {
			return "", fmt.Errorf("llm runtime: provider: %w", err)
		}

		if !resp.HasToolCalls() {
			// Plain text with no tool call is working notes; feed it back
			// and nudge the model toward the tool surface.
			messages = append(messages,
				protocol.ChatMessage{Role: "assistant", Content: resp.Content},
				protocol.ChatMessage{Role: "user", Content: "Continue. Call complete when the work is done."},
			)
			continue
		}

		messages = append(messages, protocol.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			switch tc.Name {
			case "ask_user":
				question, _ := tc.Arguments["question"].(string)
				answer, err := hooks.OnUserPromptSubmit(ctx, t.ID, question)
				if err != nil {
					return "", fmt.Errorf("llm runtime: ask_user: %w", err)
				}
				messages = append(messages, protocol.ChatMessage{
					Role: "tool", ToolCallID: tc.ID, Name: tc.Name, Content: answer,
				})
			case "complete":
				summary, _ := tc.Arguments["summary"].(string)
				if summary == "" {
					summary = "completed"
				}
				return summary, nil
			default:
				l.Logger.Warn("llm runtime: unknown tool requested", "tool", tc.Name, "ticket_id", t.ID)
				result := fmt.Sprintf("unknown tool %q; available tools: ask_user, complete", tc.Name)
				if err := hooks.OnPostToolUse(ctx, t.ID, ToolEvent{
					Name:    tc.Name,
					Content: result,
					Err:     fmt.Errorf("unknown tool"),
				}); err != nil {
					return "", fmt.Errorf("llm runtime: record tool use: %w", err)
				}
				messages = append(messages, protocol.ChatMessage{
					Role: "tool", ToolCallID: tc.ID, Name: tc.Name, Content: result,
				})
			}
		}
	}

	return "", fmt.Errorf("llm runtime: exceeded max iterations (%d)", maxIter)
}

// historyMessages replays persisted turns as chat messages so a resumed
// session sees its earlier questions and answers.
func historyMessages(turns []protocol.Turn) []protocol.ChatMessage {
	var msgs []protocol.ChatMessage
	for _, turn := range turns {
		switch turn.Role {
		case protocol.RoleAgentQuestion:
			msgs = append(msgs, protocol.ChatMessage{
				Role:    "assistant",
				Content: fmt.Sprintf("(earlier question) %s", turn.Content),
			})
		case protocol.RoleUserResponse:
			msgs = append(msgs, protocol.ChatMessage{Role: "user", Content: turn.Content})
		case protocol.RoleToolCall:
			msgs = append(msgs, protocol.ChatMessage{
				Role:    "user",
				Content: fmt.Sprintf("(earlier tool run %s) %s", turn.ToolName, turn.Content),
			})
		}
	}
	return msgs
}
