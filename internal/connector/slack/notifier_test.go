package slackconn

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"github.com/Greesan/babysitter/pkg/protocol"
)

type fakePoster struct {
	channels []string
	count    int
}

func (f *fakePoster) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	f.count++
	return channelID, "ts", nil
}

func TestSend_PostsLifecycleEvents(t *testing.T) {
	poster := &fakePoster{}
	n := newNotifier(poster, "C123", slog.New(slog.DiscardHandler))

	events := []protocol.Event{
		{Type: protocol.EventTicketCreated, TicketID: "t-1", TicketName: "upgrade"},
		{Type: protocol.EventAgentQuestion, TicketID: "t-1", Content: "Proceed?"},
		{Type: protocol.EventAgentComplete, TicketID: "t-1", Content: "done"},
		{Type: protocol.EventAgentError, TicketID: "t-1", Error: "boom"},
	}
	for _, e := range events {
		if err := n.Send(e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}
	if poster.count != len(events) {
		t.Errorf("posted %d messages, want %d", poster.count, len(events))
	}
	if poster.channels[0] != "C123" {
		t.Errorf("channel = %q", poster.channels[0])
	}
}

func TestSend_SkipsToolCalls(t *testing.T) {
	poster := &fakePoster{}
	n := newNotifier(poster, "C123", slog.New(slog.DiscardHandler))

	err := n.Send(protocol.Event{Type: protocol.EventToolCall, TicketID: "t-1", ToolName: "shell"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if poster.count != 0 {
		t.Errorf("tool_call should not be posted, got %d messages", poster.count)
	}
}

func TestFormatEvent_Question(t *testing.T) {
	text := formatEvent(protocol.Event{
		Type:     protocol.EventAgentQuestion,
		TicketID: "t-1",
		Content:  "Which region?",
	})
	if !strings.Contains(text, "t-1") || !strings.Contains(text, "Which region?") {
		t.Errorf("text = %q", text)
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Config{Channel: "C123"}, nil); err == nil {
		t.Error("expected error for missing bot token")
	}
	if _, err := New(Config{BotToken: "xoxb-x"}, nil); err == nil {
		t.Error("expected error for missing channel")
	}
}
