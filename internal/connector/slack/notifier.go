// Package slackconn posts ticket lifecycle events to a Slack channel. The
// notifier attaches to the event bus as an observer; it is strictly one-way
// (responses come back through the websocket or the tracker, not Slack).
package slackconn

import (
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// Config holds Slack notifier configuration.
type Config struct {
	BotToken string // xoxb-... Bot User OAuth Token
	Channel  string // channel ID to post into
}

// messagePoster is the slice of slack.Client the notifier uses.
type messagePoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier is a bus observer that mirrors events into Slack.
type Notifier struct {
	api     messagePoster
	channel string
	logger  *slog.Logger
}

// New creates a Slack notifier and verifies the token.
func New(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken)
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack notifier authorized", "user", authResp.User, "team", authResp.Team)

	return newNotifier(api, cfg.Channel, logger), nil
}

func newNotifier(api messagePoster, channel string, logger *slog.Logger) *Notifier {
	return &Notifier{api: api, channel: channel, logger: logger}
}

func (n *Notifier) ID() string { return "slack-notifier" }

// Send posts one event to the channel. Tool calls are skipped; a busy run
// would flood the channel.
func (n *Notifier) Send(event protocol.Event) error {
	text := formatEvent(event)
	if text == "" {
		return nil
	}

	_, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func formatEvent(event protocol.Event) string {
	switch event.Type {
	case protocol.EventTicketCreated:
		return fmt.Sprintf(":ticket: New ticket `%s`: %s", event.TicketID, event.TicketName)
	case protocol.EventAgentStarted:
		return fmt.Sprintf(":rocket: Started work on `%s` (%s)", event.TicketID, event.TicketName)
	case protocol.EventAgentQuestion:
		return fmt.Sprintf(":question: Ticket `%s` needs input:\n> %s", event.TicketID, event.Content)
	case protocol.EventAgentComplete:
		return fmt.Sprintf(":white_check_mark: Ticket `%s` completed: %s", event.TicketID, event.Content)
	case protocol.EventAgentError:
		return fmt.Sprintf(":x: Ticket `%s` failed: %s", event.TicketID, event.Error)
	default:
		return ""
	}
}
