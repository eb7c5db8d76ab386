// Package slacknotify delivers notifications to a Slack channel.
package slacknotify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

// PostAPI abstracts the Slack API client for testing.
type PostAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts messages to a fixed channel.
type Notifier struct {
	api             PostAPI
	channel         string
	allowedChannels []string
	logger          zerolog.Logger
}

// New creates a Slack notifier.
func New(botToken, channel string, allowedChannels []string, logger zerolog.Logger) *Notifier {
	return NewWithAPI(slack.New(botToken), channel, allowedChannels, logger)
}

// NewWithAPI creates a notifier with an explicit API client (for testing).
func NewWithAPI(api PostAPI, channel string, allowedChannels []string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:             api,
		channel:         channel,
		allowedChannels: allowedChannels,
		logger:          logger.With().Str("component", "slacknotify").Logger(),
	}
}

// channelAllowed enforces the allowlist. An empty allowlist permits any
// channel; a non-empty one is fail-closed.
func (n *Notifier) channelAllowed() bool {
	if len(n.allowedChannels) == 0 {
		return true
	}
	for _, c := range n.allowedChannels {
		if c == n.channel {
			return true
		}
	}
	return false
}

// Notify posts the notification as a Block Kit message.
func (n *Notifier) Notify(ctx context.Context, msg provider.Notification) error {
	if n.channel == "" {
		return fmt.Errorf("no slack channel configured")
	}
	if !n.channelAllowed() {
		return fmt.Errorf("channel %q is not in the allowlist", n.channel)
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", msg.Title, false, false)),
	}
	if msg.Body != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", msg.Body, false, false), nil, nil,
		))
	}

	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(msg.Title, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", n.channel, err)
	}

	n.logger.Debug().Str("channel", n.channel).Str("ts", ts).Msg("notification posted")
	return nil
}
