// Package slackbot connects the assistant to a Slack workspace over Socket
// Mode. It normalizes inbound events, exposes the small API surface the tool
// adapters need (history, status, titles, files), and posts replies.
package slackbot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// Identity controls how replies appear in Slack. Zero value posts with the
// app's own name and icon.
type Identity struct {
	DisplayName string
	IconEmoji   string
}

// Client wraps the Slack API and Socket Mode connection.
type Client struct {
	api      *slack.Client
	socket   *socketmode.Client
	identity Identity
	dedup    *Deduper
	logger   *slog.Logger

	// botUserID is the app's own user ID, filled in by Identify. It is used
	// to strip leading mentions and to tell own messages apart in history.
	botUserID string

	onMessage       func(evt MessageEvent)
	onThreadStarted func(evt ThreadStartedEvent)
}

// ClientOption configures the Slack client.
type ClientOption func(*Client)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithIdentity sets the reply display name and icon.
func WithIdentity(id Identity) ClientOption {
	return func(c *Client) { c.identity = id }
}

// WithDeduper sets a custom dedup cache (useful for testing).
func WithDeduper(d *Deduper) ClientOption {
	return func(c *Client) { c.dedup = d }
}

// NewClient creates a Slack client with Socket Mode support.
// botToken is the xoxb-... token, appToken is the xapp-... token.
func NewClient(botToken, appToken string, opts ...ClientOption) *Client {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	c := &Client{
		api:    api,
		socket: socketmode.New(api),
		dedup:  NewDeduper(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Identify resolves the app's own user ID via auth.test. Call once before
// Listen; without it the bot cannot strip its own mention from channel
// messages.
func (c *Client) Identify(ctx context.Context) error {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = resp.UserID
	c.logger.Info("slack identity resolved", "user_id", resp.UserID, "team", resp.Team)
	return nil
}

// BotUserID returns the app's own user ID, or "" before Identify.
func (c *Client) BotUserID() string {
	return c.botUserID
}

// SendMessage posts text to a channel, threaded when threadTS is non-empty.
func (c *Client) SendMessage(ctx context.Context, channel, threadTS, text string) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
	}
	if c.identity.DisplayName != "" {
		opts = append(opts, slack.MsgOptionUsername(c.identity.DisplayName))
	}
	if c.identity.IconEmoji != "" {
		opts = append(opts, slack.MsgOptionIconEmoji(c.identity.IconEmoji))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, _, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return fmt.Errorf("slack send message: %w", err)
	}
	return nil
}

// AddReaction adds an emoji reaction to a message.
func (c *Client) AddReaction(ctx context.Context, channel, messageTS, emoji string) error {
	ref := slack.ItemRef{
		Channel:   channel,
		Timestamp: messageTS,
	}
	if err := c.api.AddReactionContext(ctx, emoji, ref); err != nil {
		return fmt.Errorf("slack add reaction: %w", err)
	}
	return nil
}

// RemoveReaction removes an emoji reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, channel, messageTS, emoji string) error {
	ref := slack.ItemRef{
		Channel:   channel,
		Timestamp: messageTS,
	}
	if err := c.api.RemoveReactionContext(ctx, emoji, ref); err != nil {
		return fmt.Errorf("slack remove reaction: %w", err)
	}
	return nil
}

// ReactProcessing marks a channel mention as picked up.
func (c *Client) ReactProcessing(ctx context.Context, channel, messageTS string) error {
	return c.AddReaction(ctx, channel, messageTS, "eyes")
}

// ReactDone swaps the processing reaction for a checkmark.
func (c *Client) ReactDone(ctx context.Context, channel, messageTS string) error {
	// Best-effort removal; the checkmark matters more.
	_ = c.RemoveReaction(ctx, channel, messageTS, "eyes")
	return c.AddReaction(ctx, channel, messageTS, "white_check_mark")
}

// ReactFailed swaps the processing reaction for a warning sign.
func (c *Client) ReactFailed(ctx context.Context, channel, messageTS string) error {
	_ = c.RemoveReaction(ctx, channel, messageTS, "eyes")
	return c.AddReaction(ctx, channel, messageTS, "warning")
}
