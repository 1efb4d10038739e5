package slackbot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/attachehq/attache/internal/persona"
)

// SetStatus updates the "is typing" style status line under an assistant
// thread. An empty text clears it. Slack clears it anyway when the next
// reply lands, so failures here are not worth surfacing to users.
func (c *Client) SetStatus(ctx context.Context, channelID, threadTS, text string) error {
	err := c.api.SetAssistantThreadsStatusContext(ctx, slack.AssistantThreadsSetStatusParameters{
		ChannelID: channelID,
		ThreadTS:  threadTS,
		Status:    text,
	})
	if err != nil {
		return fmt.Errorf("slack set status: %w", err)
	}
	return nil
}

// SetTitle renames an assistant thread in the user's sidebar.
func (c *Client) SetTitle(ctx context.Context, channelID, threadTS, title string) error {
	err := c.api.SetAssistantThreadsTitleContext(ctx, slack.AssistantThreadsSetTitleParameters{
		ChannelID: channelID,
		ThreadTS:  threadTS,
		Title:     title,
	})
	if err != nil {
		return fmt.Errorf("slack set title: %w", err)
	}
	return nil
}

// SetSuggestedPrompts seeds a fresh assistant thread with clickable prompts.
func (c *Client) SetSuggestedPrompts(ctx context.Context, channelID, threadTS string, prompts []persona.Prompt) error {
	if len(prompts) == 0 {
		return nil
	}
	params := slack.AssistantThreadsSetSuggestedPromptsParameters{
		ChannelID: channelID,
		ThreadTS:  threadTS,
		Title:     "How can I help?",
	}
	for _, p := range prompts {
		params.AddPrompt(p.Title, p.Message)
	}
	if err := c.api.SetAssistantThreadsSuggestedPromptsContext(ctx, params); err != nil {
		return fmt.Errorf("slack suggested prompts: %w", err)
	}
	return nil
}
