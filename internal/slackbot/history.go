package slackbot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// historyLimit caps how many messages one history fetch returns.
const historyLimit = 50

// maxDownloadBytes caps file downloads. Slack image uploads are well under
// this; anything larger is not worth vectorizing.
const maxDownloadBytes = 10 << 20

// Message is one conversation message in a shape the tool adapters and the
// transcript builder share.
type Message struct {
	User      string
	BotID     string // non-empty when a bot posted it
	Text      string
	Timestamp string
	Files     []FileRef
}

// FileRef identifies an uploaded file attached to a message.
type FileRef struct {
	ID       string
	Name     string
	Mimetype string
}

// FromBot reports whether the message was posted by any bot.
func (m Message) FromBot() bool {
	return m.BotID != ""
}

// GetThreadMessages returns the messages of one thread in chronological
// order, capped at historyLimit.
func (c *Client) GetThreadMessages(ctx context.Context, channelID, threadTS string) ([]Message, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     historyLimit,
	}
	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("slack thread history: %w", err)
	}
	return convertMessages(msgs, false), nil
}

// GetChannelMessages returns the channel's recent top-level messages in
// chronological order, capped at historyLimit.
func (c *Client) GetChannelMessages(ctx context.Context, channelID string) ([]Message, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     historyLimit,
	}
	resp, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("slack channel history: %w", err)
	}
	// conversations.history returns newest first.
	return convertMessages(resp.Messages, true), nil
}

// DownloadFile fetches an uploaded file's bytes and MIME type by file ID.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	info, _, _, err := c.api.GetFileInfoContext(ctx, fileID, 0, 0)
	if err != nil {
		return nil, "", fmt.Errorf("slack file info: %w", err)
	}
	if info.Size > maxDownloadBytes {
		return nil, "", fmt.Errorf("slack file %s is %d bytes, above the %d byte limit", fileID, info.Size, maxDownloadBytes)
	}

	url := info.URLPrivateDownload
	if url == "" {
		url = info.URLPrivate
	}
	if url == "" {
		return nil, "", fmt.Errorf("slack file %s has no download URL", fileID)
	}

	var buf bytes.Buffer
	if err := c.api.GetFileContext(ctx, url, &buf); err != nil {
		return nil, "", fmt.Errorf("slack file download: %w", err)
	}
	return buf.Bytes(), info.Mimetype, nil
}

func convertMessages(msgs []slack.Message, newestFirst bool) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{
			User:      m.User,
			BotID:     m.BotID,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Files:     fileRefsFromAPI(m.Files),
		})
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func fileRefsFromAPI(files []slack.File) []FileRef {
	if len(files) == 0 {
		return nil
	}
	refs := make([]FileRef, 0, len(files))
	for _, f := range files {
		refs = append(refs, FileRef{ID: f.ID, Name: f.Name, Mimetype: f.Mimetype})
	}
	return refs
}

func fileRefsFromEvent(files []slackevents.File) []FileRef {
	if len(files) == 0 {
		return nil
	}
	refs := make([]FileRef, 0, len(files))
	for _, f := range files {
		refs = append(refs, FileRef{ID: f.ID, Name: f.Name, Mimetype: f.Mimetype})
	}
	return refs
}
