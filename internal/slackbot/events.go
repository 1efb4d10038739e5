package slackbot

import (
	"context"
	"strings"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Source says where a message came from. Direct messages and channel
// mentions get different tool subsets downstream.
type Source string

const (
	SourceDM      Source = "dm"
	SourceChannel Source = "channel"
)

// MessageEvent is a normalized inbound message the bot should answer.
type MessageEvent struct {
	EventID   string
	Source    Source
	ChannelID string
	ThreadTS  string // thread root timestamp, never empty
	MessageTS string
	UserID    string
	Text      string
	Files     []FileRef
}

// ThreadStartedEvent fires when a user opens a fresh assistant thread.
type ThreadStartedEvent struct {
	ChannelID string
	ThreadTS  string
	UserID    string
}

// OnMessage registers the handler for deduplicated inbound messages.
func (c *Client) OnMessage(handler func(evt MessageEvent)) {
	c.onMessage = handler
}

// OnThreadStarted registers the handler for new assistant threads.
func (c *Client) OnThreadStarted(handler func(evt ThreadStartedEvent)) {
	c.onThreadStarted = handler
}

// Listen starts the Socket Mode event loop. Blocks until the context is
// cancelled. Events pass through the dedup cache before dispatch.
func (c *Client) Listen(ctx context.Context) error {
	go func() {
		for evt := range c.socket.Events {
			c.handleSocketEvent(evt)
		}
	}()

	return c.socket.RunContext(ctx)
}

func (c *Client) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		c.socket.Ack(*evt.Request)
		if eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent); ok && eventsAPI.Type == slackevents.CallbackEvent {
			c.handleCallbackEvent(eventsAPI)
		}

	case socketmode.EventTypeConnecting:
		c.logger.Info("connecting to Slack")

	case socketmode.EventTypeConnected:
		c.logger.Info("connected to Slack")

	case socketmode.EventTypeConnectionError:
		c.logger.Error("slack connection error")

	default:
		// Ignore hello, interactive and slash command frames.
	}
}

func (c *Client) handleCallbackEvent(evt slackevents.EventsAPIEvent) {
	var eventID string
	if cbEvt, ok := evt.Data.(*slackevents.EventsAPICallbackEvent); ok {
		eventID = cbEvt.EventID
	}

	switch ev := evt.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		c.handleMessage(eventID, ev)

	case *slackevents.AppMentionEvent:
		c.handleMention(eventID, ev)

	case *slackevents.AssistantThreadStartedEvent:
		c.handleThreadStarted(ev)
	}
}

// handleMessage processes direct messages. Channel messages arrive here too
// when the app is in the channel, but those only matter as mentions and the
// app_mention event covers them, so anything outside an IM is dropped.
func (c *Client) handleMessage(eventID string, ev *slackevents.MessageEvent) {
	if ev.ChannelType != "im" {
		return
	}
	// Never answer bots, ourselves included.
	if ev.BotID != "" || (c.botUserID != "" && ev.User == c.botUserID) {
		return
	}
	// Edits, deletions and joins carry a subtype. File shares do too, but
	// those are real user messages and image questions depend on them.
	if ev.SubType != "" && ev.SubType != "file_share" {
		return
	}

	if eventID == "" {
		eventID = ev.TimeStamp
	}
	if c.dedup.Duplicate(eventID) {
		c.logger.Debug("duplicate event skipped", "event_id", eventID)
		return
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp // top-level message roots its own thread
	}

	msgEvt := MessageEvent{
		EventID:   eventID,
		Source:    SourceDM,
		ChannelID: ev.Channel,
		ThreadTS:  threadTS,
		MessageTS: ev.TimeStamp,
		UserID:    ev.User,
		Text:      ev.Text,
		Files:     fileRefsFromEvent(ev.Files),
	}

	c.logger.Info("dm received",
		"channel", msgEvt.ChannelID,
		"thread", msgEvt.ThreadTS,
		"user", msgEvt.UserID,
	)

	if c.onMessage != nil {
		c.onMessage(msgEvt)
	}
}

// handleMention processes @mentions in channels the app is a member of.
func (c *Client) handleMention(eventID string, ev *slackevents.AppMentionEvent) {
	if c.botUserID != "" && ev.User == c.botUserID {
		return
	}

	if eventID == "" {
		eventID = ev.TimeStamp
	}
	if c.dedup.Duplicate(eventID) {
		c.logger.Debug("duplicate event skipped", "event_id", eventID)
		return
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}

	msgEvt := MessageEvent{
		EventID:   eventID,
		Source:    SourceChannel,
		ChannelID: ev.Channel,
		ThreadTS:  threadTS,
		MessageTS: ev.TimeStamp,
		UserID:    ev.User,
		Text:      c.StripMention(ev.Text),
	}

	c.logger.Info("mention received",
		"channel", msgEvt.ChannelID,
		"thread", msgEvt.ThreadTS,
		"user", msgEvt.UserID,
	)

	if c.onMessage != nil {
		c.onMessage(msgEvt)
	}
}

func (c *Client) handleThreadStarted(ev *slackevents.AssistantThreadStartedEvent) {
	thread := ev.AssistantThread
	if thread.ChannelID == "" || thread.ThreadTimeStamp == "" {
		return
	}

	c.logger.Info("assistant thread started",
		"channel", thread.ChannelID,
		"thread", thread.ThreadTimeStamp,
	)

	if c.onThreadStarted != nil {
		c.onThreadStarted(ThreadStartedEvent{
			ChannelID: thread.ChannelID,
			ThreadTS:  thread.ThreadTimeStamp,
			UserID:    thread.UserID,
		})
	}
}

// StripMention removes the bot's leading <@Uxxxx> mention from text.
func (c *Client) StripMention(text string) string {
	if c.botUserID == "" {
		return strings.TrimSpace(text)
	}
	mention := "<@" + c.botUserID + ">"
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, mention)
	return strings.TrimSpace(trimmed)
}
