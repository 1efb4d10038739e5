package slackbot

import (
	"testing"

	"github.com/slack-go/slack/slackevents"
)

// newTestClient builds a client with no network behind it. The event
// handlers only touch the dedup cache, the logger and the callbacks.
func newTestClient() *Client {
	c := NewClient("xoxb-test", "xapp-test")
	c.botUserID = "UBOT"
	return c
}

func collectMessages(c *Client) *[]MessageEvent {
	var got []MessageEvent
	c.OnMessage(func(evt MessageEvent) {
		got = append(got, evt)
	})
	return &got
}

func TestHandleMessage_DirectMessage(t *testing.T) {
	c := newTestClient()
	got := collectMessages(c)

	c.handleMessage("Ev1", &slackevents.MessageEvent{
		ChannelType: "im",
		Channel:     "D100",
		User:        "U1",
		Text:        "hello there",
		TimeStamp:   "1700000001.000100",
	})

	if len(*got) != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", len(*got))
	}
	evt := (*got)[0]
	if evt.Source != SourceDM {
		t.Errorf("expected dm source, got %q", evt.Source)
	}
	if evt.ThreadTS != "1700000001.000100" {
		t.Errorf("top-level message should root its own thread, got %q", evt.ThreadTS)
	}
	if evt.Text != "hello there" || evt.UserID != "U1" || evt.ChannelID != "D100" {
		t.Errorf("unexpected event: %+v", evt)
	}
}

func TestHandleMessage_ThreadedReplyKeepsRoot(t *testing.T) {
	c := newTestClient()
	got := collectMessages(c)

	c.handleMessage("Ev1", &slackevents.MessageEvent{
		ChannelType:     "im",
		Channel:         "D100",
		User:            "U1",
		Text:            "follow up",
		TimeStamp:       "1700000005.000200",
		ThreadTimeStamp: "1700000001.000100",
	})

	if (*got)[0].ThreadTS != "1700000001.000100" {
		t.Errorf("expected thread root, got %q", (*got)[0].ThreadTS)
	}
}

func TestHandleMessage_IgnoresChannelMessages(t *testing.T) {
	c := newTestClient()
	got := collectMessages(c)

	c.handleMessage("Ev1", &slackevents.MessageEvent{
		ChannelType: "channel",
		Channel:     "C200",
		User:        "U1",
		Text:        "just chatting",
		TimeStamp:   "1700000001.000100",
	})

	if len(*got) != 0 {
		t.Errorf("channel messages must be left to app_mention, got %d events", len(*got))
	}
}

func TestHandleMessage_IgnoresBots(t *testing.T) {
	c := newTestClient()
	got := collectMessages(c)

	c.handleMessage("Ev1", &slackevents.MessageEvent{
		ChannelType: "im",
		Channel:     "D100",
		BotID:       "B42",
		Text:        "bot noise",
		TimeStamp:   "1700000001.000100",
	})
	c.handleMessage("Ev2", &slackevents.MessageEvent{
		ChannelType: "im",
		Channel:     "D100",
		User:        "UBOT",
		Text:        "own echo",
		TimeStamp:   "1700000002.000100",
	})

	if len(*got) != 0 {
		t.Errorf("bot messages must be dropped, got %d events", len(*got))
	}
}

func TestHandleMessage_SubtypesDroppedExceptFileShare(t *testing.T) {
	c := newTestClient()
	got := collectMessages(c)

	c.handleMessage("Ev1", &slackevents.MessageEvent{
		ChannelType: "im",
		Channel:     "D100",
		User:        "U1",
		SubType:     "message_changed",
		Text:        "edited",
		TimeStamp:   "1700000001.000100",
	})
	c.handleMessage("Ev2", &slackevents.MessageEvent{
		ChannelType: "im",
		Channel:     "D100",
		User:        "U1",
		SubType:     "file_share",
		Text:        "look at this",
		TimeStamp:   "1700000002.000100",
		Files: []slackevents.File{
			{ID: "F1", Name: "pic.png", Mimetype: "image/png"},
		},
	})

	if len(*got) != 1 {
		t.Fatalf("expected only the file_share to pass, got %d events", len(*got))
	}
	evt := (*got)[0]
	if len(evt.Files) != 1 || evt.Files[0].ID != "F1" {
		t.Errorf("expected file ref to carry through, got %+v", evt.Files)
	}
}

func TestHandleMessage_DuplicateEventDropped(t *testing.T) {
	c := newTestClient()
	got := collectMessages(c)

	ev := &slackevents.MessageEvent{
		ChannelType: "im",
		Channel:     "D100",
		User:        "U1",
		Text:        "hello",
		TimeStamp:   "1700000001.000100",
	}
	c.handleMessage("Ev1", ev)
	c.handleMessage("Ev1", ev)

	if len(*got) != 1 {
		t.Errorf("expected redelivery to be dropped, got %d events", len(*got))
	}
}

func TestHandleMention_ChannelSourceAndStrip(t *testing.T) {
	c := newTestClient()
	got := collectMessages(c)

	c.handleMention("Ev1", &slackevents.AppMentionEvent{
		Channel:   "C200",
		User:      "U1",
		Text:      "<@UBOT> what sells well right now?",
		TimeStamp: "1700000001.000100",
	})

	if len(*got) != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", len(*got))
	}
	evt := (*got)[0]
	if evt.Source != SourceChannel {
		t.Errorf("expected channel source, got %q", evt.Source)
	}
	if evt.Text != "what sells well right now?" {
		t.Errorf("expected mention stripped, got %q", evt.Text)
	}
}

func TestHandleThreadStarted(t *testing.T) {
	c := newTestClient()

	var got []ThreadStartedEvent
	c.OnThreadStarted(func(evt ThreadStartedEvent) {
		got = append(got, evt)
	})

	c.handleThreadStarted(&slackevents.AssistantThreadStartedEvent{
		AssistantThread: slackevents.AssistantThread{
			UserID:          "U1",
			ChannelID:       "D100",
			ThreadTimeStamp: "1700000001.000100",
		},
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ChannelID != "D100" || got[0].ThreadTS != "1700000001.000100" || got[0].UserID != "U1" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestStripMention(t *testing.T) {
	c := newTestClient()

	cases := []struct {
		in   string
		want string
	}{
		{"<@UBOT> hello", "hello"},
		{"  <@UBOT>   spaced  ", "spaced"},
		{"no mention here", "no mention here"},
		{"<@UOTHER> different bot", "<@UOTHER> different bot"},
	}
	for _, tc := range cases {
		if got := c.StripMention(tc.in); got != tc.want {
			t.Errorf("StripMention(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
