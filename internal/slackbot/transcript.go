package slackbot

import (
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/agent"
)

// BuildTranscript converts thread history into the model transcript.
// Messages from botUserID (or any bot) become assistant turns, everything
// else a user turn. With labelSpeakers set, user turns are prefixed with the
// speaker's mention so the model can tell voices apart in channels.
//
// Attached files are appended as bracketed annotations carrying the file ID,
// which is what the image tools accept.
func BuildTranscript(history []Message, botUserID string, labelSpeakers bool) []agent.Message {
	out := make([]agent.Message, 0, len(history))
	for _, m := range history {
		text := strings.TrimSpace(m.Text)
		if text == "" && len(m.Files) == 0 {
			continue
		}

		if m.FromBot() || (botUserID != "" && m.User == botUserID) {
			if text == "" {
				continue
			}
			out = append(out, agent.Message{Role: "assistant", Content: text})
			continue
		}

		if labelSpeakers && m.User != "" {
			text = fmt.Sprintf("<@%s>: %s", m.User, text)
		}
		for _, f := range m.Files {
			text += "\n" + FileAnnotation(f)
		}
		out = append(out, agent.Message{Role: "user", Content: strings.TrimSpace(text)})
	}
	return out
}

// FileAnnotation renders one attached file as transcript text.
func FileAnnotation(f FileRef) string {
	name := f.Name
	if name == "" {
		name = "file"
	}
	if f.Mimetype != "" {
		return fmt.Sprintf("[attached file %s: %s (%s)]", f.ID, name, f.Mimetype)
	}
	return fmt.Sprintf("[attached file %s: %s]", f.ID, name)
}
