package agent

// Kind distinguishes the two conversation surfaces the assistant serves.
// It decides which history tool the registry exposes for a run.
type Kind string

const (
	// KindDirectMessage is a 1:1 assistant thread with a single user.
	KindDirectMessage Kind = "dm"
	// KindChannel is a multi-party channel (or a thread inside one).
	KindChannel Kind = "channel"
)

// StatusFunc posts a short progress line to the conversation, e.g.
// "searching the web…". Implementations must be fire-and-forget: they return
// immediately and their failure never affects the run.
type StatusFunc func(text string)

// RunContext carries the ambient identifiers for one run. It is created once
// per incoming message and handed to every tool execution in that run. It is
// never part of the transcript — the model only ever sees its effects, such
// as a status line appearing in the conversation.
//
// Treat it as read-only after construction; runs may share nothing else.
type RunContext struct {
	ChannelID string // conversation the triggering message arrived in
	ThreadTS  string // thread timestamp, empty outside a thread
	UserID    string // user who sent the triggering message
	Kind      Kind   // conversation surface

	// Status narrates progress to the user. May be nil (e.g. in tests);
	// use Notify, which tolerates that.
	Status StatusFunc
}

// Notify posts a status line if a reporter is attached. Safe on a zero
// RunContext.
func (rc RunContext) Notify(text string) {
	if rc.Status != nil {
		rc.Status(text)
	}
}
