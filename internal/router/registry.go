// Package router fans inbound Slack events out to per-conversation
// workers and scrubs secrets from outbound text. Each active
// conversation gets one goroutine processing its events in arrival
// order, so two quick messages in the same thread can never race each
// other. Workers exit after an inactivity timeout and respawn on the
// next event.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attachehq/attache/internal/slackbot"
)

const (
	// defaultInactivityTimeout is how long a worker lives without events.
	defaultInactivityTimeout = 60 * time.Second

	// defaultInboxSize is the buffered channel capacity per worker.
	defaultInboxSize = 10
)

// Handler processes one inbound event. It is called sequentially within
// a conversation and concurrently across conversations.
type Handler func(ctx context.Context, evt slackbot.MessageEvent)

// Registry manages the per-conversation workers.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*worker
	handler Handler
	logger  *slog.Logger

	inactivityTimeout time.Duration
	inboxSize         int
}

// Option configures the registry.
type Option func(*Registry)

// WithInactivityTimeout sets the worker inactivity timeout.
func WithInactivityTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.inactivityTimeout = d
	}
}

// WithInboxSize sets the buffered channel capacity per worker.
func WithInboxSize(n int) Option {
	return func(r *Registry) {
		r.inboxSize = n
	}
}

// WithLogger sets the logger for the registry.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates a registry dispatching to the given handler.
func NewRegistry(handler Handler, opts ...Option) *Registry {
	r := &Registry{
		workers:           make(map[string]*worker),
		handler:           handler,
		logger:            slog.Default(),
		inactivityTimeout: defaultInactivityTimeout,
		inboxSize:         defaultInboxSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch hands an event to its conversation's worker, spawning one if
// none is alive. The send never blocks; a full inbox drops the event
// with a warning.
func (r *Registry) Dispatch(ctx context.Context, evt slackbot.MessageEvent) {
	key := conversationKey(evt)

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[key]
	if !ok || !w.alive() {
		w = r.spawn(key)
		r.workers[key] = w
	}

	// The send happens under the lock so a worker cannot retire between
	// the liveness check and the send.
	select {
	case w.inbox <- item{ctx: ctx, evt: evt}:
	default:
		r.logger.Warn("conversation inbox full, dropping event",
			"conversation", key,
			"event_id", evt.EventID,
		)
	}
}

// ActiveConversations returns the number of live workers.
func (r *Registry) ActiveConversations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, w := range r.workers {
		if w.alive() {
			count++
		}
	}
	return count
}

// conversationKey identifies the serialization unit: the thread when
// the event is in one, otherwise the message itself (which becomes the
// thread for any replies).
func conversationKey(evt slackbot.MessageEvent) string {
	ts := evt.ThreadTS
	if ts == "" {
		ts = evt.MessageTS
	}
	return evt.ChannelID + "/" + ts
}

// spawn creates and starts a worker. Callers hold mu.
func (r *Registry) spawn(key string) *worker {
	w := &worker{
		key:     key,
		inbox:   make(chan item, r.inboxSize),
		done:    make(chan struct{}),
		handler: r.handler,
		timeout: r.inactivityTimeout,
		logger:  r.logger,
	}
	w.retire = func(force bool) bool { return r.retire(key, w, force) }
	go w.run()
	r.logger.Debug("conversation worker spawned", "conversation", key)
	return w
}

// retire marks a worker dead and removes it from the map, unless events
// arrived in its inbox in the meantime. Forced retirement (after a
// crash) drops whatever is queued.
func (r *Registry) retire(key string, w *worker, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && len(w.inbox) > 0 {
		return false
	}
	if w.alive() {
		close(w.done)
	}
	if r.workers[key] == w {
		delete(r.workers, key)
	}
	return true
}

// item pairs an event with the context it arrived under.
type item struct {
	ctx context.Context
	evt slackbot.MessageEvent
}

// worker processes events for a single conversation.
type worker struct {
	key     string
	inbox   chan item
	done    chan struct{}
	handler Handler
	timeout time.Duration
	logger  *slog.Logger
	retire  func(force bool) bool
}

// alive reports whether the worker is still accepting events.
func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *worker) run() {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("conversation worker crashed",
				"conversation", w.key,
				"panic", rec,
				"dropped", len(w.inbox),
			)
			w.retire(true)
		}
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case it := <-w.inbox:
			w.process(it)
			// The timeout measures idle time after processing, not
			// arrival-to-arrival, since runs can outlast it.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.timeout)

		case <-timer.C:
			if w.retire(false) {
				w.logger.Debug("conversation worker idle, exiting", "conversation", w.key)
				return
			}
			// Events arrived while the timer was firing; keep draining.
			timer.Reset(w.timeout)
		}
	}
}

// process runs the handler with panic isolation so one bad event cannot
// take the worker down.
func (w *worker) process(it item) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("panic handling event",
				"conversation", w.key,
				"event_id", it.evt.EventID,
				"panic", rec,
			)
		}
	}()

	if it.ctx.Err() != nil {
		return
	}
	w.handler(it.ctx, it.evt)
}
