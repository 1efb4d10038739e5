package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/attachehq/attache/internal/agent"
)

// Registry holds the registered tools and dispatches calls from the loop.
// It implements agent.ToolDispatcher. Registration order is preserved so
// the model always sees tools in a stable order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	log   *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools: make(map[string]Tool),
		log:   logger,
	}
}

// Register adds a tool. Returns an error if a tool with the same name
// already exists.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	r.log.Info("tool registered", "tool", name, "kinds", t.Kinds().String())
	return nil
}

// MustRegister is Register for wiring code where a duplicate is a bug.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Active returns the tools offered on the given surface, in registration
// order.
func (r *Registry) Active(kind agent.Kind) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Tool
	for _, name := range r.order {
		t := r.tools[name]
		if t.Kinds().Allows(kind) {
			out = append(out, t)
		}
	}
	return out
}

// Definitions returns the schema definitions for the given surface, ready
// to hand to the model.
func (r *Registry) Definitions(kind agent.Kind) []agent.ToolDefinition {
	active := r.Active(kind)
	defs := make([]agent.ToolDefinition, 0, len(active))
	for _, t := range active {
		defs = append(defs, agent.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch resolves and executes one tool call. Every failure mode comes
// back as an IsError result; the loop never sees a dispatch error.
func (r *Registry) Dispatch(ctx context.Context, call agent.ToolCall, rc agent.RunContext) agent.ToolResult {
	t := r.Get(call.Name)
	if t == nil {
		return errorResultf(call, "unknown tool %q", call.Name)
	}
	if !t.Kinds().Allows(rc.Kind) {
		return errorResultf(call, "tool %q is not available in this conversation", call.Name)
	}

	if msg := validateArguments(t.Parameters(), call.Arguments); msg != "" {
		r.log.Warn("tool arguments rejected", "tool", call.Name, "reason", msg)
		return errorResultf(call, "invalid arguments: %s", msg)
	}

	result, err := r.execute(ctx, t, call, rc)
	if err != nil {
		r.log.Error("tool execution failed", "tool", call.Name, "error", err)
		return errorResult(call, err)
	}
	result.ToolCallID = call.ID
	if result.IsError {
		r.log.Warn("tool returned error result", "tool", call.Name, "content", result.Content)
	}
	return result
}

// execute runs the tool, converting a panic into an error so the loop
// always receives a result for the call.
func (r *Registry) execute(ctx context.Context, t Tool, call agent.ToolCall, rc agent.RunContext) (result agent.ToolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool panicked", "tool", call.Name, "panic", rec)
			err = fmt.Errorf("tool %q failed unexpectedly", call.Name)
		}
	}()
	return t.Execute(ctx, call, rc)
}

// validateArguments checks the raw argument JSON against the tool's schema.
// Returns "" when valid, otherwise a message for the model.
func validateArguments(schema []byte, arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewStringLoader(arguments)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err.Error()
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// Filtered restricts a registry to a named subset of tools. A persona with
// an explicit tool list dispatches through one of these; an empty list
// passes everything through.
type Filtered struct {
	reg     *Registry
	allowed map[string]bool
}

// NewFiltered wraps reg so only the named tools are visible. Unknown names
// are ignored.
func NewFiltered(reg *Registry, names []string) *Filtered {
	f := &Filtered{reg: reg}
	if len(names) > 0 {
		f.allowed = make(map[string]bool, len(names))
		for _, n := range names {
			f.allowed[n] = true
		}
	}
	return f
}

func (f *Filtered) allows(name string) bool {
	return f.allowed == nil || f.allowed[name]
}

// Definitions implements agent.ToolDispatcher.
func (f *Filtered) Definitions(kind agent.Kind) []agent.ToolDefinition {
	defs := f.reg.Definitions(kind)
	out := defs[:0]
	for _, d := range defs {
		if f.allows(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

// Dispatch implements agent.ToolDispatcher.
func (f *Filtered) Dispatch(ctx context.Context, call agent.ToolCall, rc agent.RunContext) agent.ToolResult {
	if !f.allows(call.Name) {
		return errorResultf(call, "unknown tool %q", call.Name)
	}
	return f.reg.Dispatch(ctx, call, rc)
}
