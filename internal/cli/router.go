// Package cli implements subcommand routing and service management for
// the attache binary.
package cli

import (
	"fmt"
	"strings"
)

// Command is one CLI subcommand.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
}

// Router dispatches subcommands. Registration order is preserved so
// usage output stays stable.
type Router struct {
	order    []string
	commands map[string]*Command
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		commands: make(map[string]*Command),
	}
}

// Register adds a command. Re-registering a name replaces it in place.
func (r *Router) Register(cmd *Command) {
	if _, ok := r.commands[cmd.Name]; !ok {
		r.order = append(r.order, cmd.Name)
	}
	r.commands[cmd.Name] = cmd
}

// Dispatch routes to the named command or returns an error.
func (r *Router) Dispatch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command specified")
	}

	cmd, ok := r.commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}

	return cmd.Run(args[1:])
}

// HasCommand reports whether a command is registered.
func (r *Router) HasCommand(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// ListCommands returns the registered commands in registration order.
func (r *Router) ListCommands() []Command {
	cmds := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		cmds = append(cmds, *r.commands[name])
	}
	return cmds
}

// Usage returns one line per command, in registration order.
func (r *Router) Usage() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		fmt.Fprintf(&b, "  %-12s %s\n", name, r.commands[name].Description)
	}
	return b.String()
}
