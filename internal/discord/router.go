package discord

import (
	"strings"
	"sync"
)

// HandlerFunc is the signature for prefix command handlers. args holds the
// whitespace-separated words after the command name.
type HandlerFunc func(ctx *CommandContext, args []string)

// CommandContext carries everything a handler needs about the inbound
// message.
type CommandContext struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	Username  string
}

// CommandRouter dispatches prefix chat commands ("!play never gonna give
// you up") to registered handlers. Command names and aliases come from
// configuration, so registration is keyed by every invocation name.
type CommandRouter struct {
	mu       sync.RWMutex
	prefix   string
	handlers map[string]HandlerFunc
	notFound HandlerFunc
}

// NewCommandRouter creates an empty router for the given command prefix.
func NewCommandRouter(prefix string) *CommandRouter {
	return &CommandRouter{
		prefix:   prefix,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to one or more invocation names. Names are
// matched case-insensitively.
func (r *CommandRouter) Register(handler HandlerFunc, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if name == "" {
			continue
		}
		r.handlers[strings.ToLower(name)] = handler
	}
}

// SetNotFound binds the handler invoked for prefixed messages whose command
// word matches nothing.
func (r *CommandRouter) SetNotFound(handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = handler
}

// Prefix returns the configured command prefix.
func (r *CommandRouter) Prefix() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefix
}

// Dispatch parses content and invokes the matching handler. It reports
// whether the message was a command at all; non-prefixed messages are left
// alone.
func (r *CommandRouter) Dispatch(ctx *CommandContext, content string) bool {
	r.mu.RLock()
	prefix := r.prefix
	r.mu.RUnlock()

	if !strings.HasPrefix(content, prefix) {
		return false
	}
	fields := strings.Fields(content[len(prefix):])
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])

	r.mu.RLock()
	handler, ok := r.handlers[name]
	notFound := r.notFound
	r.mu.RUnlock()

	if !ok {
		if notFound != nil {
			notFound(ctx, fields[1:])
		}
		return true
	}
	handler(ctx, fields[1:])
	return true
}
