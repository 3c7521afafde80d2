package session

import (
	"log/slog"
	"sync"
	"time"
)

// Context holds the session currently being recorded or played. It is read
// from logging handlers on other goroutines.
type Context struct {
	mu        sync.RWMutex
	id        string
	startedAt time.Time
	mode      string
}

// NewContext creates an idle Context.
func NewContext() *Context {
	return &Context{}
}

// Begin marks id as the active session.
func (c *Context) Begin(id, mode string, startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	c.mode = mode
	c.startedAt = startedAt
}

// End clears the active session.
func (c *Context) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = ""
	c.mode = ""
	c.startedAt = time.Time{}
}

// ID returns the active session id, or "" when idle.
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// StartedAt returns when the active session began.
func (c *Context) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// LogAttrs returns attributes describing the active session, for use as a
// logging.ContextProvider.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.id == "" {
		return nil
	}
	return []slog.Attr{
		slog.String("session", c.id),
		slog.String("mode", c.mode),
	}
}
