// Package reply implements the pending-reply registry that correlates an
// outbound message with the multi-step command waiting on its answer.
//
// A command that solicits a reply (e.g. "pick a result by number") registers
// a Continuation keyed by the ID of the message it sent. When an inbound
// message arrives that replies to that ID, the bot routes it back to the
// owning command. Consumption is atomic: two concurrent replies to the same
// message can never both succeed.
package reply

import (
	"log/slog"
	"sync"
	"time"
)

// Continuation holds the state a command saved while waiting for a reply.
type Continuation struct {
	// Key is the ID of the outbound message that solicited the reply.
	Key string

	// Command names the command that resumes this continuation.
	Command string

	// Owner is the only user allowed to resume it.
	Owner string

	// ChatID is the chat the workflow runs in.
	ChatID string

	// Payload is command-specific state.
	Payload any

	// CreatedAt is used for expiry.
	CreatedAt time.Time
}

// Registry is a concurrency-safe map of pending continuations.
//
// Ownership checks are done with Peek, never Consume: a reply from the
// wrong user must not invalidate the continuation for its rightful owner.
// Consume happens only once the resuming command has fully validated the
// reply.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Continuation
	ttl     time.Duration
	logger  *slog.Logger
}

// DefaultTTL bounds how long an unanswered continuation is kept.
const DefaultTTL = time.Hour

// NewRegistry creates a registry. A ttl of 0 means DefaultTTL; entries
// older than the TTL are removed by Expire, which the bot runs on a
// schedule.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*Continuation),
		ttl:     ttl,
		logger:  logger.With("component", "reply"),
	}
}

// Register stores a continuation, overwriting any existing entry at the
// same key.
func (r *Registry) Register(key string, c *Continuation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Key = key
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.entries[key] = c
}

// Peek returns the continuation at key without removing it.
func (r *Registry) Peek(key string) (*Continuation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[key]
	return c, ok
}

// Consume atomically retrieves and removes the continuation at key.
// Absence is a normal outcome: the message was already answered, or the
// reply targeted an unrelated message.
func (r *Registry) Consume(key string) (*Continuation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return c, ok
}

// Expire removes continuations older than the registry TTL and returns
// how many were dropped.
func (r *Registry) Expire() int {
	cutoff := time.Now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, c := range r.entries {
		if c.CreatedAt.Before(cutoff) {
			delete(r.entries, key)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("expired pending replies", "count", n)
	}
	return n
}

// Len returns the number of pending continuations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
