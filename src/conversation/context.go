package conversation

import (
	"encoding/json"
	"time"

	"medcmd/src/logger"

	"github.com/bytedance/sonic"
)

// DefaultTTL is how long a context entry lives after its last write.
const DefaultTTL = 30 * time.Minute

// Context keys.
const (
	KeyCurrentPatient     = "current_patient"
	KeyCurrentMedicalInfo = "current_medical_info"
	KeyLastMentionedDate  = "last_mentioned_date"
	KeyActiveIntent       = "active_intent"
	KeyFilledSlots        = "filled_slots"
	KeyHistory            = "history"
)

// Entry is one stored value with its expiry.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type settings struct {
	ttl time.Duration
	now func() time.Time
}

// Option tunes a Context, Manager or MemoryStore.
type Option func(*settings)

// WithTTL sets the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Context is the short-lived key/value memory of one session.
// Expired entries are invisible and are removed the first time they are read.
// A Context is not safe for concurrent use; Manager serializes access per session.
type Context struct {
	SessionID string

	entries map[string]Entry
	settings
}

// NewContext creates an empty context.
func NewContext(sessionID string, opts ...Option) *Context {
	return &Context{
		SessionID: sessionID,
		entries:   make(map[string]Entry),
		settings:  newSettings(opts),
	}
}

// Put stores value under key. ttl <= 0 uses the default. Every Put resets the expiry.
func (c *Context) Put(key string, value any, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.entries[key] = Entry{Value: data, ExpiresAt: c.now().Add(ttl)}
	return nil
}

// Get decodes the value under key into dest. It reports false when the key is
// absent, expired or undecodable; the latter two are deleted.
func (c *Context) Get(key string, dest any) bool {
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	if !c.now().Before(entry.ExpiresAt) {
		delete(c.entries, key)
		return false
	}
	if err := sonic.Unmarshal(entry.Value, dest); err != nil {
		logger.Warn().Str("session_id", c.SessionID).Str("key", key).Err(err).Msg("Dropping undecodable context entry")
		delete(c.entries, key)
		return false
	}
	return true
}

// Delete removes key.
func (c *Context) Delete(key string) {
	delete(c.entries, key)
}

// Prune removes every expired entry and returns how many were removed.
func (c *Context) Prune() int {
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, expired ones included until pruned.
func (c *Context) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the raw entries for persistence.
func (c *Context) Entries() map[string]Entry {
	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

func (c *Context) load(entries map[string]Entry) {
	for k, v := range entries {
		c.entries[k] = v
	}
}
