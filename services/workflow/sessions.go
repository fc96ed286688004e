package workflow

import (
	"time"

	"github.com/google/uuid"
	c "github.com/patrickmn/go-cache"
)

// Session is one live engine owned by an API client.
type Session struct {
	ID         string    `json:"sessionId"`
	WorkflowID string    `json:"workflowId"`
	CreatedAt  time.Time `json:"createdAt"`
	Engine     *Engine   `json:"-"`

	subs []Subscription
}

// close stops the engine and drops its subscriptions.
func (s *Session) close() {
	s.Engine.Stop()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
}

// SessionStore holds live sessions. A session idle for longer than the TTL is
// evicted and its engine stopped, which cancels any pending auto-execute timer.
type SessionStore struct {
	cache *c.Cache
}

// NewSessionStore creates a store; ttl <= 0 keeps sessions until deleted.
func NewSessionStore(ttl time.Duration) *SessionStore {
	expiration, cleanup := c.NoExpiration, 10*time.Minute
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl / 2
		if cleanup < time.Second {
			cleanup = time.Second
		}
	}
	cache := c.New(expiration, cleanup)
	cache.OnEvicted(func(_ string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.close()
		}
	})
	return &SessionStore{cache: cache}
}

// Add registers a new session for engine and returns it.
func (st *SessionStore) Add(workflowID string, engine *Engine, subs ...Subscription) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		CreatedAt:  time.Now().UTC(),
		Engine:     engine,
		subs:       subs,
	}
	st.cache.Set(s.ID, s, c.DefaultExpiration)
	return s
}

// Get returns a session and extends its lifetime.
func (st *SessionStore) Get(id string) (*Session, bool) {
	v, found := st.cache.Get(id)
	if !found {
		return nil, false
	}
	// Replace fails once the key is gone, so a concurrent Delete or eviction
	// is never undone.
	if err := st.cache.Replace(id, v, c.DefaultExpiration); err != nil {
		return nil, false
	}
	return v.(*Session), true
}

// Delete removes a session and stops its engine.
func (st *SessionStore) Delete(id string) bool {
	if _, found := st.cache.Get(id); !found {
		return false
	}
	st.cache.Delete(id)
	return true
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	return st.cache.ItemCount()
}
