package ws

import "sync"

// Registry maps authenticated users to their live connections. At most one
// connection per user: registering a new connection for a user displaces the
// old one (last writer wins), which is how reconnects work.
//
// It also implements service.Presence, so friend listings can be annotated
// with online state.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]*Client
	byClient map[*Client]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]*Client),
		byClient: make(map[*Client]string),
	}
}

// Register binds userID to c and returns the connection it displaced, or nil
// if the user was offline. The caller is responsible for closing the
// displaced connection.
func (r *Registry) Register(userID string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.byUser[userID]
	if prev == c {
		return nil
	}
	if prev != nil {
		delete(r.byClient, prev)
	}
	r.byUser[userID] = c
	r.byClient[c] = userID
	return prev
}

// Unregister removes c and returns the userID it carried. A connection that
// was already displaced by a reconnect is no longer present, so its late
// unregister returns ok=false and leaves the new connection untouched.
func (r *Registry) Unregister(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byClient[c]
	if !ok {
		return "", false
	}
	delete(r.byClient, c)
	delete(r.byUser, userID)
	return userID, true
}

// Lookup returns the live connection for userID.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Identity returns the userID bound to c, if c has authenticated.
func (r *Registry) Identity(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byClient[c]
	return userID, ok
}

// IsOnline reports whether userID has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// OnlineUsers returns the IDs of all connected users.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	return ids
}
