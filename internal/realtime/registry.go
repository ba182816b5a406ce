package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LastSeenStamper records the moment a user's session went away.
type LastSeenStamper interface {
	StampLastSeen(ctx context.Context, userID int64, at time.Time) error
}

// Registry binds authenticated users to their live client, one client per
// user. It is the single authority on who is online; inbound handlers
// resolve the acting user through Resolve, never from payload fields.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[int64]*Client
	byClient map[*Client]int64

	users  LastSeenStamper
	logger *zap.SugaredLogger
}

func NewRegistry(users LastSeenStamper, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		byUser:   make(map[int64]*Client),
		byClient: make(map[*Client]int64),
		users:    users,
		logger:   logger,
	}
}

// Bind associates the client with the user. An existing binding for the
// same user is replaced silently: the old client is closed and the new
// one takes over without an error surfacing to either side. A client
// re-authenticating as a different user first sheds its old identity, so
// the previous user goes offline instead of pointing at another user's
// socket.
func (r *Registry) Bind(userID int64, c *Client) {
	r.mu.Lock()
	prevUser, rebound := r.byClient[c]
	if rebound && prevUser != userID {
		if cur, ok := r.byUser[prevUser]; ok && cur == c {
			delete(r.byUser, prevUser)
		} else {
			rebound = false
		}
	} else {
		rebound = false
	}
	if old, ok := r.byUser[userID]; ok && old != c {
		delete(r.byClient, old)
		old.Close()
	}
	r.byUser[userID] = c
	r.byClient[c] = userID
	r.mu.Unlock()

	if rebound {
		if err := r.users.StampLastSeen(context.Background(), prevUser, time.Now().UTC()); err != nil {
			r.logger.Warnw("last-seen stamp failed", "err", err, "user_id", prevUser)
		}
		r.announce("user:offline", prevUser)
	}
	r.announce("user:online", userID)
}

// Unbind drops the client's binding if it is still the current one for
// its user, stamps last-seen and announces the user offline. Stale
// clients replaced by a rebind unbind as a no-op.
func (r *Registry) Unbind(c *Client) {
	r.mu.Lock()
	userID, ok := r.byClient[c]
	if ok {
		delete(r.byClient, c)
		if cur, bound := r.byUser[userID]; bound && cur == c {
			delete(r.byUser, userID)
		} else {
			ok = false
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := r.users.StampLastSeen(context.Background(), userID, time.Now().UTC()); err != nil {
		r.logger.Warnw("last-seen stamp failed", "err", err, "user_id", userID)
	}
	r.announce("user:offline", userID)
}

// Resolve returns the user bound to the client.
func (r *Registry) Resolve(c *Client) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byClient[c]
	return userID, ok
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// Get returns the live client for the user, if any.
func (r *Registry) Get(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Count reports the number of bound sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.byUser))
	for _, c := range r.byUser {
		clients = append(clients, c)
	}
	return clients
}

// announce pushes a presence event to every bound session, including the
// subject's own if still connected.
func (r *Registry) announce(event string, userID int64) {
	frame, err := json.Marshal(Outbound{
		Event:   event,
		Success: true,
		Data:    presencePayload{UserID: userID},
	})
	if err != nil {
		return
	}
	for _, c := range r.snapshot() {
		c.Send(frame)
	}
}

type presencePayload struct {
	UserID int64 `json:"user_id"`
}
