package chat

import (
	"sync/atomic"

	"github.com/chatrelay/chatrelay/set"
)

// BroadcastResult reports how a broadcast went.
type BroadcastResult struct {
	Sent   int
	Failed []*Session
}

// Registry is the set of joined sessions. It is the only place sessions are
// added, removed and enumerated, and is safe for concurrent use.
type Registry struct {
	sessions *set.Set
	observer Observer
	lastID   int64
}

// NewRegistry creates an empty registry. A nil observer discards
// announcements.
func NewRegistry(observer Observer) *Registry {
	if observer == nil {
		observer = nullObserver{}
	}
	return &Registry{
		sessions: set.New(),
		observer: observer,
	}
}

// NextID returns a fresh id, starting at 1.
func (r *Registry) NextID() int {
	return int(atomic.AddInt64(&r.lastID, 1))
}

// Register adds s to the room and announces it. A datagram session whose peer
// is already registered is not added again; Register then returns false.
func (r *Registry) Register(s *Session) bool {
	err := r.sessions.AddNew(set.Itemize(s.Key, s))
	if err == set.ErrCollision && s.Transport == Datagram {
		logger.Printf("%s already registered, ignoring.", s.Key)
		return false
	} else if err != nil {
		// Stream keys are unique per connection, so this is a programming error.
		logger.Printf("Failed to register %s: %s", s, err)
		return false
	}
	r.observer.AnnounceClient(s.Endpoint.RemoteAddr(), s.Transport)
	return true
}

// Unregister removes s if it is present. Removing an absent session is a
// no-op; the return value reports whether s was removed by this call.
func (r *Registry) Unregister(s *Session) bool {
	err := r.sessions.RemoveIf(s.Key, func(item set.Item) bool {
		return item.Value().(*Session) == s
	})
	return err == nil
}

// Has reports whether a session with the given key is registered.
func (r *Registry) Has(key string) bool {
	return r.sessions.In(key)
}

// Get returns the registered session with the given key.
func (r *Registry) Get(key string) (*Session, bool) {
	item, err := r.sessions.Get(key)
	if err != nil {
		return nil, false
	}
	return item.Value().(*Session), true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Sessions returns a snapshot of the registered sessions.
func (r *Registry) Sessions() []*Session {
	return toSessions(r.sessions.Snapshot())
}

// Clear removes every session and returns them, leaving teardown to the caller.
func (r *Registry) Clear() []*Session {
	return toSessions(r.sessions.Clear())
}

// Broadcast delivers line to every registered session, the sender included.
// A failed send is logged and skipped; the recipient stays registered.
func (r *Registry) Broadcast(line string) BroadcastResult {
	res := BroadcastResult{}
	recipients := r.Sessions()
	logger.Printf("Broadcast to %d: %s", len(recipients), line)

	for _, s := range recipients {
		if s.Status() == Closed {
			continue
		}
		if err := s.Endpoint.Send(line); err != nil {
			logger.Printf("Failed to send to %s: %s", s, err)
			res.Failed = append(res.Failed, s)
			continue
		}
		res.Sent++
	}
	r.observer.AnnounceText(line)
	return res
}

func toSessions(items []set.Item) []*Session {
	r := make([]*Session, 0, len(items))
	for _, item := range items {
		r = append(r, item.Value().(*Session))
	}
	return r
}
