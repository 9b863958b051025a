package chat

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Transport is the kind of socket a session talks over.
type Transport int

const (
	Stream Transport = iota
	Datagram
)

func (t Transport) String() string {
	switch t {
	case Stream:
		return "TCP/IP"
	case Datagram:
		return "UDP"
	default:
		return fmt.Sprintf("Transport(%d)", int(t))
	}
}

// Status is the lifecycle position of a session. It only ever moves forward.
type Status int32

const (
	Joining Status = iota
	Active
	Closed
)

func (s Status) String() string {
	switch s {
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Endpoint is the transport side of a session, owned by whoever reads from it.
type Endpoint interface {
	// Send delivers one chat line to the peer.
	Send(line string) error
	// Close releases the transport resources. Safe to call more than once.
	Close() error
	RemoteAddr() net.Addr
}

// Session is the server-side record of one joined peer.
type Session struct {
	ID        int
	Key       string
	Transport Transport
	Endpoint  Endpoint
	Joined    time.Time

	status int32
}

// NewStreamSession creates an active session for an accepted stream
// connection. Stream sessions are keyed uniquely, so they never collide in the
// registry.
func NewStreamSession(id int, ep Endpoint) *Session {
	return &Session{
		ID:        id,
		Key:       "stream:" + uuid.NewString(),
		Transport: Stream,
		Endpoint:  ep,
		Joined:    time.Now(),
		status:    int32(Active),
	}
}

// NewDatagramSession creates a joining session for a datagram peer. The key is
// derived from the peer's address, so a second join from the same peer maps
// onto the same registry entry.
func NewDatagramSession(id int, ep Endpoint) *Session {
	return &Session{
		ID:        id,
		Key:       DatagramKey(ep.RemoteAddr()),
		Transport: Datagram,
		Endpoint:  ep,
		Joined:    time.Now(),
		status:    int32(Joining),
	}
}

// DatagramKey returns the registry key of a datagram peer at addr.
func DatagramKey(addr net.Addr) string {
	return "datagram:" + addr.String()
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	return Status(atomic.LoadInt32(&s.status))
}

// Activate moves a joining session to active. It reports false if the session
// was not joining.
func (s *Session) Activate() bool {
	return atomic.CompareAndSwapInt32(&s.status, int32(Joining), int32(Active))
}

// Close marks the session closed. Only the first call returns true; the caller
// that gets true owns the teardown.
func (s *Session) Close() bool {
	for {
		old := atomic.LoadInt32(&s.status)
		if old == int32(Closed) {
			return false
		}
		if atomic.CompareAndSwapInt32(&s.status, old, int32(Closed)) {
			return true
		}
	}
}

// Name is the display name used as the line prefix.
func (s *Session) Name() string {
	return fmt.Sprintf("Client%d", s.ID)
}

func (s *Session) String() string {
	return fmt.Sprintf("%s(%s %s)", s.Name(), s.Transport, s.Endpoint.RemoteAddr())
}
