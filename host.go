package chatrelay

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/shazow/rateio"
	"github.com/sourcegraph/conc"

	"github.com/chatrelay/chatrelay/chat"
	"github.com/chatrelay/chatrelay/internal/humantime"
	"github.com/chatrelay/chatrelay/relay"
)

const defaultObserverBuffer = 64

// receiver is the read side of a session endpoint.
type receiver interface {
	Recv() (string, error)
}

// Host is the bridge between the relay listeners and the chat registry.
// TODO: Datagram sessions have no keepalive, so a vanished UDP peer is only
// removed when it sends the sentinel.
type Host struct {
	*chat.Registry
	stream   *relay.StreamListener
	datagram *relay.DatagramListener
	observer *chat.AsyncObserver

	// Greeting sends stream peers a line describing the server end on connect.
	Greeting bool

	// MaxInputLength rejects longer messages, if positive.
	MaxInputLength int

	// RateLimit returns a per-session message limiter, if set.
	RateLimit func() rateio.Limiter

	// OutboxSize is how many lines may wait for a slow session before lines
	// to it are dropped. Zero selects chat.DefaultOutboxSize.
	OutboxSize int

	workers conc.WaitGroup
	closing int32

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewHost creates a Host on top of existing listeners. Either listener may be
// nil to serve a single transport. Observer may be nil.
func NewHost(stream *relay.StreamListener, datagram *relay.DatagramListener, observer chat.Observer) *Host {
	return NewHostBuffered(stream, datagram, observer, defaultObserverBuffer)
}

// NewHostBuffered is NewHost with an explicit observer queue size. A buffer of
// zero selects the default size.
func NewHostBuffered(stream *relay.StreamListener, datagram *relay.DatagramListener, observer chat.Observer, buffer int) *Host {
	if buffer <= 0 {
		buffer = defaultObserverBuffer
	}
	if observer == nil {
		observer = chat.LogObserver{}
	}
	async := chat.NewAsyncObserver(observer, buffer)
	return &Host{
		Registry: chat.NewRegistry(async),
		stream:   stream,
		datagram: datagram,
		observer: async,
		Greeting: true,
	}
}

// Serve runs both acceptors until ctx is cancelled, Close is called or both
// listeners fail. It then disconnects every session and waits for all workers.
func (h *Host) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	defer cancel()

	var acceptors conc.WaitGroup
	if h.stream != nil {
		logger.Infof("Listening for stream connections on %s", h.stream.Addr())
		acceptors.Go(h.serveStream)
	}
	if h.datagram != nil {
		logger.Infof("Listening for datagram joins on %s", h.datagram.LocalAddr())
		acceptors.Go(h.serveDatagram)
	}
	stopped := make(chan struct{})
	go func() {
		acceptors.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
	case <-stopped:
		logger.Errorf("All listeners stopped, shutting down.")
	}

	h.shutdown()
	<-stopped
	h.workers.Wait()
	h.observer.Close()
	logger.Infof("Shutdown complete.")
}

// Close stops a running Serve.
func (h *Host) Close() error {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (h *Host) isClosing() bool {
	return atomic.LoadInt32(&h.closing) == 1
}

func (h *Host) shutdown() {
	if !atomic.CompareAndSwapInt32(&h.closing, 0, 1) {
		return
	}

	listeners := relay.MultiCloser{}
	if h.stream != nil {
		listeners = append(listeners, h.stream)
	}
	if h.datagram != nil {
		listeners = append(listeners, h.datagram)
	}
	if err := listeners.Close(); err != nil {
		logger.Warningf("Failed to close listeners: %s", err)
	}

	sessions := h.Registry.Clear()
	logger.Infof("Disconnecting %d sessions.", len(sessions))
	for _, s := range sessions {
		h.teardown(s)
	}
}

// teardown closes a session without announcing its departure.
func (h *Host) teardown(s *chat.Session) {
	s.Close()
	h.Unregister(s)
	if err := s.Endpoint.Close(); err != nil && !relay.IsClosed(err) {
		logger.Debugf("[%s] Failed to close: %s", s, err)
	}
}

func (h *Host) serveStream() {
	err := h.stream.Serve(h.connectStream)
	if h.isClosing() {
		return
	}
	logger.Errorf("Stream listener stopped: %v", err)
}

// connectStream promotes an accepted connection to a session.
func (h *Host) connectStream(conn *relay.StreamConn) {
	if h.MaxInputLength > 0 {
		conn.MaxLineLength = h.MaxInputLength
	}
	s := chat.NewStreamSession(h.NextID(), chat.NewOutbox(conn, h.OutboxSize))
	h.Register(s)
	if h.isClosing() {
		h.teardown(s)
		return
	}
	logger.Debugf("[%s] Joined: %s", conn.RemoteAddr(), s.Name())

	if h.Greeting {
		if err := s.Endpoint.Send(greeting(conn.LocalAddr())); err != nil {
			logger.Warningf("[%s] Failed to greet: %s", conn.RemoteAddr(), err)
		}
	}
	h.spawn(s, conn)
}

func (h *Host) serveDatagram() {
	err := h.datagram.Serve(h.joinDatagram)
	if h.isClosing() {
		return
	}
	logger.Errorf("Datagram listener stopped: %v", err)
}

// joinDatagram performs the join handshake for a datagram sent to the
// well-known port. It runs on the datagram acceptor, one join at a time.
func (h *Host) joinDatagram(payload string, from *net.UDPAddr) {
	if h.Has(chat.DatagramKey(from)) {
		logger.Debugf("[%s] Already joined, ignoring join.", from)
		return
	}

	peer, err := h.datagram.NewPeer(from)
	if err != nil {
		logger.Errorf("[%s] Failed to allocate socket: %s", from, err)
		return
	}
	s := chat.NewDatagramSession(h.NextID(), chat.NewOutbox(peer, h.OutboxSize))
	if !h.Register(s) {
		s.Endpoint.Close()
		return
	}
	if h.isClosing() {
		h.teardown(s)
		return
	}

	h.broadcast(chat.Format(s, payload))

	if err := peer.Handoff(); err != nil {
		logger.Errorf("[%s] Failed to hand off port %d: %s", from, peer.Port(), err)
		h.teardown(s)
		return
	}
	s.Activate()
	logger.Debugf("[%s] Joined: %s on port %d", from, s.Name(), peer.Port())
	h.spawn(s, peer)
}

func (h *Host) spawn(s *chat.Session, r receiver) {
	h.workers.Go(func() {
		h.readLoop(s, r)
	})
}

// readLoop relays messages from one session until it leaves or its transport
// fails.
func (h *Host) readLoop(s *chat.Session, r receiver) {
	var ratelimit rateio.Limiter
	if h.RateLimit != nil {
		ratelimit = h.RateLimit()
	}

	for {
		msg, err := r.Recv()
		if err == relay.ErrLineTooLong {
			h.reject(s, "Message rejected: Input too long.")
			continue
		}
		if err != nil {
			if s.Transport == chat.Datagram && !relay.IsClosed(err) {
				logger.Warningf("[%s] Datagram reading error: %s", s, err)
				continue
			}
			if err != io.EOF && !relay.IsClosed(err) {
				logger.Infof("[%s] Reading error: %s", s, err)
			}
			h.leave(s)
			return
		}

		if msg == chat.Sentinel {
			h.leave(s)
			return
		}
		if ratelimit != nil && ratelimit.Count(1) != nil {
			h.reject(s, "Message rejected: Rate limiting is in effect.")
			continue
		}
		if h.MaxInputLength > 0 && len(msg) > h.MaxInputLength {
			h.reject(s, "Message rejected: Input too long.")
			continue
		}

		h.broadcast(chat.Format(s, msg))
	}
}

// leave removes s from the room, closes its transport and tells everyone
// else. Only the first call for a session does anything.
func (h *Host) leave(s *chat.Session) {
	if !s.Close() {
		return
	}
	h.Unregister(s)
	if err := s.Endpoint.Close(); err != nil && !relay.IsClosed(err) {
		logger.Debugf("[%s] Failed to close: %s", s, err)
	}
	logger.Debugf("[%s] Leaving: %s after %s", s.Endpoint.RemoteAddr(), s.Name(), humantime.Since(s.Joined))
	h.broadcast(chat.Format(s, chat.LeftNotice))
}

// broadcast relays line to the room and logs the recipients it missed.
func (h *Host) broadcast(line string) {
	res := h.Broadcast(line)
	for _, s := range res.Failed {
		logger.Debugf("[%s] Dropped line for %s", s.Endpoint.RemoteAddr(), s.Name())
	}
}

func (h *Host) reject(s *chat.Session, reason string) {
	if err := s.Endpoint.Send(reason); err != nil {
		logger.Debugf("[%s] Failed to send rejection: %s", s, err)
	}
}

func greeting(local net.Addr) string {
	host, port, err := net.SplitHostPort(local.String())
	if err != nil {
		host, port = local.String(), "?"
	}
	return fmt.Sprintf("Receiving communication from server using IP address %s and Port %s.", host, port)
}
