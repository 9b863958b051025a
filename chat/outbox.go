package chat

import (
	"errors"
	"sync"
)

// DefaultOutboxSize is the number of lines queued for a slow peer before
// further lines to it are dropped.
const DefaultOutboxSize = 64

// ErrOutboxFull is returned by Outbox.Send when the peer is not keeping up.
var ErrOutboxFull = errors.New("outbound queue full")

// ErrOutboxClosed is returned by Outbox.Send after Close.
var ErrOutboxClosed = errors.New("outbound queue closed")

// Outbox queues lines for an Endpoint and writes them from its own goroutine,
// so a peer that stops reading only ever stalls its own writer.
type Outbox struct {
	Endpoint
	queue chan string
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewOutbox starts a writer for ep with room for size queued lines.
func NewOutbox(ep Endpoint, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &Outbox{
		Endpoint: ep,
		queue:    make(chan string, size),
		done:     make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) run() {
	defer close(o.done)
	for line := range o.queue {
		if err := o.Endpoint.Send(line); err != nil {
			logger.Printf("Write failed to %s: %s", o.RemoteAddr(), err)
		}
	}
}

// Send queues line without waiting for the peer.
func (o *Outbox) Send(line string) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- line:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close closes the endpoint, which unblocks a stuck write, and waits for the
// writer to finish. Lines still queued are discarded.
func (o *Outbox) Close() error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	err := o.Endpoint.Close()
	<-o.done
	return err
}
