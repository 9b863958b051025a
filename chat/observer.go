package chat

import (
	"fmt"
	"io"
	"net"
	"sync"
)

// Observer is told about joins and about every line relayed through the room.
// Implementations must not block for long; wrap slow ones in an AsyncObserver.
type Observer interface {
	AnnounceClient(addr net.Addr, t Transport)
	AnnounceText(line string)
}

type nullObserver struct{}

func (nullObserver) AnnounceClient(net.Addr, Transport) {}
func (nullObserver) AnnounceText(string)                {}

// LogObserver reports to the package logger.
type LogObserver struct{}

func (LogObserver) AnnounceClient(addr net.Addr, t Transport) {
	logger.Printf("%s is connected using %s.", hostOf(addr), t)
}

func (LogObserver) AnnounceText(line string) {
	logger.Print(line)
}

// WriterObserver writes every announcement as a line to an io.Writer, such as
// a chat log file.
type WriterObserver struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterObserver creates an observer that writes to out.
func NewWriterObserver(out io.Writer) *WriterObserver {
	return &WriterObserver{out: out}
}

func (o *WriterObserver) AnnounceClient(addr net.Addr, t Transport) {
	o.writeLine(fmt.Sprintf("%s is connected using %s.", hostOf(addr), t))
}

func (o *WriterObserver) AnnounceText(line string) {
	o.writeLine(line)
}

func (o *WriterObserver) writeLine(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := fmt.Fprintln(o.out, line); err != nil {
		logger.Printf("Failed to write to chat log: %s", err)
	}
}

// Observers fans announcements out to several observers in order.
type Observers []Observer

func (obs Observers) AnnounceClient(addr net.Addr, t Transport) {
	for _, o := range obs {
		o.AnnounceClient(addr, t)
	}
}

func (obs Observers) AnnounceText(line string) {
	for _, o := range obs {
		o.AnnounceText(line)
	}
}

type announcement struct {
	addr      net.Addr
	transport Transport
	line      string
	isClient  bool
}

// AsyncObserver hands announcements to a wrapped observer from its own
// goroutine. When the buffer is full, announcements are dropped rather than
// stalling the caller.
type AsyncObserver struct {
	inner Observer
	queue chan announcement
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncObserver starts delivering to inner with a queue of the given size.
func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	o := &AsyncObserver{
		inner: inner,
		queue: make(chan announcement, buffer),
		done:  make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *AsyncObserver) run() {
	defer close(o.done)
	for a := range o.queue {
		if a.isClient {
			o.inner.AnnounceClient(a.addr, a.transport)
		} else {
			o.inner.AnnounceText(a.line)
		}
	}
}

func (o *AsyncObserver) push(a announcement) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.queue <- a:
	default:
		logger.Print("Observer queue full, dropping announcement.")
	}
}

func (o *AsyncObserver) AnnounceClient(addr net.Addr, t Transport) {
	o.push(announcement{addr: addr, transport: t, isClient: true})
}

func (o *AsyncObserver) AnnounceText(line string) {
	o.push(announcement{line: line})
}

// Close stops accepting announcements and waits for the queued ones to be
// delivered.
func (o *AsyncObserver) Close() error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	<-o.done
	return nil
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return "<unknown>"
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
