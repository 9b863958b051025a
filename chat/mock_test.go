package chat

import (
	"errors"
	"net"
	"sync"
)

var errBroken = errors.New("broken pipe")

// Used for testing
type MockEndpoint struct {
	mu     sync.Mutex
	addr   net.Addr
	lines  []string
	broken bool
	closed bool
}

func NewMockEndpoint(addr string) *MockEndpoint {
	udp, _ := net.ResolveUDPAddr("udp", addr)
	return &MockEndpoint{addr: udp}
}

func (e *MockEndpoint) Send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken || e.closed {
		return errBroken
	}
	e.lines = append(e.lines, line)
	return nil
}

func (e *MockEndpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *MockEndpoint) RemoteAddr() net.Addr {
	return e.addr
}

func (e *MockEndpoint) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.lines...)
}

type MockObserver struct {
	mu      sync.Mutex
	clients []string
	text    []string
}

func (o *MockObserver) AnnounceClient(addr net.Addr, t Transport) {
	o.mu.Lock()
	o.clients = append(o.clients, addr.String()+" "+t.String())
	o.mu.Unlock()
}

func (o *MockObserver) AnnounceText(line string) {
	o.mu.Lock()
	o.text = append(o.text, line)
	o.mu.Unlock()
}

func (o *MockObserver) Clients() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.clients...)
}

func (o *MockObserver) Text() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.text...)
}
