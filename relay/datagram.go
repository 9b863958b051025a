package relay

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultBufferSize is the largest datagram read, in bytes, when none is
// configured.
const DefaultBufferSize = 1024

// DatagramListener owns the well-known UDP socket that new peers send their
// join payload to.
type DatagramListener struct {
	*net.UDPConn
	BufferSize int
}

// ListenDatagram binds the well-known datagram socket.
func ListenDatagram(laddr string) (*DatagramListener, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, err
	}
	socket, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &DatagramListener{UDPConn: socket, BufferSize: DefaultBufferSize}, nil
}

// Port returns the local port of the well-known socket.
func (l *DatagramListener) Port() int {
	return l.LocalAddr().(*net.UDPAddr).Port
}

// ReadJoin blocks until the next join datagram arrives.
func (l *DatagramListener) ReadJoin() (string, *net.UDPAddr, error) {
	buf := make([]byte, bufferSize(l.BufferSize))
	n, from, err := l.ReadFromUDP(buf)
	if err != nil {
		return "", nil, err
	}
	if n == 0 {
		return "", from, ErrEmptyPayload
	}
	logTruncated(n, buf, from)
	return string(buf[:n]), from, nil
}

// Serve reads join datagrams and calls handler for each one, synchronously.
// Empty payloads are dropped. Serve returns once the socket is closed.
func (l *DatagramListener) Serve(handler func(payload string, from *net.UDPAddr)) error {
	var backoff time.Duration
	for {
		payload, from, err := l.ReadJoin()
		if err == ErrEmptyPayload {
			logger.Printf("Dropping empty join from %s", from)
			continue
		} else if err != nil {
			if IsClosed(err) {
				return err
			}
			backoff = nextBackoff(backoff)
			logger.Printf("Failed to receive join datagram: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		handler(payload, from)
	}
}

// NewPeer allocates a dedicated ephemeral socket for the peer at remote, on
// the same IP as the well-known socket.
func (l *DatagramListener) NewPeer(remote *net.UDPAddr) (*DatagramPeer, error) {
	local := &net.UDPAddr{IP: l.LocalAddr().(*net.UDPAddr).IP}
	socket, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, err
	}
	return NewDatagramPeer(socket, remote, l.BufferSize), nil
}

// DatagramPeer is the server end of one promoted datagram peer: a private
// socket plus the address it talks to.
type DatagramPeer struct {
	conn       *net.UDPConn
	remote     *net.UDPAddr
	bufferSize int

	closeOnce sync.Once
	closeErr  error
}

// NewDatagramPeer pairs socket with remote.
func NewDatagramPeer(socket *net.UDPConn, remote *net.UDPAddr, bufferSize int) *DatagramPeer {
	return &DatagramPeer{
		conn:       socket,
		remote:     remote,
		bufferSize: bufferSize,
	}
}

// Port returns the local port of the dedicated socket.
func (p *DatagramPeer) Port() int {
	return p.conn.LocalAddr().(*net.UDPAddr).Port
}

// Handoff tells the peer which port to use from now on: a single datagram
// holding the decimal port number.
func (p *DatagramPeer) Handoff() error {
	_, err := p.conn.WriteToUDP([]byte(strconv.Itoa(p.Port())), p.remote)
	return err
}

// Send writes one line as one datagram.
func (p *DatagramPeer) Send(line string) error {
	_, err := p.conn.WriteToUDP([]byte(line), p.remote)
	return err
}

// Recv blocks until the next datagram from the peer. Datagrams from any other
// address are discarded.
func (p *DatagramPeer) Recv() (string, error) {
	buf := make([]byte, bufferSize(p.bufferSize))
	for {
		n, from, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return "", err
		}
		if !sameAddr(from, p.remote) {
			logger.Printf("Ignoring datagram from %s on port of %s", from, p.remote)
			continue
		}
		logTruncated(n, buf, from)
		return string(buf[:n]), nil
	}
}

// Close releases the dedicated socket.
func (p *DatagramPeer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

func (p *DatagramPeer) RemoteAddr() net.Addr {
	return p.remote
}

func (p *DatagramPeer) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

// logTruncated notes a datagram that filled the whole read buffer; the rest of
// it, if any, is lost.
func logTruncated(n int, buf []byte, from *net.UDPAddr) {
	if n == len(buf) {
		logger.Printf("Datagram from %s filled the %d byte buffer, possibly truncated", from, len(buf))
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

func bufferSize(n int) int {
	if n <= 0 {
		return DefaultBufferSize
	}
	return n
}
